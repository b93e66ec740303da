package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/graph"
	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/relevance"
)

const (
	defaultGraphViews   = 256
	defaultGraphViewTTL = 30 * time.Minute
)

type GraphServiceConfig struct {
	SemanticThreshold float64
	CacheSize         int
	CacheTTL          time.Duration
}

// GraphView is what a client renders on entering the graph view.
type GraphView struct {
	Graph  *graph.Graph `json:"graph"`
	State  graph.State  `json:"state"`
	Render graph.Render `json:"render"`
}

type InteractResult struct {
	State     graph.State     `json:"state"`
	Highlight graph.Highlight `json:"highlight"`
	Recenter  *graph.Recenter `json:"recenter,omitempty"`
	Render    graph.Render    `json:"render"`
}

// graphSession is a built graph together with the interaction state the
// client is in. Semantic pairs are kept so selection changes can rebuild
// node weights without re-scoring.
type graphSession struct {
	mu    sync.Mutex
	notes []model.Note
	pairs []relevance.Pair
	opts  graph.Options
	graph *graph.Graph
	state graph.State
}

type GraphService struct {
	ai     *AIService
	pairer graph.Pairer
	cfg    GraphServiceConfig
	views  *expirable.LRU[string, *graphSession]
}

func NewGraphService(ai *AIService, pairer graph.Pairer, cfg GraphServiceConfig) *GraphService {
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = graph.DefaultSemanticThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultGraphViews
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultGraphViewTTL
	}
	return &GraphService{
		ai:     ai,
		pairer: pairer,
		cfg:    cfg,
		views:  expirable.NewLRU[string, *graphSession](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// replayPairer hands back pairs computed earlier.
type replayPairer []relevance.Pair

func (p replayPairer) PairwiseAboveThreshold(_ context.Context, _ []model.Note, _ float64) ([]relevance.Pair, error) {
	return p, nil
}

// recordingPairer remembers what the wrapped pairer returned.
type recordingPairer struct {
	inner graph.Pairer
	pairs []relevance.Pair
}

func (p *recordingPairer) PairwiseAboveThreshold(ctx context.Context, notes []model.Note, threshold float64) ([]relevance.Pair, error) {
	pairs, err := p.inner.PairwiseAboveThreshold(ctx, notes, threshold)
	p.pairs = pairs
	return pairs, err
}

// Enter builds the user's graph from scratch and resets interaction state.
// openNoteID is the note the user came from and may be empty.
func (s *GraphService) Enter(ctx context.Context, userID, openNoteID string) (*GraphView, error) {
	notes, err := s.ai.NotesWithEmbeddings(ctx, userID)
	if err != nil {
		return nil, err
	}
	opts := graph.Options{OpenNoteID: openNoteID, SemanticThreshold: s.cfg.SemanticThreshold}
	var pairer graph.Pairer
	rec := &recordingPairer{inner: s.pairer}
	if s.pairer != nil {
		pairer = rec
	}
	g, err := graph.Build(ctx, notes, opts, pairer)
	if err != nil {
		logutil.GetLogger(ctx).Error("failed to build graph", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrUnavailable, err)
	}
	s.views.Add(userID, &graphSession{notes: notes, pairs: rec.pairs, opts: opts, graph: g})
	return &GraphView{
		Graph:  g,
		State:  graph.State{},
		Render: graph.Style(g, graph.State{}, graph.Neighborhood(g, "")),
	}, nil
}

// Interact applies one pointer event to the cached view.
func (s *GraphService) Interact(ctx context.Context, userID string, ev graph.Event) (*InteractResult, error) {
	sess, ok := s.views.Get(userID)
	if !ok {
		return nil, fmt.Errorf("%w: graph view not loaded", appErr.ErrNotFound)
	}
	switch ev.Type {
	case graph.EventPointerEnter, graph.EventPointerLeave, graph.EventClick, graph.EventBackgroundClick:
	default:
		return nil, fmt.Errorf("%w: unknown event %q", appErr.ErrInvalid, ev.Type)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	state, hl, recenter := graph.Apply(sess.graph, sess.state, ev)
	if state.Selected != sess.state.Selected {
		opts := sess.opts
		opts.SelectedNodeID = state.Selected
		g, err := graph.Build(ctx, sess.notes, opts, replayPairer(sess.pairs))
		if err != nil {
			return nil, err
		}
		sess.graph = g
		hl = graph.Neighborhood(g, state.Focus())
	}
	sess.state = state
	return &InteractResult{
		State:     state,
		Highlight: hl,
		Recenter:  recenter,
		Render:    graph.Style(sess.graph, state, hl),
	}, nil
}

// Leave drops the cached view.
func (s *GraphService) Leave(userID string) {
	s.views.Remove(userID)
}
