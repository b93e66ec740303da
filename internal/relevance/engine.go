package relevance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/notegraph/internal/ai"
	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

const (
	defaultConcurrency       = 4
	defaultPairwiseWarnAbove = 500
)

// Embedder is satisfied by *ai.EmbeddingClient.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scored is one ranked candidate.
type Scored struct {
	NoteID string  `json:"note_id"`
	Score  float64 `json:"score"`
}

// Pair is an unordered note pair; A precedes B in the input order.
type Pair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

type Config struct {
	// Concurrency bounds how many candidate embeddings are requested at once.
	Concurrency int
	// PairwiseWarnAbove is the note count above which all-pairs scoring is
	// logged as a bottleneck.
	PairwiseWarnAbove int
	// EmbedMissing embeds candidates that carry no usable vector. When false
	// such candidates are simply excluded.
	EmbedMissing bool
}

type Engine struct {
	embedder Embedder
	finder   PairFinder
	cfg      Config
}

func NewEngine(embedder Embedder, finder PairFinder, cfg Config) *Engine {
	if finder == nil {
		finder = ExactPairFinder{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PairwiseWarnAbove <= 0 {
		cfg.PairwiseWarnAbove = defaultPairwiseWarnAbove
	}
	return &Engine{embedder: embedder, finder: finder, cfg: cfg}
}

// NoteText is the text embedded for a note: its title followed by the plain
// text of its markdown body.
func NoteText(n model.Note) string {
	return strings.TrimSpace(strings.TrimSpace(n.Title) + "\n" + ai.PlainText(n.Content))
}

// Usable reports whether n carries a precomputed embedding.
func Usable(n model.Note) bool {
	return len(n.Embedding) > 0
}

// Rank scores candidates against query and returns at most topN entries with
// score >= minScore, best first. Candidates that cannot be embedded are
// skipped; when none is usable the result is empty, not an error.
func (e *Engine) Rank(ctx context.Context, query string, candidates []model.Note, topN int, minScore float64) ([]Scored, error) {
	if strings.TrimSpace(query) == "" || topN <= 0 {
		return nil, appErr.ErrInvalid
	}
	logger := logutil.GetLogger(ctx)
	queryVec, err := e.embedQuery(ctx, query)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, err
	}
	vectors, err := e.candidateVectors(ctx, candidates, len(queryVec))
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		if vectors[i] == nil {
			continue
		}
		score := Cosine(queryVec, vectors[i])
		if score < minScore {
			continue
		}
		out = append(out, Scored{NoteID: c.ID, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// PairwiseAboveThreshold scores every unordered pair of notes that carry an
// embedding and keeps those with score > threshold.
func (e *Engine) PairwiseAboveThreshold(ctx context.Context, notes []model.Note, threshold float64) ([]Pair, error) {
	items := make([]Item, 0, len(notes))
	seen := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		if !Usable(n) {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		items = append(items, Item{ID: n.ID, Vector: n.Embedding})
	}
	if len(items) < 2 {
		return []Pair{}, nil
	}
	if len(items) > e.cfg.PairwiseWarnAbove {
		logutil.GetLogger(ctx).Warn("all-pairs similarity over large collection",
			zap.Int("notes", len(items)),
			zap.Int("warn_above", e.cfg.PairwiseWarnAbove),
			zap.String("finder", e.finder.Name()),
		)
	}
	return e.finder.FindPairs(ctx, items, threshold)
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not configured", appErr.ErrUnavailable)
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, appErr.ErrInvalid) || errors.Is(err, appErr.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: embed query: %v", appErr.ErrUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", appErr.ErrUnavailable)
	}
	return vec, nil
}

// candidateVectors returns one vector per candidate, nil where the candidate
// has no usable embedding of dimension dim.
func (e *Engine) candidateVectors(ctx context.Context, candidates []model.Note, dim int) ([][]float32, error) {
	vectors := make([][]float32, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, c := range candidates {
		if len(c.Embedding) == dim {
			vectors[i] = c.Embedding
			continue
		}
		if !e.cfg.EmbedMissing || e.embedder == nil {
			continue
		}
		text := NoteText(c)
		if text == "" {
			continue
		}
		g.Go(func() error {
			vec, err := e.embedder.Embed(gctx, text)
			if err != nil {
				logutil.GetLogger(gctx).Warn("skip candidate, embed failed", zap.String("note_id", c.ID), zap.Error(err))
				return nil
			}
			if len(vec) != dim {
				logutil.GetLogger(gctx).Warn("skip candidate, dimension mismatch",
					zap.String("note_id", c.ID), zap.Int("dim", len(vec)), zap.Int("want", dim))
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}
