package suggest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/ai"
	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/relevance"
)

const (
	defaultSmallSetMax = 10
	defaultRelatedTopN = 5
)

// Ranker is satisfied by *relevance.Engine.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []model.Note, topN int, minScore float64) ([]relevance.Scored, error)
}

// PageRanker is satisfied by *ai.Manager.
type PageRanker interface {
	RankPages(ctx context.Context, query string, pages []ai.PageDigest) (string, error)
}

type RelatedConfig struct {
	// SmallSetMax is the largest candidate count still handed to the
	// generator when no candidate has an embedding.
	SmallSetMax int
	TopN        int
	MinScore    float64
}

// RelatedSuggester ranks candidate pages against a query. Small sets with no
// embeddings are ranked by the generator, everything else by the vector
// engine.
type RelatedSuggester struct {
	engine Ranker
	gen    PageRanker
	cfg    RelatedConfig
}

func NewRelatedSuggester(engine Ranker, gen PageRanker, cfg RelatedConfig) *RelatedSuggester {
	if cfg.SmallSetMax <= 0 {
		cfg.SmallSetMax = defaultSmallSetMax
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaultRelatedTopN
	}
	return &RelatedSuggester{engine: engine, gen: gen, cfg: cfg}
}

func (s *RelatedSuggester) Suggest(ctx context.Context, query string, candidates []model.Note) ([]relevance.Scored, error) {
	if strings.TrimSpace(query) == "" {
		return nil, appErr.ErrInvalid
	}
	if len(candidates) == 0 {
		return []relevance.Scored{}, nil
	}
	if s.useGenerator(candidates) {
		return s.rankWithGenerator(ctx, query, candidates)
	}
	if s.engine == nil {
		return nil, fmt.Errorf("%w: relevance engine not configured", appErr.ErrUnavailable)
	}
	return s.engine.Rank(ctx, query, candidates, s.cfg.TopN, s.cfg.MinScore)
}

func (s *RelatedSuggester) useGenerator(candidates []model.Note) bool {
	if s.gen == nil || len(candidates) > s.cfg.SmallSetMax {
		return false
	}
	for _, c := range candidates {
		if relevance.Usable(c) {
			return false
		}
	}
	return true
}

type generatedRelevance struct {
	ID        string  `json:"id"`
	PageID    string  `json:"pageId"`
	Relevance float64 `json:"relevance"`
}

func (s *RelatedSuggester) rankWithGenerator(ctx context.Context, query string, candidates []model.Note) ([]relevance.Scored, error) {
	logger := logutil.GetLogger(ctx)
	pages := make([]ai.PageDigest, 0, len(candidates))
	order := make(map[string]int, len(candidates))
	for i, c := range candidates {
		if _, dup := order[c.ID]; dup {
			continue
		}
		order[c.ID] = i
		pages = append(pages, ai.PageDigest{ID: c.ID, Title: c.Title, Content: ai.PlainText(c.Content)})
	}
	raw, err := s.gen.RankPages(ctx, query, pages)
	if err != nil {
		logger.Error("generator rank pages failed", zap.Error(err))
		if !errors.Is(err, appErr.ErrUnavailable) {
			err = fmt.Errorf("%w: rank pages: %v", appErr.ErrUnavailable, err)
		}
		return nil, err
	}
	var items []generatedRelevance
	if !ai.ParseObjectList(raw, &items) {
		logger.Warn("unparseable rank pages response", zap.Int("len", len(raw)))
		return []relevance.Scored{}, nil
	}
	out := make([]relevance.Scored, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = strings.TrimSpace(item.PageID)
		}
		if _, ok := order[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		score := clamp01(item.Relevance)
		if score < s.cfg.MinScore {
			continue
		}
		out = append(out, relevance.Scored{NoteID: id, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return order[out[i].NoteID] < order[out[j].NoteID]
	})
	if len(out) > s.cfg.TopN {
		out = out[:s.cfg.TopN]
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
