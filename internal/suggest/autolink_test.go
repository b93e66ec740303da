package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/notegraph/internal/model"
	"github.com/xxxsen/notegraph/internal/relevance"
)

// gatedRanker blocks each Rank call until the test releases it.
type gatedRanker struct {
	mu      sync.Mutex
	started chan string
	release map[string]chan struct{}
	results map[string][]relevance.Scored
}

func newGatedRanker() *gatedRanker {
	return &gatedRanker{
		started: make(chan string, 8),
		release: make(map[string]chan struct{}),
		results: make(map[string][]relevance.Scored),
	}
}

func (g *gatedRanker) gate(query string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.release[query]
	if !ok {
		ch = make(chan struct{})
		g.release[query] = ch
	}
	return ch
}

// lastWord keys gates by the final word of the query, which survives the
// markdown to plain text conversion unchanged.
func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func (g *gatedRanker) Rank(ctx context.Context, query string, candidates []model.Note, topN int, minScore float64) ([]relevance.Scored, error) {
	key := lastWord(query)
	g.started <- key
	<-g.gate(key)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.results[key], nil
}

type stubRanker struct {
	result []relevance.Scored
	err    error
}

func (s stubRanker) Rank(ctx context.Context, query string, candidates []model.Note, topN int, minScore float64) ([]relevance.Scored, error) {
	return s.result, s.err
}

func workspace(ctx context.Context) ([]model.Note, error) {
	return []model.Note{
		{ID: "self", Title: "Draft"},
		{ID: "p", Title: "Postgres [tuning]"},
		{ID: "q", Title: "Queues"},
	}, nil
}

var longText = strings.Repeat("postgres tuning notes ", 5)

func testConfig() AutoLinkConfig {
	return AutoLinkConfig{MinChars: 50, Debounce: 5 * time.Millisecond, TopN: 5, MinScore: 0.5}
}

func waitStatus(t *testing.T, a *AutoLinker, want Status) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = a.Snapshot()
		return snap.Status == want
	}, 2*time.Second, 2*time.Millisecond)
	return snap
}

func TestAutoLinkReady(t *testing.T) {
	a := NewAutoLinker(context.Background(), "self", stubRanker{result: []relevance.Scored{{NoteID: "p", Score: 0.9}}}, workspace, testConfig())
	defer a.Close()
	v := a.Update(longText)
	snap := waitStatus(t, a, StatusReady)
	require.Equal(t, v, snap.Version)
	require.False(t, snap.Stale)
	require.Equal(t, []LinkSuggestion{{
		NoteID:   "p",
		Title:    "Postgres [tuning]",
		Score:    0.9,
		Markdown: `[Postgres \[tuning\]](/p)`,
	}}, snap.Suggestions)
}

func TestAutoLinkDistinctStates(t *testing.T) {
	empty := NewAutoLinker(context.Background(), "self", stubRanker{}, workspace, testConfig())
	defer empty.Close()
	require.Equal(t, StatusIdle, empty.Snapshot().Status)
	empty.Update(longText)
	require.Empty(t, waitStatus(t, empty, StatusEmpty).Suggestions)

	failing := NewAutoLinker(context.Background(), "self", stubRanker{err: errors.New("embedding service down")}, workspace, testConfig())
	defer failing.Close()
	failing.Update(longText)
	snap := waitStatus(t, failing, StatusError)
	require.Contains(t, snap.Error, "embedding service down")
}

func TestAutoLinkClearsWhenContentShrinks(t *testing.T) {
	a := NewAutoLinker(context.Background(), "self", stubRanker{result: []relevance.Scored{{NoteID: "q", Score: 0.8}}}, workspace, testConfig())
	defer a.Close()
	a.Update(longText)
	waitStatus(t, a, StatusReady)

	v := a.Update("short")
	snap := a.Snapshot()
	require.Equal(t, StatusIdle, snap.Status)
	require.Equal(t, v, snap.Version)
	require.Empty(t, snap.Suggestions)
}

func TestAutoLinkLastWriterWins(t *testing.T) {
	ranker := newGatedRanker()
	first := longText + "first"
	second := longText + "second"
	ranker.results["first"] = []relevance.Scored{{NoteID: "q", Score: 0.7}}
	ranker.results["second"] = []relevance.Scored{{NoteID: "p", Score: 0.9}}

	a := NewAutoLinker(context.Background(), "self", ranker, workspace, testConfig())
	defer a.Close()

	a.Update(first)
	require.Equal(t, "first", <-ranker.started)
	require.Equal(t, StatusLoading, a.Snapshot().Status)

	v2 := a.Update(second)
	require.Equal(t, "second", <-ranker.started)
	close(ranker.gate("second"))
	snap := waitStatus(t, a, StatusReady)
	require.Equal(t, v2, snap.Version)

	// the slower, older run must not overwrite the newer result
	close(ranker.gate("first"))
	time.Sleep(20 * time.Millisecond)
	snap = a.Snapshot()
	require.Equal(t, v2, snap.Version)
	require.Equal(t, "p", snap.Suggestions[0].NoteID)
}

func TestAutoLinkDebounceCoalescesEdits(t *testing.T) {
	ranker := newGatedRanker()
	cfg := testConfig()
	cfg.Debounce = 30 * time.Millisecond
	a := NewAutoLinker(context.Background(), "self", ranker, workspace, cfg)
	defer a.Close()

	for i := 0; i < 5; i++ {
		a.Update(longText + strings.Repeat("x", i))
	}
	got := <-ranker.started
	require.Equal(t, "xxxx", got)
	close(ranker.gate(got))
	waitStatus(t, a, StatusEmpty)
	require.Len(t, ranker.started, 0)
}

func TestAutoLinkSkipsSelfAndLinkedNotes(t *testing.T) {
	var seen []model.Note
	ranker := rankFunc(func(candidates []model.Note) {
		seen = candidates
	})
	a := NewAutoLinker(context.Background(), "self", ranker, workspace, testConfig())
	defer a.Close()
	a.Update(longText + " see [queues](/q)")
	waitStatus(t, a, StatusEmpty)
	require.Len(t, seen, 1)
	require.Equal(t, "p", seen[0].ID)
}

type rankFunc func(candidates []model.Note)

func (f rankFunc) Rank(ctx context.Context, query string, candidates []model.Note, topN int, minScore float64) ([]relevance.Scored, error) {
	f(candidates)
	return nil, nil
}

func TestAutoLinkClosedSessionIgnoresUpdates(t *testing.T) {
	a := NewAutoLinker(context.Background(), "self", stubRanker{result: []relevance.Scored{{NoteID: "p", Score: 0.9}}}, workspace, testConfig())
	a.Close()
	a.Update(longText)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StatusIdle, a.Snapshot().Status)
}

func TestLinkMarkdown(t *testing.T) {
	require.Equal(t, "[Untitled](/x1)", LinkMarkdown(model.Note{ID: "x1", Title: "  "}))
	require.Equal(t, "[Go tips](/x2)", LinkMarkdown(model.Note{ID: "x2", Title: "Go tips"}))
}
