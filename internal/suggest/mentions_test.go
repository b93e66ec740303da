package suggest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/notegraph/internal/model"
	"github.com/xxxsen/notegraph/internal/relevance"
)

func TestMentionIndexFind(t *testing.T) {
	idx := NewMentionIndex([]model.Note{
		{ID: "a", Title: "Vector Search"},
		{ID: "b", Title: "Go"},
		{ID: "c", Title: "Search"},
		{ID: "d", Title: "vector search"},
		{ID: "e", Title: "Kafka"},
	})
	got := idx.Find("Notes on kafka retention and VECTOR SEARCH, then more on kafka.")
	ids := make([]string, 0, len(got))
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	require.Equal(t, []string{"e", "a", "d"}, ids)
}

func TestMentionIndexWholeWordsOnly(t *testing.T) {
	idx := NewMentionIndex([]model.Note{{ID: "a", Title: "cache"}})
	require.Empty(t, idx.Find("the caches were cold"))
	require.Len(t, idx.Find("the cache was cold"), 1)
}

func TestMentionIndexWithoutTitles(t *testing.T) {
	idx := NewMentionIndex([]model.Note{{ID: "a", Title: "Go"}, {ID: "b", Title: "  "}})
	require.Empty(t, idx.Find("go go go"))
}

func TestAutoLinkReportsMentions(t *testing.T) {
	a := NewAutoLinker(context.Background(), "self", stubRanker{result: []relevance.Scored{{NoteID: "p", Score: 0.9}}}, workspace, testConfig())
	defer a.Close()
	a.Update(longText + " and the queues backlog")
	snap := waitStatus(t, a, StatusReady)
	require.Len(t, snap.Suggestions, 1)
	require.Equal(t, []LinkSuggestion{{NoteID: "q", Title: "Queues", Markdown: "[Queues](/q)"}}, snap.Mentions)
}

func TestAutoLinkMentionsAloneAreReady(t *testing.T) {
	a := NewAutoLinker(context.Background(), "self", stubRanker{}, workspace, testConfig())
	defer a.Close()
	a.Update(longText + " queues")
	snap := waitStatus(t, a, StatusReady)
	require.Empty(t, snap.Suggestions)
	require.Len(t, snap.Mentions, 1)
}
