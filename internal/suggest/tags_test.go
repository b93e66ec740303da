package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

type fakeTagGenerator struct {
	resp  string
	err   error
	calls int
}

func (f *fakeTagGenerator) SuggestTags(ctx context.Context, content string) (string, error) {
	f.calls++
	return f.resp, f.err
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "fenced json", in: "```json\n[\"alpha\",\"beta\"]\n```", want: []string{"alpha", "beta"}},
		{name: "direct list", in: `["go", " cache "]`, want: []string{"go", "cache"}},
		{name: "nested under key", in: `{"tags": ["db", "sql"]}`, want: []string{"db", "sql"}},
		{name: "prose with array", in: `Sure! Here you go: ["one", "two"] hope it helps`, want: []string{"one", "two"}},
		{name: "bare words dedup and cap", in: "golang, Golang, cache; redis queue worker pool", want: []string{"golang", "cache", "redis", "queue", "worker"}},
		{name: "empty", in: "", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ParseTags(tt.in))
		})
	}
}

func TestTagSuggesterFiltersStopWords(t *testing.T) {
	gen := &fakeTagGenerator{resp: `["JSON", "Array", "null", "databases", "ai:Indexing", "tags"]`}
	s := NewTagSuggester(gen, TagConfig{})
	got, err := s.Suggest(context.Background(), "a note about databases", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"ai:databases", "ai:Indexing"}, got)
	for _, tag := range got {
		require.False(t, IsStopWord(tag))
		_, stop := stopWords[strings.ToLower(StripMarker(tag))]
		require.False(t, stop)
	}
}

func TestTagSuggesterFallbackNeverReturnsStopWords(t *testing.T) {
	gen := &fakeTagGenerator{resp: "Here are the tags: json array null true false"}
	got, err := NewTagSuggester(gen, TagConfig{}).Suggest(context.Background(), "body", nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTagSuggesterSuppressesDuplicates(t *testing.T) {
	gen := &fakeTagGenerator{resp: `["Go", "ai:go", "rust", "Rust", "design"]`}
	s := NewTagSuggester(gen, TagConfig{MaxTags: 5})
	got, err := s.Suggest(context.Background(), "body", []string{"Design"})
	require.NoError(t, err)
	require.Equal(t, []string{"ai:Go", "ai:rust"}, got)
}

func TestTagSuggesterCap(t *testing.T) {
	gen := &fakeTagGenerator{resp: `["a1", "b2", "c3", "d4"]`}
	got, err := NewTagSuggester(gen, TagConfig{MaxTags: 2, Marker: "bot:"}).Suggest(context.Background(), "body", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"bot:a1", "bot:b2"}, got)
}

func TestTagSuggesterErrors(t *testing.T) {
	gen := &fakeTagGenerator{}
	s := NewTagSuggester(gen, TagConfig{})
	_, err := s.Suggest(context.Background(), "   ", nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Equal(t, 0, gen.calls)

	gen.err = errors.New("quota exceeded")
	_, err = s.Suggest(context.Background(), "body", nil)
	require.ErrorIs(t, err, appErr.ErrUnavailable)
}

func TestMergeTags(t *testing.T) {
	got := MergeTags([]string{"go", "Design"}, []string{"ai:Go", "ai:testing", "ai:design", "ai:testing"})
	require.Equal(t, []string{"go", "Design", "ai:testing"}, got)
}
