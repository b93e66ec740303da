package suggest

import (
	"strings"
	"unicode/utf8"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/xxxsen/notegraph/internal/model"
)

const minMentionTitleRunes = 3

// MentionIndex finds notes whose title appears word for word in a text.
type MentionIndex struct {
	ac       ahocorasick.AhoCorasick
	patterns [][]model.Note
	empty    bool
}

// NewMentionIndex indexes the titles of notes. Titles shorter than three
// characters are too ambiguous to match and are left out.
func NewMentionIndex(notes []model.Note) *MentionIndex {
	idx := &MentionIndex{}
	byTitle := make(map[string]int)
	titles := make([]string, 0, len(notes))
	for _, n := range notes {
		key := strings.ToLower(strings.TrimSpace(n.Title))
		if utf8.RuneCountInString(key) < minMentionTitleRunes {
			continue
		}
		if i, ok := byTitle[key]; ok {
			idx.patterns[i] = append(idx.patterns[i], n)
			continue
		}
		byTitle[key] = len(titles)
		titles = append(titles, key)
		idx.patterns = append(idx.patterns, []model.Note{n})
	}
	if len(titles) == 0 {
		idx.empty = true
		return idx
	}
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	idx.ac = builder.Build(titles)
	return idx
}

// Find returns the mentioned notes in order of first mention, each once.
func (m *MentionIndex) Find(text string) []model.Note {
	if m.empty || text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]model.Note, 0)
	for _, match := range m.ac.FindAll(strings.ToLower(text)) {
		for _, n := range m.patterns[match.Pattern()] {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
