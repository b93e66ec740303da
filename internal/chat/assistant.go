package chat

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
	defaultSearchTopN     = 5
	defaultContextNotes   = 3
	defaultMaxConnections = 3
	searchPreviewChars    = 100
	contextPreviewChars   = 500
	minThemeWordLen       = 5
	minSharedThemeWords   = 3
)

const helpReply = "I understand you're asking about your workspace. I can help you:\n\n" +
	"• **Search** through your pages\n" +
	"• **Find connections** between different topics\n" +
	"• **Suggest tags** for better organization\n" +
	"• **Summarize** your content\n\n" +
	"Try asking me something like 'Search for project ideas' or 'What connections do you see?'"

// Ranker is satisfied by *relevance.Engine.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []model.Note, topN int, minScore float64) ([]relevance.Scored, error)
}

// Pairer is satisfied by *relevance.Engine.
type Pairer interface {
	PairwiseAboveThreshold(ctx context.Context, notes []model.Note, threshold float64) ([]relevance.Pair, error)
}

// Answerer is satisfied by *ai.Manager.
type Answerer interface {
	Answer(ctx context.Context, question string, workspace string) (string, error)
}

type Config struct {
	SearchTopN        int
	SearchMinScore    float64
	SemanticThreshold float64
	ContextNotes      int
}

type Assistant struct {
	ranker   Ranker
	pairer   Pairer
	answerer Answerer
	cfg      Config
}

func NewAssistant(ranker Ranker, pairer Pairer, answerer Answerer, cfg Config) *Assistant {
	if cfg.SearchTopN <= 0 {
		cfg.SearchTopN = defaultSearchTopN
	}
	if cfg.ContextNotes <= 0 {
		cfg.ContextNotes = defaultContextNotes
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = 0.75
	}
	return &Assistant{ranker: ranker, pairer: pairer, answerer: answerer, cfg: cfg}
}

// Respond produces the assistant reply to text over the user's notes.
func (a *Assistant) Respond(ctx context.Context, text string, notes []model.Note) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", appErr.ErrInvalid
	}
	intent := Route(text)
	logutil.GetLogger(ctx).Debug("assistant route", zap.String("intent", string(intent)), zap.Int("notes", len(notes)))
	switch intent {
	case IntentSearch:
		return a.search(ctx, text, notes), nil
	case IntentConnections:
		return a.connections(ctx, notes), nil
	case IntentOverview:
		return overview(notes), nil
	default:
		return a.ask(ctx, text, notes)
	}
}

func (a *Assistant) search(ctx context.Context, text string, notes []model.Note) string {
	terms := searchTerms(text)
	found := a.rankedMatches(ctx, strings.Join(terms, " "), notes)
	if len(found) == 0 {
		found = keywordMatches(terms, notes)
	}
	if len(found) == 0 {
		return "I couldn't find any pages matching your search. Try using different keywords or create a new page about this topic!"
	}
	lines := make([]string, 0, len(found))
	for _, n := range found {
		lines = append(lines, fmt.Sprintf("• **%s** - %s...", titleOf(n), preview(n.Content, searchPreviewChars)))
	}
	return fmt.Sprintf("I found %d page(s) that might be relevant:\n\n%s", len(found), strings.Join(lines, "\n"))
}

func (a *Assistant) rankedMatches(ctx context.Context, query string, notes []model.Note) []model.Note {
	if a.ranker == nil || strings.TrimSpace(query) == "" || len(notes) == 0 {
		return nil
	}
	scored, err := a.ranker.Rank(ctx, query, notes, a.cfg.SearchTopN, a.cfg.SearchMinScore)
	if err != nil {
		logutil.GetLogger(ctx).Warn("semantic search failed, fallback to keywords", zap.Error(err))
		return nil
	}
	byID := indexNotes(notes)
	out := make([]model.Note, 0, len(scored))
	for _, s := range scored {
		if n, ok := byID[s.NoteID]; ok {
			out = append(out, n)
		}
	}
	return out
}

func keywordMatches(terms []string, notes []model.Note) []model.Note {
	if len(terms) == 0 {
		return nil
	}
	var out []model.Note
	for _, n := range notes {
		title := strings.ToLower(n.Title)
		content := strings.ToLower(n.Content)
		for _, term := range terms {
			if strings.Contains(title, term) || strings.Contains(content, term) || tagContains(n.Tags, term) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func tagContains(tags []string, term string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}

type connection struct {
	a, b   string
	reason string
}

func (a *Assistant) connections(ctx context.Context, notes []model.Note) string {
	found := a.findConnections(ctx, notes)
	if len(found) == 0 {
		return "I don't see any obvious connections between your current pages yet. As you add more content, I'll be able to suggest more meaningful links!"
	}
	lines := make([]string, 0, len(found))
	for _, c := range found {
		lines = append(lines, fmt.Sprintf("• **%s** ↔ **%s**: %s", c.a, c.b, c.reason))
	}
	return "Here are some potential connections I found between your pages:\n\n" + strings.Join(lines, "\n")
}

// findConnections reports up to three page pairs that share tags, are
// semantically close, or share several longer content words.
func (a *Assistant) findConnections(ctx context.Context, notes []model.Note) []connection {
	semantic := make(map[[2]string]float64)
	if a.pairer != nil {
		pairs, err := a.pairer.PairwiseAboveThreshold(ctx, notes, a.cfg.SemanticThreshold)
		if err != nil {
			logutil.GetLogger(ctx).Warn("semantic pairs unavailable", zap.Error(err))
		}
		for _, p := range pairs {
			semantic[[2]string{p.A, p.B}] = p.Score
		}
	}
	out := make([]connection, 0, defaultMaxConnections)
	for i := 0; i < len(notes) && len(out) < defaultMaxConnections; i++ {
		for j := i + 1; j < len(notes) && len(out) < defaultMaxConnections; j++ {
			x, y := notes[i], notes[j]
			if common := commonTags(x.Tags, y.Tags); len(common) > 0 {
				out = append(out, connection{a: titleOf(x), b: titleOf(y), reason: "Both tagged with: " + strings.Join(common, ", ")})
				continue
			}
			if score, ok := semantic[[2]string{x.ID, y.ID}]; ok {
				out = append(out, connection{a: titleOf(x), b: titleOf(y), reason: "Similar content themes (" + relevanceLabel(score) + ")"})
				continue
			}
			if sharedThemeWords(x.Content, y.Content) >= minSharedThemeWords {
				out = append(out, connection{a: titleOf(x), b: titleOf(y), reason: "Similar content themes"})
			}
		}
	}
	return out
}

func relevanceLabel(score float64) string {
	return fmt.Sprintf("%.0f%% similar", score*100)
}

func commonTags(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, t := range b {
		inB[strings.ToLower(t)] = struct{}{}
	}
	var out []string
	for _, t := range a {
		if _, ok := inB[strings.ToLower(t)]; ok {
			out = append(out, t)
		}
	}
	return out
}

func sharedThemeWords(a, b string) int {
	words := func(s string) map[string]struct{} {
		out := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(s)) {
			if len([]rune(w)) >= minThemeWordLen {
				out[w] = struct{}{}
			}
		}
		return out
	}
	wa, wb := words(a), words(b)
	n := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			n++
		}
	}
	return n
}

func overview(notes []model.Note) string {
	tags := distinctTags(notes)
	recent := "none"
	var latest int64 = -1
	for _, n := range notes {
		if n.Mtime > latest {
			latest = n.Mtime
			recent = titleOf(n)
		}
	}
	topics := "nothing yet"
	if len(tags) > 0 {
		topics = strings.Join(tags, ", ")
	}
	return fmt.Sprintf("Here's an overview of your workspace:\n\n• **Total pages**: %d\n• **Total tags**: %d\n• **Most recent**: %s\n\nYour workspace covers topics like: %s",
		len(notes), len(tags), recent, topics)
}

func distinctTags(notes []model.Note) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range notes {
		for _, t := range n.Tags {
			key := strings.ToLower(strings.TrimSpace(t))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, strings.TrimSpace(t))
		}
	}
	return out
}

func (a *Assistant) ask(ctx context.Context, question string, notes []model.Note) (string, error) {
	if a.answerer == nil {
		return helpReply, nil
	}
	answer, err := a.answerer.Answer(ctx, question, a.workspaceContext(ctx, question, notes))
	if err != nil {
		if !errors.Is(err, appErr.ErrUnavailable) {
			err = fmt.Errorf("%w: answer: %v", appErr.ErrUnavailable, err)
		}
		return "", err
	}
	return answer, nil
}

// workspaceContext lists the notes most related to question, or the most
// recently edited ones when nothing ranks.
func (a *Assistant) workspaceContext(ctx context.Context, question string, notes []model.Note) string {
	picked := a.rankedContext(ctx, question, notes)
	if len(picked) == 0 {
		recent := append([]model.Note(nil), notes...)
		sort.SliceStable(recent, func(i, j int) bool {
			return recent[i].Mtime > recent[j].Mtime
		})
		if len(recent) > a.cfg.ContextNotes {
			recent = recent[:a.cfg.ContextNotes]
		}
		picked = recent
	}
	parts := make([]string, 0, len(picked))
	for _, n := range picked {
		parts = append(parts, fmt.Sprintf("## %s\n%s", titleOf(n), preview(n.Content, contextPreviewChars)))
	}
	return strings.Join(parts, "\n\n")
}

func (a *Assistant) rankedContext(ctx context.Context, question string, notes []model.Note) []model.Note {
	if a.ranker == nil || len(notes) == 0 {
		return nil
	}
	scored, err := a.ranker.Rank(ctx, question, notes, a.cfg.ContextNotes, 0)
	if err != nil {
		logutil.GetLogger(ctx).Warn("rank context notes failed", zap.Error(err))
		return nil
	}
	byID := indexNotes(notes)
	out := make([]model.Note, 0, len(scored))
	for _, s := range scored {
		out = append(out, byID[s.NoteID])
	}
	return out
}

func indexNotes(notes []model.Note) map[string]model.Note {
	out := make(map[string]model.Note, len(notes))
	for _, n := range notes {
		out[n.ID] = n
	}
	return out
}

func titleOf(n model.Note) string {
	if t := strings.TrimSpace(n.Title); t != "" {
		return t
	}
	return "Untitled"
}

func preview(content string, n int) string {
	text := ai.PlainText(content)
	r := []rune(text)
	if len(r) > n {
		return string(r[:n])
	}
	return text
}
