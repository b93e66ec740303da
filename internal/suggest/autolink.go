package suggest

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/ai"
	"github.com/xxxsen/notegraph/internal/model"
)

const (
	defaultAutoLinkMinChars = 50
	defaultAutoLinkDebounce = 600 * time.Millisecond
	defaultAutoLinkTopN     = 5
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusEmpty   Status = "empty"
	StatusError   Status = "error"
)

type LinkSuggestion struct {
	NoteID   string  `json:"note_id"`
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
	Markdown string  `json:"markdown"`
}

// Snapshot is what the editor renders. Version is the content version the
// snapshot belongs to; Stale is set while a newer version is pending.
type Snapshot struct {
	Status      Status           `json:"status"`
	Version     uint64           `json:"version"`
	Stale       bool             `json:"stale"`
	Suggestions []LinkSuggestion `json:"suggestions"`
	// Mentions are notes whose title the draft already spells out but does
	// not link to yet.
	Mentions []LinkSuggestion `json:"mentions"`
	Error    string           `json:"error,omitempty"`
}

// CandidateSource loads the notes a draft may link to.
type CandidateSource func(ctx context.Context) ([]model.Note, error)

type AutoLinkConfig struct {
	MinChars int
	Debounce time.Duration
	TopN     int
	MinScore float64
}

// AutoLinker tracks one editor session. Each Update bumps the content
// version; only the run started for the latest version may publish.
type AutoLinker struct {
	ctx    context.Context
	noteID string
	ranker Ranker
	source CandidateSource
	cfg    AutoLinkConfig

	mu      sync.Mutex
	version uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	closed  bool
	snap    Snapshot
}

// NewAutoLinker creates a session for noteID. ctx scopes logging and every
// run; it must outlive the request that created the session.
func NewAutoLinker(ctx context.Context, noteID string, ranker Ranker, source CandidateSource, cfg AutoLinkConfig) *AutoLinker {
	if cfg.MinChars <= 0 {
		cfg.MinChars = defaultAutoLinkMinChars
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultAutoLinkDebounce
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaultAutoLinkTopN
	}
	return &AutoLinker{
		ctx:    ctx,
		noteID: noteID,
		ranker: ranker,
		source: source,
		cfg:    cfg,
		snap:   Snapshot{Status: StatusIdle, Suggestions: []LinkSuggestion{}, Mentions: []LinkSuggestion{}},
	}
}

// Update records new draft content and returns its version. Short content
// clears suggestions immediately; otherwise a run is scheduled after the
// debounce delay.
func (a *AutoLinker) Update(content string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return a.version
	}
	a.version++
	v := a.version
	a.stopLocked()
	if utf8.RuneCountInString(strings.TrimSpace(content)) < a.cfg.MinChars {
		a.snap = Snapshot{Status: StatusIdle, Version: v, Suggestions: []LinkSuggestion{}, Mentions: []LinkSuggestion{}}
		return v
	}
	a.timer = time.AfterFunc(a.cfg.Debounce, func() {
		a.run(v, content)
	})
	return v
}

func (a *AutoLinker) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.snap
	s.Suggestions = append(make([]LinkSuggestion, 0, len(a.snap.Suggestions)), a.snap.Suggestions...)
	s.Mentions = append(make([]LinkSuggestion, 0, len(a.snap.Mentions)), a.snap.Mentions...)
	s.Stale = s.Version != a.version
	return s
}

// Close stops pending work. Results that arrive afterwards are dropped.
func (a *AutoLinker) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.stopLocked()
}

func (a *AutoLinker) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *AutoLinker) run(v uint64, content string) {
	a.mu.Lock()
	if a.closed || v != a.version {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.cancel = cancel
	a.snap = Snapshot{Status: StatusLoading, Version: v, Suggestions: []LinkSuggestion{}, Mentions: []LinkSuggestion{}}
	a.mu.Unlock()
	defer cancel()

	suggestions, mentions, err := a.compute(ctx, content)

	a.mu.Lock()
	defer a.mu.Unlock()
	logger := logutil.GetLogger(a.ctx).With(zap.String("note_id", a.noteID), zap.Uint64("version", v))
	if a.closed || v != a.version {
		logger.Debug("discard superseded auto-link result", zap.Uint64("current", a.version))
		return
	}
	a.cancel = nil
	switch {
	case err != nil:
		logger.Error("auto-link suggestion failed", zap.Error(err))
		a.snap = Snapshot{Status: StatusError, Version: v, Suggestions: []LinkSuggestion{}, Mentions: []LinkSuggestion{}, Error: err.Error()}
	case len(suggestions) == 0 && len(mentions) == 0:
		a.snap = Snapshot{Status: StatusEmpty, Version: v, Suggestions: []LinkSuggestion{}, Mentions: []LinkSuggestion{}}
	default:
		a.snap = Snapshot{Status: StatusReady, Version: v, Suggestions: suggestions, Mentions: mentions}
	}
}

func (a *AutoLinker) compute(ctx context.Context, content string) ([]LinkSuggestion, []LinkSuggestion, error) {
	notes, err := a.source(ctx)
	if err != nil {
		return nil, nil, err
	}
	linked := make(map[string]struct{})
	for _, id := range ai.LinkedNoteIDs(content) {
		linked[id] = struct{}{}
	}
	byID := make(map[string]model.Note, len(notes))
	candidates := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if n.ID == a.noteID {
			continue
		}
		if _, ok := linked[n.ID]; ok {
			continue
		}
		byID[n.ID] = n
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	query := ai.PlainText(content)
	if strings.TrimSpace(query) == "" {
		query = content
	}
	scored, err := a.ranker.Rank(ctx, query, candidates, a.cfg.TopN, a.cfg.MinScore)
	if err != nil {
		return nil, nil, err
	}
	out := make([]LinkSuggestion, 0, len(scored))
	suggested := make(map[string]struct{}, len(scored))
	for _, s := range scored {
		n := byID[s.NoteID]
		suggested[n.ID] = struct{}{}
		out = append(out, LinkSuggestion{
			NoteID:   n.ID,
			Title:    displayTitle(n),
			Score:    s.Score,
			Markdown: LinkMarkdown(n),
		})
	}
	mentions := make([]LinkSuggestion, 0)
	for _, n := range NewMentionIndex(candidates).Find(query) {
		if _, ok := suggested[n.ID]; ok {
			continue
		}
		mentions = append(mentions, LinkSuggestion{NoteID: n.ID, Title: displayTitle(n), Markdown: LinkMarkdown(n)})
	}
	return out, mentions, nil
}

var linkTitleEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)

// LinkMarkdown is the text inserted into a draft to link to n.
func LinkMarkdown(n model.Note) string {
	return "[" + linkTitleEscaper.Replace(displayTitle(n)) + "](/" + n.ID + ")"
}

func displayTitle(n model.Note) string {
	if t := strings.TrimSpace(n.Title); t != "" {
		return t
	}
	return "Untitled"
}
