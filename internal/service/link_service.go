package service

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/notegraph/internal/model"
	"github.com/xxxsen/notegraph/internal/suggest"
)

const (
	defaultLinkSessions   = 1024
	defaultLinkSessionTTL = 30 * time.Minute
)

type LinkServiceConfig struct {
	AutoLink    suggest.AutoLinkConfig
	SessionSize int
	SessionTTL  time.Duration
}

// LinkService keeps one auto-link session per open editor. Evicted sessions
// are closed so late results are dropped.
type LinkService struct {
	notes    NoteStore
	ai       *AIService
	ranker   suggest.Ranker
	cfg      suggest.AutoLinkConfig
	mu       sync.Mutex
	sessions *expirable.LRU[string, *suggest.AutoLinker]
}

func NewLinkService(notes NoteStore, ai *AIService, ranker suggest.Ranker, cfg LinkServiceConfig) *LinkService {
	if cfg.SessionSize <= 0 {
		cfg.SessionSize = defaultLinkSessions
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultLinkSessionTTL
	}
	onEvict := func(_ string, linker *suggest.AutoLinker) {
		linker.Close()
	}
	return &LinkService{
		notes:    notes,
		ai:       ai,
		ranker:   ranker,
		cfg:      cfg.AutoLink,
		sessions: expirable.NewLRU[string, *suggest.AutoLinker](cfg.SessionSize, onEvict, cfg.SessionTTL),
	}
}

func sessionKey(userID, noteID string) string {
	return userID + "|" + noteID
}

// UpdateDraft feeds the editor's current content to the note's session and
// returns the snapshot as of now.
func (s *LinkService) UpdateDraft(ctx context.Context, userID, noteID, content string) (suggest.Snapshot, error) {
	if _, err := s.notes.GetByID(ctx, userID, noteID); err != nil {
		return suggest.Snapshot{}, err
	}
	linker := s.session(ctx, userID, noteID)
	linker.Update(content)
	return linker.Snapshot(), nil
}

func (s *LinkService) session(ctx context.Context, userID, noteID string) *suggest.AutoLinker {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(userID, noteID)
	if linker, ok := s.sessions.Get(key); ok {
		return linker
	}
	source := func(ctx context.Context) ([]model.Note, error) {
		return s.ai.NotesWithEmbeddings(ctx, userID)
	}
	linker := suggest.NewAutoLinker(context.WithoutCancel(ctx), noteID, s.ranker, source, s.cfg)
	s.sessions.Add(key, linker)
	return linker
}

// Links returns the latest snapshot; a note with no session is idle.
func (s *LinkService) Links(ctx context.Context, userID, noteID string) (suggest.Snapshot, error) {
	if linker, ok := s.sessions.Get(sessionKey(userID, noteID)); ok {
		return linker.Snapshot(), nil
	}
	if _, err := s.notes.GetByID(ctx, userID, noteID); err != nil {
		return suggest.Snapshot{}, err
	}
	return suggest.Snapshot{Status: suggest.StatusIdle, Suggestions: []suggest.LinkSuggestion{}}, nil
}

// CloseSession ends the editor session of noteID.
func (s *LinkService) CloseSession(userID, noteID string) {
	s.sessions.Remove(sessionKey(userID, noteID))
}
