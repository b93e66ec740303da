package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/repo"
)

type memNotes struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*model.Note
}

func newMemNotes() *memNotes {
	return &memNotes{byID: make(map[string]*model.Note)}
}

func (m *memNotes) Create(_ context.Context, note *model.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[note.ID]; ok {
		return appErr.ErrConflict
	}
	cp := *note
	m.byID[note.ID] = &cp
	m.order = append(m.order, note.ID)
	return nil
}

func (m *memNotes) live(userID, noteID string) (*model.Note, bool) {
	n, ok := m.byID[noteID]
	if !ok || n.UserID != userID || n.State != repo.NoteStateNormal {
		return nil, false
	}
	return n, true
}

func (m *memNotes) Update(_ context.Context, userID, noteID string, upd model.NoteUpdate, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.live(userID, noteID)
	if !ok {
		return appErr.ErrNotFound
	}
	if upd.Title != nil {
		n.Title = *upd.Title
	}
	if upd.Content != nil {
		n.Content = *upd.Content
	}
	if upd.Tags != nil {
		n.Tags = append([]string(nil), (*upd.Tags)...)
	}
	if upd.ParentID != nil {
		n.ParentID = *upd.ParentID
	}
	n.Mtime = mtime
	return nil
}

func (m *memNotes) GetByID(_ context.Context, userID, noteID string) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.live(userID, noteID)
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memNotes) List(_ context.Context, userID string) ([]model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Note, 0, len(m.order))
	for _, id := range m.order {
		if n, ok := m.live(userID, id); ok {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memNotes) ListUsers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, id := range m.order {
		n := m.byID[id]
		if _, ok := seen[n.UserID]; ok {
			continue
		}
		seen[n.UserID] = struct{}{}
		out = append(out, n.UserID)
	}
	return out, nil
}

func (m *memNotes) Delete(_ context.Context, userID, noteID string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.live(userID, noteID)
	if !ok {
		return appErr.ErrNotFound
	}
	n.State = repo.NoteStateDeleted
	n.Mtime = mtime
	for _, other := range m.byID {
		if other.UserID == userID && other.ParentID == noteID {
			other.ParentID = ""
		}
	}
	return nil
}

type memEmbeddings struct {
	mu       sync.Mutex
	notes    *memNotes
	byID     map[string]model.NoteEmbedding
	attempts map[string]model.EmbeddingAttempt
}

func newMemEmbeddings(notes *memNotes) *memEmbeddings {
	return &memEmbeddings{
		notes:    notes,
		byID:     make(map[string]model.NoteEmbedding),
		attempts: make(map[string]model.EmbeddingAttempt),
	}
}

func (m *memEmbeddings) Save(_ context.Context, emb *model.NoteEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[emb.NoteID] = *emb
	return nil
}

func (m *memEmbeddings) ListByUser(_ context.Context, userID string) ([]model.NoteEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.NoteEmbedding, 0)
	for _, e := range m.byID {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEmbeddings) GetByNoteID(_ context.Context, noteID string) (*model.NoteEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[noteID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &e, nil
}

func (m *memEmbeddings) ListStale(_ context.Context, before, now int64, limit int) ([]model.Note, error) {
	m.notes.mu.Lock()
	defer m.notes.mu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	type pending struct {
		note     model.Note
		attempts int
	}
	var all []pending
	for _, id := range m.notes.order {
		n := m.notes.byID[id]
		if n.State != repo.NoteStateNormal || n.Mtime > before {
			continue
		}
		if e, ok := m.byID[id]; ok && e.Mtime >= n.Mtime {
			continue
		}
		attempts := 0
		if a, ok := m.attempts[id]; ok && a.NoteMtime == n.Mtime {
			if a.RetryAt > now {
				continue
			}
			attempts = a.Attempts
		}
		all = append(all, pending{note: *n, attempts: attempts})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].attempts != all[j].attempts {
			return all[i].attempts < all[j].attempts
		}
		return all[i].note.Mtime < all[j].note.Mtime
	})
	out := make([]model.Note, 0)
	for _, p := range all {
		if len(out) == limit {
			break
		}
		out = append(out, p.note)
	}
	return out, nil
}

func (m *memEmbeddings) GetAttempt(_ context.Context, noteID string) (*model.EmbeddingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[noteID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &a, nil
}

func (m *memEmbeddings) SaveAttempt(_ context.Context, attempt *model.EmbeddingAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.NoteID] = *attempt
	return nil
}

func (m *memEmbeddings) Delete(_ context.Context, noteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, noteID)
	delete(m.attempts, noteID)
	return nil
}

// topicEmbedder maps text to a 2-d vector by keyword: "golang" leans on the
// first axis, "recipe" on the second.
type topicEmbedder struct {
	calls atomic.Int32
}

func (e *topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "golang"):
		return []float32{1, 0.05}, nil
	case strings.Contains(lower, "recipe"):
		return []float32{0.05, 1}, nil
	default:
		return []float32{0.5, 0.5}, nil
	}
}

// failingEmbedder rejects any text containing marker and delegates the rest.
type failingEmbedder struct {
	inner  *topicEmbedder
	marker string
}

func (e failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), e.marker) {
		return nil, errors.New("embedding service rejected input")
	}
	return e.inner.Embed(ctx, text)
}

type fixedTagger struct {
	reply string
	err   error
}

func (f fixedTagger) SuggestTags(context.Context, string) (string, error) {
	return f.reply, f.err
}
