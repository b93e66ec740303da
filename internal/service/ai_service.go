package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/relevance"
	"github.com/xxxsen/notegraph/internal/suggest"
)

const (
	defaultSyncBatch = 50
	embedRetryBase   = time.Minute
	embedRetryMax    = 6 * time.Hour
)

type AIServiceConfig struct {
	// BatchSize bounds how many stale notes one sync pass embeds.
	BatchSize int
	// EmbedDelay keeps notes that are still being edited out of the sync.
	EmbedDelay time.Duration
	// RequestsPerSecond paces embedding calls made by sync passes.
	RequestsPerSecond float64
}

type AIService struct {
	notes      NoteStore
	embeddings EmbeddingStore
	embedder   relevance.Embedder
	tags       *suggest.TagSuggester
	related    *suggest.RelatedSuggester
	limiter    *rate.Limiter
	cfg        AIServiceConfig
}

func NewAIService(notes NoteStore, embeddings EmbeddingStore, embedder relevance.Embedder, tags *suggest.TagSuggester, related *suggest.RelatedSuggester, cfg AIServiceConfig) *AIService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSyncBatch
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &AIService{
		notes:      notes,
		embeddings: embeddings,
		embedder:   embedder,
		tags:       tags,
		related:    related,
		limiter:    rate.NewLimiter(limit, 1),
		cfg:        cfg,
	}
}

type TagSuggestion struct {
	Tags []string    `json:"tags"`
	Note *model.Note `json:"note,omitempty"`
}

// SuggestTags proposes tags for a note or a free body of text. With apply set
// the suggestions are merged into the stored note.
func (s *AIService) SuggestTags(ctx context.Context, userID, noteID, body string, apply bool) (*TagSuggestion, error) {
	var note *model.Note
	var existing []string
	if noteID != "" {
		n, err := s.notes.GetByID(ctx, userID, noteID)
		if err != nil {
			return nil, err
		}
		note = n
		existing = n.Tags
		if strings.TrimSpace(body) == "" {
			body = n.Content
		}
	}
	if apply && note == nil {
		return nil, fmt.Errorf("%w: apply requires a note", appErr.ErrInvalid)
	}
	tags, err := s.tags.Suggest(ctx, body, existing)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, appErr.ErrNoData
	}
	out := &TagSuggestion{Tags: tags}
	if !apply {
		return out, nil
	}
	merged := suggest.MergeTags(existing, tags)
	if err := s.notes.Update(ctx, userID, noteID, model.NoteUpdate{Tags: &merged}, time.Now().UnixMilli()); err != nil {
		return nil, err
	}
	note.Tags = merged
	out.Note = note
	logutil.GetLogger(ctx).Info("ai tags applied", zap.String("note_id", noteID), zap.Strings("tags", tags))
	return out, nil
}

type RelatedNote struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Related ranks the user's other notes against query.
func (s *AIService) Related(ctx context.Context, userID, query, excludeID string) ([]RelatedNote, error) {
	if strings.TrimSpace(query) == "" {
		return nil, appErr.ErrInvalid
	}
	notes, err := s.NotesWithEmbeddings(ctx, userID)
	if err != nil {
		return nil, err
	}
	candidates := make([]model.Note, 0, len(notes))
	byID := make(map[string]model.Note, len(notes))
	for _, n := range notes {
		if n.ID == excludeID {
			continue
		}
		candidates = append(candidates, n)
		byID[n.ID] = n
	}
	scored, err := s.related.Suggest(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, appErr.ErrNoData
	}
	out := make([]RelatedNote, 0, len(scored))
	for _, item := range scored {
		out = append(out, RelatedNote{ID: item.NoteID, Title: byID[item.NoteID].Title, Score: item.Score})
	}
	return out, nil
}

// NotesWithEmbeddings lists the user's notes with their stored vectors
// attached. A vector whose hash no longer matches the note text is left off.
func (s *AIService) NotesWithEmbeddings(ctx context.Context, userID string) ([]model.Note, error) {
	notes, err := s.notes.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	embs, err := s.embeddings.ListByUser(ctx, userID)
	if err != nil {
		logutil.GetLogger(ctx).Warn("failed to load embeddings, continuing without", zap.String("user_id", userID), zap.Error(err))
		return notes, nil
	}
	byNote := make(map[string]model.NoteEmbedding, len(embs))
	for _, e := range embs {
		byNote[e.NoteID] = e
	}
	for i := range notes {
		e, ok := byNote[notes[i].ID]
		if !ok || e.ContentHash != contentHash(relevance.NoteText(notes[i])) {
			continue
		}
		notes[i].Embedding = e.Embedding
	}
	return notes, nil
}

// SyncEmbedding makes the stored vector of note match its current text. An
// unchanged hash only refreshes the stored mtime.
func (s *AIService) SyncEmbedding(ctx context.Context, note model.Note) error {
	_, err := s.syncEmbedding(ctx, note)
	return err
}

// syncEmbedding reports whether a vector was saved. Notes without text and
// failed embed calls leave an attempt record behind so the pending queue
// moves past them.
func (s *AIService) syncEmbedding(ctx context.Context, note model.Note) (bool, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", note.UserID), zap.String("note_id", note.ID))
	text := relevance.NoteText(note)
	if text == "" {
		s.saveAttempt(ctx, &model.EmbeddingAttempt{
			NoteID:    note.ID,
			UserID:    note.UserID,
			NoteMtime: note.Mtime,
			RetryAt:   math.MaxInt64,
		})
		return false, nil
	}
	hash := contentHash(text)
	now := time.Now().UnixMilli()

	existing, err := s.embeddings.GetByNoteID(ctx, note.ID)
	if err != nil && !errors.Is(err, appErr.ErrNotFound) {
		return false, err
	}
	if err == nil && existing.ContentHash == hash {
		existing.Mtime = now
		if err := s.embeddings.Save(ctx, existing); err != nil {
			return false, err
		}
		return true, nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		logger.Error("failed to generate embedding", zap.Error(err))
		if ctx.Err() == nil {
			s.recordFailure(ctx, note)
		}
		return false, err
	}
	if err := s.embeddings.Save(ctx, &model.NoteEmbedding{
		NoteID:      note.ID,
		UserID:      note.UserID,
		Embedding:   vec,
		ContentHash: hash,
		Mtime:       now,
	}); err != nil {
		logger.Error("failed to save embedding", zap.Error(err))
		return false, err
	}
	logger.Debug("embedding synced")
	return true, nil
}

func (s *AIService) recordFailure(ctx context.Context, note model.Note) {
	attempts := 1
	prev, err := s.embeddings.GetAttempt(ctx, note.ID)
	if err == nil && prev.NoteMtime == note.Mtime {
		attempts = prev.Attempts + 1
	}
	s.saveAttempt(ctx, &model.EmbeddingAttempt{
		NoteID:    note.ID,
		UserID:    note.UserID,
		NoteMtime: note.Mtime,
		Attempts:  attempts,
		RetryAt:   time.Now().Add(retryBackoff(attempts)).UnixMilli(),
	})
}

func (s *AIService) saveAttempt(ctx context.Context, attempt *model.EmbeddingAttempt) {
	if err := s.embeddings.SaveAttempt(ctx, attempt); err != nil {
		logutil.GetLogger(ctx).Warn("failed to record embedding attempt",
			zap.String("note_id", attempt.NoteID), zap.Error(err))
	}
}

// retryBackoff doubles from embedRetryBase per failed attempt, capped at
// embedRetryMax.
func retryBackoff(attempts int) time.Duration {
	d := embedRetryBase
	for i := 1; i < attempts && d < embedRetryMax; i++ {
		d *= 2
	}
	if d > embedRetryMax {
		d = embedRetryMax
	}
	return d
}

// ProcessPendingEmbeddings embeds one batch of notes whose vector is missing
// or older than the note. It returns how many vectors were saved.
func (s *AIService) ProcessPendingEmbeddings(ctx context.Context) (int, error) {
	now := time.Now()
	before := now.Add(-s.cfg.EmbedDelay).UnixMilli()
	notes, err := s.embeddings.ListStale(ctx, before, now.UnixMilli(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	return s.syncAll(ctx, notes)
}

// ResyncUser embeds every note of userID whose vector is out of date.
func (s *AIService) ResyncUser(ctx context.Context, userID string) (int, error) {
	notes, err := s.notes.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.syncAll(ctx, notes)
}

func (s *AIService) syncAll(ctx context.Context, notes []model.Note) (int, error) {
	synced := 0
	for _, n := range notes {
		if relevance.NoteText(n) != "" {
			if err := s.limiter.Wait(ctx); err != nil {
				return synced, err
			}
		}
		saved, err := s.syncEmbedding(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return synced, ctx.Err()
			}
			continue
		}
		if saved {
			synced++
		}
	}
	return synced, nil
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
