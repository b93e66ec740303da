package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/repo"
	"github.com/xxxsen/notegraph/internal/suggest"
)

const maxTitleRunes = 200

type NoteService struct {
	notes      NoteStore
	embeddings EmbeddingStore
}

func NewNoteService(notes NoteStore, embeddings EmbeddingStore) *NoteService {
	return &NoteService{notes: notes, embeddings: embeddings}
}

type NoteInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	ParentID string   `json:"parent_id"`
}

func (s *NoteService) Create(ctx context.Context, userID string, in NoteInput) (*model.Note, error) {
	title := strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return nil, fmt.Errorf("%w: title too long", appErr.ErrInvalid)
	}
	id := newID()
	if err := s.checkParent(ctx, userID, id, in.ParentID); err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	note := &model.Note{
		ID:       id,
		UserID:   userID,
		Title:    title,
		Content:  in.Content,
		Tags:     suggest.MergeTags(nil, in.Tags),
		ParentID: in.ParentID,
		State:    repo.NoteStateNormal,
		Ctime:    now,
		Mtime:    now,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("note created", zap.String("user_id", userID), zap.String("note_id", id))
	return note, nil
}

func (s *NoteService) Get(ctx context.Context, userID, noteID string) (*model.Note, error) {
	return s.notes.GetByID(ctx, userID, noteID)
}

func (s *NoteService) List(ctx context.Context, userID string) ([]model.Note, error) {
	return s.notes.List(ctx, userID)
}

// Update applies the non-nil fields of upd and returns the stored note.
func (s *NoteService) Update(ctx context.Context, userID, noteID string, upd model.NoteUpdate) (*model.Note, error) {
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if utf8.RuneCountInString(title) > maxTitleRunes {
			return nil, fmt.Errorf("%w: title too long", appErr.ErrInvalid)
		}
		upd.Title = &title
	}
	if upd.Tags != nil {
		tags := suggest.MergeTags(nil, *upd.Tags)
		upd.Tags = &tags
	}
	if upd.ParentID != nil {
		if err := s.checkParent(ctx, userID, noteID, *upd.ParentID); err != nil {
			return nil, err
		}
	}
	if err := s.notes.Update(ctx, userID, noteID, upd, time.Now().UnixMilli()); err != nil {
		return nil, err
	}
	return s.notes.GetByID(ctx, userID, noteID)
}

func (s *NoteService) Delete(ctx context.Context, userID, noteID string) error {
	if err := s.notes.Delete(ctx, userID, noteID, time.Now().UnixMilli()); err != nil {
		return err
	}
	if s.embeddings != nil {
		if err := s.embeddings.Delete(ctx, noteID); err != nil {
			logutil.GetLogger(ctx).Warn("failed to drop note embedding", zap.String("note_id", noteID), zap.Error(err))
		}
	}
	return nil
}

// checkParent rejects a parent that is missing, the note itself, or one of
// its descendants.
func (s *NoteService) checkParent(ctx context.Context, userID, noteID, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == noteID {
		return fmt.Errorf("%w: note cannot be its own parent", appErr.ErrInvalid)
	}
	notes, err := s.notes.List(ctx, userID)
	if err != nil {
		return err
	}
	parents := make(map[string]string, len(notes))
	for _, n := range notes {
		parents[n.ID] = n.ParentID
	}
	if _, ok := parents[parentID]; !ok {
		return fmt.Errorf("%w: parent %s not found", appErr.ErrInvalid, parentID)
	}
	for cur, hops := parentID, 0; cur != "" && hops <= len(parents); hops++ {
		if cur == noteID {
			return fmt.Errorf("%w: parent would create a cycle", appErr.ErrInvalid)
		}
		cur = parents[cur]
	}
	return nil
}
