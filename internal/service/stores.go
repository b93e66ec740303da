package service

import (
	"context"

	"github.com/xxxsen/notegraph/internal/model"
)

// NoteStore is satisfied by *repo.NoteRepo.
type NoteStore interface {
	Create(ctx context.Context, note *model.Note) error
	Update(ctx context.Context, userID, noteID string, upd model.NoteUpdate, mtime int64) error
	GetByID(ctx context.Context, userID, noteID string) (*model.Note, error)
	List(ctx context.Context, userID string) ([]model.Note, error)
	ListUsers(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, userID, noteID string, mtime int64) error
}

// EmbeddingStore is satisfied by *repo.EmbeddingRepo.
type EmbeddingStore interface {
	Save(ctx context.Context, emb *model.NoteEmbedding) error
	ListByUser(ctx context.Context, userID string) ([]model.NoteEmbedding, error)
	GetByNoteID(ctx context.Context, noteID string) (*model.NoteEmbedding, error)
	ListStale(ctx context.Context, before, now int64, limit int) ([]model.Note, error)
	GetAttempt(ctx context.Context, noteID string) (*model.EmbeddingAttempt, error)
	SaveAttempt(ctx context.Context, attempt *model.EmbeddingAttempt) error
	Delete(ctx context.Context, noteID string) error
}
