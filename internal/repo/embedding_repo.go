package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

type EmbeddingRepo struct {
	db *sql.DB
}

func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

func (r *EmbeddingRepo) Save(ctx context.Context, emb *model.NoteEmbedding) error {
	const query = `
		INSERT INTO note_embeddings (note_id, user_id, embedding, content_hash, mtime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (note_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		emb.NoteID,
		emb.UserID,
		pgvector.NewVector(emb.Embedding),
		emb.ContentHash,
		emb.Mtime,
	)
	return err
}

func (r *EmbeddingRepo) ListByUser(ctx context.Context, userID string) ([]model.NoteEmbedding, error) {
	const query = `
		SELECT note_id, user_id, embedding, content_hash, mtime
		FROM note_embeddings
		WHERE user_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]model.NoteEmbedding, 0)
	for rows.Next() {
		var item model.NoteEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&item.NoteID, &item.UserID, &vec, &item.ContentHash, &item.Mtime); err != nil {
			return nil, err
		}
		item.Embedding = vec.Slice()
		results = append(results, item)
	}
	return results, rows.Err()
}

func (r *EmbeddingRepo) GetByNoteID(ctx context.Context, noteID string) (*model.NoteEmbedding, error) {
	const query = `
		SELECT note_id, user_id, embedding, content_hash, mtime
		FROM note_embeddings
		WHERE note_id = $1
	`
	var item model.NoteEmbedding
	var vec pgvector.Vector
	err := r.db.QueryRowContext(ctx, query, noteID).Scan(&item.NoteID, &item.UserID, &vec, &item.ContentHash, &item.Mtime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	item.Embedding = vec.Slice()
	return &item, nil
}

// ListStale returns live notes with no embedding or one older than the note,
// skipping notes edited within the last delay window and note versions whose
// last attempt is still backing off. Notes with fewer failed attempts come
// first so a failing note cannot hold the head of the queue.
func (r *EmbeddingRepo) ListStale(ctx context.Context, before, now int64, limit int) ([]model.Note, error) {
	const query = `
		SELECT n.id, n.user_id, n.title, n.content, n.mtime
		FROM notes n
		LEFT JOIN note_embeddings e ON n.id = e.note_id
		LEFT JOIN embedding_attempts a ON n.id = a.note_id AND a.note_mtime = n.mtime
		WHERE (e.note_id IS NULL OR n.mtime > e.mtime) AND n.state = $1 AND n.mtime <= $2
			AND (a.note_id IS NULL OR a.retry_at <= $3)
		ORDER BY COALESCE(a.attempts, 0) ASC, n.mtime ASC
		LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, NoteStateNormal, before, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := make([]model.Note, 0)
	for rows.Next() {
		var note model.Note
		if err := rows.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.Mtime); err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (r *EmbeddingRepo) GetAttempt(ctx context.Context, noteID string) (*model.EmbeddingAttempt, error) {
	const query = `
		SELECT note_id, user_id, note_mtime, attempts, retry_at
		FROM embedding_attempts
		WHERE note_id = $1
	`
	var item model.EmbeddingAttempt
	err := r.db.QueryRowContext(ctx, query, noteID).Scan(&item.NoteID, &item.UserID, &item.NoteMtime, &item.Attempts, &item.RetryAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *EmbeddingRepo) SaveAttempt(ctx context.Context, attempt *model.EmbeddingAttempt) error {
	const query = `
		INSERT INTO embedding_attempts (note_id, user_id, note_mtime, attempts, retry_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (note_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			note_mtime = EXCLUDED.note_mtime,
			attempts = EXCLUDED.attempts,
			retry_at = EXCLUDED.retry_at
	`
	_, err := r.db.ExecContext(ctx, query,
		attempt.NoteID,
		attempt.UserID,
		attempt.NoteMtime,
		attempt.Attempts,
		attempt.RetryAt,
	)
	return err
}

// Delete drops the stored vector and any sync attempt of the note.
func (r *EmbeddingRepo) Delete(ctx context.Context, noteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM note_embeddings WHERE note_id = $1`, noteID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM embedding_attempts WHERE note_id = $1`, noteID)
	return err
}
