package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/repo"
	"github.com/xxxsen/notegraph/internal/testutil"
)

func TestEmbeddingRepoSaveAndStale(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	notes := repo.NewNoteRepo(db)
	embeddings := repo.NewEmbeddingRepo(db)

	fresh := newNote("e-1", "u-1", "")
	stale := newNote("e-2", "u-1", "")
	require.NoError(t, notes.Create(ctx, fresh))
	require.NoError(t, notes.Create(ctx, stale))

	require.NoError(t, embeddings.Save(ctx, &model.NoteEmbedding{
		NoteID: "e-1", UserID: "u-1", Embedding: []float32{0.5, 0.25}, ContentHash: "h1", Mtime: fresh.Mtime + 1,
	}))
	got, err := embeddings.GetByNoteID(ctx, "e-1")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.25}, got.Embedding)
	require.Equal(t, "h1", got.ContentHash)

	_, err = embeddings.GetByNoteID(ctx, "e-2")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	now := time.Now().UnixMilli()
	pending, err := embeddings.ListStale(ctx, now+time.Minute.Milliseconds(), now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "e-2", pending[0].ID)

	all, err := embeddings.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, embeddings.Delete(ctx, "e-1"))
	all, err = embeddings.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestEmbeddingRepoAttemptsDeferStaleNotes(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	notes := repo.NewNoteRepo(db)
	embeddings := repo.NewEmbeddingRepo(db)

	failing := newNote("a-1", "u-1", "")
	other := newNote("a-2", "u-1", "")
	require.NoError(t, notes.Create(ctx, failing))
	require.NoError(t, notes.Create(ctx, other))

	now := time.Now().UnixMilli()
	before := now + time.Minute.Milliseconds()
	require.NoError(t, embeddings.SaveAttempt(ctx, &model.EmbeddingAttempt{
		NoteID: "a-1", UserID: "u-1", NoteMtime: failing.Mtime, Attempts: 1, RetryAt: now + time.Hour.Milliseconds(),
	}))
	pending, err := embeddings.ListStale(ctx, before, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "a-2", pending[0].ID)
	require.Equal(t, other.Mtime, pending[0].Mtime)

	// due again, but behind notes that never failed
	require.NoError(t, embeddings.SaveAttempt(ctx, &model.EmbeddingAttempt{
		NoteID: "a-1", UserID: "u-1", NoteMtime: failing.Mtime, Attempts: 2, RetryAt: now,
	}))
	pending, err = embeddings.ListStale(ctx, before, now, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "a-2", pending[0].ID)
	require.Equal(t, "a-1", pending[1].ID)

	got, err := embeddings.GetAttempt(ctx, "a-1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)

	require.NoError(t, embeddings.Delete(ctx, "a-1"))
	_, err = embeddings.GetAttempt(ctx, "a-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestEmbeddingCacheRepo(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	cache := repo.NewEmbeddingCacheRepo(db)

	_, ok, err := cache.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Save(ctx, &model.EmbeddingCache{
		ModelName: "m", TaskType: "RETRIEVAL_DOCUMENT", ContentHash: "h", Embedding: []float32{1, 2}, Ctime: 100,
	}))
	vec, ok, err := cache.Get(ctx, "m", "RETRIEVAL_DOCUMENT", "h")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{1, 2}, vec)

	removed, err := cache.DeleteBefore(ctx, 200)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}
