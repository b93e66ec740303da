package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/relevance"
	"github.com/xxxsen/notegraph/internal/repo"
	"github.com/xxxsen/notegraph/internal/suggest"
)

type aiFixture struct {
	notes    *memNotes
	embs     *memEmbeddings
	embedder *topicEmbedder
	engine   *relevance.Engine
	svc      *AIService
}

func newAIFixture(t *testing.T, tagger suggest.TagGenerator) *aiFixture {
	t.Helper()
	notes := newMemNotes()
	embs := newMemEmbeddings(notes)
	embedder := &topicEmbedder{}
	engine := relevance.NewEngine(embedder, nil, relevance.Config{EmbedMissing: true})
	related := suggest.NewRelatedSuggester(engine, nil, suggest.RelatedConfig{TopN: 3, MinScore: 0.5})
	svc := NewAIService(notes, embs, embedder, suggest.NewTagSuggester(tagger, suggest.TagConfig{}), related, AIServiceConfig{})
	return &aiFixture{notes: notes, embs: embs, embedder: embedder, engine: engine, svc: svc}
}

func (f *aiFixture) add(t *testing.T, id, title, content string, tags ...string) model.Note {
	t.Helper()
	n := model.Note{ID: id, UserID: "u1", Title: title, Content: content, Tags: tags, State: repo.NoteStateNormal, Mtime: 1}
	require.NoError(t, f.notes.Create(context.Background(), &n))
	return n
}

func TestAIServiceSyncEmbeddingByHash(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	n := f.add(t, "n1", "Golang", "channels")

	require.NoError(t, f.svc.SyncEmbedding(ctx, n))
	require.EqualValues(t, 1, f.embedder.calls.Load())
	require.NoError(t, f.svc.SyncEmbedding(ctx, n))
	require.EqualValues(t, 1, f.embedder.calls.Load())

	n.Content = "goroutines"
	require.NoError(t, f.svc.SyncEmbedding(ctx, n))
	require.EqualValues(t, 2, f.embedder.calls.Load())
}

func TestAIServiceNotesWithEmbeddingsSkipsOutdated(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	n := f.add(t, "n1", "Golang", "channels")
	f.add(t, "n2", "Recipe", "soup")
	require.NoError(t, f.svc.SyncEmbedding(ctx, n))

	notes, err := f.svc.NotesWithEmbeddings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	require.NotEmpty(t, notes[0].Embedding)
	require.Empty(t, notes[1].Embedding)

	body := "changed"
	require.NoError(t, f.notes.Update(ctx, "u1", "n1", model.NoteUpdate{Content: &body}, 2))
	notes, err = f.svc.NotesWithEmbeddings(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, notes[0].Embedding)
}

func TestAIServiceProcessPendingEmbeddings(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	f.add(t, "n1", "Golang", "channels")
	f.add(t, "n2", "Recipe", "soup")

	synced, err := f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, synced)

	synced, err = f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, synced)
}

func TestAIServiceProcessPendingEmbeddingsHonorsDelay(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	f.svc.cfg.EmbedDelay = time.Hour
	n := model.Note{ID: "fresh", UserID: "u1", Title: "Golang", State: repo.NoteStateNormal, Mtime: time.Now().UnixMilli()}
	require.NoError(t, f.notes.Create(ctx, &n))

	synced, err := f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Zero(t, synced)
}

func TestAIServicePendingSkipsNotesWithoutText(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	f.svc.cfg.BatchSize = 2
	f.add(t, "empty-1", "", "")
	f.add(t, "empty-2", "  ", "")
	f.add(t, "real", "Golang", "")

	synced, err := f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Zero(t, synced)

	synced, err = f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	_, err = f.embs.GetByNoteID(ctx, "real")
	require.NoError(t, err)
	require.EqualValues(t, 1, f.embedder.calls.Load())

	synced, err = f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Zero(t, synced)

	// an edit gives the note a new version, which is eligible again
	title := "Recipe"
	require.NoError(t, f.notes.Update(ctx, "u1", "empty-1", model.NoteUpdate{Title: &title}, 2))
	synced, err = f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	_, err = f.embs.GetByNoteID(ctx, "empty-1")
	require.NoError(t, err)
}

func TestAIServicePendingBacksOffFailingNotes(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	f.svc.embedder = failingEmbedder{inner: f.embedder, marker: "broken"}
	f.svc.cfg.BatchSize = 1
	f.add(t, "bad", "Broken", "")
	good := model.Note{ID: "good-1", UserID: "u1", Title: "Golang", State: repo.NoteStateNormal, Mtime: 2}
	require.NoError(t, f.notes.Create(ctx, &good))

	synced, err := f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Zero(t, synced)
	attempt, err := f.embs.GetAttempt(ctx, "bad")
	require.NoError(t, err)
	require.Equal(t, 1, attempt.Attempts)
	require.Greater(t, attempt.RetryAt, time.Now().UnixMilli())

	synced, err = f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	_, err = f.embs.GetByNoteID(ctx, "good-1")
	require.NoError(t, err)

	// once the backoff has passed, notes that never failed still go first
	attempt.RetryAt = 0
	require.NoError(t, f.embs.SaveAttempt(ctx, attempt))
	fresh := model.Note{ID: "good-2", UserID: "u1", Title: "Recipe", State: repo.NoteStateNormal, Mtime: 3}
	require.NoError(t, f.notes.Create(ctx, &fresh))
	synced, err = f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, synced)
	_, err = f.embs.GetByNoteID(ctx, "good-2")
	require.NoError(t, err)

	synced, err = f.svc.ProcessPendingEmbeddings(ctx)
	require.NoError(t, err)
	require.Zero(t, synced)
	attempt, err = f.embs.GetAttempt(ctx, "bad")
	require.NoError(t, err)
	require.Equal(t, 2, attempt.Attempts)
}

func TestRetryBackoff(t *testing.T) {
	require.Equal(t, time.Minute, retryBackoff(1))
	require.Equal(t, 2*time.Minute, retryBackoff(2))
	require.Equal(t, 4*time.Minute, retryBackoff(3))
	require.Equal(t, 6*time.Hour, retryBackoff(20))
}

func TestAIServiceSuggestTagsApply(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, fixedTagger{reply: `["golang", "json", "Concurrency"]`})
	f.add(t, "n1", "Golang", "channels and goroutines", "golang")

	res, err := f.svc.SuggestTags(ctx, "u1", "n1", "", false)
	require.NoError(t, err)
	require.Equal(t, []string{"ai:Concurrency"}, res.Tags)
	require.Nil(t, res.Note)

	res, err = f.svc.SuggestTags(ctx, "u1", "n1", "", true)
	require.NoError(t, err)
	require.Equal(t, []string{"golang", "ai:Concurrency"}, res.Note.Tags)

	stored, err := f.notes.GetByID(ctx, "u1", "n1")
	require.NoError(t, err)
	require.Equal(t, []string{"golang", "ai:Concurrency"}, stored.Tags)

	_, err = f.svc.SuggestTags(ctx, "u1", "n1", "", true)
	require.ErrorIs(t, err, appErr.ErrNoData)

	_, err = f.svc.SuggestTags(ctx, "u1", "", "free text", true)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestAIServiceRelated(t *testing.T) {
	ctx := context.Background()
	f := newAIFixture(t, nil)
	f.add(t, "self", "Golang draft", "")
	f.add(t, "go", "Golang tips", "interfaces")
	f.add(t, "food", "Recipe", "pasta")

	out, err := f.svc.Related(ctx, "u1", "golang generics", "self")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "go", out[0].ID)
	require.Equal(t, "Golang tips", out[0].Title)

	_, err = f.svc.Related(ctx, "u1", "  ", "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
