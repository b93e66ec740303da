package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/notegraph/internal/chat"
	"github.com/xxxsen/notegraph/internal/handler"
	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
	"github.com/xxxsen/notegraph/internal/pkg/jwt"
	"github.com/xxxsen/notegraph/internal/relevance"
	"github.com/xxxsen/notegraph/internal/service"
	"github.com/xxxsen/notegraph/internal/suggest"
)

var testSecret = []byte("handler-test")

type noteStore struct {
	mu    sync.Mutex
	notes []*model.Note
}

func (s *noteStore) find(userID, id string) *model.Note {
	for _, n := range s.notes {
		if n.ID == id && n.UserID == userID && n.State == 1 {
			return n
		}
	}
	return nil
}

func (s *noteStore) Create(_ context.Context, note *model.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *note
	s.notes = append(s.notes, &cp)
	return nil
}

func (s *noteStore) Update(_ context.Context, userID, noteID string, upd model.NoteUpdate, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(userID, noteID)
	if n == nil {
		return appErr.ErrNotFound
	}
	if upd.Title != nil {
		n.Title = *upd.Title
	}
	if upd.Content != nil {
		n.Content = *upd.Content
	}
	if upd.Tags != nil {
		n.Tags = *upd.Tags
	}
	if upd.ParentID != nil {
		n.ParentID = *upd.ParentID
	}
	n.Mtime = mtime
	return nil
}

func (s *noteStore) GetByID(_ context.Context, userID, noteID string) (*model.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(userID, noteID)
	if n == nil {
		return nil, appErr.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *noteStore) List(_ context.Context, userID string) ([]model.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Note, 0)
	for _, n := range s.notes {
		if n.UserID == userID && n.State == 1 {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *noteStore) ListUsers(context.Context) ([]string, error) {
	return nil, nil
}

func (s *noteStore) Delete(_ context.Context, userID, noteID string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.find(userID, noteID)
	if n == nil {
		return appErr.ErrNotFound
	}
	n.State = 2
	return nil
}

// noEmbeddings stores nothing, so every candidate is embedded on demand.
type noEmbeddings struct{}

func (noEmbeddings) Save(context.Context, *model.NoteEmbedding) error { return nil }
func (noEmbeddings) ListByUser(context.Context, string) ([]model.NoteEmbedding, error) {
	return nil, nil
}
func (noEmbeddings) GetByNoteID(context.Context, string) (*model.NoteEmbedding, error) {
	return nil, appErr.ErrNotFound
}
func (noEmbeddings) ListStale(context.Context, int64, int64, int) ([]model.Note, error) {
	return nil, nil
}
func (noEmbeddings) GetAttempt(context.Context, string) (*model.EmbeddingAttempt, error) {
	return nil, appErr.ErrNotFound
}
func (noEmbeddings) SaveAttempt(context.Context, *model.EmbeddingAttempt) error { return nil }
func (noEmbeddings) Delete(context.Context, string) error                       { return nil }

type flatEmbedder struct{}

func (flatEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fixedTagger string

func (f fixedTagger) SuggestTags(context.Context, string) (string, error) {
	return string(f), nil
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	notes := &noteStore{}
	embs := noEmbeddings{}
	engine := relevance.NewEngine(flatEmbedder{}, nil, relevance.Config{EmbedMissing: true})
	aiSvc := service.NewAIService(notes, embs, flatEmbedder{},
		suggest.NewTagSuggester(fixedTagger(`["databases", "tag"]`), suggest.TagConfig{}),
		suggest.NewRelatedSuggester(engine, nil, suggest.RelatedConfig{}),
		service.AIServiceConfig{})
	linkSvc := service.NewLinkService(notes, aiSvc, engine, service.LinkServiceConfig{
		AutoLink: suggest.AutoLinkConfig{Debounce: 5 * time.Millisecond},
	})
	deps := handler.RouterDeps{
		Notes:     handler.NewNoteHandler(service.NewNoteService(notes, embs)),
		AI:        handler.NewAIHandler(aiSvc, linkSvc),
		Graph:     handler.NewGraphHandler(service.NewGraphService(aiSvc, engine, service.GraphServiceConfig{})),
		Assistant: handler.NewAssistantHandler(service.NewAssistantService(aiSvc, chat.NewAssistant(engine, engine, nil, chat.Config{}), service.AssistantServiceConfig{})),
		JWTSecret: testSecret,
	}
	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"), deps)
	return router
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func call(t *testing.T, router *gin.Engine, user, method, path string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := jwt.GenerateToken(user, "", testSecret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}
