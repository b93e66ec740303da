package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/chat"
	"github.com/xxxsen/notegraph/internal/model"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

const (
	defaultChatSessions   = 1024
	defaultChatSessionTTL = 2 * time.Hour

	assistantErrorReply = "Sorry, I encountered an error while processing your request. Please try again."
)

type AssistantServiceConfig struct {
	// PersistHistory keeps the conversation across panel close.
	PersistHistory bool
	SessionSize    int
	SessionTTL     time.Duration
}

type AssistantService struct {
	ai        *AIService
	assistant *chat.Assistant
	cfg       AssistantServiceConfig
	mu        sync.Mutex
	sessions  *expirable.LRU[string, *chat.Session]
}

func NewAssistantService(ai *AIService, assistant *chat.Assistant, cfg AssistantServiceConfig) *AssistantService {
	if cfg.SessionSize <= 0 {
		cfg.SessionSize = defaultChatSessions
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultChatSessionTTL
	}
	return &AssistantService{
		ai:        ai,
		assistant: assistant,
		cfg:       cfg,
		sessions:  expirable.NewLRU[string, *chat.Session](cfg.SessionSize, nil, cfg.SessionTTL),
	}
}

func (s *AssistantService) session(userID string) *chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(userID); ok {
		return sess
	}
	sess := chat.NewSession(newID)
	s.sessions.Add(userID, sess)
	return sess
}

func (s *AssistantService) Messages(userID string) []model.ChatMessage {
	return s.session(userID).Messages()
}

type SendResult struct {
	Messages []model.ChatMessage `json:"messages"`
	// Discarded is set when the panel was closed before the reply arrived.
	Discarded bool `json:"discarded"`
}

// Send appends the user's message and the assistant's reply. A reply that
// resolves after the session was reset is dropped.
func (s *AssistantService) Send(ctx context.Context, userID, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, appErr.ErrInvalid
	}
	sess := s.session(userID)
	epoch := sess.Epoch()
	userMsg, ok := sess.AppendIf(epoch, model.ChatRoleUser, text)
	if !ok {
		return &SendResult{Messages: []model.ChatMessage{}, Discarded: true}, nil
	}
	reply, err := s.reply(ctx, userID, text)
	if err != nil {
		return nil, err
	}
	botMsg, ok := sess.AppendIf(epoch, model.ChatRoleAssistant, reply)
	if !ok {
		logutil.GetLogger(ctx).Debug("assistant reply discarded after close", zap.String("user_id", userID))
		return &SendResult{Messages: []model.ChatMessage{userMsg}, Discarded: true}, nil
	}
	return &SendResult{Messages: []model.ChatMessage{userMsg, botMsg}}, nil
}

func (s *AssistantService) reply(ctx context.Context, userID, text string) (string, error) {
	notes, err := s.ai.NotesWithEmbeddings(ctx, userID)
	if err != nil {
		logutil.GetLogger(ctx).Error("failed to load notes for assistant", zap.String("user_id", userID), zap.Error(err))
		return assistantErrorReply, nil
	}
	reply, err := s.assistant.Respond(ctx, text, notes)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, appErr.ErrInvalid) {
		return "", err
	}
	logutil.GetLogger(ctx).Error("assistant reply failed", zap.String("user_id", userID), zap.Error(err))
	return assistantErrorReply, nil
}

// Close is called when the panel closes. Unless history is persisted the
// conversation starts over, and replies still in flight are dropped.
func (s *AssistantService) Close(userID string) {
	if s.cfg.PersistHistory {
		return
	}
	if sess, ok := s.sessions.Get(userID); ok {
		sess.Reset()
	}
}
