package chat

import (
	"sync"
	"time"

	"github.com/xxxsen/notegraph/internal/model"
)

const Greeting = "Hi! I'm your AI assistant. I can help you search through your workspace, suggest connections between pages, and answer questions about your content. What would you like to know?"

// Session is the ordered message log of one assistant panel. Messages are
// only ever appended; Reset starts a new epoch with a fresh greeting.
type Session struct {
	mu       sync.Mutex
	newID    func() string
	epoch    uint64
	messages []model.ChatMessage
}

func NewSession(newID func() string) *Session {
	s := &Session{newID: newID}
	s.seedLocked()
	return s
}

func (s *Session) seedLocked() {
	s.messages = []model.ChatMessage{s.messageLocked(model.ChatRoleAssistant, Greeting)}
}

func (s *Session) messageLocked(role model.ChatRole, text string) model.ChatMessage {
	return model.ChatMessage{
		ID:    s.newID(),
		Role:  role,
		Text:  text,
		Ctime: time.Now().UnixMilli(),
	}
}

// Epoch identifies the current session lifetime. Work started in one epoch
// must not publish into another.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Session) Append(role model.ChatRole, text string) model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.messageLocked(role, text)
	s.messages = append(s.messages, msg)
	return msg
}

// AppendIf appends only while the session is still in epoch.
func (s *Session) AppendIf(epoch uint64, role model.ChatRole, text string) (model.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return model.ChatMessage{}, false
	}
	msg := s.messageLocked(role, text)
	s.messages = append(s.messages, msg)
	return msg, true
}

func (s *Session) Messages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatMessage(nil), s.messages...)
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.seedLocked()
}
