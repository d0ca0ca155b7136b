package services

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultSessionTitle = "Nuevo Chat"

	titleMaxWords = 5
	titleMaxChars = 40
)

var ErrSessionNotFound = errors.New("session not found")

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

type Message struct {
	ID         int64      `json:"id"`
	Sender     Sender     `json:"sender"`
	Text       string     `json:"text"`
	TokensUsed int        `json:"tokens_used"`
	Confidence Confidence `json:"confidence,omitempty"`
	Sources    []Source   `json:"sources,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	Active       bool      `json:"active"`
}

// IDCounter hands out message ids. One counter is shared by every session
// store in the process, so ids never repeat across sessions.
type IDCounter struct {
	last atomic.Int64
}

func (c *IDCounter) Next() int64 {
	return c.last.Add(1)
}

// Observe moves the counter past id, used when restoring persisted messages.
func (c *IDCounter) Observe(id int64) {
	for {
		cur := c.last.Load()
		if id <= cur || c.last.CompareAndSwap(cur, id) {
			return
		}
	}
}

// DeriveTitle builds a session title from the first user message: the first
// five words, truncated to 40 characters with an ellipsis.
func DeriveTitle(text string) string {
	words := strings.Fields(text)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > titleMaxChars {
		title = string([]rune(title)[:titleMaxChars]) + "..."
	}
	return title
}

// SessionStore keeps the conversation threads of one workspace. The active
// session's log lives in memory and is flushed into its stored record on
// every switch. It is not safe for concurrent use; QuerySessionManager
// serializes access.
type SessionStore struct {
	sessions  []*Session // most recent first
	activeID  string
	activeLog []Message
	ids       *IDCounter
	now       func() time.Time
}

func NewSessionStore(ids *IDCounter) *SessionStore {
	if ids == nil {
		ids = &IDCounter{}
	}
	s := &SessionStore{
		ids: ids,
		now: time.Now,
	}
	s.CreateSession()
	return s
}

// CreateSession inserts a fresh session at the head of the list and makes it
// active.
func (s *SessionStore) CreateSession() Session {
	s.flush()

	session := &Session{
		ID:        uuid.New().String(),
		Title:     DefaultSessionTitle,
		Messages:  []Message{},
		CreatedAt: s.now(),
	}
	s.sessions = append([]*Session{session}, s.sessions...)
	s.activeID = session.ID
	s.activeLog = []Message{}
	return copySession(session, nil)
}

// SwitchSession flushes the active log and activates id. Unknown ids are
// ignored and reported as false.
func (s *SessionStore) SwitchSession(id string) bool {
	target := s.find(id)
	if target == nil {
		return false
	}
	if id == s.activeID {
		return true
	}

	s.flush()
	s.activeID = id
	s.activeLog = append([]Message(nil), target.Messages...)
	return true
}

// DeleteSession removes id. Deleting the active session activates a brand
// new one so there is always an active session.
func (s *SessionStore) DeleteSession(id string) bool {
	idx := s.index(id)
	if idx < 0 {
		return false
	}

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if id == s.activeID {
		s.activeID = ""
		s.activeLog = nil
		s.CreateSession()
	}
	return true
}

// AppendMessage appends msg to the log of sessionID, assigning its id and
// timestamp. The first user message of a session sets its title.
func (s *SessionStore) AppendMessage(sessionID string, msg Message) (Message, error) {
	session := s.find(sessionID)
	if session == nil {
		return Message{}, ErrSessionNotFound
	}

	msg.ID = s.ids.Next()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	log := &session.Messages
	if sessionID == s.activeID {
		log = &s.activeLog
	}

	if msg.Sender == SenderUser && !hasUserMessage(*log) {
		if title := DeriveTitle(msg.Text); title != "" {
			session.Title = title
		}
	}
	*log = append(*log, msg)
	return msg, nil
}

func (s *SessionStore) ActiveID() string {
	return s.activeID
}

func (s *SessionStore) Active() Session {
	return s.Get(s.activeID)
}

// Get returns a copy of the session. A zero Session is returned for unknown
// ids.
func (s *SessionStore) Get(id string) Session {
	session := s.find(id)
	if session == nil {
		return Session{}
	}
	if id == s.activeID {
		return copySession(session, s.activeLog)
	}
	return copySession(session, session.Messages)
}

func (s *SessionStore) List() []SessionSummary {
	summaries := make([]SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		count := len(session.Messages)
		if session.ID == s.activeID {
			count = len(s.activeLog)
		}
		summaries = append(summaries, SessionSummary{
			ID:           session.ID,
			Title:        session.Title,
			MessageCount: count,
			CreatedAt:    session.CreatedAt,
			Active:       session.ID == s.activeID,
		})
	}
	return summaries
}

// Restore replaces the store content with previously persisted sessions,
// given most recent first. The first one becomes active.
func (s *SessionStore) Restore(sessions []Session) {
	if len(sessions) == 0 {
		return
	}

	s.sessions = make([]*Session, 0, len(sessions))
	for i := range sessions {
		restored := copySession(&sessions[i], sessions[i].Messages)
		for _, msg := range restored.Messages {
			s.ids.Observe(msg.ID)
		}
		s.sessions = append(s.sessions, &restored)
	}
	s.activeID = s.sessions[0].ID
	s.activeLog = append([]Message(nil), s.sessions[0].Messages...)
}

// Reset drops every session and starts over with a single default one.
func (s *SessionStore) Reset() {
	s.sessions = nil
	s.activeID = ""
	s.activeLog = nil
	s.CreateSession()
}

func (s *SessionStore) flush() {
	if active := s.find(s.activeID); active != nil {
		active.Messages = append([]Message(nil), s.activeLog...)
	}
}

func (s *SessionStore) find(id string) *Session {
	if idx := s.index(id); idx >= 0 {
		return s.sessions[idx]
	}
	return nil
}

func (s *SessionStore) index(id string) int {
	for i, session := range s.sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}

func hasUserMessage(messages []Message) bool {
	for _, m := range messages {
		if m.Sender == SenderUser {
			return true
		}
	}
	return false
}

func copySession(session *Session, messages []Message) Session {
	out := *session
	out.Messages = make([]Message, len(messages))
	copy(out.Messages, messages)
	return out
}
