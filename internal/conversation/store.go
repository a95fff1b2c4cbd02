package conversation

import (
	"errors"
	"sync"

	"finance-tutor/internal/models"
)

var (
	// ErrStaleWrite is returned when a mutation targets a message that is
	// no longer the conversation's tail. Callers treat it as a no-op: it
	// guards against late frames from a superseded session.
	ErrStaleWrite = errors.New("stale write: target message is no longer the tail")

	// ErrOpenAssistant is returned when appending an assistant message
	// while another assistant message is still open.
	ErrOpenAssistant = errors.New("an assistant message is already open")
)

// Store holds the ordered message log for one conversation.
// It is the single authoritative mutable structure: all derived views are
// projections of Snapshot. At most one assistant message is open (still
// being streamed into) at any time, and while open it is always the last
// element.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	openID   string // ID of the open assistant tail, "" if none
}

// NewStore creates an empty conversation store
func NewStore() *Store {
	return &Store{}
}

// Append adds a message to the end of the conversation.
// A user message may be appended while an assistant message is still open
// (a new turn superseding the old one); the previously open assistant
// message is frozen in place, since it is no longer the tail and any late
// writes to it will be rejected.
// Appending an assistant message while another is open is an invariant
// violation and is rejected.
func (s *Store) Append(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Role == models.RoleAssistant && s.openID != "" {
		return ErrOpenAssistant
	}

	if msg.Role == models.RoleUser && s.openID != "" {
		// The open assistant message stops being the tail; freeze it
		s.openID = ""
	}

	s.messages = append(s.messages, msg)
	if msg.Role == models.RoleAssistant {
		s.openID = msg.ID
	}
	return nil
}

// MutateTail applies fn to the message with the given ID, but only if it
// is still the last message in the conversation. Each application is a
// single indivisible update: no reader observes a half-written message.
func (s *Store) MutateTail(messageID string, fn func(*models.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return ErrStaleWrite
	}
	tail := &s.messages[len(s.messages)-1]
	if tail.ID != messageID {
		return ErrStaleWrite
	}

	fn(tail)
	return nil
}

// CloseTail marks the open assistant message as terminal (frozen).
// A no-op if the given message is not the currently open tail.
func (s *Store) CloseTail(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openID == messageID {
		s.openID = ""
	}
}

// OpenID returns the ID of the currently open assistant message, or ""
func (s *Store) OpenID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openID
}

// Len returns the number of messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns a copy of the last message and whether one exists
func (s *Store) Last() (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return copyMessage(s.messages[len(s.messages)-1]), true
}

// Snapshot returns a point-in-time copy of the conversation, safe for
// renderers to read while streaming continues.
func (s *Store) Snapshot() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = copyMessage(msg)
	}
	return out
}

// copyMessage deep-copies the slices so snapshot readers cannot alias
// store-owned memory
func copyMessage(msg models.Message) models.Message {
	if msg.Sources != nil {
		sources := make([]models.Source, len(msg.Sources))
		copy(sources, msg.Sources)
		msg.Sources = sources
	}
	if msg.Videos != nil {
		videos := make([]models.Video, len(msg.Videos))
		copy(videos, msg.Videos)
		msg.Videos = videos
	}
	return msg
}
