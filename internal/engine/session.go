package engine

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"finance-tutor/internal/conversation"
	"finance-tutor/internal/models"
	"finance-tutor/internal/stream"
)

// ErrorMarker is the fixed user-visible text shown in place of an answer
// when the stream fails. Partial tokens are discarded: a truncated answer
// is worse than an explicit failure notice.
const ErrorMarker = "Something went wrong. Please try again."

// SessionState is the lifecycle state of a stream session
type SessionState string

const (
	SessionOpen      SessionState = "open"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
	SessionCancelled SessionState = "cancelled"
)

// Terminal reports whether the state admits no further transitions
func (s SessionState) Terminal() bool {
	return s != SessionOpen
}

// EventSink receives progress notifications as frames are folded into the
// conversation. Implementations must not block; the API layer uses it to
// fan events out to SSE clients.
type EventSink interface {
	OnToken(messageID, text string)
	OnMetadata(messageID string, sources []models.Source, videos []models.Video)
	OnDone(messageID, finalContent string)
	OnError(messageID string)
}

// nopSink is used when no sink is configured
type nopSink struct{}

func (nopSink) OnToken(string, string)                            {}
func (nopSink) OnMetadata(string, []models.Source, []models.Video) {}
func (nopSink) OnDone(string, string)                             {}
func (nopSink) OnError(string)                                    {}

// Session owns one open answer stream for one assistant turn. It is the
// single writer for its target message: every frame it applies goes
// through the store's tail guard, so a session superseded by a newer turn
// can never corrupt the newer message.
type Session struct {
	id       string
	store    *conversation.Store
	targetID string
	sink     EventSink

	mu    sync.RWMutex
	state SessionState
	final string
}

// OpenSession appends a new empty assistant message to the conversation
// and returns a session bound 1:1 to it.
func OpenSession(store *conversation.Store, sink EventSink) (*Session, error) {
	if sink == nil {
		sink = nopSink{}
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		CreatedAt: time.Now(),
	}
	if err := store.Append(msg); err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		store:    store,
		targetID: msg.ID,
		sink:     sink,
		state:    SessionOpen,
	}
	log.Printf("[Session] Opened session_id=%s message_id=%s", s.id, s.targetID)
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// MessageID returns the ID of the assistant message this session owns
func (s *Session) MessageID() string {
	return s.targetID
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// FinalContent returns the accumulated answer text once the session has
// completed. ok is false in any other state.
func (s *Session) FinalContent() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.final, s.state == SessionCompleted
}

// Cancel requests cooperative cancellation. The session stops applying
// frames; the target message is left in its last-applied state, not
// rolled back. No-op once terminal.
func (s *Session) Cancel() {
	if s.transition(SessionCancelled) {
		s.store.CloseTail(s.targetID)
		log.Printf("[Session] Cancelled session_id=%s message_id=%s", s.id, s.targetID)
	}
}

// transition moves to a terminal state; returns false if already terminal
func (s *Session) transition(to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	return true
}

// Run consumes the stream until a terminal frame, applying each frame to
// the conversation in arrival order. It returns the terminal state.
// Run blocks; callers run it on its own goroutine.
func (s *Session) Run(r io.Reader) SessionState {
	dec := stream.NewDecoder(r)

	for {
		frame := dec.Next()
		if frame == nil {
			break
		}
		if s.State() != SessionOpen {
			// Cancelled while blocked on a read: ignore everything else
			break
		}

		switch f := frame.(type) {
		case stream.Token:
			s.applyToken(f)

		case stream.Metadata:
			s.applyMetadata(f)

		case stream.End:
			s.complete()
			return s.State()

		case stream.TransportError:
			s.fail(f)
			return s.State()
		}
	}

	return s.State()
}

// applyToken appends the token text to the target message. Empty tokens
// are valid no-ops. A stale-write rejection means a newer turn has taken
// the tail; the session cancels itself.
func (s *Session) applyToken(tok stream.Token) {
	err := s.store.MutateTail(s.targetID, func(m *models.Message) {
		m.Content += tok.Text
	})
	if err != nil {
		log.Printf("[Session] Token rejected session_id=%s message_id=%s err=%v", s.id, s.targetID, err)
		s.Cancel()
		return
	}
	s.sink.OnToken(s.targetID, tok.Text)
}

// applyMetadata atomically replaces sources and videos. Last write wins:
// a second metadata frame fully replaces the first, never merges.
func (s *Session) applyMetadata(meta stream.Metadata) {
	err := s.store.MutateTail(s.targetID, func(m *models.Message) {
		m.Sources = meta.Sources
		m.Videos = meta.Videos
	})
	if err != nil {
		log.Printf("[Session] Metadata rejected session_id=%s message_id=%s err=%v", s.id, s.targetID, err)
		s.Cancel()
		return
	}
	s.sink.OnMetadata(s.targetID, meta.Sources, meta.Videos)
}

// complete freezes the message and records the final content
func (s *Session) complete() {
	if !s.transition(SessionCompleted) {
		return
	}

	var final string
	err := s.store.MutateTail(s.targetID, func(m *models.Message) {
		final = m.Content
	})
	if err != nil {
		// Superseded at the very end: demote to cancelled, no handoff
		s.mu.Lock()
		s.state = SessionCancelled
		s.mu.Unlock()
		log.Printf("[Session] Completion superseded session_id=%s message_id=%s", s.id, s.targetID)
		return
	}

	s.mu.Lock()
	s.final = final
	s.mu.Unlock()

	s.store.CloseTail(s.targetID)
	s.sink.OnDone(s.targetID, final)
	log.Printf("[Session] Completed session_id=%s message_id=%s content_length=%d", s.id, s.targetID, len(final))
}

// failTransportOpen marks the session failed when the transport could not
// be opened at all
func (s *Session) failTransportOpen(err error) {
	s.fail(stream.TransportError{Err: err})
}

// fail overwrites the message with the fixed error marker and freezes it.
// The original partial tokens are discarded.
func (s *Session) fail(te stream.TransportError) {
	if !s.transition(SessionFailed) {
		return
	}

	err := s.store.MutateTail(s.targetID, func(m *models.Message) {
		m.Content = ErrorMarker
		m.Sources = nil
		m.Videos = nil
	})
	if err != nil {
		log.Printf("[Session] Failure marker rejected session_id=%s message_id=%s err=%v", s.id, s.targetID, err)
	}

	s.store.CloseTail(s.targetID)
	s.sink.OnError(s.targetID)
	log.Printf("[Session] Failed session_id=%s message_id=%s err=%v", s.id, s.targetID, te.Err)
}
