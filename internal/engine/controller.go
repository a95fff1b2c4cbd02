package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finance-tutor/internal/conversation"
	"finance-tutor/internal/models"
)

// ErrEmptyQuery is returned when a submitted turn is empty after trimming
var ErrEmptyQuery = errors.New("query is empty")

// QuizSource selects which text seeds quiz generation
type QuizSource string

const (
	// QuizFromAnswer derives the quiz from the finished assistant answer
	QuizFromAnswer QuizSource = "answer"
	// QuizFromQuestion derives the quiz from the user's question
	QuizFromQuestion QuizSource = "question"
)

// Asker opens the upstream answer stream for one turn
type Asker interface {
	Ask(ctx context.Context, query string, detailLevel models.DetailLevel) (io.ReadCloser, error)
}

// TurnPersister saves a finished turn (user message plus terminal
// assistant message). Persistence failures are logged, not surfaced.
type TurnPersister interface {
	SaveTurn(userMsg, assistantMsg models.Message) error
}

// ControllerConfig configures a turn controller
type ControllerConfig struct {
	QuizEnabled bool
	QuizSource  QuizSource
	DetailLevel models.DetailLevel
}

// Controller orchestrates one user turn end-to-end: it opens a stream
// session, feeds the conversation store, and on completion hands off to
// the quiz coordinator. Policy is last-turn-wins: a new submission
// cancels any session still open; concurrent streams are never queued.
type Controller struct {
	store   *conversation.Store
	asker   Asker
	quiz    *QuizCoordinator
	sink    EventSink
	persist TurnPersister
	cfg     ControllerConfig

	mu      sync.Mutex
	active  *Session
	body    io.Closer
	turnCtx context.CancelFunc

	wg sync.WaitGroup
}

// NewController creates a turn controller over the given collaborators.
// quiz may be nil when the feature is disabled; persist and sink may be
// nil.
func NewController(store *conversation.Store, asker Asker, quiz *QuizCoordinator, sink EventSink, persist TurnPersister, cfg ControllerConfig) *Controller {
	if sink == nil {
		sink = nopSink{}
	}
	if cfg.QuizSource == "" {
		cfg.QuizSource = QuizFromAnswer
	}
	if cfg.DetailLevel == "" {
		cfg.DetailLevel = models.DetailRegular
	}
	return &Controller{
		store:   store,
		asker:   asker,
		quiz:    quiz,
		sink:    sink,
		persist: persist,
		cfg:     cfg,
	}
}

// Store returns the conversation store the controller writes to
func (c *Controller) Store() *conversation.Store {
	return c.store
}

// Quiz returns the quiz coordinator, or nil when the feature is disabled
func (c *Controller) Quiz() *QuizCoordinator {
	return c.quiz
}

// Submit starts a new turn for the given user text. It returns once the
// turn is underway; streaming continues on a background goroutine and
// progress is reported through the event sink.
func (c *Controller) Submit(ctx context.Context, userText string, detailLevel models.DetailLevel) error {
	text := strings.TrimSpace(userText)
	if text == "" {
		return ErrEmptyQuery
	}
	if detailLevel == "" {
		detailLevel = c.cfg.DetailLevel
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Last-turn-wins: cancel whatever is still streaming
	c.cancelActiveLocked()

	// A stale quiz must never remain visible once a new question is
	// asked, even before the new answer arrives
	if c.quiz != nil {
		c.quiz.Clear()
	}

	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
	if err := c.store.Append(userMsg); err != nil {
		return err
	}

	session, err := OpenSession(c.store, c.sink)
	if err != nil {
		return err
	}

	// The turn outlives the submitting request, so detach from the
	// caller's cancellation; the controller owns the turn lifetime
	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.active = session
	c.turnCtx = cancel

	log.Printf("[Controller] Turn submitted session_id=%s detail_level=%s query_length=%d",
		session.ID(), detailLevel, len(text))

	c.wg.Add(1)
	go c.runTurn(turnCtx, session, userMsg, text, detailLevel)
	return nil
}

// runTurn opens the transport, drives the session, and performs the
// completion handoff
func (c *Controller) runTurn(ctx context.Context, session *Session, userMsg models.Message, query string, detailLevel models.DetailLevel) {
	defer c.wg.Done()

	body, err := c.asker.Ask(ctx, query, detailLevel)
	if err != nil {
		// The single attempt failed before any frame arrived: the turn
		// fails with the fixed marker, the controller stays usable
		log.Printf("[Controller] Transport open failed session_id=%s err=%v", session.ID(), err)
		session.failTransportOpen(err)
		c.finishTurn(session, userMsg, query)
		return
	}

	c.mu.Lock()
	if c.active == session {
		c.body = body
	}
	c.mu.Unlock()

	state := session.Run(body)
	body.Close()

	log.Printf("[Controller] Turn finished session_id=%s state=%s", session.ID(), state)
	c.finishTurn(session, userMsg, query)
}

// finishTurn persists terminal turns and launches the quiz handoff
func (c *Controller) finishTurn(session *Session, userMsg models.Message, query string) {
	state := session.State()

	// If a newer turn has been submitted while this one was finishing,
	// this session is no longer current and must not hand off a quiz
	c.mu.Lock()
	isCurrent := c.active == session
	if isCurrent {
		c.active = nil
		c.body = nil
		c.turnCtx = nil
	}
	c.mu.Unlock()

	switch state {
	case SessionCompleted:
		final, _ := session.FinalContent()
		c.persistTurn(session, userMsg)
		if c.quiz != nil && c.cfg.QuizEnabled && isCurrent {
			topic := final
			if c.cfg.QuizSource == QuizFromQuestion {
				topic = query
			}
			c.quiz.Launch(context.Background(), topic)
		}

	case SessionFailed:
		// Error marker is already in the conversation; keep the record
		c.persistTurn(session, userMsg)

	case SessionCancelled:
		// Superseded turn: leave messages as last applied, no handoff
	}
}

// persistTurn saves the user/assistant pair if a persister is configured
func (c *Controller) persistTurn(session *Session, userMsg models.Message) {
	if c.persist == nil {
		return
	}

	snapshot := c.store.Snapshot()
	for _, msg := range snapshot {
		if msg.ID == session.MessageID() {
			if err := c.persist.SaveTurn(userMsg, msg); err != nil {
				log.Printf("[Controller] Failed to persist turn session_id=%s err=%v", session.ID(), err)
			}
			return
		}
	}
}

// CancelActive cancels the currently open session, if any
func (c *Controller) CancelActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelActiveLocked()
}

func (c *Controller) cancelActiveLocked() {
	if c.active == nil {
		return
	}

	log.Printf("[Controller] Cancelling active session session_id=%s", c.active.ID())
	c.active.Cancel()
	if c.turnCtx != nil {
		c.turnCtx()
	}
	if c.body != nil {
		// Best effort unblock of the read loop; cancellation remains
		// cooperative either way
		c.body.Close()
	}
	c.active = nil
	c.body = nil
	c.turnCtx = nil
}

// Active reports whether a session is currently open
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Wait blocks until all turn goroutines have finished. Used in tests and
// during shutdown.
func (c *Controller) Wait() {
	c.wg.Wait()
	if c.quiz != nil {
		c.quiz.Wait()
	}
}
