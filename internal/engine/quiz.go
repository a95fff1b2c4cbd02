package engine

import (
	"context"
	"log"
	"sync"

	"finance-tutor/internal/models"
)

// QuizGenerator is the upstream call that produces a knowledge check
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, topic string) (*models.KnowledgeCheck, error)
}

// QuizTaskState is the lifecycle state of one quiz generation task
type QuizTaskState string

const (
	QuizRunning   QuizTaskState = "running"
	QuizDelivered QuizTaskState = "delivered"
	QuizDiscarded QuizTaskState = "discarded"
)

// QuizSink is notified when the visible quiz state changes
type QuizSink interface {
	OnQuiz(quiz *models.KnowledgeCheck)
	OnQuizCleared()
}

type nopQuizSink struct{}

func (nopQuizSink) OnQuiz(*models.KnowledgeCheck) {}
func (nopQuizSink) OnQuizCleared()                {}

// QuizCoordinator launches quiz generation off a completed answer and
// suppresses stale results. Tasks are not cancelled cooperatively: the
// underlying call runs to completion and its result is dropped on arrival
// if a newer turn has started since launch. Staleness is decided purely
// by comparing the generation captured at launch against the current one.
type QuizCoordinator struct {
	generator QuizGenerator
	sink      QuizSink

	mu         sync.Mutex
	generation uint64
	current    *models.KnowledgeCheck
	lastState  QuizTaskState

	wg sync.WaitGroup
}

// NewQuizCoordinator creates a coordinator using the given generator
func NewQuizCoordinator(generator QuizGenerator, sink QuizSink) *QuizCoordinator {
	if sink == nil {
		sink = nopQuizSink{}
	}
	return &QuizCoordinator{
		generator: generator,
		sink:      sink,
	}
}

// Launch starts quiz generation for the given source text and returns the
// generation captured for the task. The counter increment and the capture
// are atomic with respect to Clear and other launches.
func (c *QuizCoordinator) Launch(ctx context.Context, sourceText string) uint64 {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.lastState = QuizRunning
	c.mu.Unlock()

	log.Printf("[Quiz] Task launched generation=%d source_length=%d", gen, len(sourceText))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		quiz, err := c.generator.GenerateQuiz(ctx, sourceText)
		if err != nil {
			// Enrichment only: degrade to "no quiz", never surface
			log.Printf("[Quiz] Generation failed generation=%d err=%v", gen, err)
			c.deliver(gen, nil)
			return
		}
		c.deliver(gen, quiz)
	}()

	return gen
}

// deliver applies the result only if the task's generation is still
// current; otherwise the task is discarded with no observable effect.
func (c *QuizCoordinator) deliver(gen uint64, quiz *models.KnowledgeCheck) {
	c.mu.Lock()

	if gen != c.generation {
		c.lastState = QuizDiscarded
		c.mu.Unlock()
		log.Printf("[Quiz] Stale result discarded generation=%d current=%d", gen, c.generation)
		return
	}

	c.lastState = QuizDelivered
	c.current = quiz
	c.mu.Unlock()

	if quiz != nil {
		log.Printf("[Quiz] Result delivered generation=%d", gen)
		c.sink.OnQuiz(quiz)
	} else {
		log.Printf("[Quiz] No quiz available generation=%d", gen)
	}
}

// Clear resets the visible quiz state and invalidates any in-flight
// task, so a stale quiz can never surface after a new turn has started.
func (c *QuizCoordinator) Clear() {
	c.mu.Lock()
	c.generation++
	hadQuiz := c.current != nil
	c.current = nil
	c.mu.Unlock()

	if hadQuiz {
		log.Printf("[Quiz] State cleared")
	}
	c.sink.OnQuizCleared()
}

// Current returns the visible quiz, if one is delivered and still fresh
func (c *QuizCoordinator) Current() (*models.KnowledgeCheck, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	return c.current, true
}

// Generation returns the current generation counter value
func (c *QuizCoordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// LastTaskState returns the state of the most recent task transition
func (c *QuizCoordinator) LastTaskState() QuizTaskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastState
}

// Wait blocks until all launched tasks have finished delivering or being
// discarded. Used in tests and during shutdown.
func (c *QuizCoordinator) Wait() {
	c.wg.Wait()
}
