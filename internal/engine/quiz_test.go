package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"finance-tutor/internal/models"
)

// gatedGenerator blocks each call until released, so tests control when
// a quiz task "finishes"
type gatedGenerator struct {
	mu     sync.Mutex
	gate   chan struct{}
	result *models.KnowledgeCheck
	err    error
	topics []string
}

func newGatedGenerator(result *models.KnowledgeCheck) *gatedGenerator {
	return &gatedGenerator{gate: make(chan struct{}), result: result}
}

func (g *gatedGenerator) GenerateQuiz(ctx context.Context, topic string) (*models.KnowledgeCheck, error) {
	g.mu.Lock()
	g.topics = append(g.topics, topic)
	g.mu.Unlock()
	<-g.gate
	return g.result, g.err
}

func (g *gatedGenerator) release() {
	close(g.gate)
}

// quizRecorder captures quiz sink callbacks
type quizRecorder struct {
	mu      sync.Mutex
	quizzes []*models.KnowledgeCheck
	cleared int
}

func (r *quizRecorder) OnQuiz(quiz *models.KnowledgeCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quizzes = append(r.quizzes, quiz)
}

func (r *quizRecorder) OnQuizCleared() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

func sampleQuiz() *models.KnowledgeCheck {
	return &models.KnowledgeCheck{
		Question:      "What grows exponentially?",
		Choices:       []string{"Simple interest", "Compound interest"},
		CorrectAnswer: "Compound interest",
		Explanation:   "Interest earns interest.",
	}
}

func TestQuizCoordinator_Delivery(t *testing.T) {
	gen := newGatedGenerator(sampleQuiz())
	rec := &quizRecorder{}
	c := NewQuizCoordinator(gen, rec)

	c.Launch(context.Background(), "compound interest")
	gen.release()
	c.Wait()

	quiz, ok := c.Current()
	if !ok {
		t.Fatal("expected delivered quiz")
	}
	if quiz.CorrectAnswer != "Compound interest" {
		t.Errorf("unexpected quiz: %+v", quiz)
	}
	if c.LastTaskState() != QuizDelivered {
		t.Errorf("expected delivered state, got %s", c.LastTaskState())
	}
	if len(rec.quizzes) != 1 {
		t.Errorf("expected 1 quiz callback, got %d", len(rec.quizzes))
	}
}

func TestQuizCoordinator_StaleResultDiscarded(t *testing.T) {
	gen := newGatedGenerator(sampleQuiz())
	c := NewQuizCoordinator(gen, nil)

	genOld := c.Launch(context.Background(), "old answer")

	// A newer turn starts before the first task finishes
	c.Clear()

	gen.release()
	c.Wait()

	if _, ok := c.Current(); ok {
		t.Fatal("stale quiz must never become visible")
	}
	if c.LastTaskState() != QuizDiscarded {
		t.Errorf("expected discarded, got %s", c.LastTaskState())
	}
	if genOld == c.Generation() {
		t.Error("clear must advance the generation")
	}
}

func TestQuizCoordinator_NewerLaunchSupersedesOlder(t *testing.T) {
	older := newGatedGenerator(&models.KnowledgeCheck{Question: "old"})

	// Two coordinators would be wrong here: the same coordinator runs
	// both tasks, only the newest generation may deliver
	c := NewQuizCoordinator(older, nil)
	c.Launch(context.Background(), "first answer")

	// Swap in a second pending result by launching again before release.
	// Both tasks share the generator; after release both return "old",
	// but only the newer generation is applied.
	c.Launch(context.Background(), "second answer")

	older.release()
	c.Wait()

	quiz, ok := c.Current()
	if !ok {
		t.Fatal("expected the newer task's result delivered")
	}
	if quiz.Question != "old" {
		t.Errorf("unexpected quiz content: %+v", quiz)
	}
	// The older task must have been discarded on arrival
	if len(older.topics) != 2 {
		t.Fatalf("expected both tasks to run to completion, got %d", len(older.topics))
	}
}

func TestQuizCoordinator_FailureDegradesSilently(t *testing.T) {
	gen := newGatedGenerator(nil)
	gen.err = errors.New("backend unavailable")
	rec := &quizRecorder{}
	c := NewQuizCoordinator(gen, rec)

	c.Launch(context.Background(), "topic")
	gen.release()
	c.Wait()

	if _, ok := c.Current(); ok {
		t.Fatal("failed generation must yield no quiz")
	}
	if len(rec.quizzes) != 0 {
		t.Errorf("no quiz callback expected on failure, got %d", len(rec.quizzes))
	}
}

func TestQuizCoordinator_ClearResetsVisibleState(t *testing.T) {
	gen := newGatedGenerator(sampleQuiz())
	rec := &quizRecorder{}
	c := NewQuizCoordinator(gen, rec)

	c.Launch(context.Background(), "topic")
	gen.release()
	c.Wait()

	if _, ok := c.Current(); !ok {
		t.Fatal("expected quiz before clear")
	}

	c.Clear()
	if _, ok := c.Current(); ok {
		t.Fatal("expected no quiz after clear")
	}
	if rec.cleared == 0 {
		t.Error("expected cleared callback")
	}
}
