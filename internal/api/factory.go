package api

import (
	"fmt"

	"finance-tutor/internal/conversation"
	"finance-tutor/internal/db"
	"finance-tutor/internal/engine"
	"finance-tutor/internal/models"
	"finance-tutor/internal/tutor"
)

// EngineOptions configures per-conversation controllers
type EngineOptions struct {
	QuizEnabled bool
	QuizSource  engine.QuizSource
	DetailLevel models.DetailLevel
}

// turnPersister saves finished turns for one conversation
type turnPersister struct {
	database       *db.DB
	conversationID int64
}

func (p *turnPersister) SaveTurn(userMsg, assistantMsg models.Message) error {
	if err := p.database.SaveMessage(p.conversationID, userMsg); err != nil {
		return fmt.Errorf("failed to save user message: %w", err)
	}
	if err := p.database.SaveMessage(p.conversationID, assistantMsg); err != nil {
		return fmt.Errorf("failed to save assistant message: %w", err)
	}
	return nil
}

// NewEngineFactory builds the controller factory used by the engine
// registry. Each controller gets its own store, hydrated from persisted
// messages, and an event sink bound to the conversation's SSE feed.
func NewEngineFactory(database *db.DB, client *tutor.Client, broadcaster *EventBroadcaster, opts EngineOptions) engine.ControllerFactory {
	return func(conversationID int64) (*engine.Controller, error) {
		if _, err := database.GetConversation(conversationID); err != nil {
			return nil, fmt.Errorf("failed to load conversation %d: %w", conversationID, err)
		}

		store := conversation.NewStore()
		messages, err := database.GetMessages(conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load messages for conversation %d: %w", conversationID, err)
		}
		for _, msg := range messages {
			if err := store.Append(msg); err != nil {
				return nil, fmt.Errorf("failed to hydrate conversation %d: %w", conversationID, err)
			}
			// Persisted assistant messages are terminal by definition
			if msg.Role == models.RoleAssistant {
				store.CloseTail(msg.ID)
			}
		}

		sink := &conversationSink{broadcaster: broadcaster, conversationID: conversationID}

		var quiz *engine.QuizCoordinator
		if opts.QuizEnabled {
			quiz = engine.NewQuizCoordinator(client, sink)
		}

		persist := &turnPersister{database: database, conversationID: conversationID}

		return engine.NewController(store, client, quiz, sink, persist, engine.ControllerConfig{
			QuizEnabled: opts.QuizEnabled,
			QuizSource:  opts.QuizSource,
			DetailLevel: opts.DetailLevel,
		}), nil
	}
}
