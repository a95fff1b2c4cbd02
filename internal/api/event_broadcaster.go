package api

import (
	"encoding/json"
	"log"
	"sync"

	"finance-tutor/internal/models"
)

// Event is one Server-Sent Event pushed to UI clients
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventBroadcaster manages SSE clients and fans conversation progress out
// to them
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[int64]map[chan Event]struct{} // conversationID -> clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[int64]map[chan Event]struct{}),
	}
}

// Subscribe adds a client receiving events for a conversation
func (b *EventBroadcaster) Subscribe(conversationID int64) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 32)

	if b.clients[conversationID] == nil {
		b.clients[conversationID] = make(map[chan Event]struct{})
	}
	b.clients[conversationID][ch] = struct{}{}

	log.Printf("[SSE] Client subscribed conversation_id=%d total_clients=%d",
		conversationID, len(b.clients[conversationID]))

	return ch
}

// Unsubscribe removes a client
func (b *EventBroadcaster) Unsubscribe(conversationID int64, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[conversationID]; ok {
		delete(clients, ch)
		close(ch)
		if len(clients) == 0 {
			delete(b.clients, conversationID)
		}
	}

	log.Printf("[SSE] Client unsubscribed conversation_id=%d", conversationID)
}

// Broadcast sends an event to every client watching a conversation
func (b *EventBroadcaster) Broadcast(conversationID int64, event Event) {
	b.mu.RLock()
	clients := b.clients[conversationID]
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	for ch := range clients {
		select {
		case ch <- event:
		default:
			// Slow client, skip rather than block the stream loop
			log.Printf("[SSE] Client channel full, skipping event conversation_id=%d type=%s",
				conversationID, event.Type)
		}
	}
}

// ClientCount returns the number of clients subscribed to a conversation
func (b *EventBroadcaster) ClientCount(conversationID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[conversationID])
}

// TotalClientCount returns the number of clients across all conversations
func (b *EventBroadcaster) TotalClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}

// FormatSSE renders an event in SSE wire format
func FormatSSE(event Event) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte("event: " + event.Type + "\ndata: " + string(data) + "\n\n"), nil
}

// conversationSink adapts the broadcaster to the engine's event sinks for
// one conversation. Stream progress and quiz updates become SSE events.
type conversationSink struct {
	broadcaster    *EventBroadcaster
	conversationID int64
}

func (s *conversationSink) OnToken(messageID, text string) {
	s.broadcaster.Broadcast(s.conversationID, Event{
		Type: "token",
		Data: map[string]any{"message_id": messageID, "text": text},
	})
}

func (s *conversationSink) OnMetadata(messageID string, sources []models.Source, videos []models.Video) {
	s.broadcaster.Broadcast(s.conversationID, Event{
		Type: "metadata",
		Data: map[string]any{"message_id": messageID, "sources": sources, "videos": videos},
	})
}

func (s *conversationSink) OnDone(messageID, finalContent string) {
	s.broadcaster.Broadcast(s.conversationID, Event{
		Type: "done",
		Data: map[string]any{"message_id": messageID, "content": finalContent},
	})
}

func (s *conversationSink) OnError(messageID string) {
	s.broadcaster.Broadcast(s.conversationID, Event{
		Type: "error",
		Data: map[string]any{"message_id": messageID, "message": "stream failed"},
	})
}

func (s *conversationSink) OnQuiz(quiz *models.KnowledgeCheck) {
	s.broadcaster.Broadcast(s.conversationID, Event{
		Type: "quiz",
		Data: quiz,
	})
}

func (s *conversationSink) OnQuizCleared() {
	s.broadcaster.Broadcast(s.conversationID, Event{
		Type: "quiz_cleared",
		Data: map[string]any{},
	})
}
