package engine

import (
	"log"
	"sync"
)

// ControllerFactory builds a turn controller for one conversation
type ControllerFactory func(conversationID int64) (*Controller, error)

// Registry owns one turn controller per conversation, created lazily on
// first use
type Registry struct {
	mu          sync.Mutex
	controllers map[int64]*Controller
	factory     ControllerFactory
}

// NewRegistry creates a registry using the given factory
func NewRegistry(factory ControllerFactory) *Registry {
	return &Registry{
		controllers: make(map[int64]*Controller),
		factory:     factory,
	}
}

// Get returns the controller for a conversation, creating it on first use
func (r *Registry) Get(conversationID int64) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctrl, ok := r.controllers[conversationID]; ok {
		return ctrl, nil
	}

	ctrl, err := r.factory(conversationID)
	if err != nil {
		return nil, err
	}
	r.controllers[conversationID] = ctrl
	log.Printf("[Registry] Controller created conversation_id=%d", conversationID)
	return ctrl, nil
}

// Peek returns the controller for a conversation if one already exists
func (r *Registry) Peek(conversationID int64) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl, ok := r.controllers[conversationID]
	return ctrl, ok
}

// Remove drops the controller for a conversation, cancelling any active
// session first
func (r *Registry) Remove(conversationID int64) {
	r.mu.Lock()
	ctrl, ok := r.controllers[conversationID]
	delete(r.controllers, conversationID)
	r.mu.Unlock()

	if ok {
		ctrl.CancelActive()
		log.Printf("[Registry] Controller removed conversation_id=%d", conversationID)
	}
}

// Shutdown cancels all active sessions and waits for turn goroutines
func (r *Registry) Shutdown() {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.controllers))
	for _, ctrl := range r.controllers {
		controllers = append(controllers, ctrl)
	}
	r.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.CancelActive()
	}
	for _, ctrl := range controllers {
		ctrl.Wait()
	}
	log.Printf("[Registry] Shutdown complete controllers=%d", len(controllers))
}

// Count returns the number of live controllers
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
