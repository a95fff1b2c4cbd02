package api

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finance-tutor/internal/db"
	"finance-tutor/internal/engine"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Router holds the HTTP multiplexer and dependencies
type Router struct {
	mux                 *http.ServeMux
	conversationHandler *ConversationHandler
	eventsHandler       *ConversationEventsHandler
	suggestionsHandler  *SuggestionsHandler
	broadcaster         *EventBroadcaster
	staticDir           string
}

// NewRouter creates a new router with all routes configured
func NewRouter(database *db.DB, registry *engine.Registry, broadcaster *EventBroadcaster, suggestionsPath, staticDir string) *Router {
	r := &Router{
		mux:                 http.NewServeMux(),
		conversationHandler: NewConversationHandler(database, registry),
		eventsHandler:       NewConversationEventsHandler(broadcaster),
		suggestionsHandler:  NewSuggestionsHandler(suggestionsPath),
		broadcaster:         broadcaster,
		staticDir:           staticDir,
	}
	r.setupRoutes()
	return r
}

// setupRoutes configures all HTTP routes
func (r *Router) setupRoutes() {
	// Health check
	r.mux.HandleFunc("GET /health", HealthHandler)

	// Conversation routes
	r.mux.HandleFunc("GET /api/conversations", r.conversationHandler.List)
	r.mux.HandleFunc("POST /api/conversations", r.conversationHandler.Create)
	r.mux.HandleFunc("GET /api/conversations/{id}", r.conversationHandler.Get)
	r.mux.HandleFunc("DELETE /api/conversations/{id}", r.conversationHandler.Delete)

	// Turn routes
	r.mux.HandleFunc("GET /api/conversations/{id}/messages", r.conversationHandler.GetMessages)
	r.mux.HandleFunc("POST /api/conversations/{id}/ask", r.conversationHandler.Ask)
	r.mux.HandleFunc("POST /api/conversations/{id}/cancel", r.conversationHandler.Cancel)
	r.mux.HandleFunc("GET /api/conversations/{id}/quiz", r.conversationHandler.GetQuiz)
	r.mux.HandleFunc("GET /api/conversations/{id}/export", r.conversationHandler.Export)

	// SSE events route
	r.mux.HandleFunc("GET /api/conversations/{id}/events", r.eventsHandler.HandleEvents)

	// Suggestions route
	r.mux.HandleFunc("GET /api/suggestions", r.suggestionsHandler.List)

	// Static file serving (for frontend)
	if r.staticDir != "" {
		r.mux.HandleFunc("GET /", r.serveStatic)
	}
}

// serveStatic serves static files from the static directory
func (r *Router) serveStatic(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	filePath := filepath.Join(r.staticDir, path)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		// Serve index.html for SPA routing
		filePath = filepath.Join(r.staticDir, "index.html")
	}

	http.ServeFile(w, req, filePath)
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	// CORS headers for development
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	// Skip logging for static files, health checks, and SSE endpoints
	shouldLog := strings.HasPrefix(req.URL.Path, "/api/") && !strings.HasSuffix(req.URL.Path, "/events")

	if shouldLog {
		log.Printf("[HTTP] Request started method=%s path=%s", req.Method, req.URL.Path)
	}

	wrapped := newResponseWriter(w)
	r.mux.ServeHTTP(wrapped, req)

	if shouldLog {
		log.Printf("[HTTP] Request completed method=%s path=%s status=%d duration=%v",
			req.Method, req.URL.Path, wrapped.statusCode, time.Since(start))
	}
}

// GetBroadcaster returns the event broadcaster
func (r *Router) GetBroadcaster() *EventBroadcaster {
	return r.broadcaster
}
