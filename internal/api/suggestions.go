package api

import (
	"encoding/json"
	"net/http"

	"finance-tutor/internal/suggestions"
)

// SuggestionsHandler serves the starter question list
type SuggestionsHandler struct {
	examples []string
}

// NewSuggestionsHandler loads suggestions from the given path, falling
// back to built-in defaults
func NewSuggestionsHandler(path string) *SuggestionsHandler {
	return &SuggestionsHandler{
		examples: suggestions.Load(path),
	}
}

// List handles GET /api/suggestions
func (h *SuggestionsHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{"examples": h.examples})
}
