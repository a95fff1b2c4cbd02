package models

import "time"

// Role defines who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DetailLevel controls how detailed the tutor's answers are
type DetailLevel string

const (
	DetailSimple  DetailLevel = "simple"
	DetailRegular DetailLevel = "regular"
	DetailInDepth DetailLevel = "in-depth"
)

// ValidDetailLevel reports whether the given level is one of the known values
func ValidDetailLevel(l DetailLevel) bool {
	switch l {
	case DetailSimple, DetailRegular, DetailInDepth:
		return true
	}
	return false
}

// Source is a reference document cited by an answer
type Source struct {
	URL     string `json:"url"`
	Heading string `json:"heading"`
}

// Video is a recommended video related to an answer
type Video struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// KnowledgeCheck is a single-question quiz derived from a finished answer
type KnowledgeCheck struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

// Message represents a single message in a conversation.
// A user message is fully formed at creation. An assistant message is
// created empty and mutated only by the stream session that owns it,
// until that session reaches a terminal state.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	Videos    []Video   `json:"videos,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DedupeSources removes duplicate sources by URL, keeping first occurrence order.
// Sources without a URL are dropped.
func DedupeSources(sources []Source) []Source {
	seen := make(map[string]bool, len(sources))
	var out []Source
	for _, s := range sources {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	return out
}
