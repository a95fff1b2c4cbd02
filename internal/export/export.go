package export

import (
	"strings"

	"finance-tutor/internal/models"
)

// BuildTranscript renders a conversation snapshot as a plain-text
// transcript. Assistant answers include their sources; empty messages
// (e.g. a cancelled turn that never received a token) are skipped.
func BuildTranscript(title string, messages []models.Message) string {
	var b strings.Builder

	if title != "" {
		b.WriteString(title + "\n")
		b.WriteString(strings.Repeat("=", len(title)) + "\n\n")
	}

	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}

		switch m.Role {
		case models.RoleUser:
			b.WriteString("You:\n")
			b.WriteString(content + "\n\n")
		case models.RoleAssistant:
			b.WriteString("Tutor:\n")
			b.WriteString(content + "\n")
			writeSources(&b, m.Sources)
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String()) + "\n"
}

func writeSources(b *strings.Builder, sources []models.Source) {
	if len(sources) == 0 {
		return
	}

	b.WriteString("Sources:\n")
	for _, s := range models.DedupeSources(sources) {
		heading := s.Heading
		if heading == "" {
			heading = "Source document"
		}
		b.WriteString("  - " + heading + " <" + s.URL + ">\n")
	}
}
