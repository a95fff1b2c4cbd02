package export

import (
	"strings"
	"testing"

	"finance-tutor/internal/models"
)

func TestBuildTranscript(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "What is compound interest?"},
		{
			Role:    models.RoleAssistant,
			Content: "Compound interest is interest on interest.",
			Sources: []models.Source{
				{URL: "https://x", Heading: "Investopedia"},
				{URL: "https://x", Heading: "Duplicate"},
			},
		},
	}

	got := BuildTranscript("Study Session", messages)

	for _, want := range []string{
		"Study Session\n=============",
		"You:\nWhat is compound interest?",
		"Tutor:\nCompound interest is interest on interest.",
		"Sources:\n  - Investopedia <https://x>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("transcript missing %q:\n%s", want, got)
		}
	}

	if strings.Count(got, "https://x") != 1 {
		t.Errorf("duplicate source not removed:\n%s", got)
	}
}

func TestBuildTranscript_SkipsEmptyMessages(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "question"},
		{Role: models.RoleAssistant, Content: ""}, // cancelled before any token
	}

	got := BuildTranscript("", messages)
	if strings.Contains(got, "Tutor:") {
		t.Errorf("empty assistant message should be skipped:\n%s", got)
	}
}

func TestBuildTranscript_SourceWithoutHeading(t *testing.T) {
	messages := []models.Message{
		{
			Role:    models.RoleAssistant,
			Content: "answer",
			Sources: []models.Source{{URL: "https://y"}},
		},
	}

	got := BuildTranscript("", messages)
	if !strings.Contains(got, "Source document <https://y>") {
		t.Errorf("expected fallback heading:\n%s", got)
	}
}
