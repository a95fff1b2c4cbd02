package suggestions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	examples := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if len(examples) == 0 {
		t.Fatal("expected default examples")
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	examples := Load("")
	if len(examples) == 0 {
		t.Fatal("expected default examples")
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suggestions.yaml")
	content := "examples:\n  - \"How do bonds work?\"\n  - \"What is an ETF?\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	examples := Load(path)
	if len(examples) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(examples))
	}
	if examples[0] != "How do bonds work?" {
		t.Errorf("unexpected first example: %q", examples[0])
	}
}

func TestLoad_MalformedFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suggestions.yaml")
	if err := os.WriteFile(path, []byte("examples: [unclosed"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	examples := Load(path)
	if len(examples) != len(defaultExamples) {
		t.Fatalf("expected defaults on parse failure, got %d examples", len(examples))
	}
}
