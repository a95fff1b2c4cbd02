package suggestions

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultExamples is used when no suggestions file is configured or the
// file cannot be read
var defaultExamples = []string{
	"What is compound interest?",
	"How do index funds work?",
	"What is the difference between stocks and bonds?",
	"How should I start building an emergency fund?",
	"What does diversification mean?",
	"How does a Roth IRA differ from a traditional IRA?",
}

// suggestionsFile matches the YAML shape of the suggestions file
type suggestionsFile struct {
	Examples []string `yaml:"examples"`
}

// Load returns the starter question list from the given YAML file.
// A missing or unreadable file degrades to the built-in defaults; the
// suggestion list is a convenience, never a failure source.
func Load(path string) []string {
	if path == "" {
		return defaultExamples
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Suggestions] Failed to read file path=%s err=%v", path, err)
		}
		return defaultExamples
	}

	var file suggestionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		log.Printf("[Suggestions] Failed to parse file path=%s err=%v", path, err)
		return defaultExamples
	}

	if len(file.Examples) == 0 {
		return defaultExamples
	}

	log.Printf("[Suggestions] Loaded examples path=%s count=%d", path, len(file.Examples))
	return file.Examples
}
