package models

import (
	"reflect"
	"testing"
)

func TestDedupeSources(t *testing.T) {
	tests := []struct {
		name     string
		input    []Source
		expected []Source
	}{
		{
			name:     "empty",
			input:    nil,
			expected: nil,
		},
		{
			name: "no duplicates",
			input: []Source{
				{URL: "https://a", Heading: "A"},
				{URL: "https://b", Heading: "B"},
			},
			expected: []Source{
				{URL: "https://a", Heading: "A"},
				{URL: "https://b", Heading: "B"},
			},
		},
		{
			name: "duplicate url keeps first",
			input: []Source{
				{URL: "https://a", Heading: "First"},
				{URL: "https://a", Heading: "Second"},
				{URL: "https://b", Heading: "B"},
			},
			expected: []Source{
				{URL: "https://a", Heading: "First"},
				{URL: "https://b", Heading: "B"},
			},
		},
		{
			name: "missing url dropped",
			input: []Source{
				{URL: "", Heading: "No URL"},
				{URL: "https://a", Heading: "A"},
			},
			expected: []Source{
				{URL: "https://a", Heading: "A"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeSources(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("DedupeSources() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestValidDetailLevel(t *testing.T) {
	for _, level := range []DetailLevel{DetailSimple, DetailRegular, DetailInDepth} {
		if !ValidDetailLevel(level) {
			t.Errorf("expected %q to be valid", level)
		}
	}
	for _, level := range []DetailLevel{"", "expert", "REGULAR"} {
		if ValidDetailLevel(level) {
			t.Errorf("expected %q to be invalid", level)
		}
	}
}
