package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"strings"

	"finance-tutor/internal/models"
)

const (
	dataPrefix  = "data:"
	eventPrefix = "event:"
	endEvent    = "end"
)

// Decoder turns the newline-delimited answer stream into typed frames.
// A read may split a record mid-line; the decoder only emits a frame once
// a full record boundary has been observed.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
	skipped int
	lastErr error
}

// NewDecoder creates a decoder reading records from r
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Answer chunks can be large; default 64KB line limit is too small
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// metadataPayload matches the JSON shape of a metadata record
type metadataPayload struct {
	Sources []models.Source `json:"sources"`
	Videos  []models.Video  `json:"videos"`
}

// Next returns the next frame, blocking until a full record is available.
// The final frame is always End or TransportError; after that, Next
// returns nil.
func (d *Decoder) Next() Frame {
	if d.done {
		return nil
	}

	for d.scanner.Scan() {
		line := d.scanner.Text()

		switch {
		case strings.HasPrefix(line, eventPrefix):
			if strings.TrimSpace(strings.TrimPrefix(line, eventPrefix)) == endEvent {
				d.done = true
				return End{}
			}
			// Unknown named events are ignored

		case strings.HasPrefix(line, dataPrefix):
			payload := strings.TrimPrefix(line, dataPrefix)
			payload = strings.TrimPrefix(payload, " ")

			if meta, ok := parseMetadata(payload); ok {
				return meta
			}
			if looksLikeMetadata(payload) {
				// Carried a sources key but failed to parse: skip the
				// record, never abort an otherwise healthy stream
				d.skipped++
				log.Printf("[Decoder] Skipping malformed metadata record skipped_total=%d", d.skipped)
				continue
			}
			// Tokens are opaque text, appended verbatim. They are never
			// JSON-decoded so partial-token boundaries cannot fail.
			return Token{Text: payload}
		}
		// Blank lines and unrecognized fields are record separators / noise
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		d.lastErr = err
		return TransportError{Err: err}
	}
	// Transport end-of-input is a valid logical close
	return End{}
}

// SkippedRecords returns how many malformed metadata records were dropped
func (d *Decoder) SkippedRecords() int {
	return d.skipped
}

// Err returns the transport error that terminated the stream, if any
func (d *Decoder) Err() error {
	return d.lastErr
}

// parseMetadata attempts to decode the payload as a metadata object.
// Returns ok=false for anything that is not a JSON object with a
// "sources" key.
func parseMetadata(payload string) (Metadata, bool) {
	if !looksLikeMetadata(payload) {
		return Metadata{}, false
	}

	var meta metadataPayload
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return Metadata{}, false
	}

	return Metadata{
		Sources: models.DedupeSources(meta.Sources),
		Videos:  meta.Videos,
	}, true
}

// looksLikeMetadata reports whether the payload is a JSON object carrying
// a "sources" key. This is the classification rule: anything else is a
// literal token chunk.
func looksLikeMetadata(payload string) bool {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		// A leading brace with a sources key but broken JSON still
		// classifies as metadata so it gets skipped, not echoed as text
		return strings.Contains(trimmed, `"sources"`)
	}
	_, hasSources := probe["sources"]
	return hasSources
}
