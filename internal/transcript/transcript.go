// Package transcript extracts token-usage observations from a line-delimited
// JSON transcript file.
//
// The collector never fails the render path: a missing or unreadable
// transcript yields no observations, and malformed lines are skipped
// individually.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"
)

// tailMaxBytes caps how much of the file is read before line-bounding,
// so a multi-gigabyte transcript never dominates a render.
const tailMaxBytes = 512 * 1024

// Observation is one token-total data point from the transcript.
type Observation struct {
	Timestamp   time.Time
	Model       string
	TotalTokens int
}

// Message is a transcript message reduced to what the compaction
// classifier needs.
type Message struct {
	Role string
	Text string
}

// Step pairs an observation with the one before it and the messages that
// immediately precede it.
type Step struct {
	Previous *Observation
	Current  Observation
	Window   []Message
}

// Collector reads a bounded tail of a transcript file.
type Collector struct {
	tailLines int
}

// NewCollector creates a collector that scans at most tailLines trailing
// transcript entries per call.
func NewCollector(tailLines int) *Collector {
	if tailLines <= 0 {
		tailLines = 50
	}
	return &Collector{tailLines: tailLines}
}

// Latest returns the most recent step, or nil when the transcript is
// unavailable or holds no usage-bearing entries.
func (c *Collector) Latest(path string) (*Step, error) {
	steps, err := c.collect(path, c.tailLines)
	if err != nil || len(steps) == 0 {
		return nil, err
	}
	return &steps[len(steps)-1], nil
}

// History returns every step of the full transcript in order, for
// rebuilding learned state from scratch.
func (c *Collector) History(path string) ([]Step, error) {
	return c.collect(path, 0)
}

// lineEnvelope is the JSON structure of one transcript line.
type lineEnvelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Role    string          `json:"role"`
		Model   string          `json:"model"`
		Usage   json.RawMessage `json:"usage"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// usageEnvelope holds the token counts of a transcript message.
type usageEnvelope struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// total is the context the model saw at this point: prompt, cache writes
// and reads, plus the generated output.
func (u usageEnvelope) total() int {
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens + u.OutputTokens
}

// collect parses the transcript into ordered steps. tailLines == 0 means
// the whole file.
func (c *Collector) collect(path string, tailLines int) ([]Step, error) {
	lines, err := readLines(path, tailLines)
	if err != nil || len(lines) == 0 {
		// TranscriptUnavailable: proceed without observations.
		return nil, nil
	}

	var (
		steps    []Step
		messages []Message
		prev     *Observation
	)
	for _, raw := range lines {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		var entry lineEnvelope
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// MalformedRecord: skip this line only.
			continue
		}

		role := entry.Message.Role
		if role == "" {
			role = entry.Type
		}

		if obs, ok := observationFrom(entry, role); ok {
			steps = append(steps, Step{
				Previous: prev,
				Current:  obs,
				Window:   append([]Message(nil), messages...),
			})
			o := obs
			prev = &o
			continue
		}

		if text := textContent(entry.Message.Content); text != "" {
			messages = append(messages, Message{Role: role, Text: text})
		}
	}

	return steps, nil
}

// observationFrom extracts a token observation from an assistant entry
// carrying usage, if any.
func observationFrom(entry lineEnvelope, role string) (Observation, bool) {
	if role != "assistant" || len(entry.Message.Usage) == 0 {
		return Observation{}, false
	}

	var usage usageEnvelope
	if err := json.Unmarshal(entry.Message.Usage, &usage); err != nil {
		return Observation{}, false
	}
	total := usage.total()
	if total <= 0 {
		return Observation{}, false
	}

	return Observation{
		Timestamp:   parseTimestamp(entry.Timestamp),
		Model:       entry.Message.Model,
		TotalTokens: total,
	}, true
}

// readLines returns the last tailLines lines of the file (all lines when
// tailLines == 0). Missing or unreadable files return no lines and no
// error.
func readLines(path string, tailLines int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	data, err := readTailBytes(f, tailLines)
	if err != nil {
		return nil, nil
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil
	}

	if tailLines > 0 && len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return lines, nil
}

// readTailBytes reads the file content, bounded to the trailing chunk when
// only a tail is wanted. A partial first line after seeking is dropped.
func readTailBytes(f *os.File, tailLines int) ([]byte, error) {
	if tailLines == 0 {
		return io.ReadAll(f)
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return nil, nil
	}

	start := int64(0)
	if size > tailMaxBytes {
		start = size - tailMaxBytes
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if start > 0 {
		if idx := bytes.IndexByte(data, '\n'); idx >= 0 && idx+1 < len(data) {
			data = data[idx+1:]
		}
	}
	return data, nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}

// textContent flattens a transcript content field, which is either a plain
// string or an array of typed blocks, into the first non-empty text.
func textContent(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return strings.TrimSpace(plain)
	}

	var blocks []map[string]any
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	for _, block := range blocks {
		if text, ok := block["text"].(string); ok && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}
