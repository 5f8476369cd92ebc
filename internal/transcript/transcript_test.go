package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return path
}

func assistantLine(input, output int) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":"2026-08-28T10:00:00Z","message":{"role":"assistant","usage":{"input_tokens":%d,"output_tokens":%d}}}`, input, output)
}

func userLine(text string) string {
	return fmt.Sprintf(`{"type":"user","timestamp":"2026-08-28T10:00:00Z","message":{"role":"user","content":%q}}`, text)
}

func TestLatest(t *testing.T) {
	path := writeTranscript(t,
		assistantLine(140000, 2000),
		userLine("keep going"),
		assistantLine(180000, 1500),
	)

	step, err := NewCollector(50).Latest(path)
	require.NoError(t, err)
	require.NotNil(t, step)

	assert.Equal(t, 181500, step.Current.TotalTokens)
	require.NotNil(t, step.Previous)
	assert.Equal(t, 142000, step.Previous.TotalTokens)
	require.Len(t, step.Window, 1)
	assert.Equal(t, "user", step.Window[0].Role)
	assert.Equal(t, "keep going", step.Window[0].Text)
}

func TestLatest_SingleObservationHasNoPrevious(t *testing.T) {
	path := writeTranscript(t, assistantLine(1000, 50))

	step, err := NewCollector(50).Latest(path)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Nil(t, step.Previous)
}

func TestLatest_MissingFile(t *testing.T) {
	step, err := NewCollector(50).Latest(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, step)
}

func TestLatest_MalformedLinesAreSkipped(t *testing.T) {
	path := writeTranscript(t,
		assistantLine(100000, 1000),
		`{not json at all`,
		`{"type":"assistant","message":{"role":"assistant","usage":{"input_tokens":"oops"}}}`,
		assistantLine(120000, 1000),
	)

	step, err := NewCollector(50).Latest(path)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, 121000, step.Current.TotalTokens)
	require.NotNil(t, step.Previous)
	assert.Equal(t, 101000, step.Previous.TotalTokens)
}

func TestLatest_CacheTokensCount(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","message":{"role":"assistant","usage":{"input_tokens":1000,"output_tokens":500,"cache_creation_input_tokens":200,"cache_read_input_tokens":300}}}`,
	)

	step, err := NewCollector(50).Latest(path)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, 2000, step.Current.TotalTokens)
}

func TestLatest_UsagelessEntriesIgnored(t *testing.T) {
	path := writeTranscript(t,
		userLine("hello"),
		`{"type":"assistant","message":{"role":"assistant","content":"no usage here"}}`,
	)

	step, err := NewCollector(50).Latest(path)
	require.NoError(t, err)
	assert.Nil(t, step)
}

func TestLatest_TailBound(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, assistantLine(1000*(i+1), 0))
	}
	path := writeTranscript(t, lines...)

	// Only the last 2 lines are visible; previous must come from within
	// the tail, not from earlier history.
	step, err := NewCollector(2).Latest(path)
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, 100000, step.Current.TotalTokens)
	require.NotNil(t, step.Previous)
	assert.Equal(t, 99000, step.Previous.TotalTokens)
}

func TestHistory(t *testing.T) {
	path := writeTranscript(t,
		assistantLine(100000, 0),
		userLine("first"),
		assistantLine(150000, 0),
		userLine("second"),
		assistantLine(120000, 0),
	)

	steps, err := NewCollector(2).History(path)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Nil(t, steps[0].Previous)
	assert.Equal(t, 100000, steps[0].Current.TotalTokens)

	require.NotNil(t, steps[2].Previous)
	assert.Equal(t, 150000, steps[2].Previous.TotalTokens)
	assert.Equal(t, 120000, steps[2].Current.TotalTokens)
	assert.Len(t, steps[2].Window, 2)
}

func TestTextContent_BlockArray(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","message":{"role":"user","content":[{"type":"text","text":"start fresh"}]}}`,
		assistantLine(1000, 10),
	)

	step, err := NewCollector(50).Latest(path)
	require.NoError(t, err)
	require.NotNil(t, step)
	require.Len(t, step.Window, 1)
	assert.Equal(t, "start fresh", step.Window[0].Text)
}
