package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	defer Reset()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Learning.Enabled)
	assert.Equal(t, DefaultConfidenceThreshold, cfg.Learning.ConfidenceThreshold)
	assert.Equal(t, DefaultAutoCompactThreshold, cfg.Learning.AutoCompactThreshold)
	assert.Equal(t, DefaultCeilingTolerance, cfg.Learning.CeilingTolerance)
	assert.Equal(t, DefaultWindowSize, cfg.Window.Size)
	assert.Equal(t, DefaultBufferSize, cfg.Window.BufferSize)
	assert.Equal(t, PercentageModeFull, cfg.Window.PercentageMode)
	assert.Equal(t, DefaultTailLines, cfg.Transcript.TailLines)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	Reset()
	defer Reset()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
}

func TestLoadFromFile(t *testing.T) {
	Reset()
	defer Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
learning:
  confidence_threshold: 0.9
window:
  size: 128000
  percentage_mode: working
  model_windows:
    my-model: 64000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Learning.ConfidenceThreshold)
	assert.Equal(t, 128000, cfg.Window.Size)
	assert.Equal(t, PercentageModeWorking, cfg.Window.PercentageMode)
	assert.Equal(t, 64000, cfg.Window.ModelWindows["my-model"])
}

func TestNormalizeClampsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		in     Config
		verify func(t *testing.T, c Config)
	}{
		{
			name: "threshold above one",
			in:   Config{Learning: LearningConfig{ConfidenceThreshold: 1.7}},
			verify: func(t *testing.T, c Config) {
				assert.Equal(t, 1.0, c.Learning.ConfidenceThreshold)
			},
		},
		{
			name: "threshold below zero",
			in:   Config{Learning: LearningConfig{ConfidenceThreshold: -0.3}},
			verify: func(t *testing.T, c Config) {
				assert.Equal(t, 0.0, c.Learning.ConfidenceThreshold)
			},
		},
		{
			name: "negative sizes",
			in:   Config{Window: WindowConfig{Size: -5, BufferSize: -1}},
			verify: func(t *testing.T, c Config) {
				assert.Equal(t, 0, c.Window.Size)
				assert.Equal(t, 0, c.Window.BufferSize)
			},
		},
		{
			name: "unknown percentage mode",
			in:   Config{Window: WindowConfig{PercentageMode: "bogus"}},
			verify: func(t *testing.T, c Config) {
				assert.Equal(t, PercentageModeFull, c.Window.PercentageMode)
			},
		},
		{
			name: "negative override",
			in:   Config{Window: WindowConfig{ModelWindows: map[string]int{"m": -100}}},
			verify: func(t *testing.T, c Config) {
				assert.Equal(t, 0, c.Window.ModelWindows["m"])
			},
		},
		{
			name: "zero tail lines",
			in:   Config{},
			verify: func(t *testing.T, c Config) {
				assert.Equal(t, DefaultTailLines, c.Transcript.TailLines)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.Normalize()
			tt.verify(t, cfg)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/foo/bar.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "foo", "bar.db"), got)

	got, err = ExpandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := &Config{Window: WindowConfig{Size: 100000}}
	require.NoError(t, SaveTo(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "size: 100000")
}
