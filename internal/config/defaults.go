package config

import "github.com/spf13/viper"

// Percentage display modes.
const (
	PercentageModeFull    = "full"
	PercentageModeWorking = "working"
)

const (
	// DefaultConfidenceThreshold is the minimum confidence before a
	// learned window is trusted by the resolver.
	DefaultConfidenceThreshold = 0.7

	// DefaultAutoCompactThreshold is the fractional drop that marks a
	// compaction candidate.
	DefaultAutoCompactThreshold = 0.10

	// DefaultCeilingTolerance is the band below the observed maximum
	// that still counts as approaching the same ceiling.
	DefaultCeilingTolerance = 0.02

	// DefaultWindowSize is the global fallback context window.
	DefaultWindowSize = 200_000

	// DefaultBufferSize is the token margin beyond a learned ceiling.
	DefaultBufferSize = 40_000

	// DefaultTailLines bounds the transcript tail scan.
	DefaultTailLines = 50
)

// SetDefaults registers default values for every configuration key.
func SetDefaults() {
	viper.SetDefault("learning.enabled", true)
	viper.SetDefault("learning.confidence_threshold", DefaultConfidenceThreshold)
	viper.SetDefault("learning.auto_compact_threshold", DefaultAutoCompactThreshold)
	viper.SetDefault("learning.ceiling_tolerance", DefaultCeilingTolerance)

	viper.SetDefault("window.size", DefaultWindowSize)
	viper.SetDefault("window.buffer_size", DefaultBufferSize)
	viper.SetDefault("window.percentage_mode", PercentageModeFull)

	viper.SetDefault("transcript.tail_lines", DefaultTailLines)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")
}
