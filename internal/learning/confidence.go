package learning

// Confidence weights: each ceiling approach is weak evidence, each
// automatic compaction is strong evidence of where the limit sits.
const (
	ceilingWeight    = 0.1
	compactionWeight = 0.3
)

// Confidence derives the bounded confidence score from the two counters.
// The result is always in [0, 1].
func Confidence(ceilingObservations, compactionCount int) float64 {
	if ceilingObservations < 0 {
		ceilingObservations = 0
	}
	if compactionCount < 0 {
		compactionCount = 0
	}

	score := float64(ceilingObservations)*ceilingWeight + float64(compactionCount)*compactionWeight
	if score > 1 {
		return 1
	}
	return score
}
