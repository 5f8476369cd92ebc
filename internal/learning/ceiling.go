package learning

import "ctxline/internal/storage"

// DefaultCeilingTolerance is the fractional band below the observed
// maximum that still counts as approaching the same ceiling.
const DefaultCeilingTolerance = 0.02

// CeilingOutcome describes what an observation did to the tracked ceiling.
type CeilingOutcome int

const (
	// CeilingIgnored means the observation was well below the maximum.
	CeilingIgnored CeilingOutcome = iota
	// CeilingRaised means the observation set a new maximum.
	CeilingRaised
	// CeilingApproached means the observation bumped the existing
	// maximum from within the tolerance band.
	CeilingApproached
)

// CeilingTracker maintains the per-model observed maximum and counts
// repeated approaches to it.
type CeilingTracker struct {
	// Tolerance is the fractional band below the maximum within which
	// an observation still counts as a ceiling approach.
	Tolerance float64
}

// NewCeilingTracker creates a tracker; tolerances outside (0,1) fall back
// to DefaultCeilingTolerance.
func NewCeilingTracker(tolerance float64) *CeilingTracker {
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = DefaultCeilingTolerance
	}
	return &CeilingTracker{Tolerance: tolerance}
}

// Apply folds one observation into the record and reports the outcome.
// A total equal to the last counted ceiling bump is not re-counted, so a
// stream of renders between transcript updates cannot inflate the counter.
func (t *CeilingTracker) Apply(rec *storage.LearnedWindow, total int) CeilingOutcome {
	if total <= 0 {
		return CeilingIgnored
	}

	if total > rec.ObservedMaxTokens {
		rec.ObservedMaxTokens = total
		rec.LastObservedMaxTokens = total
		rec.CeilingObservations++
		return CeilingRaised
	}

	band := float64(rec.ObservedMaxTokens) * (1 - t.Tolerance)
	if float64(total) >= band {
		if total == rec.LastObservedMaxTokens {
			return CeilingIgnored
		}
		rec.LastObservedMaxTokens = total
		rec.CeilingObservations++
		return CeilingApproached
	}

	return CeilingIgnored
}
