// Package learning implements the adaptive context window learning engine:
// compaction classification, ceiling tracking, confidence scoring, and the
// persistence pipeline tying them together.
package learning

import (
	"strings"

	"ctxline/internal/transcript"
)

// Classification labels a detected token drop.
type Classification int

const (
	// Automatic means the system compacted on its own; the drop point
	// carries signal about the real context limit.
	Automatic Classification = iota
	// Manual means the user asked for the reduction; the drop says
	// nothing about the limit and is excluded from learning.
	Manual
)

// String returns the lower-case label for a classification.
func (c Classification) String() string {
	if c == Manual {
		return "manual"
	}
	return "automatic"
}

const (
	// CandidateMinPreviousTokens is the floor below which a drop is too
	// small-context to be a compaction.
	CandidateMinPreviousTokens = 150_000

	// ClassifierWindow is how many messages preceding a drop are scanned
	// for manual-compaction intent.
	ClassifierWindow = 10
)

// manualCommands are user-authored slash commands that intentionally
// shrink the context.
var manualCommands = []string{"/compact", "/clear"}

// manualPhrases are natural-language markers of intentional context
// reduction. Matching is case-insensitive substring.
var manualPhrases = []string{
	"compact this conversation",
	"compact the context",
	"please compact",
	"summarize and compact",
	"start fresh",
	"clear the history",
	"clear the context",
	"reset the conversation",
	"clean up the context",
	"trim the conversation",
	"shrink the context",
	"condense the conversation",
	"wipe the slate",
}

// Classifier labels token-count drops as automatic or manual compactions.
type Classifier struct {
	// DropThreshold is the fractional decrease that marks a candidate.
	DropThreshold float64
}

// NewClassifier creates a classifier with the given drop threshold; values
// outside (0,1) fall back to 0.10.
func NewClassifier(dropThreshold float64) *Classifier {
	if dropThreshold <= 0 || dropThreshold >= 1 {
		dropThreshold = 0.10
	}
	return &Classifier{DropThreshold: dropThreshold}
}

// IsCandidate reports whether the (previous, current) pair is a compaction
// candidate: the total dropped past the threshold from a context large
// enough that compaction is plausible. Both comparisons are strict, so an
// exact-threshold drop or an exact-floor previous total does not qualify.
func (c *Classifier) IsCandidate(previous, current int) bool {
	if previous <= CandidateMinPreviousTokens {
		return false
	}
	return float64(current) < float64(previous)*(1-c.DropThreshold)
}

// Classify labels a candidate drop by scanning the messages immediately
// preceding it for manual-compaction intent. It is a pure function of the
// message window.
func (c *Classifier) Classify(window []transcript.Message) Classification {
	if len(window) > ClassifierWindow {
		window = window[len(window)-ClassifierWindow:]
	}

	for _, msg := range window {
		if msg.Role != "user" {
			continue
		}
		if hasManualIntent(msg.Text) {
			return Manual
		}
	}
	return Automatic
}

func hasManualIntent(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, cmd := range manualCommands {
		if strings.HasPrefix(trimmed, cmd) {
			return true
		}
	}

	lowered := strings.ToLower(trimmed)
	for _, phrase := range manualPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
