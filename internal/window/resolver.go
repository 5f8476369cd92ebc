// Package window resolves the effective context window size and usage
// percentage for a model, combining config overrides, learned state,
// family defaults, and a global fallback.
package window

import "ctxline/internal/storage"

// Source identifies which tier of the priority chain produced a resolved
// window.
type Source string

const (
	SourceOverride Source = "override"
	SourceLearned  Source = "learned"
	SourceDefault  Source = "default"
	SourceFallback Source = "fallback"
)

// Percentage display modes.
const (
	ModeFull    = "full"
	ModeWorking = "working"
)

// ResolvedWindow is the per-render resolution result consumed by the
// display component.
type ResolvedWindow struct {
	WindowSize int     `json:"window_size"`
	Source     Source  `json:"source"`
	Percentage float64 `json:"percentage"`
}

// Params configures a Resolver.
type Params struct {
	// Overrides maps exact model display names to fixed window sizes.
	Overrides map[string]int

	// ConfidenceThreshold gates use of learned records.
	ConfidenceThreshold float64

	// BufferSize is the margin added beyond a learned ceiling.
	BufferSize int

	// Fallback is the window used when nothing else matches.
	Fallback int

	// Mode selects the percentage denominator: ModeFull or ModeWorking.
	Mode string
}

// strategy is one tier of the resolution chain.
type strategy struct {
	source  Source
	resolve func(model string, rec *storage.LearnedWindow) (int, bool)
}

// Resolver applies the priority chain override → learned → default →
// fallback. The chain is an ordered list of strategies, so adding a tier
// is an insertion rather than another branch.
type Resolver struct {
	params     Params
	strategies []strategy
}

// NewResolver builds a resolver for the given parameters.
func NewResolver(params Params) *Resolver {
	r := &Resolver{params: params}
	r.strategies = []strategy{
		{
			source: SourceOverride,
			resolve: func(model string, _ *storage.LearnedWindow) (int, bool) {
				size, ok := params.Overrides[model]
				return size, ok && size > 0
			},
		},
		{
			source: SourceLearned,
			resolve: func(_ string, rec *storage.LearnedWindow) (int, bool) {
				if rec == nil || rec.ConfidenceScore < params.ConfidenceThreshold {
					return 0, false
				}
				return rec.ObservedMaxTokens + params.BufferSize, true
			},
		},
		{
			source: SourceDefault,
			resolve: func(model string, _ *storage.LearnedWindow) (int, bool) {
				return DefaultWindow(model)
			},
		},
		{
			source: SourceFallback,
			resolve: func(_ string, _ *storage.LearnedWindow) (int, bool) {
				return params.Fallback, true
			},
		},
	}
	return r
}

// Resolve produces the effective window and usage percentage for a model.
// rec may be nil (no learned record, or the store was unavailable this
// invocation); the chain then falls through to defaults.
func (r *Resolver) Resolve(model string, rec *storage.LearnedWindow, currentTokens int) ResolvedWindow {
	var resolved ResolvedWindow
	for _, s := range r.strategies {
		if size, ok := s.resolve(model, rec); ok {
			resolved = ResolvedWindow{WindowSize: size, Source: s.source}
			break
		}
	}

	resolved.Percentage = r.percentage(resolved, rec, currentTokens)
	return resolved
}

// percentage computes usage against the mode's denominator, clamped to
// [0, 100].
func (r *Resolver) percentage(resolved ResolvedWindow, rec *storage.LearnedWindow, currentTokens int) float64 {
	denominator := resolved.WindowSize
	if r.params.Mode == ModeWorking {
		if resolved.Source == SourceLearned && rec != nil {
			denominator = rec.ObservedMaxTokens
		} else {
			denominator = resolved.WindowSize - r.params.BufferSize
		}
	}

	if denominator <= 0 {
		return 0
	}

	pct := float64(currentTokens) / float64(denominator) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
