package learning

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"ctxline/internal/storage"
	"ctxline/internal/transcript"
)

// Store is the durable per-model learned-state backend. It is injected
// rather than reached through a singleton so tests can use isolated
// stores; *storage.DB satisfies it.
type Store interface {
	GetLearnedWindow(model string) (*storage.LearnedWindow, error)
	PutLearnedWindow(w *storage.LearnedWindow) error
	UpdateLearnedWindow(model string, fn func(rec *storage.LearnedWindow) (*storage.LearnedWindow, error)) error
	DeleteLearnedWindow(model string) error
	ResetAllLearnedWindows() error
	ListLearnedWindows() ([]*storage.LearnedWindow, error)
}

// Engine applies observations to the learned-state store: classifier and
// ceiling consequences plus a confidence recompute, as one
// read-modify-write per model.
type Engine struct {
	store      Store
	classifier *Classifier
	ceiling    *CeilingTracker
	log        *zerolog.Logger
}

// NewEngine creates a learning engine over the given store.
func NewEngine(store Store, dropThreshold, ceilingTolerance float64, log *zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		classifier: NewClassifier(dropThreshold),
		ceiling:    NewCeilingTracker(ceilingTolerance),
		log:        log,
	}
}

// Observe folds the latest transcript step into the model's learned
// record, as one transactional read-modify-write. The ~300ms render
// cadence re-delivers the same latest step until the transcript grows, so
// re-observations must not double count: timestamped steps are skipped
// when they are not newer than the record's last update, and the apply
// step itself refuses to re-count an unchanged ceiling bump or compaction
// drop, covering transcripts whose timestamps are missing or unparseable.
func (e *Engine) Observe(model string, step transcript.Step) error {
	if model == "" || step.Current.TotalTokens <= 0 {
		return nil
	}

	err := e.store.UpdateLearnedWindow(model, func(rec *storage.LearnedWindow) (*storage.LearnedWindow, error) {
		created := rec == nil
		if created {
			rec = newRecord(model, step.Current.Timestamp)
		} else if !step.Current.Timestamp.IsZero() && !step.Current.Timestamp.After(rec.LastUpdated) {
			return nil, nil
		}

		changed := e.apply(rec, step)
		if !created && !changed {
			return nil, nil
		}
		return rec, nil
	})
	if err != nil {
		return fmt.Errorf("fold observation: %w", err)
	}
	return nil
}

// apply runs the ceiling tracker and compaction classifier over one step
// and recomputes confidence. Reports whether the record changed.
func (e *Engine) apply(rec *storage.LearnedWindow, step transcript.Step) bool {
	outcome := e.ceiling.Apply(rec, step.Current.TotalTokens)
	changed := outcome != CeilingIgnored
	if changed {
		// New ceiling activity means the transcript has moved past the
		// last counted drop; the next compaction is a distinct event.
		rec.LastCompactionTotal = 0
	}

	if step.Previous != nil &&
		e.classifier.IsCandidate(step.Previous.TotalTokens, step.Current.TotalTokens) &&
		step.Current.TotalTokens != rec.LastCompactionTotal {
		class := e.classifier.Classify(step.Window)
		if class == Automatic {
			rec.CompactionCount++
			rec.LastCompactionTotal = step.Current.TotalTokens
			changed = true
		}
		if e.log != nil {
			e.log.Debug().
				Str("model", rec.ModelName).
				Int("previous", step.Previous.TotalTokens).
				Int("current", step.Current.TotalTokens).
				Str("classification", class.String()).
				Msg("compaction detected")
		}
	}

	if changed {
		rec.ConfidenceScore = Confidence(rec.CeilingObservations, rec.CompactionCount)
		rec.LastUpdated = timestampOrNow(step.Current.Timestamp)
	}
	return changed
}

// Reset removes one model's learned record.
func (e *Engine) Reset(model string) error {
	return e.store.DeleteLearnedWindow(model)
}

// ResetAll removes every learned record.
func (e *Engine) ResetAll() error {
	return e.store.ResetAllLearnedWindows()
}

// Rebuild resets all learned state, then re-applies the ordered
// observation history. The result is deterministic: running it twice over
// the same history yields identical final state.
func (e *Engine) Rebuild(history []transcript.Step) error {
	if err := e.store.ResetAllLearnedWindows(); err != nil {
		return fmt.Errorf("reset learned state: %w", err)
	}

	records := make(map[string]*storage.LearnedWindow)
	for _, step := range history {
		model := step.Current.Model
		if model == "" || step.Current.TotalTokens <= 0 {
			continue
		}

		rec, ok := records[model]
		if !ok {
			rec = newRecord(model, step.Current.Timestamp)
			records[model] = rec
		}
		e.apply(rec, step)
	}

	models := make([]string, 0, len(records))
	for model := range records {
		models = append(models, model)
	}
	sort.Strings(models)

	for _, model := range models {
		if err := e.store.PutLearnedWindow(records[model]); err != nil {
			return fmt.Errorf("persist rebuilt window for %s: %w", model, err)
		}
	}
	return nil
}

func newRecord(model string, ts time.Time) *storage.LearnedWindow {
	return &storage.LearnedWindow{
		ModelName: model,
		FirstSeen: timestampOrNow(ts),
	}
}

func timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts
}
