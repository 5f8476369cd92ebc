package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"ctxline/internal/learning"
	"ctxline/internal/storage"
	"ctxline/internal/transcript"

	"github.com/spf13/cobra"
)

// NewContextLearningCmd creates the context-learning command for
// inspecting and managing learned window state.
func NewContextLearningCmd() *cobra.Command {
	var (
		showStatus bool
		details    string
		resetModel string
		resetAll   bool
		rebuild    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "context-learning",
		Short: "Inspect and manage learned context windows",
		Long: `Inspect learned context window state, reset it per model or
entirely, and rebuild it from a transcript.

Flags compose: --reset-all --rebuild <transcript> clears all learned
state and replays the transcript from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("open learned-state store: %w", err)
			}

			engine := learning.NewEngine(
				db,
				cliCtx.Config.Learning.AutoCompactThreshold,
				cliCtx.Config.Learning.CeilingTolerance,
				cliCtx.Log(),
			)

			ran := false

			if resetAll {
				ran = true
				if err := engine.ResetAll(); err != nil {
					return fmt.Errorf("reset all learned state: %w", err)
				}
				fmt.Println("All learned state reset.")
			}

			if resetModel != "" {
				ran = true
				if err := engine.Reset(resetModel); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return fmt.Errorf("no learned state for model %q", resetModel)
					}
					return fmt.Errorf("reset learned state: %w", err)
				}
				fmt.Printf("Learned state for %q reset.\n", resetModel)
			}

			if rebuild != "" {
				ran = true
				if err := runRebuild(engine, rebuild); err != nil {
					return err
				}
				fmt.Printf("Learned state rebuilt from %s.\n", rebuild)
			}

			if details != "" {
				ran = true
				if err := runDetails(db, details, jsonOutput); err != nil {
					return err
				}
			}

			if showStatus || !ran {
				return runLearningStatus(db, jsonOutput)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showStatus, "status", false, "show learned state for all models")
	cmd.Flags().StringVar(&details, "details", "", "show full learned record for a model")
	cmd.Flags().StringVar(&resetModel, "reset", "", "reset learned state for a model")
	cmd.Flags().BoolVar(&resetAll, "reset-all", false, "reset all learned state")
	cmd.Flags().StringVar(&rebuild, "rebuild", "", "rebuild learned state from a transcript file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runLearningStatus(db *storage.DB, jsonOutput bool) error {
	records, err := db.ListLearnedWindows()
	if err != nil {
		return fmt.Errorf("list learned state: %w", err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Println("No learned state yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tOBSERVED MAX\tCEILINGS\tCOMPACTIONS\tCONFIDENCE\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f\t%s\n",
			rec.ModelName,
			rec.ObservedMaxTokens,
			rec.CeilingObservations,
			rec.CompactionCount,
			rec.ConfidenceScore,
			rec.LastUpdated.Local().Format(time.DateTime),
		)
	}
	return w.Flush()
}

func runDetails(db *storage.DB, model string, jsonOutput bool) error {
	rec, err := db.GetLearnedWindow(model)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no learned state for model %q", model)
		}
		return fmt.Errorf("load learned state: %w", err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Model: %s\n", rec.ModelName)
	fmt.Println("─────────────────────────────")
	fmt.Printf("  Observed max tokens:  %d\n", rec.ObservedMaxTokens)
	fmt.Printf("  Ceiling observations: %d\n", rec.CeilingObservations)
	fmt.Printf("  Compaction count:     %d\n", rec.CompactionCount)
	fmt.Printf("  Last observed max:    %d\n", rec.LastObservedMaxTokens)
	fmt.Printf("  Confidence:           %.2f\n", rec.ConfidenceScore)
	fmt.Printf("  First seen:           %s\n", rec.FirstSeen.Local().Format(time.DateTime))
	fmt.Printf("  Last updated:         %s\n", rec.LastUpdated.Local().Format(time.DateTime))
	return nil
}

func runRebuild(engine *learning.Engine, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("transcript %s: %w", path, err)
	}

	// Rebuild replays the whole file, not just the render tail.
	collector := transcript.NewCollector(0)
	history, err := collector.History(path)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("transcript %s contains no usable observations", path)
	}

	return engine.Rebuild(history)
}
