package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ctxline/internal/learning"
	"ctxline/internal/storage"
	"ctxline/internal/transcript"
	"ctxline/internal/window"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// statusPayload is the hook payload delivered on stdin by the editor on
// every render. Unknown fields are ignored.
type statusPayload struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Model          struct {
		DisplayName string `json:"display_name"`
	} `json:"model"`
}

// statusOutput is the single-line JSON printed to stdout.
type statusOutput struct {
	WindowSize    int           `json:"window_size"`
	Source        window.Source `json:"source"`
	Percentage    float64       `json:"percentage"`
	CurrentTokens int           `json:"current_tokens"`
}

// NewStatuslineCmd creates the statusline command. It is the render-path
// entry: it must always print a resolution and exit zero, whatever goes
// wrong internally.
func NewStatuslineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "statusline",
		Short: "Resolve the context window for a statusline render",
		Long: `Read the render payload from stdin, fold the latest transcript
observation into the learned state, and print the resolved window as JSON.

Called by the statusline hook on every render. Internal failures are
logged and the command falls back to default resolution; it never fails
the render.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusline(cmd, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runStatusline(cmd *cobra.Command, in io.Reader, out io.Writer) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}
	log := cliCtx.Log()
	render := uuid.New().String()[:8]

	var payload statusPayload
	if err := json.NewDecoder(in).Decode(&payload); err != nil {
		log.Warn().Err(err).Str("render", render).Msg("undecodable status payload")
	}

	cfg := cliCtx.Config
	collector := transcript.NewCollector(cfg.Transcript.TailLines)

	var step *transcript.Step
	if payload.TranscriptPath != "" {
		var err error
		step, err = collector.Latest(payload.TranscriptPath)
		if err != nil {
			log.Warn().Err(err).Str("render", render).Msg("transcript read failed")
		}
	}

	model := payload.Model.DisplayName
	currentTokens := 0
	if step != nil {
		currentTokens = step.Current.TotalTokens
		if model == "" {
			model = step.Current.Model
		}
	}

	// Learned state is best-effort on the render path. A store that
	// cannot be opened degrades to default resolution.
	var rec *storage.LearnedWindow
	db, err := cliCtx.GetStorage()
	if err != nil || db == nil {
		log.Warn().Err(err).Str("render", render).Msg("learned-state store unavailable")
	} else {
		if cfg.Learning.Enabled && step != nil && model != "" {
			engine := learning.NewEngine(db, cfg.Learning.AutoCompactThreshold, cfg.Learning.CeilingTolerance, log)
			if err := engine.Observe(model, *step); err != nil {
				log.Warn().Err(err).Str("render", render).Str("model", model).Msg("observation not recorded")
			}
		}

		rec, err = db.GetLearnedWindow(model)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("render", render).Str("model", model).Msg("learned window lookup failed")
			rec = nil
		}
	}

	resolver := window.NewResolver(window.Params{
		Overrides:           cfg.Window.ModelWindows,
		ConfidenceThreshold: cfg.Learning.ConfidenceThreshold,
		BufferSize:          cfg.Window.BufferSize,
		Fallback:            cfg.Window.Size,
		Mode:                cfg.Window.PercentageMode,
	})
	resolved := resolver.Resolve(model, rec, currentTokens)

	log.Debug().
		Str("render", render).
		Str("session", payload.SessionID).
		Str("model", model).
		Str("source", string(resolved.Source)).
		Int("window_size", resolved.WindowSize).
		Int("current_tokens", currentTokens).
		Msg("window resolved")

	data, err := json.Marshal(statusOutput{
		WindowSize:    resolved.WindowSize,
		Source:        resolved.Source,
		Percentage:    resolved.Percentage,
		CurrentTokens: currentTokens,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}
