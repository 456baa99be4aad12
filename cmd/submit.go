package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/output"
	"github.com/gaurav-prasanna/promptpipe/core/submission"
)

var (
	flagSubmitText     string
	flagSubmitDefaults string
)

var submitCmd = &cobra.Command{
	Use:   "submit [files...]",
	Short: "Assemble the outbound submission payload",
	Long: `Submit builds the JSON payload a prompt widget hands back to its host: a fresh
uuid, the text, and every allowed file base64-encoded with its category.
Images are fitted under the byte budget first.

Examples:
  promptpipe submit --text "summarize this" report.pdf chart.png
  promptpipe submit --defaults defaults.yaml`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&flagSubmitText, "text", "", "Message text")
	submitCmd.Flags().StringVar(&flagSubmitDefaults, "defaults", "", "Default payload file ({text, images, files}); skipped when --text is given")
	submitCmd.Flags().StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: stdout)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	p := newPipeline(cfg, log)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		sub     core.NormalizedSubmission
		notices []core.Notice
	)
	gate := submission.NewDefaultsGate(cfg.DefaultsDebounce)
	if flagSubmitText != "" {
		gate.MarkInteracted()
	}
	if flagSubmitDefaults != "" {
		payload, err := readDefaults(flagSubmitDefaults)
		if err != nil {
			return err
		}
		var applied bool
		sub, notices, applied = gate.Apply(ctx, time.Now(), payload, p.fetcher)
		if !applied {
			log.Info().Str("defaults", flagSubmitDefaults).Msg("defaults ignored: the message text was given")
		}
	}
	if flagSubmitText != "" {
		sub.Text = flagSubmitText
	}
	for _, path := range args {
		att, err := readAttachment(path)
		if err != nil {
			return err
		}
		sub.Attachments = append(sub.Attachments, att)
	}

	h := p.handler("", cfg.ClipboardDialog)
	fitted, fitNotices := h.Fit(sub.Attachments)
	sub.Attachments = fitted
	notices = append(notices, fitNotices...)

	payload, more, err := h.Submit(sub)
	if err != nil {
		return err
	}
	return writeSubmission(payload, append(notices, more...))
}

func writeSubmission(payload submission.Submission, notices []core.Notice) error {
	reportNotices(notices)
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	if flagOutputDir == "" {
		_, err := fmt.Fprintln(os.Stdout, string(data))
		return err
	}
	writer, err := output.New(flagOutputDir)
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}
	path, err := writer.Write(payload.UUID, data, ".json")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✓ Written: %s\n", path)
	return nil
}

// readDefaults loads a DefaultPayload from YAML or JSON.
func readDefaults(path string) (submission.DefaultPayload, error) {
	var payload submission.DefaultPayload
	b, err := os.ReadFile(path)
	if err != nil {
		return payload, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &payload); err != nil {
		return payload, fmt.Errorf("parse defaults: %w", err)
	}
	return payload, nil
}
