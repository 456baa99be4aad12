// Package cmd: normalize command.
// Runs a markup document through extract, normalize and re-encode as if the
// user had pasted it and kept every item, then renders the submission.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/clipboard"
	"github.com/gaurav-prasanna/promptpipe/core/extract"
	"github.com/gaurav-prasanna/promptpipe/core/output"
)

var flagBaseURL string

var normalizeCmd = &cobra.Command{
	Use:   "normalize <file|url|->",
	Short: "Normalize pasted markup into Markdown with attachments",
	Long: `Normalize reads an HTML fragment or page, extracts code blocks and images,
converts it to Markdown with indexed image references, and fits every image
under the configured byte budget.

Examples:
  promptpipe normalize snippet.html
  promptpipe normalize https://example.com/post --pdf --output_dir ./out
  pbpaste -Prefer html | promptpipe normalize - --json`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)

	normalizeCmd.Flags().BoolVar(&flagPDF, "pdf", false, "Output a PDF preview")
	normalizeCmd.Flags().BoolVar(&flagMarkdown, "markdown", false, "Output Markdown (default)")
	normalizeCmd.Flags().BoolVar(&flagJSON, "json", false, "Output the submission payload as JSON")
	normalizeCmd.Flags().StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: stdout, or the current directory for PDF)")
	normalizeCmd.Flags().StringVar(&flagBaseURL, "base_url", "", "Base URL for relative references (defaults to the input URL)")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	src := args[0]
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	p := newPipeline(cfg, log)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	markup, err := p.readSource(ctx, src)
	if err != nil {
		return err
	}
	if extract.IsDocument(markup) {
		if markup, err = extract.New().Extract(markup); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	}

	base := flagBaseURL
	if base == "" && (strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")) {
		base = src
	}
	sub, notices, err := pasteAll(ctx, p.handler(base, true), clipboard.PasteEvent{Items: []core.ClipboardItem{{
		ID: "markup", Kind: core.ClipboardString, MIMEType: "text/html", Content: markup,
	}}})
	if err != nil {
		return err
	}
	return p.emit(output.NameFor(src), sub, notices)
}

// pasteAll pastes ev and, when a selection dialog opens, keeps every item.
// Plain text left to the host is returned as the submission text.
func pasteAll(ctx context.Context, h *clipboard.Handler, ev clipboard.PasteEvent) (core.NormalizedSubmission, []core.Notice, error) {
	out, err := h.Paste(ctx, ev)
	if err != nil {
		return core.NormalizedSubmission{}, nil, err
	}
	switch out.Decision.Action {
	case clipboard.ShowSelectionDialog:
		ids := make([]string, len(out.Decision.Items))
		for i, item := range out.Decision.Items {
			ids[i] = item.ID
		}
		out, err = h.Confirm(ctx, ids)
		if err != nil {
			return core.NormalizedSubmission{}, nil, err
		}
	case clipboard.PassThroughToHost:
		var texts []string
		for _, item := range ev.Items {
			if clipboard.KindOf(item) == clipboard.KindPlainText {
				texts = append(texts, item.Content)
			}
		}
		out.Submission.Text = strings.Join(texts, "\n\n")
	}
	return out.Submission, out.Notices, nil
}
