package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/clipboard"
)

var (
	flagPasteHTML   string
	flagPasteText   string
	flagPasteImages []string
)

var pasteCmd = &cobra.Command{
	Use:   "paste",
	Short: "Simulate a paste event with several clipboard representations",
	Long: `Paste builds a clipboard event from files, classifies it, and processes it the
way the prompt widget would. When the selection dialog opens, every item is kept.

Examples:
  promptpipe paste --image shot.png
  promptpipe paste --html copied.html --text copied.txt --image shot.png --json`,
	Args: cobra.NoArgs,
	RunE: runPaste,
}

func init() {
	rootCmd.AddCommand(pasteCmd)

	pasteCmd.Flags().StringVar(&flagPasteHTML, "html", "", "File with the text/html representation")
	pasteCmd.Flags().StringVar(&flagPasteText, "text", "", "File with the text/plain representation")
	pasteCmd.Flags().StringSliceVar(&flagPasteImages, "image", nil, "Image file representation (repeatable)")
	pasteCmd.Flags().BoolVar(&flagPDF, "pdf", false, "Output a PDF preview")
	pasteCmd.Flags().BoolVar(&flagMarkdown, "markdown", false, "Output Markdown (default)")
	pasteCmd.Flags().BoolVar(&flagJSON, "json", false, "Output the submission payload as JSON")
	pasteCmd.Flags().StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: stdout, or the current directory for PDF)")
	pasteCmd.Flags().StringVar(&flagBaseURL, "base_url", "", "Base URL for relative references in the markup")
}

func runPaste(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	p := newPipeline(cfg, log)

	ev, err := pasteEvent()
	if err != nil {
		return err
	}
	if len(ev.Items) == 0 {
		return errors.New("nothing to paste: pass --html, --text or --image")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	h := p.handler(flagBaseURL, cfg.ClipboardDialog)
	decision := clipboard.NewClassifier(cfg.ClipboardDialog).Classify(ev)
	fmt.Fprintf(os.Stderr, "decision: %s (%d items)\n", decision.Action, len(decision.Items))

	sub, notices, err := pasteAll(ctx, h, ev)
	if err != nil {
		return err
	}
	return p.emit("paste", sub, notices)
}

// pasteEvent builds the clipboard event from the --html/--text/--image files.
func pasteEvent() (clipboard.PasteEvent, error) {
	var ev clipboard.PasteEvent
	for i, path := range flagPasteImages {
		att, err := readAttachment(path)
		if err != nil {
			return ev, err
		}
		ev.Items = append(ev.Items, core.ClipboardItem{
			ID: fmt.Sprintf("image-%d", i), Kind: core.ClipboardFile, MIMEType: att.MIMEType(), AsAttachment: &att,
		})
	}
	for _, rep := range []struct{ path, id, mime string }{
		{flagPasteHTML, "html", "text/html"},
		{flagPasteText, "text", "text/plain"},
	} {
		if rep.path == "" {
			continue
		}
		b, err := os.ReadFile(rep.path)
		if err != nil {
			return ev, fmt.Errorf("reading %s: %w", rep.path, err)
		}
		ev.Items = append(ev.Items, core.ClipboardItem{ID: rep.id, Kind: core.ClipboardString, MIMEType: rep.mime, Content: string(b)})
	}
	return ev, nil
}
