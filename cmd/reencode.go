package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/output"
	"github.com/gaurav-prasanna/promptpipe/core/reencode"
	"github.com/gaurav-prasanna/promptpipe/core/size"
)

var (
	flagMaxBytes int64
	flagMaxDim   int
	flagTrace    bool
)

var reencodeCmd = &cobra.Command{
	Use:   "reencode <image>",
	Short: "Fit an image under the byte and dimension budget",
	Long: `Reencode walks the compression policy (quality steps first, then scale steps)
until the image's base64 transport size fits the budget.

Examples:
  promptpipe reencode photo.png
  promptpipe reencode photo.webp --max_bytes 1048576 --max_dim 2048 --trace`,
	Args: cobra.ExactArgs(1),
	RunE: runReencode,
}

func init() {
	rootCmd.AddCommand(reencodeCmd)

	reencodeCmd.Flags().Int64Var(&flagMaxBytes, "max_bytes", 0, "Transport byte budget (default: config maxImageBytes)")
	reencodeCmd.Flags().IntVar(&flagMaxDim, "max_dim", -1, "Longest side in pixels, 0 for none (default: config maxDimensionPx)")
	reencodeCmd.Flags().BoolVar(&flagTrace, "trace", false, "Print every compression attempt")
	reencodeCmd.Flags().StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: current directory)")
}

func runReencode(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	maxBytes, maxDim := cfg.MaxImageBytes, cfg.MaxDimensionPx
	if flagMaxBytes > 0 {
		maxBytes = flagMaxBytes
	}
	if flagMaxDim >= 0 {
		maxDim = flagMaxDim
	}

	att, err := readAttachment(args[0])
	if err != nil {
		return err
	}
	opts := []reencode.Option{reencode.WithPolicy(cfg.Policy), reencode.WithLogger(log)}
	if flagTrace {
		opts = append(opts, reencode.WithTrace(func(a core.CompressionAttempt, m core.SizeMeasurement) {
			fmt.Fprintf(os.Stderr, "  quality=%.2f scale=%.4f transport=%d\n", a.QualityFactor, a.ScaleFactor, m.TransportByteSize)
		}))
	}

	out, err := reencode.New(opts...).Reencode(att, maxBytes, maxDim)
	if err != nil {
		return err
	}
	if out == nil {
		n := core.Notice{Kind: core.NoticeBudgetExceeded, Item: att.Name(), Message: fmt.Sprintf("could not fit within %d bytes", maxBytes)}
		return n.Err()
	}

	m, err := size.Measure(*out)
	if err != nil {
		return err
	}
	writer, err := output.New(flagOutputDir)
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}
	base := output.NameFor(args[0]) + "_reencoded"
	path, err := writer.Write(base, out.Bytes(), filepath.Ext(out.Name()))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✓ Written: %s (%d bytes, %d transport)\n", path, m.RawByteSize, m.TransportByteSize)
	return nil
}
