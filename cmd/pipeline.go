package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/gaurav-prasanna/promptpipe/config"
	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/clipboard"
	"github.com/gaurav-prasanna/promptpipe/core/codeblock"
	"github.com/gaurav-prasanna/promptpipe/core/fetch"
	"github.com/gaurav-prasanna/promptpipe/core/media"
	"github.com/gaurav-prasanna/promptpipe/core/normalize"
	"github.com/gaurav-prasanna/promptpipe/core/output"
	"github.com/gaurav-prasanna/promptpipe/core/reencode"
	"github.com/gaurav-prasanna/promptpipe/core/render"
	"github.com/gaurav-prasanna/promptpipe/core/submission"
)

// Output format flags shared by normalize and paste.
var (
	flagPDF       bool
	flagMarkdown  bool
	flagJSON      bool
	flagOutputDir string
)

// pipeline holds the stages built from one configuration.
type pipeline struct {
	cfg       config.Config
	log       zerolog.Logger
	fetcher   *fetch.RelayFetcher
	reencoder *reencode.ImageReencoder
	assembler *submission.Assembler
}

func newPipeline(cfg config.Config, log zerolog.Logger) *pipeline {
	return &pipeline{
		cfg: cfg,
		log: log,
		fetcher: fetch.New(
			fetch.WithRelays(cfg.Relays),
			fetch.WithTimeout(cfg.FetchTimeout),
			fetch.WithCacheSize(cfg.FetchCacheSize),
			fetch.WithLogger(log),
		),
		reencoder: reencode.New(reencode.WithPolicy(cfg.Policy), reencode.WithLogger(log)),
		assembler: submission.NewAssembler(
			submission.Limits{MaxImages: cfg.MaxImages, MaxDocuments: cfg.MaxDocuments},
			submission.WithLogger(log),
		),
	}
}

// handler builds a paste handler. baseURL resolves relative references in
// the pasted markup; dialog overrides the configured feature flag.
func (p *pipeline) handler(baseURL string, dialog bool) *clipboard.Handler {
	if baseURL == "" {
		baseURL = p.cfg.BaseURL
	}
	extractor := media.New(p.fetcher, media.WithBaseURL(baseURL), media.WithLogger(p.log))
	normalizer := normalize.New(codeblock.New(p.log), normalize.WithDomain(baseURL), normalize.WithLogger(p.log))
	return clipboard.NewHandler(
		clipboard.NewClassifier(dialog),
		p.reencoder,
		extractor,
		normalizer,
		clipboard.WithBudget(p.cfg.MaxImageBytes, p.cfg.MaxDimensionPx),
		clipboard.WithAssembler(p.assembler),
		clipboard.WithLogger(p.log),
	)
}

// renderer creates the Renderer selected by the format flags.
func (p *pipeline) renderer() (core.Renderer, error) {
	formats := 0
	for _, set := range []bool{flagPDF, flagMarkdown, flagJSON} {
		if set {
			formats++
		}
	}
	if formats > 1 {
		return nil, fmt.Errorf("only one output format allowed per run (got %d)", formats)
	}
	switch {
	case flagJSON:
		return render.NewJSONRenderer(p.assembler, p.log), nil
	case flagPDF:
		return render.NewPDFRenderer(), nil
	default:
		return render.NewMarkdownRenderer(), nil
	}
}

// emit renders sub and writes it with its attachments. Markdown and JSON
// go to stdout when no output directory is given.
func (p *pipeline) emit(name string, sub core.NormalizedSubmission, notices []core.Notice) error {
	renderer, err := p.renderer()
	if err != nil {
		return err
	}
	data, err := renderer.Render(sub)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if jr, ok := renderer.(*render.JSONRenderer); ok {
		notices = append(notices, jr.Notices()...)
	}
	reportNotices(notices)

	if flagOutputDir == "" && renderer.Extension() != ".pdf" {
		_, err := os.Stdout.Write(data)
		return err
	}
	writer, err := output.New(flagOutputDir)
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}
	path, err := writer.Write(name, data, renderer.Extension())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✓ Written: %s\n", path)
	if renderer.Extension() == ".json" {
		return nil
	}
	paths, err := writer.WriteAttachments(name, sub.Attachments)
	for _, written := range paths {
		fmt.Fprintf(os.Stdout, "✓ Written: %s\n", written)
	}
	return err
}

func reportNotices(notices []core.Notice) {
	for _, n := range notices {
		fmt.Fprintln(os.Stderr, "! "+n.String())
	}
}

// readSource returns the markup of a file, a URL or stdin ("-").
func (p *pipeline) readSource(ctx context.Context, src string) (string, error) {
	switch {
	case src == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		res, err := p.fetcher.Fetch(ctx, src)
		if err != nil {
			return "", fmt.Errorf("fetch: %w", err)
		}
		return string(res.Body), nil
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", src, err)
	}
	return string(b), nil
}

// readAttachment loads a local file with a sniffed media type.
func readAttachment(path string) (core.Attachment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("reading %s: %w", path, err)
	}
	mt := mimetype.Detect(b).String()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		mt = "text/markdown"
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return core.NewAttachment(filepath.Base(path), mt, b), nil
}
