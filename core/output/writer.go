// Package output handles file naming and writing for rendered submissions.
// The rendered document goes to <name><ext>; attachments go to a sibling
// <name>_attachments directory, prefixed with their attachment index.
package output

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaurav-prasanna/promptpipe/core"
)

// Writer writes rendered output to disk.
type Writer struct {
	OutputDir string
}

// New creates a Writer targeting the given output directory.
// If outputDir is empty, it defaults to the current working directory.
func New(outputDir string) (*Writer, error) {
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		outputDir = wd
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &Writer{OutputDir: outputDir}, nil
}

// Write stores data as <name><ext>.
func (w *Writer) Write(name string, data []byte, ext string) (string, error) {
	path := filepath.Join(w.OutputDir, name+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}
	return path, nil
}

// WriteAttachments stores each attachment as <name>_attachments/<i>-<file>.
// Nothing is created when atts is empty.
func (w *Writer) WriteAttachments(name string, atts []core.Attachment) ([]string, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	dir := filepath.Join(w.OutputDir, name+"_attachments")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	paths := make([]string, 0, len(atts))
	for i, att := range atts {
		file := att.Name()
		if file == "" {
			file = "attachment"
		}
		path := filepath.Join(dir, fmt.Sprintf("%d-%s", i, sanitizeFile(file)))
		if err := os.WriteFile(path, att.Bytes(), 0644); err != nil {
			return paths, fmt.Errorf("writing file %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// NameFor derives an output name from the command input: a URL becomes
// host_path, a file its base name without extension, stdin "clipboard".
func NameFor(source string) string {
	switch {
	case source == "" || source == "-":
		return "clipboard"
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		return filenameFromURL(source)
	}
	base := filepath.Base(source)
	return sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
}

// filenameFromURL converts a URL into a flat filename.
// Example: https://example.com/docs/intro → example_com_docs_intro
func filenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return sanitize(rawURL)
	}

	parts := []string{sanitize(parsed.Host)}
	path := strings.Trim(parsed.Path, "/")
	if path != "" {
		for _, seg := range strings.Split(path, "/") {
			parts = append(parts, sanitize(seg))
		}
	}
	return strings.Join(parts, "_")
}

// sanitize replaces non-alphanumeric characters with underscores.
func sanitize(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// sanitizeFile is sanitize that keeps the extension dot.
func sanitizeFile(s string) string {
	ext := filepath.Ext(s)
	if ext == "" {
		return sanitize(s)
	}
	return sanitize(strings.TrimSuffix(s, ext)) + "." + sanitize(strings.TrimPrefix(ext, "."))
}
