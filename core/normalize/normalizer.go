// Package normalize turns a pasted HTML fragment into a single Markdown
// document. Standalone code regions are protected from the generic
// converter behind placeholders and restored as fenced blocks; image
// references are rewritten to indexed attachment references.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/codeblock"
	"github.com/gaurav-prasanna/promptpipe/core/media"
)

var (
	inlineDataImage = regexp.MustCompile(`!\[([^\]]*)\]\(<?(data:image/[a-zA-Z0-9.+-]+;base64,[A-Za-z0-9+/=%]+)>?\)`)
	blankRun        = regexp.MustCompile(`\n{3,}`)
	// containerPrefix matches the start of a list item or quote line.
	containerPrefix = regexp.MustCompile(`^[ \t]*(?:(?:>|[-*+]|\d{1,9}[.)])[ \t]*)*$`)
)

// Selected is an extracted image the user kept, with the attachment index
// it will occupy in the submission.
type Selected struct {
	Media core.ExtractedMedia
	Index int
}

// Options carries the per-call image context.
type Options struct {
	// ImageOffset is the number of images already extracted; inline images
	// found after conversion are numbered from here.
	ImageOffset int
	// Images are the currently selected extracted images.
	Images []Selected
	// Fit, when set, fits each inline image before it is given an index.
	// A nil result omits the image; the reason is shown in its place.
	Fit func(core.Attachment) (*core.Attachment, string)
}

// Result is the normalized Markdown and the inline images it references.
type Result struct {
	Markdown string
	// Inline holds images decoded from data URLs left in the converted
	// Markdown; Inline[k] is attachment ImageOffset+k.
	Inline []core.Attachment
	// References is the number of reference definitions appended.
	References int
	Notices    []core.Notice
}

// MarkdownNormalizer orchestrates code extraction and HTML to Markdown conversion.
type MarkdownNormalizer struct {
	code   core.CodeExtractor
	domain string
	log    zerolog.Logger
}

// Option configures a MarkdownNormalizer.
type Option func(*MarkdownNormalizer)

// WithDomain makes relative links and images absolute against domain.
func WithDomain(domain string) Option { return func(n *MarkdownNormalizer) { n.domain = domain } }

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option { return func(n *MarkdownNormalizer) { n.log = l } }

// New creates a MarkdownNormalizer using code for code-region extraction.
func New(code core.CodeExtractor, opts ...Option) *MarkdownNormalizer {
	n := &MarkdownNormalizer{code: code, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// reference is one appended reference definition.
type reference struct {
	index int
	name  string
}

// Normalize converts fragment into Markdown. It never fails: malformed
// input degrades to best-effort text and unmatched placeholders stay as
// literal text with a diagnostic.
func (n *MarkdownNormalizer) Normalize(fragment string, opts Options) Result {
	var res Result

	// 1. Protect standalone code; inline code stays for the converter.
	working, blocks := n.code.ExtractWhere(fragment, func(b core.CodeBlock) bool { return b.IsStandalone })

	// 2. Generic conversion.
	md := n.convert(working, &res)

	// 3. Inline data images that survived conversion.
	var refs []reference
	md = inlineDataImage.ReplaceAllStringFunc(md, func(m string) string {
		sub := inlineDataImage.FindStringSubmatch(m)
		alt, src := sub[1], sub[2]
		d, err := media.ParseDataURL(src)
		if err != nil {
			n.log.Warn().Err(err).Msg("dropping undecodable inline image")
			res.Notices = append(res.Notices, core.Notice{
				Kind: core.NoticeMalformedMarkup, Item: "inline image", Message: err.Error(),
			})
			return alt
		}
		idx := opts.ImageOffset + len(res.Inline)
		name := fmt.Sprintf("pasted-image-%d%s", idx+1, media.ExtensionFor(d.MIMEType))
		att := core.NewAttachment(name, d.MIMEType, d.Data)
		if opts.Fit != nil {
			fitted, reason := opts.Fit(att)
			if fitted == nil {
				return omittedText(alt, reason)
			}
			att = *fitted
		}
		res.Inline = append(res.Inline, att)
		refs = append(refs, reference{index: idx, name: att.Name()})
		return imageRef(alt, idx)
	})

	// 4. Selected images.
	var appended []string
	for _, sel := range opts.Images {
		m := sel.Media
		if m.SourceReference == core.InlineSVGReference || media.IsEmbeddedReference(m.SourceReference) {
			continue
		}
		pattern := imagePattern(m.SourceReference)
		if m.Failed() {
			md = pattern.ReplaceAllStringFunc(md, func(string) string {
				return string(m.Artifact.Bytes())
			})
			continue
		}
		found := false
		md = pattern.ReplaceAllStringFunc(md, func(s string) string {
			found = true
			return imageRef(pattern.FindStringSubmatch(s)[1], sel.Index)
		})
		if !found {
			appended = append(appended, imageRef(m.Alt, sel.Index))
		}
		refs = append(refs, reference{index: sel.Index, name: m.Artifact.Name()})
	}

	// 5. Restore code blocks last so their content is never rewritten.
	md = n.restoreBlocks(md, blocks)

	md = strings.TrimSpace(md)
	if len(appended) > 0 {
		md = strings.TrimSpace(md + "\n\n" + strings.Join(appended, "\n"))
	}
	if len(refs) > 0 {
		sort.SliceStable(refs, func(a, b int) bool { return refs[a].index < refs[b].index })
		defs := make([]string, len(refs))
		for i, r := range refs {
			defs[i] = refDefinition(r.index, r.name)
		}
		md = strings.TrimSpace(md + "\n\n" + strings.Join(defs, "\n"))
	}
	res.Markdown = md
	res.References = len(refs)
	return res
}

func (n *MarkdownNormalizer) convert(working string, res *Result) string {
	var opts []converter.ConvertOptionFunc
	if n.domain != "" {
		opts = append(opts, converter.WithDomain(n.domain))
	}
	md, err := htmltomarkdown.ConvertString(working, opts...)
	if err == nil {
		return md
	}
	n.log.Warn().Err(err).Msg("markdown conversion failed; falling back to plain text")
	res.Notices = append(res.Notices, core.Notice{
		Kind: core.NoticeMalformedMarkup, Item: "pasted markup", Message: err.Error(),
	})
	doc, derr := goquery.NewDocumentFromReader(strings.NewReader(working))
	if derr != nil {
		return working
	}
	return blankRun.ReplaceAllString(strings.TrimSpace(doc.Text()), "\n\n")
}

// restoreBlocks swaps every placeholder for its block's rendering in a
// single pass, so restored code is never searched for placeholders. Only
// the first occurrence of each index is restored.
func (n *MarkdownNormalizer) restoreBlocks(md string, blocks []core.CodeBlock) string {
	if len(blocks) == 0 {
		return md
	}
	var (
		b        strings.Builder
		last     int
		restored = make(map[int]bool, len(blocks))
		trimNext bool
		// prevEnd and prevCont describe the last block nested in a container.
		prevEnd  = -1
		prevCont string
	)
	for _, loc := range codeblock.LocatePlaceholders(md) {
		if loc.Index >= len(blocks) || restored[loc.Index] {
			continue
		}
		restored[loc.Index] = true
		block := blocks[loc.Index]

		seg := md[last:loc.Start]
		if trimNext {
			seg = strings.TrimLeft(seg, " \t\n")
			if seg != "" {
				b.WriteString("\n\n")
			}
			trimNext = false
		}
		b.WriteString(seg)
		last = loc.End

		lineStart := strings.LastIndexByte(md[:loc.Start], '\n') + 1
		prefix := md[lineStart:loc.Start]
		if loc.Start == prevEnd && !block.IsInline {
			// Directly follows a block in the same container.
			b.WriteString("\n" + strings.TrimRight(prevCont, " \t") + "\n" + prevCont)
			prefix = prevCont
		}
		prevEnd = -1
		switch {
		case block.IsInline:
			b.WriteString(inlineSpan(block.PlainText))
		case strings.HasPrefix(strings.TrimSpace(prefix), "|"):
			// A table cell cannot hold a fence.
			b.WriteString(inlineSpan(strings.Join(strings.Fields(block.PlainText), " ")))
		case prefix != "" && containerPrefix.MatchString(prefix):
			prevCont = continuation(prefix)
			prevEnd = loc.End
			b.WriteString(nested(fenced(block), prevCont))
		default:
			out := strings.TrimRight(b.String(), " \t\n")
			b.Reset()
			b.WriteString(out)
			if out != "" {
				b.WriteString("\n\n")
			}
			b.WriteString(fenced(block))
			trimNext = true
		}
	}
	tail := md[last:]
	if trimNext {
		tail = strings.TrimLeft(tail, " \t\n")
		if tail != "" {
			b.WriteString("\n\n")
		}
	}
	b.WriteString(tail)

	for i, block := range blocks {
		if block.IsStandalone && !restored[i] {
			n.log.Warn().Int("block", i).Str("placeholder", codeblock.Placeholder(i)).Msg("code block placeholder not found")
		}
	}
	return b.String()
}

// continuation turns the prefix of a list item or quote line into the
// prefix of its following lines: markers become spaces, quotes stay.
func continuation(prefix string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '>', ' ', '\t':
			return r
		}
		return ' '
	}, prefix)
}

// nested indents every line after the first with cont.
func nested(text, cont string) string {
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] == "" {
			lines[i] = strings.TrimRight(cont, " \t")
			continue
		}
		lines[i] = cont + lines[i]
	}
	return strings.Join(lines, "\n")
}

func fenced(b core.CodeBlock) string {
	fence := "```"
	for strings.Contains(b.PlainText, fence) {
		fence += "`"
	}
	return fence + b.Language + "\n" + b.PlainText + "\n" + fence
}

func omittedText(alt, reason string) string {
	if alt == "" {
		alt = "pasted image"
	}
	return fmt.Sprintf("[Image omitted: %s (%s)]", alt, reason)
}

func inlineSpan(text string) string {
	ticks := "`"
	for strings.Contains(text, ticks) {
		ticks += "`"
	}
	if strings.HasPrefix(text, "`") || strings.HasSuffix(text, "`") {
		return ticks + " " + text + " " + ticks
	}
	return ticks + text + ticks
}

// imagePattern matches Markdown image syntax pointing at src, with an
// optional title. Group 1 is the alt text.
func imagePattern(src string) *regexp.Regexp {
	return regexp.MustCompile(`!\[([^\]]*)\]\(<?` + regexp.QuoteMeta(src) + `>?(?:\s+"[^"]*")?\)`)
}
