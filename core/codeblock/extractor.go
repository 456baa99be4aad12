// Package codeblock finds code regions in a markup fragment.
// It walks the parsed fragment in document order and classifies a node as
// code when it is a preformatted/code-tagged element, or when its inline
// style asks for a monospace font with preserved whitespace. Detected nodes
// are not recursed into and are swapped for positional placeholders.
package codeblock

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/dom"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/gaurav-prasanna/promptpipe/core"
	"github.com/gaurav-prasanna/promptpipe/core/media"
)

const (
	placeholderPrefix = "CODEBLOCKPLACEHOLDER"
	placeholderSuffix = "END"
	// inlineMaxRunes is the length under which a non-standalone code region
	// reads as inline even outside prose.
	inlineMaxRunes = 40
)

var (
	codeTags      = cascadia.MustCompile("pre, code, tt, samp, kbd, xmp, listing")
	paragraphLike = cascadia.MustCompile("p, li, td, th, dd, dt, h1, h2, h3, h4, h5, h6, figcaption")

	monospaceFont = regexp.MustCompile(`(?i)mono|courier|consolas|menlo|monaco|inconsolata|fira code|source code`)
	placeholderRe = regexp.MustCompile(placeholderPrefix + `(\d+)` + placeholderSuffix)
)

// Placeholder returns the marker substituted for the i-th code block.
func Placeholder(i int) string {
	return placeholderPrefix + strconv.Itoa(i) + placeholderSuffix
}

// Location is one placeholder occurrence: s[Start:End] names block Index.
type Location struct {
	Start, End int
	Index      int
}

// LocatePlaceholders returns every placeholder occurrence in s, in order.
func LocatePlaceholders(s string) []Location {
	var out []Location
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(s, -1) {
		i, err := strconv.Atoi(s[m[2]:m[3]])
		if err != nil {
			continue
		}
		out = append(out, Location{Start: m[0], End: m[1], Index: i})
	}
	return out
}

// FindPlaceholders returns the block indexes of every placeholder left in s.
func FindPlaceholders(s string) []int {
	var out []int
	for _, loc := range LocatePlaceholders(s) {
		out = append(out, loc.Index)
	}
	return out
}

// Extractor implements core.CodeExtractor.
type Extractor struct {
	log zerolog.Logger
}

// New creates an Extractor that logs to log.
func New(log zerolog.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract replaces every detected code region with its placeholder.
func (e *Extractor) Extract(markup string) (string, []core.CodeBlock) {
	return e.ExtractWhere(markup, func(core.CodeBlock) bool { return true })
}

// ExtractWhere detects every code region but only substitutes placeholders
// for blocks accepted by replace. The returned blocks cover all detected
// regions; block i always pairs with Placeholder(i).
func (e *Extractor) ExtractWhere(markup string, replace func(core.CodeBlock) bool) (string, []core.CodeBlock) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.log.Warn().Err(err).Msg("parsing fragment for code blocks")
		return markup, nil
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return markup, nil
	}
	root := body.Get(0)

	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(parent *html.Node) {
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if isCode(c) {
				nodes = append(nodes, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	if len(nodes) == 0 {
		return markup, nil
	}

	// Classify everything before touching the tree: standalone detection
	// looks at siblings that may themselves be replaced.
	blocks := make([]core.CodeBlock, len(nodes))
	for i, n := range nodes {
		blocks[i] = classify(n, root)
	}
	for i, n := range nodes {
		if !replace(blocks[i]) {
			continue
		}
		n.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: Placeholder(i)}, n)
		n.Parent.RemoveChild(n)
	}

	out, err := body.Html()
	if err != nil {
		e.log.Warn().Err(err).Msg("serializing fragment after code extraction")
		return markup, nil
	}
	e.log.Debug().Int("blocks", len(blocks)).Msg("extracted code blocks")
	return out, blocks
}

func classify(n, root *html.Node) core.CodeBlock {
	plain := PlainText(n)
	standalone := isStandalone(n, root)
	return core.CodeBlock{
		RawMarkup:    outerHTML(n),
		PlainText:    plain,
		Language:     Language(n),
		IsStandalone: standalone,
		IsInline:     isInline(n, root, standalone, plain),
	}
}

func isCode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if codeTags.Match(n) {
		return true
	}
	return monospaceStyled(n)
}

// monospaceStyled is the fallback for editors that paste styled divs/spans.
func monospaceStyled(n *html.Node) bool {
	style := dom.GetAttributeOr(n, "style", "")
	if style == "" {
		return false
	}
	decls, err := media.StyleDeclarations(style)
	if err != nil {
		return false
	}
	var mono, preserve bool
	for _, d := range decls {
		switch strings.ToLower(strings.TrimSpace(d.Property)) {
		case "font-family":
			mono = monospaceFont.MatchString(d.Value)
		case "white-space":
			switch strings.ToLower(strings.TrimSpace(d.Value)) {
			case "pre", "pre-wrap", "break-spaces":
				preserve = true
			}
		}
	}
	return mono && preserve
}

func isStandalone(n, root *html.Node) bool {
	if n.Parent == root {
		return true
	}
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s != n && !isBlank(s) {
			return false
		}
	}
	return true
}

func isInline(n, root *html.Node, standalone bool, plain string) bool {
	if standalone || strings.Contains(plain, "\n") {
		return false
	}
	if dom.NodeName(n) == "code" && !hasAncestor(n, root, func(a *html.Node) bool { return a.DataAtom == atom.Pre }) {
		return true
	}
	if hasAncestor(n, root, paragraphLike.Match) {
		return true
	}
	return utf8.RuneCountInString(plain) < inlineMaxRunes
}

func hasAncestor(n, root *html.Node, match func(*html.Node) bool) bool {
	for a := n.Parent; a != nil && a != root; a = a.Parent {
		if a.Type == html.ElementNode && match(a) {
			return true
		}
	}
	return false
}

// isBlank reports whether n is absent, whitespace-only, or carries no
// visible content. A nil node counts as blank.
func isBlank(n *html.Node) bool {
	if n == nil {
		return true
	}
	switch n.Type {
	case html.TextNode:
		return strings.TrimSpace(n.Data) == ""
	case html.CommentNode:
		return true
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Img, atom.Svg, atom.Video, atom.Audio, atom.Iframe, atom.Canvas:
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !isBlank(c) {
				return false
			}
		}
		return true
	}
	return true
}

// PlainText strips tags from n, keeping the decoded text and turning
// <br>, <div> and <p> boundaries into line breaks.
func PlainText(n *html.Node) string {
	var b strings.Builder
	breakLine := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			switch c.DataAtom {
			case atom.Br:
				b.WriteByte('\n')
				return
			case atom.Div, atom.P:
				breakLine()
				for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
					walk(ch)
				}
				breakLine()
				return
			}
			for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
				walk(ch)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	text := strings.ReplaceAll(b.String(), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return strings.Trim(text, "\n")
}

var languagePrefixes = []string{"language-", "lang-", "highlight-source-", "highlight-"}

// Language returns the language hint of a code node, or "".
func Language(n *html.Node) string {
	candidates := []*html.Node{n}
	if c := firstDescendant(n, "code"); c != nil {
		candidates = append(candidates, c)
	}
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		candidates = append(candidates, n.Parent)
	}
	for _, c := range candidates {
		for _, attr := range []string{"data-language", "data-lang"} {
			if v := strings.TrimSpace(dom.GetAttributeOr(c, attr, "")); v != "" {
				return strings.ToLower(v)
			}
		}
		for _, class := range dom.GetClasses(c) {
			for _, prefix := range languagePrefixes {
				if strings.HasPrefix(class, prefix) && len(class) > len(prefix) {
					return strings.ToLower(strings.TrimPrefix(class, prefix))
				}
			}
		}
	}
	return ""
}

func firstDescendant(n *html.Node, name string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && dom.NodeName(c) == name {
			return c
		}
		if found := firstDescendant(c, name); found != nil {
			return found
		}
	}
	return nil
}

func outerHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return fmt.Sprintf("<%s>", n.Data)
	}
	return buf.String()
}
