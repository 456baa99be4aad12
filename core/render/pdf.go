package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/gaurav-prasanna/promptpipe/core"
)

var (
	imageRefRegex   = regexp.MustCompile(`!\[([^\]]*)\]\[image-(\d+)\]`)
	imageDefRegex   = regexp.MustCompile(`^\[image-\d+\]: attachment:`)
	numberedRegex   = regexp.MustCompile(`^\d+\.\s`)
	italicRegex     = regexp.MustCompile(`(?:^|\s)\*([^*]+)\*(?:\s|$)`)
	inlineCodeRegex = regexp.MustCompile("`([^`]+)`")
	linkRegex       = regexp.MustCompile(`\[([^\]]*)\]\([^)]+\)`)
)

// maxImageHeight caps embedded images, in mm.
const maxImageHeight = 120.0

// pdfImageTypes are the attachment types gofpdf can embed.
var pdfImageTypes = map[string]string{
	"image/jpeg": "JPG",
	"image/png":  "PNG",
	"image/gif":  "GIF",
}

// PDFRenderer renders a preview of a submission: the Markdown text with
// referenced images placed inline, followed by a list of attachments.
type PDFRenderer struct{}

// NewPDFRenderer creates a PDFRenderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// pdfDoc is the state of one rendering.
type pdfDoc struct {
	pdf    *gofpdf.Fpdf
	tr     func(string) string
	sub    core.NormalizedSubmission
	placed map[int]bool
}

// Render converts the submission into PDF bytes.
func (r *PDFRenderer) Render(sub core.NormalizedSubmission) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	d := &pdfDoc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), sub: sub, placed: map[int]bool{}}

	lines := strings.Split(sub.Text, "\n")
	inCodeBlock := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCodeBlock = !inCodeBlock
			pdf.Ln(2)
			continue
		}
		if inCodeBlock {
			pdf.SetFont("Courier", "", 9)
			pdf.SetFillColor(245, 245, 245)
			pdf.MultiCell(0, 4.5, d.tr(line), "", "L", true)
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			pdf.Ln(3)
		case imageDefRegex.MatchString(trimmed):
		case imageRefRegex.MatchString(line):
			d.lineWithImages(line)
		case strings.HasPrefix(line, "#"):
			level := len(line) - len(strings.TrimLeft(line, "#"))
			d.heading(strings.TrimSpace(strings.TrimLeft(line, "# ")), level)
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			d.paragraph("• " + strings.TrimSpace(trimmed[2:]))
		case numberedRegex.MatchString(trimmed):
			d.paragraph(trimmed)
		default:
			d.paragraph(line)
		}
	}

	d.attachmentList()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension returns the file extension for PDF output.
func (r *PDFRenderer) Extension() string {
	return ".pdf"
}

func (d *pdfDoc) paragraph(text string) {
	text = cleanInlineMarkdown(text)
	if text == "" {
		return
	}
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.MultiCell(0, 5, d.tr(text), "", "L", false)
}

// heading sets the font size based on heading level and writes text.
func (d *pdfDoc) heading(text string, level int) {
	sizes := map[int]float64{1: 18, 2: 15, 3: 13, 4: 12, 5: 11, 6: 10}
	size, ok := sizes[level]
	if !ok {
		size = 10
	}
	d.pdf.Ln(4)
	d.pdf.SetFont("Helvetica", "B", size)
	d.pdf.MultiCell(0, size*0.6, d.tr(cleanInlineMarkdown(text)), "", "L", false)
	d.pdf.Ln(2)
}

// lineWithImages writes the text around each reference and places the
// referenced attachment where it appears.
func (d *pdfDoc) lineWithImages(line string) {
	last := 0
	for _, m := range imageRefRegex.FindAllStringSubmatchIndex(line, -1) {
		d.paragraph(line[last:m[0]])
		idx, _ := strconv.Atoi(line[m[4]:m[5]])
		if !d.image(idx) {
			d.paragraph("[" + line[m[2]:m[3]] + "]")
		}
		last = m[1]
	}
	d.paragraph(line[last:])
}

// image embeds attachment idx. It reports false when the attachment is
// missing or cannot be embedded.
func (d *pdfDoc) image(idx int) bool {
	if idx < 0 || idx >= len(d.sub.Attachments) {
		return false
	}
	att := d.sub.Attachments[idx]
	imageType, ok := pdfImageTypes[att.MIMEType()]
	if !ok {
		return false
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(att.Bytes())); err != nil {
		return false
	}

	name := fmt.Sprintf("attachment-%d", idx)
	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(att.Bytes()))
	if info == nil || d.pdf.Err() {
		return false
	}

	pageW, _ := d.pdf.GetPageSize()
	left, _, right, _ := d.pdf.GetMargins()
	w, h := info.Width(), info.Height()
	if maxW := pageW - left - right; w > maxW {
		h, w = h*maxW/w, maxW
	}
	if h > maxImageHeight {
		w, h = w*maxImageHeight/h, maxImageHeight
	}
	d.pdf.Ln(2)
	d.pdf.ImageOptions(name, left, 0, w, h, true, opts, 0, "")
	d.pdf.Ln(2)
	d.placed[idx] = true
	return true
}

// attachmentList lists every attachment and embeds the images the text
// never referenced.
func (d *pdfDoc) attachmentList() {
	if len(d.sub.Attachments) == 0 {
		return
	}
	d.heading("Attachments", 2)
	for i, att := range d.sub.Attachments {
		d.pdf.SetFont("Helvetica", "", 9)
		d.pdf.SetTextColor(100, 100, 100)
		line := fmt.Sprintf("%d. %s (%s, %d bytes)", i, att.Name(), att.MIMEType(), att.Len())
		d.pdf.MultiCell(0, 5, d.tr(line), "", "L", false)
		d.pdf.SetTextColor(0, 0, 0)
		if !d.placed[i] && att.IsImage() {
			d.image(i)
		}
	}
}

// cleanInlineMarkdown strips inline Markdown formatting for PDF rendering.
func cleanInlineMarkdown(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	text = italicRegex.ReplaceAllString(text, " $1 ")
	text = inlineCodeRegex.ReplaceAllString(text, "$1")
	text = linkRegex.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}
