// Package render builds the downloadable PDF report. The writer emits a
// minimal single-font PDF 1.4 document directly, which keeps the artifact
// deterministic for a given report.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"strategiq-backend/internal/report"
)

const (
	pageWidth  = 612.0 // US Letter, points
	pageHeight = 792.0
	marginX    = 56.0
	marginTop  = 64.0

	titleSize   = 20.0
	headingSize = 13.0
	bodySize    = 10.0
	lineHeight  = 14.0

	// Helvetica at size 1 averages roughly 0.5pt per glyph; good enough
	// for wrapping prose.
	avgGlyphWidth = 0.5
)

var categoryTitles = map[report.Category]string{
	report.Strength:    "Strengths",
	report.Weakness:    "Weaknesses",
	report.Opportunity: "Opportunities",
	report.Threat:      "Threats",
}

// PDFRenderer renders finalized reports into PDF bytes.
type PDFRenderer struct {
	now func() time.Time
}

// NewPDFRenderer constructs a renderer using wall-clock time for the
// generated-at footer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{now: time.Now}
}

// Render produces the PDF artifact for a report.
func (r *PDFRenderer) Render(rep *report.Report) ([]byte, error) {
	if err := report.Validate(rep); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	pages := r.layout(rep)
	return assemble(pages), nil
}

// line is one positioned text run on a page.
type line struct {
	size float64
	bold bool
	text string
	y    float64
}

// layout flows the report into pages of positioned lines.
func (r *PDFRenderer) layout(rep *report.Report) [][]line {
	var pages [][]line
	var page []line
	y := pageHeight - marginTop

	emit := func(size float64, bold bool, text string, gap float64) {
		if y-gap < marginTop {
			pages = append(pages, page)
			page = nil
			y = pageHeight - marginTop
		}
		y -= gap
		page = append(page, line{size: size, bold: bold, text: text, y: y})
	}

	wrapWidth := int((pageWidth - 2*marginX) / (bodySize * avgGlyphWidth))

	emit(titleSize, true, "SWOT Analysis", titleSize+4)
	emit(headingSize, false, rep.PrimaryEntity, headingSize+6)
	if len(rep.ComparisonEntities) > 0 {
		emit(bodySize, false, "Compared against: "+strings.Join(rep.ComparisonEntities, ", "), lineHeight)
	}
	emit(bodySize, false, "Generated "+r.now().UTC().Format("2006-01-02 15:04 UTC"), lineHeight)

	for _, cat := range report.Categories {
		items := rep.Entries[cat]
		emit(headingSize, true, fmt.Sprintf("%s (%d)", categoryTitles[cat], len(items)), headingSize+14)
		if len(items) == 0 {
			emit(bodySize, false, "No points identified.", lineHeight)
			continue
		}
		for _, item := range items {
			for i, wrapped := range wrapText(item, wrapWidth-2) {
				prefix := "  "
				if i == 0 {
					prefix = "- "
				}
				emit(bodySize, false, prefix+wrapped, lineHeight)
			}
		}
	}

	if rep.Summary != "" {
		emit(headingSize, true, "Summary", headingSize+14)
		for _, wrapped := range wrapText(rep.Summary, wrapWidth) {
			emit(bodySize, false, wrapped, lineHeight)
		}
	}

	if len(page) > 0 {
		pages = append(pages, page)
	}
	return pages
}

// wrapText greedily wraps words into lines of at most width glyphs.
func wrapText(text string, width int) []string {
	if width < 10 {
		width = 10
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
			continue
		}
		current += " " + word
	}
	return append(lines, current)
}

// assemble serializes pages into a PDF file with a cross-reference table.
func assemble(pages [][]line) []byte {
	type object struct {
		id   int
		body string
	}

	// Object ids: 1 catalog, 2 page tree, 3 regular font, 4 bold font,
	// then page/content pairs.
	const (
		catalogID  = 1
		pagesID    = 2
		fontID     = 3
		boldFontID = 4
		firstPage  = 5
	)

	var objects []object
	var kids []string

	for i, page := range pages {
		pageID := firstPage + i*2
		contentID := pageID + 1
		kids = append(kids, fmt.Sprintf("%d 0 R", pageID))

		objects = append(objects, object{
			id: pageID,
			body: fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] "+
				"/Resources << /Font << /F1 %d 0 R /F2 %d 0 R >> >> /Contents %d 0 R >>",
				pagesID, pageWidth, pageHeight, fontID, boldFontID, contentID),
		})

		var stream bytes.Buffer
		stream.WriteString("BT\n")
		for _, ln := range page {
			font := "F1"
			if ln.bold {
				font = "F2"
			}
			fmt.Fprintf(&stream, "/%s %g Tf\n1 0 0 1 %g %g Tm\n(%s) Tj\n",
				font, ln.size, marginX, ln.y, escapeText(ln.text))
		}
		stream.WriteString("ET\n")

		objects = append(objects, object{
			id:   contentID,
			body: fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", stream.Len(), stream.String()),
		})
	}

	head := []object{
		{catalogID, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesID)},
		{pagesID, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))},
		{fontID, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"},
		{boldFontID, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold >>"},
	}
	objects = append(head, objects...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make(map[int]int, len(objects))
	for _, obj := range objects {
		offsets[obj.id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", obj.id, obj.body)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for id := 1; id <= len(objects); id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, catalogID, xrefStart)
	return buf.Bytes()
}

// escapeText escapes PDF string delimiters and strips glyphs outside the
// WinAnsi range Helvetica can show.
func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			if r >= 32 && r < 127 {
				b.WriteRune(r)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return b.String()
}
