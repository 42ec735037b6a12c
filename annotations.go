package reader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFPageInfo reads annotations and page rotation from every page of
// the PDF at path. Both maps are keyed by 0-based page index. The extraction
// walks raw page dictionaries; anything malformed is skipped, not fatal.
func extractPDFPageInfo(path string) (map[int][]PDFAnnotation, map[int]int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reader: open pdf for annotations: %w", err)
	}
	defer f.Close()

	annots := make(map[int][]PDFAnnotation)
	rotations := make(map[int]int)

	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		pageIdx := pageNum - 1
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		if rot := pageRotation(page.V); rot != 0 {
			rotations[pageIdx] = rot
		}
		list := page.V.Key("Annots")
		if list.Kind() != pdf.Array {
			continue
		}

		// Word blocks are only extracted when a highlight-like annotation
		// actually needs them.
		var blocks []PDFTextBlock
		blocksLoaded := false

		for i := 0; i < list.Len(); i++ {
			a, ok := decodeAnnotation(list.Index(i), pageIdx)
			if !ok {
				continue
			}
			if marksPageText(a.Type) {
				if !blocksLoaded {
					blocks = pageWordBlocks(r, pageIdx)
					blocksLoaded = true
				}
				// Highlights usually carry no /Contents; the words under
				// the annotation rectangle are the real payload.
				if text := textInRect(blocks, a.Rect); text != "" {
					a.Content = text
				}
			}
			annots[pageIdx] = append(annots[pageIdx], a)
		}
	}
	return annots, rotations, nil
}

// marksPageText reports whether the annotation type marks a span of existing
// page text rather than carrying its own.
func marksPageText(typ string) bool {
	switch typ {
	case "highlight", "underline", "strikeout", "squiggly":
		return true
	}
	return false
}

// textInRect joins the words whose boxes intersect rect, in reading order.
// Rect corners may come in either order and are normalized first.
func textInRect(blocks []PDFTextBlock, rect [4]float64) string {
	x0, x1 := rect[0], rect[2]
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	y0, y1 := rect[1], rect[3]
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	var words []string
	for _, b := range blocks {
		if b.X1 < x0 || b.X0 > x1 || b.Y1 < y0 || b.Y0 > y1 {
			continue
		}
		words = append(words, b.Text)
	}
	return strings.Join(words, " ")
}

// decodeAnnotation converts one raw annotation dictionary. Link and popup
// annotations carry no reader-visible content and are dropped.
func decodeAnnotation(v pdf.Value, pageIdx int) (PDFAnnotation, bool) {
	if v.Kind() != pdf.Dict {
		return PDFAnnotation{}, false
	}
	subtype := v.Key("Subtype").Name()
	if subtype == "" || subtype == "Link" || subtype == "Popup" {
		return PDFAnnotation{}, false
	}

	a := PDFAnnotation{
		Page:    pageIdx,
		Type:    annotationType(subtype),
		Content: strings.TrimSpace(v.Key("Contents").Text()),
		Color:   colorHex(v.Key("C")),
		Author:  strings.TrimSpace(v.Key("T").Text()),
		Created: strings.TrimSpace(v.Key("CreationDate").Text()),
	}
	if a.Created == "" {
		a.Created = strings.TrimSpace(v.Key("M").Text())
	}

	rect := v.Key("Rect")
	if rect.Kind() == pdf.Array && rect.Len() == 4 {
		for j := 0; j < 4; j++ {
			a.Rect[j] = numValue(rect.Index(j))
		}
	}
	return a, true
}

// annotationType maps PDF annotation subtypes onto the names the reader UI
// understands.
func annotationType(subtype string) string {
	switch subtype {
	case "Highlight":
		return "highlight"
	case "Underline":
		return "underline"
	case "StrikeOut":
		return "strikeout"
	case "Squiggly":
		return "squiggly"
	case "Text":
		return "note"
	case "FreeText":
		return "freetext"
	case "Ink":
		return "ink"
	default:
		return strings.ToLower(subtype)
	}
}

// pageRotation resolves the /Rotate attribute, walking up the page tree
// because it is inheritable.
func pageRotation(v pdf.Value) int {
	for depth := 0; depth < 16 && !v.IsNull(); depth++ {
		if r := v.Key("Rotate"); r.Kind() == pdf.Integer {
			rot := int(r.Int64()) % 360
			if rot < 0 {
				rot += 360
			}
			return rot
		}
		v = v.Key("Parent")
	}
	return 0
}

// colorHex converts a /C color array to "#rrggbb". Gray and RGB spaces are
// supported; anything else yields "".
func colorHex(v pdf.Value) string {
	if v.Kind() != pdf.Array {
		return ""
	}
	switch v.Len() {
	case 1:
		g := clamp255(numValue(v.Index(0)))
		return fmt.Sprintf("#%02x%02x%02x", g, g, g)
	case 3:
		r := clamp255(numValue(v.Index(0)))
		g := clamp255(numValue(v.Index(1)))
		b := clamp255(numValue(v.Index(2)))
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	default:
		return ""
	}
}

// numValue reads a numeric PDF value of either integer or real kind.
func numValue(v pdf.Value) float64 {
	switch v.Kind() {
	case pdf.Integer:
		return float64(v.Int64())
	case pdf.Real:
		return v.Float64()
	default:
		return 0
	}
}

func clamp255(f float64) int {
	n := int(f*255 + 0.5)
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return n
}
