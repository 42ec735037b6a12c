package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// PDFPositionMatch is one search hit on a PDF page with its bounding box in
// PDF user space (origin bottom-left, points). MatchType is "exact" when the
// whole query appears inside the matched word, "partial" when only some
// query words do, and "text_only" when the hit comes from stored plain text
// and no position is available (Rect is all zeros).
type PDFPositionMatch struct {
	Page      int        `json:"page"`
	Text      string     `json:"text"`
	Rect      [4]float64 `json:"rect"`
	MatchType string     `json:"match_type"`
}

// PDFTextBlocksForPage extracts positioned words from one page (0-based) of
// the book's retained source PDF. Blocks are re-extracted on every call and
// never cached or persisted; the retained source is the single source of
// truth for positions.
func PDFTextBlocksForPage(bookDir string, book *Book, pageNum int) ([]PDFTextBlock, error) {
	if !book.IsPDF || book.PDFSourcePath == "" {
		return nil, ErrNotPDF
	}
	src := filepath.Join(bookDir, book.PDFSourcePath)
	if _, err := os.Stat(src); err != nil {
		return nil, ErrNoSourcePDF
	}

	f, r, err := pdf.Open(src)
	if err != nil {
		return nil, fmt.Errorf("reader: open retained pdf: %w", err)
	}
	defer f.Close()

	if pageNum < 0 || pageNum >= r.NumPage() {
		return nil, nil
	}
	return pageWordBlocks(r, pageNum), nil
}

// SearchPDFPositions finds query occurrences with bounding boxes for
// highlight rendering. pageNum restricts the search to one 0-based page;
// pass -1 to search the whole book. When the retained source PDF is missing
// or unreadable the search degrades to stored plain text with zeroed
// rectangles instead of failing.
func SearchPDFPositions(bookDir string, book *Book, query string, pageNum int) ([]PDFPositionMatch, error) {
	if !book.IsPDF {
		return nil, ErrNotPDF
	}

	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)
	if queryLower == "" {
		return nil, nil
	}

	var pages []int
	if pageNum >= 0 {
		pages = []int{pageNum}
	} else {
		for i := 0; i < book.PDFTotalPages; i++ {
			pages = append(pages, i)
		}
	}

	src := filepath.Join(bookDir, book.PDFSourcePath)
	if book.PDFSourcePath == "" {
		return searchStoredText(book, queryLower, pages), nil
	}
	if _, err := os.Stat(src); err != nil {
		return searchStoredText(book, queryLower, pages), nil
	}

	f, r, err := pdf.Open(src)
	if err != nil {
		// A corrupt retained copy degrades the same way a missing one does.
		return searchStoredText(book, queryLower, pages), nil
	}
	defer f.Close()

	var results []PDFPositionMatch
	for _, idx := range pages {
		if idx < 0 || idx >= r.NumPage() {
			continue
		}
		for _, block := range pageWordBlocks(r, idx) {
			blockLower := strings.ToLower(block.Text)
			switch {
			case strings.Contains(blockLower, queryLower):
				results = append(results, PDFPositionMatch{
					Page:      idx,
					Text:      block.Text,
					Rect:      [4]float64{block.X0, block.Y0, block.X1, block.Y1},
					MatchType: "exact",
				})
			case containsAny(blockLower, queryWords):
				results = append(results, PDFPositionMatch{
					Page:      idx,
					Text:      block.Text,
					Rect:      [4]float64{block.X0, block.Y0, block.X1, block.Y1},
					MatchType: "partial",
				})
			}
		}
	}
	return results, nil
}

// searchStoredText is the degraded search over stored chapter text. One
// match per page at most, with no positioning.
func searchStoredText(book *Book, queryLower string, pages []int) []PDFPositionMatch {
	var results []PDFPositionMatch
	for _, idx := range pages {
		if idx < 0 || idx >= len(book.Spine) {
			continue
		}
		if strings.Contains(strings.ToLower(book.Spine[idx].Text), queryLower) {
			results = append(results, PDFPositionMatch{
				Page:      idx,
				Text:      queryLower,
				MatchType: "text_only",
			})
		}
	}
	return results
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// pageWordBlocks reconstructs words from the page's positioned glyph runs.
// Runs are sorted top-to-bottom then left-to-right; a new word starts on a
// line change, on whitespace, or on a horizontal gap wider than a third of
// the current font size.
func pageWordBlocks(r *pdf.Reader, pageIdx int) []PDFTextBlock {
	page := r.Page(pageIdx + 1)
	if page.V.IsNull() {
		return nil
	}
	texts := page.Content().Text
	if len(texts) == 0 {
		return nil
	}

	sort.SliceStable(texts, func(i, j int) bool {
		if texts[i].Y != texts[j].Y {
			return texts[i].Y > texts[j].Y
		}
		return texts[i].X < texts[j].X
	})

	var blocks []PDFTextBlock
	var cur strings.Builder
	var x0, y0, x1, y1 float64
	lineNo, wordNo := 0, 0
	lineY := texts[0].Y
	prevEnd := 0.0

	flush := func() {
		word := strings.TrimSpace(cur.String())
		cur.Reset()
		if word == "" {
			return
		}
		blocks = append(blocks, PDFTextBlock{
			Text:    word,
			X0:      x0,
			Y0:      y0,
			X1:      x1,
			Y1:      y1,
			LineNo:  lineNo,
			WordNo:  wordNo,
			BlockNo: 0,
		})
		wordNo++
	}

	for _, t := range texts {
		newLine := t.Y != lineY
		gap := t.X - prevEnd
		if newLine || isSpaceRun(t.S) || (cur.Len() > 0 && gap > t.FontSize/3) {
			flush()
			if newLine {
				lineNo++
				wordNo = 0
				lineY = t.Y
			}
		}
		if isSpaceRun(t.S) {
			prevEnd = t.X + t.W
			continue
		}
		if cur.Len() == 0 {
			x0, y0 = t.X, t.Y
			y1 = t.Y + t.FontSize
		}
		if t.Y+t.FontSize > y1 {
			y1 = t.Y + t.FontSize
		}
		cur.WriteString(t.S)
		x1 = t.X + t.W
		prevEnd = x1
	}
	flush()
	return blocks
}

func isSpaceRun(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
