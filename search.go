package reader

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// defaultSearchLimit caps result counts when the caller passes limit <= 0.
const defaultSearchLimit = 100

// SearchResult is one ranked chapter hit.
type SearchResult struct {
	BookID       string  `json:"book_id"`
	BookTitle    string  `json:"book_title"`
	ChapterIndex int     `json:"chapter_index"`
	ChapterHref  string  `json:"chapter_href"`
	ChapterTitle string  `json:"chapter_title"`
	Context      string  `json:"context"`
	Position     int     `json:"position"`
	MatchLength  int     `json:"match_length"`
	Score        float64 `json:"score"`
}

// LoadBookFunc resolves a book ID to its Book. A nil Book (or an error)
// quietly drops the book from the search.
type LoadBookFunc func(bookID string) (*Book, error)

// Search runs a BM25-ranked query across the given books. Each book's index
// is (re)built on demand under booksDir/<bookID>/. Results are ordered by
// descending score; chapters that match no query term are excluded entirely.
//
// Document statistics are pooled across all searched books: a chapter's
// length is normalized against the average chapter length of the whole
// search set, not its own book.
func (s *Searcher) Search(query string, bookIDs []string, booksDir string, load LoadBookFunc, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	// Raw tokens keep their suffixes and are preferred when locating the
	// match inside chapter text; stemmed terms drive the ranking.
	var rawTokens []string
	for _, t := range tokenRE.FindAllString(query, -1) {
		t = strings.ToLower(t)
		if len(t) < 2 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		rawTokens = append(rawTokens, t)
	}
	var queryTerms []string
	for _, t := range rawTokens {
		term := normalizeToken(t)
		if term == "" {
			continue
		}
		if _, stop := stopwords[term]; stop {
			continue
		}
		queryTerms = append(queryTerms, term)
	}
	if len(queryTerms) == 0 {
		return nil, nil
	}

	type candidate struct {
		bookID string
		book   *Book
		doc    *IndexDocument
	}
	var docs []candidate
	totalLen := 0

	for _, bookID := range bookIDs {
		book, err := load(bookID)
		if err != nil || book == nil {
			if err != nil {
				s.log.Warn("skipping unloadable book",
					zap.String("book_id", bookID), zap.Error(err))
			}
			continue
		}
		idx, err := s.EnsureIndex(bookID, book, filepath.Join(booksDir, bookID))
		if err != nil {
			s.log.Warn("skipping unindexable book",
				zap.String("book_id", bookID), zap.Error(err))
			continue
		}
		for i := range idx.Documents {
			doc := &idx.Documents[i]
			if doc.Length <= 0 {
				continue
			}
			docs = append(docs, candidate{bookID: bookID, book: book, doc: doc})
			totalLen += doc.Length
		}
	}
	if len(docs) == 0 {
		return nil, nil
	}

	totalDocs := len(docs)
	avgDocLen := float64(totalLen) / float64(totalDocs)

	// Document frequency per distinct query term.
	df := make(map[string]int, len(queryTerms))
	for _, term := range queryTerms {
		df[term] = 0
	}
	for _, c := range docs {
		for term := range df {
			if _, ok := c.doc.TermFreq[term]; ok {
				df[term]++
			}
		}
	}

	type scored struct {
		score float64
		candidate
	}
	var hits []scored
	for _, c := range docs {
		docLen := float64(c.doc.Length)
		score := 0.0
		for term, docFreq := range df {
			tf := float64(c.doc.TermFreq[term])
			if tf <= 0 {
				continue
			}
			idf := math.Log(1 + (float64(totalDocs)-float64(docFreq)+0.5)/(float64(docFreq)+0.5))
			denom := tf + bm25K1*(1-bm25B+bm25B*docLen/avgDocLen)
			score += idf * (tf * (bm25K1 + 1) / denom)
		}
		if score > 0 {
			hits = append(hits, scored{score: score, candidate: c})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		var text string
		if h.doc.ChapterIndex >= 0 && h.doc.ChapterIndex < len(h.book.Spine) {
			text = h.book.Spine[h.doc.ChapterIndex].Text
		}
		textLower := strings.ToLower(text)
		pos, length := findMatch(textLower, rawTokens)
		if pos == -1 {
			pos, length = findMatch(textLower, queryTerms)
		}
		if pos == -1 {
			pos, length = 0, 0
		}

		results = append(results, SearchResult{
			BookID:       h.bookID,
			BookTitle:    h.book.Metadata.Title,
			ChapterIndex: h.doc.ChapterIndex,
			ChapterHref:  h.doc.ChapterHref,
			ChapterTitle: h.doc.ChapterTitle,
			Context:      buildContext(text, pos, length),
			Position:     pos,
			MatchLength:  length,
			Score:        roundTo(h.score, 6),
		})
	}
	return results, nil
}

// findMatch returns the earliest occurrence of any term in textLower as a
// rune offset, with the matched term's length. (-1, 0) when nothing matches.
func findMatch(textLower string, terms []string) (pos, length int) {
	pos, length = -1, 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		bytePos := strings.Index(textLower, term)
		if bytePos == -1 {
			continue
		}
		runePos := len([]rune(textLower[:bytePos]))
		if pos == -1 || runePos < pos {
			pos = runePos
			length = len(term)
		}
	}
	return pos, length
}

// buildContext cuts a window of up to 100 runes either side of the match,
// trims ragged word fragments at the cut points, and marks truncation with
// ellipses.
func buildContext(text string, matchPos, matchLen int) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)

	start := matchPos - 100
	if start < 0 {
		start = 0
	}
	end := matchPos + matchLen + 100
	if end > len(runes) {
		end = len(runes)
	}
	context := runes[start:end]

	if start > 0 {
		if idx := runeIndex(context, ' '); idx > 0 && idx < 30 {
			context = context[idx+1:]
		}
		context = append([]rune("..."), context...)
	}
	if end < len(runes) {
		if idx := runeLastIndex(context, ' '); idx >= 0 && idx > len(context)-30 {
			context = context[:idx]
		}
		context = append(context, []rune("...")...)
	}
	return strings.TrimSpace(string(context))
}

func runeIndex(rs []rune, r rune) int {
	for i, c := range rs {
		if c == r {
			return i
		}
	}
	return -1
}

func runeLastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
