package reader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IndexVersion is bumped whenever the index schema or the tokenizer changes
// incompatibly; stale versions are silently rebuilt.
const IndexVersion = 1

// IndexFilename is the per-book index file name inside the book directory.
const IndexFilename = "semantic_index.json"

// IndexDocument is one indexed chapter: its spine position and a bag-of-words
// term frequency table. Chapters that tokenize to nothing are not stored.
type IndexDocument struct {
	ChapterIndex int            `json:"chapter_index"`
	ChapterTitle string         `json:"chapter_title"`
	ChapterHref  string         `json:"chapter_href"`
	Length       int            `json:"length"`
	TermFreq     map[string]int `json:"term_freq"`
}

// Index is the persistent per-book search index. The fingerprint fields
// (ProcessedAt, ChapterCount) tie it to one specific normalization run.
type Index struct {
	IndexVersion int             `json:"index_version"`
	BookID       string          `json:"book_id"`
	BookTitle    string          `json:"book_title"`
	ProcessedAt  string          `json:"processed_at"`
	GeneratedAt  string          `json:"generated_at"`
	ChapterCount int             `json:"chapter_count"`
	Documents    []IndexDocument `json:"documents"`
}

type cachedIndex struct {
	mtime time.Time
	index *Index
}

// Searcher builds, caches and queries per-book indexes. It is safe for
// concurrent use; the in-memory cache is keyed by index path and invalidated
// by file mtime, so external rewrites of an index file are picked up.
type Searcher struct {
	mu    sync.Mutex
	cache map[string]cachedIndex
	log   *zap.Logger
}

// NewSearcher creates a Searcher. Only the logger option applies.
func NewSearcher(opts ...Option) *Searcher {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Searcher{
		cache: make(map[string]cachedIndex),
		log:   o.log,
	}
}

// EnsureIndex returns an up-to-date index for the book, rebuilding when the
// stored one is missing, malformed, from an older schema, or does not match
// the book's current fingerprint.
func (s *Searcher) EnsureIndex(bookID string, book *Book, bookDir string) (*Index, error) {
	path := filepath.Join(bookDir, IndexFilename)

	idx := s.loadIndex(path)
	if !shouldRebuild(idx, book) {
		return idx, nil
	}

	idx = buildIndex(bookID, book)
	data, err := json.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("reader: encode index: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if fi, statErr := os.Stat(path); statErr == nil {
		s.cache[path] = cachedIndex{mtime: fi.ModTime(), index: idx}
	}
	s.mu.Unlock()

	s.log.Debug("rebuilt search index",
		zap.String("book_id", bookID),
		zap.Int("documents", len(idx.Documents)))
	return idx, nil
}

// loadIndex reads the index at path through the mtime cache. Any failure
// (missing file, bad JSON) yields nil, which callers treat as "rebuild".
func (s *Searcher) loadIndex(path string) *Index {
	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	cached, ok := s.cache[path]
	s.mu.Unlock()
	if ok && cached.mtime.Equal(fi.ModTime()) {
		return cached.index
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		s.log.Warn("malformed search index, will rebuild",
			zap.String("path", path), zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.cache[path] = cachedIndex{mtime: fi.ModTime(), index: &idx}
	s.mu.Unlock()
	return &idx
}

// shouldRebuild ties the index to one normalization run of one book.
func shouldRebuild(idx *Index, book *Book) bool {
	if idx == nil {
		return true
	}
	if idx.IndexVersion != IndexVersion {
		return true
	}
	if idx.ProcessedAt != book.ProcessedAt {
		return true
	}
	if idx.ChapterCount != len(book.Spine) {
		return true
	}
	return false
}

// buildIndex tokenizes every spine chapter. ChapterIndex records the true
// spine position even when earlier chapters were skipped for being empty.
func buildIndex(bookID string, book *Book) *Index {
	var docs []IndexDocument
	for i, ch := range book.Spine {
		tokens := Tokenize(ch.Text)
		if len(tokens) == 0 {
			continue
		}
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		docs = append(docs, IndexDocument{
			ChapterIndex: i,
			ChapterTitle: ch.Title,
			ChapterHref:  ch.Href,
			Length:       len(tokens),
			TermFreq:     tf,
		})
	}
	return &Index{
		IndexVersion: IndexVersion,
		BookID:       bookID,
		BookTitle:    book.Metadata.Title,
		ProcessedAt:  book.ProcessedAt,
		GeneratedAt:  nowISO(),
		ChapterCount: len(book.Spine),
		Documents:    docs,
	}
}
