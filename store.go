package reader

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File names inside a book directory.
const (
	bookFilename = "book.gob"
	metaFilename = "book_meta.json"
)

// BookMeta is the small JSON sidecar written next to the Book blob, allowing
// cheap library listings without deserializing the full Book.
type BookMeta struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Chapters    int      `json:"chapters"`
	AddedAt     string   `json:"added_at"`
	ProcessedAt string   `json:"processed_at"`
	CoverImage  string   `json:"cover_image,omitempty"`
	IsPDF       bool     `json:"is_pdf"`
	Language    string   `json:"language"`
	SourceFile  string   `json:"source_file"`
}

// saveBook writes the Book blob and its metadata sidecar into dir. It is
// called with a scratch directory; atomicity comes from the directory swap.
func saveBook(dir string, b *Book) error {
	f, err := os.Create(filepath.Join(dir, bookFilename))
	if err != nil {
		return fmt.Errorf("reader: create book blob: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(b); err != nil {
		return fmt.Errorf("reader: encode book: %w", err)
	}

	meta := BookMeta{
		Title:       b.Metadata.Title,
		Authors:     b.Metadata.Authors,
		Chapters:    len(b.Spine),
		AddedAt:     b.AddedAt,
		ProcessedAt: b.ProcessedAt,
		CoverImage:  b.CoverImage,
		IsPDF:       b.IsPDF,
		Language:    b.Metadata.Language,
		SourceFile:  b.SourceFile,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("reader: encode book meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFilename), data, 0o644); err != nil {
		return fmt.Errorf("reader: write book meta: %w", err)
	}
	return nil
}

// LoadBook reads the persisted Book from a book directory.
func LoadBook(dir string) (*Book, error) {
	f, err := os.Open(filepath.Join(dir, bookFilename))
	if err != nil {
		return nil, fmt.Errorf("reader: open book blob: %w", err)
	}
	defer f.Close()

	var b Book
	if err := gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("reader: decode book: %w", err)
	}
	if major(b.Version) != major(SchemaVersion) {
		return nil, fmt.Errorf("reader: unsupported book schema version %q", b.Version)
	}
	return &b, nil
}

// LoadBookMeta reads only the JSON sidecar from a book directory.
func LoadBookMeta(dir string) (*BookMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFilename))
	if err != nil {
		return nil, fmt.Errorf("reader: read book meta: %w", err)
	}
	var meta BookMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("reader: parse book meta: %w", err)
	}
	return &meta, nil
}

// major returns the major component of a "3.0"-style version string.
func major(v string) string {
	if idx := strings.IndexByte(v, '.'); idx >= 0 {
		return v[:idx]
	}
	return v
}
