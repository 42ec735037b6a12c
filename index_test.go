package reader

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// searchTestBook builds a minimal Book whose spine carries the given chapter
// texts.
func searchTestBook(title, processedAt string, texts ...string) *Book {
	b := &Book{
		Metadata:    BookMetadata{Title: title, Language: "en"},
		ProcessedAt: processedAt,
		AddedAt:     processedAt,
		Version:     SchemaVersion,
	}
	for i, text := range texts {
		b.Spine = append(b.Spine, ChapterContent{
			ID:    pageToken(i),
			Href:  pageToken(i),
			Title: "Chapter " + pageToken(i),
			Text:  text,
			Order: i,
		})
	}
	return b
}

func TestBuildIndex_SkipsEmptyChapters(t *testing.T) {
	book := searchTestBook("T", "2024-01-01T00:00:00Z",
		"the whale swims", // tokens
		"",                // empty
		"!!! 42 a",        // tokenizes to nothing
		"captain ahab stands on deck",
	)
	idx := buildIndex("b1", book)

	if idx.ChapterCount != 4 {
		t.Errorf("ChapterCount = %d, want 4", idx.ChapterCount)
	}
	if len(idx.Documents) != 2 {
		t.Fatalf("Documents = %d, want 2", len(idx.Documents))
	}
	// Chapter indexes must be real spine positions, not compacted.
	if idx.Documents[0].ChapterIndex != 0 {
		t.Errorf("Documents[0].ChapterIndex = %d, want 0", idx.Documents[0].ChapterIndex)
	}
	if idx.Documents[1].ChapterIndex != 3 {
		t.Errorf("Documents[1].ChapterIndex = %d, want 3", idx.Documents[1].ChapterIndex)
	}
	if idx.Documents[0].TermFreq["whale"] != 1 {
		t.Errorf("TermFreq[whale] = %d, want 1", idx.Documents[0].TermFreq["whale"])
	}
	if got := idx.Documents[0].Length; got != 2 {
		t.Errorf("Documents[0].Length = %d, want 2 (whale, swim)", got)
	}
}

func TestEnsureIndex_WritesAndReuses(t *testing.T) {
	dir := t.TempDir()
	book := searchTestBook("T", "2024-01-01T00:00:00Z", "the whale swims")
	s := NewSearcher()

	idx, err := s.EnsureIndex("b1", book, dir)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if idx.IndexVersion != IndexVersion {
		t.Errorf("IndexVersion = %d, want %d", idx.IndexVersion, IndexVersion)
	}

	path := filepath.Join(dir, IndexFilename)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index file not written: %v", err)
	}

	// Same fingerprint: the generated_at stamp must survive, proving no
	// rebuild happened.
	again, err := s.EnsureIndex("b1", book, dir)
	if err != nil {
		t.Fatalf("EnsureIndex (second): %v", err)
	}
	if again.GeneratedAt != idx.GeneratedAt {
		t.Error("index was rebuilt despite unchanged fingerprint")
	}
}

func TestEnsureIndex_RebuildTriggers(t *testing.T) {
	dir := t.TempDir()
	book := searchTestBook("T", "2024-01-01T00:00:00Z", "the whale swims")
	s := NewSearcher()

	if _, err := s.EnsureIndex("b1", book, dir); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	// Reprocessing the book changes processed_at and must invalidate.
	book.ProcessedAt = "2024-02-02T00:00:00Z"
	book.Spine[0].Text = "the carpenter hammers"
	idx, err := s.EnsureIndex("b1", book, dir)
	if err != nil {
		t.Fatalf("EnsureIndex after reprocess: %v", err)
	}
	if idx.ProcessedAt != book.ProcessedAt {
		t.Errorf("ProcessedAt = %q, want %q", idx.ProcessedAt, book.ProcessedAt)
	}
	if _, ok := idx.Documents[0].TermFreq["carpenter"]; !ok {
		t.Error("rebuilt index missing new term")
	}
	if _, ok := idx.Documents[0].TermFreq["whale"]; ok {
		t.Error("rebuilt index still carries stale term")
	}
}

func TestEnsureIndex_MalformedIndexRebuilds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFilename)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	book := searchTestBook("T", "2024-01-01T00:00:00Z", "the whale swims")
	s := NewSearcher()
	idx, err := s.EnsureIndex("b1", book, dir)
	if err != nil {
		t.Fatalf("EnsureIndex over malformed file: %v", err)
	}
	if len(idx.Documents) != 1 {
		t.Fatalf("Documents = %d, want 1", len(idx.Documents))
	}

	// The rewritten file must now be valid JSON.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var reloaded Index
	if err := json.Unmarshal(data, &reloaded); err != nil {
		t.Fatalf("rewritten index is not valid JSON: %v", err)
	}
	if reloaded.IndexVersion != IndexVersion {
		t.Errorf("reloaded IndexVersion = %d, want %d", reloaded.IndexVersion, IndexVersion)
	}
}

func TestEnsureIndex_VersionMismatchRebuilds(t *testing.T) {
	dir := t.TempDir()
	book := searchTestBook("T", "2024-01-01T00:00:00Z", "the whale swims")
	s := NewSearcher()
	if _, err := s.EnsureIndex("b1", book, dir); err != nil {
		t.Fatal(err)
	}

	// Rewrite the stored index with a stale schema version.
	path := filepath.Join(dir, IndexFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var stored Index
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatal(err)
	}
	stored.IndexVersion = IndexVersion - 1
	stale, _ := json.Marshal(stored)
	if err := os.WriteFile(path, stale, 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := NewSearcher()
	idx, err := fresh.EnsureIndex("b1", book, dir)
	if err != nil {
		t.Fatal(err)
	}
	if idx.IndexVersion != IndexVersion {
		t.Errorf("IndexVersion = %d, want rebuilt to %d", idx.IndexVersion, IndexVersion)
	}
}
