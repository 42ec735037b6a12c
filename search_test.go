package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// searchFixture wires two in-memory books to a Searcher through a temp
// library directory.
func searchFixture(t *testing.T) (s *Searcher, booksDir string, load LoadBookFunc) {
	t.Helper()
	booksDir = t.TempDir()
	books := map[string]*Book{
		"moby": searchTestBook("Moby Dick", "2024-01-01T00:00:00Z",
			"Call me Ishmael. Some years ago I went to sea to see the watery part of the world.",
			"The whale, the whale! The white whale breached again and the whale dove deep.",
			"We talked of harpoons and of the whale once more.",
		),
		"emma": searchTestBook("Emma", "2024-01-02T00:00:00Z",
			"Emma Woodhouse, handsome, clever, and rich, had lived nearly twenty-one years in the world.",
			"The dinner party was a great success and everyone danced.",
		),
	}
	for id := range books {
		if err := os.MkdirAll(filepath.Join(booksDir, id), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	load = func(bookID string) (*Book, error) {
		return books[bookID], nil
	}
	return NewSearcher(), booksDir, load
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, dir, load := searchFixture(t)
	for _, q := range []string{"", "the and of", "a I", "?!"} {
		results, err := s.Search(q, []string{"moby", "emma"}, dir, load, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(results) != 0 {
			t.Errorf("Search(%q) = %d results, want 0", q, len(results))
		}
	}
}

func TestSearch_RanksDenserChapterHigher(t *testing.T) {
	s, dir, load := searchFixture(t)
	results, err := s.Search("whale", []string{"moby", "emma"}, dir, load, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (both whale chapters)", len(results))
	}
	// Chapter 1 mentions the whale four times, chapter 2 once.
	if results[0].ChapterIndex != 1 {
		t.Errorf("top result chapter = %d, want 1", results[0].ChapterIndex)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %f <= %f", results[0].Score, results[1].Score)
	}
	for _, r := range results {
		if r.BookID != "moby" {
			t.Errorf("unexpected book %q in results", r.BookID)
		}
		if r.Score <= 0 {
			t.Errorf("zero or negative score %f survived filtering", r.Score)
		}
	}
}

func TestSearch_ExcludesNonMatching(t *testing.T) {
	s, dir, load := searchFixture(t)
	results, err := s.Search("harpoons", []string{"moby", "emma"}, dir, load, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ChapterIndex != 2 || results[0].BookID != "moby" {
		t.Errorf("result = %s/%d, want moby/2", results[0].BookID, results[0].ChapterIndex)
	}
}

func TestSearch_ContextContainsMatch(t *testing.T) {
	s, dir, load := searchFixture(t)
	results, err := s.Search("Ishmael", []string{"moby"}, dir, load, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if !strings.Contains(strings.ToLower(r.Context), "ishmael") {
		t.Errorf("context %q does not contain the match", r.Context)
	}
	if r.MatchLength != len("ishmael") {
		t.Errorf("MatchLength = %d, want %d", r.MatchLength, len("ishmael"))
	}
	if r.Position < 0 {
		t.Errorf("Position = %d, want >= 0", r.Position)
	}
}

func TestSearch_LimitApplies(t *testing.T) {
	s, dir, load := searchFixture(t)
	results, err := s.Search("world", []string{"moby", "emma"}, dir, load, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want limit of 1", len(results))
	}
}

func TestSearch_SkipsMissingBooks(t *testing.T) {
	s, dir, load := searchFixture(t)
	results, err := s.Search("whale", []string{"ghost", "moby"}, dir, load, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Error("expected results from the loadable book")
	}
	for _, r := range results {
		if r.BookID == "ghost" {
			t.Error("result attributed to a book that never loaded")
		}
	}
}

func TestBuildContext_Window(t *testing.T) {
	// 300 words of filler with a marker in the middle.
	var sb strings.Builder
	for i := 0; i < 150; i++ {
		sb.WriteString("filler ")
	}
	sb.WriteString("NEEDLE ")
	for i := 0; i < 150; i++ {
		sb.WriteString("filler ")
	}
	text := sb.String()
	pos := strings.Index(text, "NEEDLE")

	ctx := buildContext(text, pos, len("NEEDLE"))
	if !strings.Contains(ctx, "NEEDLE") {
		t.Fatalf("context %q lost the match", ctx)
	}
	if !strings.HasPrefix(ctx, "...") || !strings.HasSuffix(ctx, "...") {
		t.Errorf("mid-text context missing ellipses: %q", ctx)
	}
	if len(ctx) > 250 {
		t.Errorf("context length %d exceeds window", len(ctx))
	}
}

func TestBuildContext_StartOfText(t *testing.T) {
	text := "short text with a match early on and then nothing else interesting"
	ctx := buildContext(text, 0, 5)
	if strings.HasPrefix(ctx, "...") {
		t.Errorf("context at text start must not lead with ellipsis: %q", ctx)
	}
	if !strings.Contains(ctx, "short") {
		t.Errorf("context %q lost the match", ctx)
	}
}

func TestBuildContext_EmptyText(t *testing.T) {
	if got := buildContext("", 0, 0); got != "" {
		t.Errorf("buildContext on empty text = %q, want empty", got)
	}
}

func TestFindMatch_EarliestWins(t *testing.T) {
	text := "bravo alpha charlie"
	pos, length := findMatch(text, []string{"charlie", "alpha"})
	if pos != 6 || length != len("alpha") {
		t.Errorf("findMatch = (%d, %d), want (6, %d)", pos, length, len("alpha"))
	}
	pos, _ = findMatch(text, []string{"zulu"})
	if pos != -1 {
		t.Errorf("findMatch miss = %d, want -1", pos)
	}
}

func TestRoundTo(t *testing.T) {
	if got := roundTo(1.23456789, 6); got != 1.234568 {
		t.Errorf("roundTo = %v, want 1.234568", got)
	}
	if got := roundTo(2.0, 1); got != 2.0 {
		t.Errorf("roundTo = %v, want 2.0", got)
	}
}
