package reader

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeText_ValidPassthrough(t *testing.T) {
	inputs := []string{
		"",
		"plain ascii",
		"accented: café, naïve",
		"CJK: 白鯨記",
		"emoji: \U0001F40B",
	}
	for _, in := range inputs {
		if got := SanitizeText(in); got != in {
			t.Errorf("SanitizeText(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestSanitizeText_SurrogateBytes(t *testing.T) {
	// A lone UTF-16 surrogate smuggled in as WTF-8 (0xED 0xA0 0x80 = U+D800)
	// must collapse into a single replacement character.
	in := "before\xed\xa0\x80after"
	got := SanitizeText(in)
	want := "before\uFFFDafter"
	if got != want {
		t.Errorf("SanitizeText(%q) = %q, want %q", in, got, want)
	}
}

func TestSanitizeText_InvalidBytes(t *testing.T) {
	in := "a\xffb\xfec"
	got := SanitizeText(in)
	if !utf8.ValidString(got) {
		t.Fatalf("SanitizeText output %q is not valid UTF-8", got)
	}
	if want := "a\uFFFDb\uFFFDc"; got != want {
		t.Errorf("SanitizeText(%q) = %q, want %q", in, got, want)
	}
}

func TestSanitizeText_Idempotent(t *testing.T) {
	inputs := []string{
		"clean text",
		"bro\xedken \xff text",
		"\xed\xa0\xbd\xed\xb8\x80", // surrogate pair, WTF-8 encoded
	}
	for _, in := range inputs {
		once := SanitizeText(in)
		twice := SanitizeText(once)
		if once != twice {
			t.Errorf("SanitizeText not idempotent for %q: %q != %q", in, once, twice)
		}
		if !utf8.ValidString(once) {
			t.Errorf("SanitizeText(%q) = %q is not valid UTF-8", in, once)
		}
	}
}

func TestCleanHTML_StripsDangerousContent(t *testing.T) {
	in := `<html><body>
<p onclick="evil()">Keep me</p>
<script>alert(1)</script>
<style>p{color:red}</style>
<iframe src="http://x"></iframe>
<!-- a comment -->
<div>And me</div>
</body></html>`

	got := CleanHTML(in)
	for _, banned := range []string{"<script", "<style", "<iframe", "<!--", "onclick", "alert(1)"} {
		if strings.Contains(got, banned) {
			t.Errorf("CleanHTML output still contains %q:\n%s", banned, got)
		}
	}
	for _, kept := range []string{"Keep me", "And me"} {
		if !strings.Contains(got, kept) {
			t.Errorf("CleanHTML dropped text %q:\n%s", kept, got)
		}
	}
}

func TestExtractPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "<p>hello\n\n   world</p>", "hello world"},
		{"skips script content", "<p>a</p><script>var x=1</script><p>b</p>", "a b"},
		{"markup only", "<div><span></span></div>", ""},
		{"nested elements", "<div><p>one <b>two</b></p><p>three</p></div>", "one two three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPlainText(tt.in); got != tt.want {
				t.Errorf("ExtractPlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeBook_CleansAllStrings(t *testing.T) {
	b := &Book{
		Metadata: BookMetadata{
			Title:   "bad\xff title",
			Authors: []string{"ok", "also\xfebad"},
		},
		Spine: []ChapterContent{
			{Title: "ch\xff1", Text: "text\xed\xa0\x80here", Content: "<p>ok</p>"},
		},
		TOC: []TOCEntry{
			{Title: "top\xff", Children: []TOCEntry{{Title: "nested\xff"}}},
		},
		Images: map[string]string{"key\xff": "val"},
	}
	sanitizeBook(b)

	checks := []string{
		b.Metadata.Title, b.Metadata.Authors[1],
		b.Spine[0].Title, b.Spine[0].Text,
		b.TOC[0].Title, b.TOC[0].Children[0].Title,
	}
	for i, s := range checks {
		if !utf8.ValidString(s) {
			t.Errorf("field %d not sanitized: %q", i, s)
		}
	}
	for k := range b.Images {
		if !utf8.ValidString(k) {
			t.Errorf("image key not sanitized: %q", k)
		}
	}
}
