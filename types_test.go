package reader

import "testing"

func TestChapterIndexFor(t *testing.T) {
	b := &Book{
		Spine: []ChapterContent{
			{Href: "OEBPS/text/chapter1.xhtml", Order: 0},
			{Href: "OEBPS/text/chapter2.xhtml", Order: 1},
			{Href: "OEBPS/notes.xhtml", Order: 2},
		},
	}

	tests := []struct {
		name string
		href string
		want int
	}{
		{"exact match", "OEBPS/text/chapter2.xhtml", 1},
		{"basename fallback", "content/chapter1.xhtml", 0},
		{"bare basename", "notes.xhtml", 2},
		{"no match", "OEBPS/text/chapter9.xhtml", -1},
		{"empty href", "", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.ChapterIndexFor(tt.href); got != tt.want {
				t.Errorf("ChapterIndexFor(%q) = %d, want %d", tt.href, got, tt.want)
			}
		})
	}
}

func TestChapterIndexFor_ExactBeatsBasename(t *testing.T) {
	// Two files share a basename; an exact href must never fall through to
	// the other one.
	b := &Book{
		Spine: []ChapterContent{
			{Href: "a/intro.xhtml", Order: 0},
			{Href: "b/intro.xhtml", Order: 1},
		},
	}
	if got := b.ChapterIndexFor("b/intro.xhtml"); got != 1 {
		t.Errorf("ChapterIndexFor = %d, want exact match 1", got)
	}
}

func TestPDFStats(t *testing.T) {
	b := &Book{
		IsPDF:                  true,
		PDFTotalPages:          3,
		PDFHasTOC:              true,
		PDFThumbnailsGenerated: true,
		PDFPageData: map[int]PDFPageData{
			0: {PageNum: 0, WordCount: 300, HasImages: true},
			1: {PageNum: 1, WordCount: 150, Annotations: []PDFAnnotation{
				{Page: 1, Type: "highlight"}, {Page: 1, Type: "note"},
			}},
			2: {PageNum: 2, Failed: true, Error: "render panic"},
		},
	}
	s := b.PDFStats()

	if s.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", s.TotalPages)
	}
	if s.TotalWords != 450 {
		t.Errorf("TotalWords = %d, want 450", s.TotalWords)
	}
	if s.TotalAnnotations != 2 || s.PagesWithAnnotations != 1 {
		t.Errorf("annotations = %d on %d pages, want 2 on 1", s.TotalAnnotations, s.PagesWithAnnotations)
	}
	if s.PagesWithImages != 1 {
		t.Errorf("PagesWithImages = %d, want 1", s.PagesWithImages)
	}
	if !s.HasNativeTOC || !s.HasThumbnails {
		t.Error("TOC/thumbnail flags lost")
	}
	if s.EstimatedReadingMins != 2.0 {
		t.Errorf("EstimatedReadingMins = %v, want 2.0", s.EstimatedReadingMins)
	}
}

func TestPDFStats_NonPDF(t *testing.T) {
	b := &Book{IsPDF: false}
	if s := b.PDFStats(); s != (PDFStats{}) {
		t.Errorf("PDFStats on ePub = %+v, want zero value", s)
	}
}
