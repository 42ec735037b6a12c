package reader

// SchemaVersion is the Book schema version written into every persisted Book.
const SchemaVersion = "3.0"

// BookMetadata holds the bibliographic metadata extracted from the source file.
// Title and Language always carry a value; the normalizers default them to
// "Untitled" and "en" when the source omits them.
type BookMetadata struct {
	Title       string
	Language    string
	Authors     []string
	Description string
	Publisher   string
	Date        string
	Identifiers []string
	Subjects    []string
}

// ChapterContent represents one physical content unit in reading order:
// a spine document for EPUB, a page for PDF. A single file may back several
// logical TOC entries.
type ChapterContent struct {
	// ID is the source-internal identifier (manifest item ID, or "page_N").
	ID string

	// Href is the join key a TOCEntry's FileHref must match. For EPUB this is
	// the ZIP-internal document path kept verbatim; for PDF a synthetic
	// "page_N" token. No prefix stripping is performed so that consumers can
	// still fall back to basename matching.
	Href string

	// Title is a best-guess display title; real titles come from the TOC.
	Title string

	// Content is the sanitized HTML fragment served to readers. For PDF it is
	// a minimal wrapper around the rendered page image.
	Content string

	// Text is the plain text used for search and copy. Never derived from the
	// rendered image.
	Text string

	// Order is the 0-based position in the spine.
	// Invariant: book.Spine[i].Order == i.
	Order int
}

// TOCEntry is a node in the navigation tree. The tree is independent of spine
// ordering and references spine entries through FileHref.
type TOCEntry struct {
	Title string

	// Href is the original reference, possibly with a "#anchor" suffix.
	Href string

	// FileHref is Href with the anchor stripped, the spine join key.
	FileHref string

	// Anchor is the fragment without '#', empty when Href has none.
	Anchor string

	// Children holds nested entries; empty for leaves.
	Children []TOCEntry
}

// PDFAnnotation is a single annotation carried on a PDF page.
type PDFAnnotation struct {
	Page    int // 0-based page index
	Type    string // highlight, underline, strikeout, note, ...
	Content string
	Rect    [4]float64 // x0, y0, x1, y1
	Color   string     // "#rrggbb", empty if none
	Author  string
	Created string
}

// PDFTextBlock is one positioned word on a PDF page, used for exact-match
// highlighting. Text blocks are never persisted in a Book; they are
// re-extracted on demand from the retained source PDF.
type PDFTextBlock struct {
	Text    string
	X0      float64
	Y0      float64
	X1      float64
	Y1      float64
	BlockNo int
	LineNo  int
	WordNo  int
}

// PDFPageData holds per-page geometry and extraction results.
// A page that failed extraction keeps the same shape: Failed is set,
// Error carries the cause, and WordCount is zero, so that spine iteration
// and TOC consumers treat it uniformly.
type PDFPageData struct {
	PageNum     int // 0-based, equal to the page's key in Book.PDFPageData
	Width       float64
	Height      float64
	Rotation    int
	Annotations []PDFAnnotation
	HasImages   bool
	WordCount   int
	Failed      bool
	Error       string
}

// Book is the canonical normalized document. It is immutable once produced;
// reprocessing a source file replaces the Book wholesale.
type Book struct {
	Metadata BookMetadata

	// Spine is the linear reading order. The index in this slice is the
	// stable chapter index used by every consumer.
	Spine []ChapterContent

	// TOC is the navigation tree, joined to Spine via TOCEntry.FileHref.
	TOC []TOCEntry

	// Images maps an original path or basename to a book-relative local path.
	// A single stored image may be addressable under several keys.
	Images map[string]string

	SourceFile  string
	ProcessedAt string // ISO 8601
	AddedAt     string // ISO 8601
	Version     string
	IsPDF       bool

	// CoverImage is the book-relative cover path, empty when no cover exists.
	CoverImage string

	// PDF-only fields.
	PDFPageData            map[int]PDFPageData
	PDFTotalPages          int
	PDFHasTOC              bool
	PDFThumbnailsGenerated bool

	// PDFSourcePath is the book-relative path to the retained copy of the
	// original PDF, required for on-demand word-position re-extraction.
	PDFSourcePath string
}

// ChapterIndexFor resolves a TOC file reference to a spine index.
// Exact string equality against ChapterContent.Href wins; when no exact match
// exists it falls back to basename-only comparison, because source producers
// vary path prefixes ("OEBPS/content/x.html" vs "text/x.html" vs bare
// "x.html"). Returns -1 when no chapter matches.
func (b *Book) ChapterIndexFor(fileHref string) int {
	if fileHref == "" {
		return -1
	}
	for i := range b.Spine {
		if b.Spine[i].Href == fileHref {
			return i
		}
	}
	base := pathBase(fileHref)
	for i := range b.Spine {
		if pathBase(b.Spine[i].Href) == base {
			return i
		}
	}
	return -1
}

// PDFStats summarizes a PDF book's pages.
type PDFStats struct {
	TotalPages           int     `json:"total_pages"`
	TotalWords           int     `json:"total_words"`
	TotalAnnotations     int     `json:"total_annotations"`
	PagesWithImages      int     `json:"pages_with_images"`
	PagesWithAnnotations int     `json:"pages_with_annotations"`
	HasNativeTOC         bool    `json:"has_native_toc"`
	HasThumbnails        bool    `json:"has_thumbnails"`
	EstimatedReadingMins float64 `json:"estimated_reading_time_minutes"`
}

// readingWordsPerMinute is the rate used for the reading time estimate.
const readingWordsPerMinute = 225.0

// PDFStats computes aggregate statistics over the book's page data.
// Returns the zero value for non-PDF books.
func (b *Book) PDFStats() PDFStats {
	if !b.IsPDF {
		return PDFStats{}
	}
	s := PDFStats{
		TotalPages:    b.PDFTotalPages,
		HasNativeTOC:  b.PDFHasTOC,
		HasThumbnails: b.PDFThumbnailsGenerated,
	}
	for _, pd := range b.PDFPageData {
		s.TotalWords += pd.WordCount
		if pd.HasImages {
			s.PagesWithImages++
		}
		if len(pd.Annotations) > 0 {
			s.PagesWithAnnotations++
			s.TotalAnnotations += len(pd.Annotations)
		}
	}
	s.EstimatedReadingMins = roundTo(float64(s.TotalWords)/readingWordsPerMinute, 1)
	return s
}
