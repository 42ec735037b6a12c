package reader

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// retainedPDFName is the file name of the source PDF copy kept inside the
// book directory for on-demand positional extraction.
const retainedPDFName = "source.pdf"

// PDFNormalizer converts PDF files into the canonical Book model, rendering
// each page to a PNG image. It implements Normalizer.
type PDFNormalizer struct {
	opts options

	// renderPage produces one page's spine content and page data. It
	// defaults to processPage and exists as a field so that the per-page
	// failure policy can be exercised without a rendering engine.
	renderPage func(doc *fitz.Document, i int, imagesDir, thumbsDir string) (renderedPage, PDFPageData, error)
}

// NewPDFNormalizer creates a PDF normalizer with the given options.
func NewPDFNormalizer(opts ...Option) *PDFNormalizer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	n := &PDFNormalizer{opts: o}
	n.renderPage = n.processPage
	return n
}

// validatePDF gates normalization: magic bytes, parseability, encryption and
// an empty or degenerate page list are all rejected up front so that partial
// output is never produced for a document that cannot work at all.
func validatePDF(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 5)
	if _, err := io.ReadFull(f, head); err != nil || string(head) != "%PDF-" {
		return nil, ErrInvalidPDF
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("reader: seek %s: %w", path, err)
	}

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
			return nil, ErrEncryptedPDF
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if ctx.Encrypt != nil {
		return nil, ErrEncryptedPDF
	}
	if ctx.PageCount == 0 {
		return nil, ErrEmptyPDF
	}
	dims, err := ctx.PageDims()
	if err != nil || len(dims) == 0 || dims[0].Width <= 0 || dims[0].Height <= 0 {
		return nil, ErrInvalidPDF
	}
	return ctx, nil
}

// Normalize renders the PDF at sourcePath into outputDir, atomically
// replacing any previous version. Individual page failures are recoverable;
// only a document where every page fails aborts the run.
func (n *PDFNormalizer) Normalize(sourcePath, outputDir string, progress ProgressFunc) (*Book, error) {
	log := n.opts.log

	report(progress, 5, "Validating PDF")
	pctx, err := validatePDF(sourcePath)
	if err != nil {
		return nil, err
	}

	report(progress, 8, "Opening PDF")
	doc, err := fitz.New(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	defer doc.Close()

	report(progress, 12, "Reading metadata")
	metadata := pdfMetadata(doc, sourcePath)

	annots, rotations, err := extractPDFPageInfo(sourcePath)
	if err != nil {
		// Annotations are an enrichment, never a gate.
		log.Warn("annotation extraction failed", zap.Error(err))
		annots, rotations = nil, nil
	}

	var book *Book
	err = buildDirAtomic(outputDir, func(scratch string) error {
		b, buildErr := n.build(doc, pctx, annots, rotations, sourcePath, scratch, progress)
		if buildErr != nil {
			return buildErr
		}
		b.Metadata = metadata
		sanitizeBook(b)
		if saveErr := saveBook(scratch, b); saveErr != nil {
			return saveErr
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	report(progress, 100, "Done")
	log.Info("normalized PDF",
		zap.String("source", sourcePath),
		zap.Int("pages", book.PDFTotalPages),
		zap.Bool("native_toc", book.PDFHasTOC))
	return book, nil
}

// build renders pages and assembles the Book inside the scratch directory.
func (n *PDFNormalizer) build(doc *fitz.Document, pctx *model.Context, annots map[int][]PDFAnnotation, rotations map[int]int, sourcePath, scratch string, progress ProgressFunc) (*Book, error) {
	total := doc.NumPage()

	imagesDir := filepath.Join(scratch, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("reader: create images dir: %w", err)
	}
	thumbsDir := filepath.Join(scratch, "thumbnails")
	if n.opts.thumbnails {
		if err := os.MkdirAll(thumbsDir, 0o755); err != nil {
			return nil, fmt.Errorf("reader: create thumbnails dir: %w", err)
		}
	}

	// Retain the source for positional word extraction later.
	if err := copyFile(sourcePath, filepath.Join(scratch, retainedPDFName)); err != nil {
		return nil, err
	}

	hasImages := make([]bool, total)
	for i := range hasImages {
		hasImages[i] = len(pdfcpu.ImageObjNrs(pctx, i+1)) > 0
	}

	spine, pageData, imageMap, err := n.buildPages(doc, total, annots, rotations, hasImages, imagesDir, thumbsDir, progress)
	if err != nil {
		return nil, err
	}

	report(progress, 92, "Building table of contents")
	toc, hasNative := n.buildTOC(doc, total)

	now := nowISO()
	return &Book{
		Spine:                  spine,
		TOC:                    toc,
		Images:                 imageMap,
		SourceFile:             filepath.Base(sourcePath),
		ProcessedAt:            now,
		AddedAt:                now,
		Version:                SchemaVersion,
		IsPDF:                  true,
		PDFPageData:            pageData,
		PDFTotalPages:          total,
		PDFHasTOC:              hasNative,
		PDFThumbnailsGenerated: n.opts.thumbnails,
		PDFSourcePath:          retainedPDFName,
	}, nil
}

// buildPages runs the per-page loop. Page i goes through renderPage; a bad
// page keeps its slot as a placeholder so the spine stays contiguous and the
// reader shows an error card instead of shifting pages around. Annotations,
// rotation and image presence enrich successful pages only; a placeholder
// stays bare. When every page fails the whole run is an error.
func (n *PDFNormalizer) buildPages(doc *fitz.Document, total int, annots map[int][]PDFAnnotation, rotations map[int]int, hasImages []bool, imagesDir, thumbsDir string, progress ProgressFunc) ([]ChapterContent, map[int]PDFPageData, map[string]string, error) {
	spine := make([]ChapterContent, 0, total)
	pageData := make(map[int]PDFPageData, total)
	imageMap := make(map[string]string, total)
	failed := 0

	for i := 0; i < total; i++ {
		ch, pd, err := n.renderPage(doc, i, imagesDir, thumbsDir)
		if err != nil {
			failed++
			n.opts.log.Warn("page extraction failed",
				zap.Int("page", i+1), zap.Error(err))
			ch = placeholderPage(i)
			pd = PDFPageData{PageNum: i, Failed: true, Error: err.Error()}
		} else {
			imageMap[pageToken(i)] = ch.imagePath
			pd.Annotations = annots[i]
			pd.Rotation = rotations[i]
			pd.HasImages = hasImages[i]
		}

		order := len(spine)
		spine = append(spine, ChapterContent{
			ID:      pageToken(i),
			Href:    pageToken(i),
			Title:   fmt.Sprintf("Page %d", i+1),
			Content: ch.content,
			Text:    ch.text,
			Order:   order,
		})
		pageData[i] = pd

		report(progress, 15+(75*(i+1))/total, fmt.Sprintf("Processed page %d/%d", i+1, total))
	}

	if failed == total {
		return nil, nil, nil, ErrAllPagesFailed
	}
	return spine, pageData, imageMap, nil
}

// renderedPage is the per-page output of processPage.
type renderedPage struct {
	content   string
	text      string
	imagePath string
}

// processPage renders page i (0-based) to a PNG, extracts its text and
// geometry, and optionally writes a thumbnail. Render panics from the
// underlying engine are converted to errors so one corrupt page cannot take
// down the whole run.
func (n *PDFNormalizer) processPage(doc *fitz.Document, i int, imagesDir, thumbsDir string) (page renderedPage, pd PDFPageData, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reader: page %d render panic: %v", i+1, r)
		}
	}()

	img, err := doc.ImageDPI(i, float64(n.opts.dpi))
	if err != nil {
		return renderedPage{}, PDFPageData{}, fmt.Errorf("reader: render page %d: %w", i+1, err)
	}
	name := fmt.Sprintf("%s.png", pageToken(i))
	f, err := os.Create(filepath.Join(imagesDir, name))
	if err != nil {
		return renderedPage{}, PDFPageData{}, fmt.Errorf("reader: create page image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return renderedPage{}, PDFPageData{}, fmt.Errorf("reader: encode page image: %w", err)
	}
	if err := f.Close(); err != nil {
		return renderedPage{}, PDFPageData{}, fmt.Errorf("reader: close page image: %w", err)
	}
	rel := "images/" + name

	// Text comes from the PDF text layer, never from OCR of the render.
	text, err := doc.Text(i)
	if err != nil {
		return renderedPage{}, PDFPageData{}, fmt.Errorf("reader: extract page %d text: %w", i+1, err)
	}
	text = strings.TrimSpace(text)

	bounds, err := doc.Bound(i)
	if err != nil {
		return renderedPage{}, PDFPageData{}, fmt.Errorf("reader: page %d bounds: %w", i+1, err)
	}

	if n.opts.thumbnails {
		if err := n.writeThumbnail(doc, i, thumbsDir, float64(bounds.Dx()), float64(bounds.Dy())); err != nil {
			return renderedPage{}, PDFPageData{}, err
		}
	}

	pd = PDFPageData{
		PageNum:   i,
		Width:     float64(bounds.Dx()),
		Height:    float64(bounds.Dy()),
		WordCount: len(strings.Fields(text)),
	}
	page = renderedPage{
		content:   pageImageHTML(i, rel),
		text:      text,
		imagePath: rel,
	}
	return page, pd, nil
}

// writeThumbnail renders a reduced copy of page i that fits the configured
// bounding box, preserving aspect ratio.
func (n *PDFNormalizer) writeThumbnail(doc *fitz.Document, i int, thumbsDir string, w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("reader: page %d has no geometry for thumbnail", i+1)
	}
	box := float64(n.opts.thumbSize)
	scale := box / w
	if s := box / h; s < scale {
		scale = s
	}
	// Page bounds are in points (72 per inch), so dpi is just scaled 72.
	img, err := doc.ImageDPI(i, 72*scale)
	if err != nil {
		return fmt.Errorf("reader: render thumbnail %d: %w", i+1, err)
	}
	f, err := os.Create(filepath.Join(thumbsDir, fmt.Sprintf("thumb_%d.png", i+1)))
	if err != nil {
		return fmt.Errorf("reader: create thumbnail: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("reader: encode thumbnail: %w", err)
	}
	return f.Close()
}

// buildTOC uses the PDF's native outline when present, falling back to a
// flat per-page list. The second result reports whether a native outline
// existed.
func (n *PDFNormalizer) buildTOC(doc *fitz.Document, total int) ([]TOCEntry, bool) {
	outlines, err := doc.ToC()
	if err != nil || len(outlines) == 0 {
		if err != nil {
			n.opts.log.Warn("failed to read PDF outline", zap.Error(err))
		}
		return fallbackPDFTOC(total), false
	}
	toc := buildPDFOutline(outlineItems(outlines, total))
	if len(toc) == 0 {
		return fallbackPDFTOC(total), false
	}
	return toc, true
}

// outlineItems converts the engine's outline entries to 1-based outline
// items. The engine reports MuPDF page locations, which are 0-based, so the
// conversion happens here and nowhere else.
func outlineItems(outlines []fitz.Outline, total int) []pdfOutlineItem {
	items := make([]pdfOutlineItem, 0, len(outlines))
	for _, o := range outlines {
		page := o.Page + 1
		if page < 1 {
			page = 1
		}
		if page > total {
			page = total
		}
		items = append(items, pdfOutlineItem{Level: o.Level, Title: o.Title, Page: page})
	}
	return items
}

// pdfMetadata maps the document info dictionary onto BookMetadata, with the
// file name standing in for a missing title.
func pdfMetadata(doc *fitz.Document, sourcePath string) BookMetadata {
	info := doc.Metadata()

	title := strings.TrimSpace(info["title"])
	if title == "" {
		base := filepath.Base(sourcePath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if title == "" {
		title = "Untitled"
	}

	md := BookMetadata{
		Title:     title,
		Language:  "en",
		Publisher: strings.TrimSpace(info["producer"]),
		Date:      strings.TrimSpace(info["creationDate"]),
	}
	if author := strings.TrimSpace(info["author"]); author != "" {
		md.Authors = []string{author}
	}
	if subject := strings.TrimSpace(info["subject"]); subject != "" {
		md.Subjects = []string{subject}
	}
	return md
}

// placeholderPage is the spine entry for a page that failed extraction. It
// keeps the page's slot so that spine indexes stay aligned with page numbers.
func placeholderPage(i int) renderedPage {
	return renderedPage{
		content: fmt.Sprintf(`<div class="pdf-page-error"><p>Page %d could not be processed.</p></div>`, i+1),
	}
}

// pageToken is the synthetic href for 0-based page index i.
func pageToken(i int) string {
	return fmt.Sprintf("page_%d", i+1)
}

// pageImageHTML is the content fragment serving a rendered page.
func pageImageHTML(i int, rel string) string {
	return fmt.Sprintf(`<div class="pdf-page-image-container"><img src="%s" alt="Page %d" class="pdf-page-image" /></div>`, rel, i+1)
}

// copyFile copies src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("reader: open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("reader: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("reader: copy %s: %w", dst, err)
	}
	return out.Close()
}

// ExportPDFPages writes a new PDF containing the 0-based page range
// [startPage, endPage] of the book's retained source into outPath.
func ExportPDFPages(bookDir string, book *Book, startPage, endPage int, outPath string) error {
	if !book.IsPDF {
		return ErrNotPDF
	}
	src := filepath.Join(bookDir, book.PDFSourcePath)
	if _, err := os.Stat(src); err != nil {
		return ErrNoSourcePDF
	}

	if startPage < 0 {
		startPage = 0
	}
	if endPage >= book.PDFTotalPages {
		endPage = book.PDFTotalPages - 1
	}
	if startPage > endPage {
		return fmt.Errorf("reader: invalid page range %d-%d", startPage, endPage)
	}

	sel := []string{fmt.Sprintf("%d-%d", startPage+1, endPage+1)}
	if err := api.TrimFile(src, outPath, sel, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("reader: export pages: %w", err)
	}
	return nil
}
