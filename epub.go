package reader

import (
	"archive/zip"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// EPUBNormalizer converts ePub 2 and ePub 3 files into the canonical Book
// model. It implements Normalizer.
type EPUBNormalizer struct {
	opts options
}

// NewEPUBNormalizer creates an EPUB normalizer with the given options.
func NewEPUBNormalizer(opts ...Option) *EPUBNormalizer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &EPUBNormalizer{opts: o}
}

// epubArchive bundles the open ZIP with the parsed OPF structures.
type epubArchive struct {
	zip            *zip.Reader
	opfDir         string
	opf            *opfPackage
	manifestByID   map[string]*manifestItem
	manifestByHref map[string]*manifestItem
}

// resolvePath resolves a manifest href relative to the OPF directory,
// yielding the ZIP-internal path.
func (a *epubArchive) resolvePath(href string) string {
	if href == "" {
		return ""
	}
	if a.opfDir == "." {
		return href
	}
	return path.Join(a.opfDir, href)
}

func (a *epubArchive) readFile(name string) ([]byte, error) {
	f := findFileInsensitive(a.zip, name)
	if f == nil {
		return nil, ErrFileNotFound
	}
	return readZipFile(f)
}

// openEPUB opens and validates the container: ZIP structure, OPF location,
// and DRM. Validation failures are fatal with a user-explainable reason.
func openEPUB(zr *zip.Reader, log *zap.Logger) (*epubArchive, error) {
	opfPath, err := parseContainer(zr)
	if err != nil {
		return nil, err
	}

	fontObfuscation, err := checkDRM(zr)
	if err != nil {
		return nil, err
	}
	if fontObfuscation {
		log.Warn("font obfuscation detected; obfuscated fonts may not render correctly")
	}

	opfFile := findFileInsensitive(zr, opfPath)
	if opfFile == nil {
		return nil, fmt.Errorf("reader: OPF file %s missing from archive: %w", opfPath, ErrInvalidEPub)
	}
	opfData, err := readZipFile(opfFile)
	if err != nil {
		return nil, fmt.Errorf("reader: read OPF: %w", err)
	}
	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}

	a := &epubArchive{
		zip:    zr,
		opfDir: path.Dir(opfPath),
		opf:    pkg,
	}
	a.manifestByID, a.manifestByHref = buildManifestMaps(pkg.Manifest)
	return a, nil
}

// isContentDocument classifies a manifest item as chapter content. Real-world
// producers are inconsistent, so three checks run in order, returning on the
// first match: native XHTML media-type, plain HTML media-type, then file
// extension.
func isContentDocument(item *manifestItem) bool {
	mt := strings.ToLower(strings.TrimSpace(item.MediaType))
	if mt == "application/xhtml+xml" {
		return true
	}
	if mt == "text/html" {
		return true
	}
	switch strings.ToLower(path.Ext(item.Href)) {
	case ".html", ".xhtml", ".htm":
		return true
	}
	return false
}

// isImageItem reports whether a manifest item is an image resource.
func isImageItem(item *manifestItem) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(item.MediaType)), "image/")
}

// Normalize parses the EPUB at sourcePath and writes the normalized book into
// outputDir, atomically replacing any previous version.
func (n *EPUBNormalizer) Normalize(sourcePath, outputDir string, progress ProgressFunc) (*Book, error) {
	log := n.opts.log

	report(progress, 2, "Opening EPUB")
	zrc, err := zip.OpenReader(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("reader: open %s: %w", sourcePath, err)
	}
	defer zrc.Close()

	arc, err := openEPUB(&zrc.Reader, log)
	if err != nil {
		return nil, err
	}
	report(progress, 5, "Validated EPUB container")

	metadata := extractMetadata(arc.opf)
	report(progress, 10, "Extracted metadata")

	var book *Book
	err = buildDirAtomic(outputDir, func(scratch string) error {
		b, buildErr := n.build(arc, sourcePath, scratch, progress)
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
	log.Info("normalized EPUB",
		zap.String("source", sourcePath),
		zap.Int("chapters", len(book.Spine)),
		zap.Int("toc_entries", len(book.TOC)))
	return book, nil
}

// build writes images into the scratch directory and assembles the Book.
func (n *EPUBNormalizer) build(arc *epubArchive, sourcePath, scratch string, progress ProgressFunc) (*Book, error) {
	log := n.opts.log

	imagesDir := filepath.Join(scratch, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("reader: create images dir: %w", err)
	}

	// Extract every image resource. Each is registered under both its full
	// internal archive path and its basename, because chapter HTML may
	// reference either form.
	imageMap := make(map[string]string)
	for _, raw := range arc.opf.Manifest.Items {
		item := arc.manifestByID[raw.ID]
		if item == nil || !isImageItem(item) {
			continue
		}
		zipPath := arc.resolvePath(item.Href)
		data, err := arc.readFile(zipPath)
		if err != nil {
			log.Warn("skipping unreadable image", zap.String("path", zipPath), zap.Error(err))
			continue
		}
		safe := sanitizeFilename(pathBase(zipPath))
		if safe == "" {
			safe = fmt.Sprintf("image_%d%s", len(imageMap), path.Ext(zipPath))
		}
		if err := os.WriteFile(filepath.Join(imagesDir, safe), data, 0o644); err != nil {
			return nil, fmt.Errorf("reader: write image %s: %w", safe, err)
		}
		rel := "images/" + safe
		imageMap[zipPath] = rel
		imageMap[pathBase(zipPath)] = rel
	}
	report(progress, 30, "Extracted images")

	cover := n.extractCover(arc, imageMap)
	report(progress, 35, "Resolved cover image")

	toc := n.resolveTOC(arc)
	if len(toc) == 0 {
		log.Warn("empty TOC, building fallback from content documents")
		toc = fallbackEPUBTOC(arc)
	}
	report(progress, 40, "Parsed table of contents")

	spine, err := n.buildSpine(arc, imageMap, progress)
	if err != nil {
		return nil, err
	}
	report(progress, 92, "Processed chapters")

	now := nowISO()
	return &Book{
		Spine:       spine,
		TOC:         toc,
		Images:      imageMap,
		SourceFile:  filepath.Base(sourcePath),
		ProcessedAt: now,
		AddedAt:     now,
		Version:     SchemaVersion,
		CoverImage:  cover,
	}, nil
}

// buildSpine walks the OPF spine (not the manifest) in linear order and
// materializes one ChapterContent per content document.
func (n *EPUBNormalizer) buildSpine(arc *epubArchive, imageMap map[string]string, progress ProgressFunc) ([]ChapterContent, error) {
	log := n.opts.log
	total := len(arc.opf.Spine.ItemRefs)

	var chapters []ChapterContent
	for i, ref := range arc.opf.Spine.ItemRefs {
		item := arc.manifestByID[ref.IDRef]
		if item == nil || !isContentDocument(item) {
			continue
		}

		zipPath := arc.resolvePath(item.Href)
		raw, err := arc.readFile(zipPath)
		if err != nil {
			log.Warn("skipping unreadable chapter", zap.String("path", zipPath), zap.Error(err))
			continue
		}

		// Decode as UTF-8, dropping invalid sequences.
		src := strings.ToValidUTF8(string(stripBOM(raw)), "")

		doc, err := html.Parse(strings.NewReader(src))
		if err != nil {
			log.Warn("skipping unparseable chapter", zap.String("path", zipPath), zap.Error(err))
			continue
		}
		rewriteImageSources(doc, imageMap)
		cleanNode(doc)
		content, err := extractBodyHTML(doc)
		if err != nil {
			return nil, fmt.Errorf("reader: render chapter %s: %w", zipPath, err)
		}

		order := len(chapters)
		chapters = append(chapters, ChapterContent{
			ID:      item.ID,
			Href:    zipPath, // join key for TOC entries, kept verbatim
			Title:   fmt.Sprintf("Section %d", order+1),
			Content: content,
			Text:    ExtractPlainText(content),
			Order:   order,
		})

		if total > 0 {
			report(progress, 40+(50*(i+1))/total, fmt.Sprintf("Processed chapter %d/%d", i+1, total))
		}
	}
	return chapters, nil
}

// resolveTOC prefers the ePub 3 nav document, falling back to NCX.
func (n *EPUBNormalizer) resolveTOC(arc *epubArchive) []TOCEntry {
	log := n.opts.log

	if strings.HasPrefix(arc.opf.Version, "3") {
		if navItem := arc.navManifestItem(); navItem != nil {
			navPath := arc.resolvePath(navItem.Href)
			if data, err := arc.readFile(navPath); err == nil {
				toc, err := parseNavDocument(data, navPath)
				if err == nil && len(toc) > 0 {
					return toc
				}
				if err != nil {
					log.Warn("failed to parse nav document", zap.Error(err))
				}
			}
		}
	}

	tocID := arc.opf.Spine.Toc
	if tocID == "" {
		return nil
	}
	ncxItem, ok := arc.manifestByID[tocID]
	if !ok {
		return nil
	}
	ncxPath := arc.resolvePath(ncxItem.Href)
	data, err := arc.readFile(ncxPath)
	if err != nil {
		log.Warn("failed to read NCX", zap.Error(err))
		return nil
	}
	toc, err := parseNCX(data, ncxPath)
	if err != nil {
		log.Warn("failed to parse NCX", zap.Error(err))
		return nil
	}
	return toc
}

// navManifestItem finds the manifest item with a "nav" property (ePub 3).
// It iterates the OPF slice, not the map, for deterministic document order.
func (a *epubArchive) navManifestItem() *manifestItem {
	for _, raw := range a.opf.Manifest.Items {
		for _, prop := range strings.Fields(raw.Properties) {
			if prop == "nav" {
				return a.manifestByID[raw.ID]
			}
		}
	}
	return nil
}

// fallbackEPUBTOC builds a flat one-entry-per-content-file list in manifest
// order, titled by humanizing the filename.
func fallbackEPUBTOC(arc *epubArchive) []TOCEntry {
	var toc []TOCEntry
	for _, raw := range arc.opf.Manifest.Items {
		item := arc.manifestByID[raw.ID]
		if item == nil || !isContentDocument(item) {
			continue
		}
		zipPath := arc.resolvePath(item.Href)
		toc = append(toc, newTOCEntry(humanizeFilename(zipPath), zipPath))
	}
	return toc
}

// extractCover locates the cover image. Strategies run in order and the
// first success wins:
//  1. manifest item with properties="cover-image" (ePub 3)
//  2. <meta name="cover" content="ID"/> resolved through the manifest
//     (ePub 2), following an XHTML cover page to its first <img> if needed
//  3. image whose name contains "cover" or "front"
//  4. the first image in the manifest
//
// A book without any image yields ""; the absence of a cover is not an
// error.
func (n *EPUBNormalizer) extractCover(arc *epubArchive, imageMap map[string]string) string {
	if item := arc.coverFromProperties(); item != nil {
		if rel := coverRel(arc, item, imageMap); rel != "" {
			return rel
		}
	}
	if item := arc.coverFromMeta(); item != nil {
		if rel := coverRel(arc, item, imageMap); rel != "" {
			return rel
		}
	}
	if item := arc.coverFromNameHeuristic(); item != nil {
		if rel := coverRel(arc, item, imageMap); rel != "" {
			return rel
		}
	}
	if item := arc.firstImageItem(); item != nil {
		if rel := coverRel(arc, item, imageMap); rel != "" {
			return rel
		}
	}
	n.opts.log.Warn("no cover image found")
	return ""
}

// coverRel maps a cover manifest item onto its already-extracted local path.
func coverRel(arc *epubArchive, item *manifestItem, imageMap map[string]string) string {
	if rel, ok := imageMap[arc.resolvePath(item.Href)]; ok {
		return rel
	}
	return imageMap[pathBase(item.Href)]
}

func (a *epubArchive) coverFromProperties() *manifestItem {
	for _, raw := range a.opf.Manifest.Items {
		item := a.manifestByID[raw.ID]
		if item == nil {
			continue
		}
		for _, prop := range strings.Fields(item.Properties) {
			if prop == "cover-image" {
				return item
			}
		}
	}
	return nil
}

func (a *epubArchive) coverFromMeta() *manifestItem {
	for _, m := range a.opf.Metadata.Metas {
		if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
			continue
		}
		item, ok := a.manifestByID[m.Content]
		if !ok {
			continue
		}
		if isImageItem(item) {
			return item
		}
		// The meta may point at an XHTML cover page; follow its first <img>.
		xhtmlPath := a.resolvePath(item.Href)
		data, err := a.readFile(xhtmlPath)
		if err != nil {
			continue
		}
		if imgPath := firstImageSrc(data, xhtmlPath); imgPath != "" {
			if imgItem := a.imageItemForPath(imgPath); imgItem != nil {
				return imgItem
			}
		}
	}
	return nil
}

func (a *epubArchive) coverFromNameHeuristic() *manifestItem {
	for _, raw := range a.opf.Manifest.Items {
		item := a.manifestByID[raw.ID]
		if item == nil || !isImageItem(item) {
			continue
		}
		lower := strings.ToLower(item.Href)
		if strings.Contains(lower, "cover") || strings.Contains(lower, "front") {
			return item
		}
	}
	return nil
}

func (a *epubArchive) firstImageItem() *manifestItem {
	for _, raw := range a.opf.Manifest.Items {
		item := a.manifestByID[raw.ID]
		if item != nil && isImageItem(item) {
			return item
		}
	}
	return nil
}

// imageItemForPath resolves a ZIP-internal image path back to a manifest item.
func (a *epubArchive) imageItemForPath(zipPath string) *manifestItem {
	for _, item := range a.manifestByHref {
		if !isImageItem(item) {
			continue
		}
		if a.resolvePath(item.Href) == zipPath {
			return item
		}
	}
	return nil
}

// firstImageSrc parses HTML and returns the resolved ZIP-internal path of the
// first <img> src, or "".
func firstImageSrc(data []byte, basePath string) string {
	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return ""
	}
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key == "src" && attr.Val != "" {
					return resolveRelativePath(basePath, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := find(c); found != "" {
				return found
			}
		}
		return ""
	}
	return find(doc)
}
