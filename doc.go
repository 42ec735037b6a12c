// Package reader normalizes ePub and PDF files into a single canonical Book
// model and provides lexical search over the normalized books.
//
// # Normalization
//
// [EPUBNormalizer] and [PDFNormalizer] both implement [Normalizer]: they
// read one source file and write a self-contained book directory (the
// serialized [Book], extracted images, and for PDFs rendered page images,
// thumbnails and a retained copy of the source). The output directory is
// replaced atomically; a failed run never corrupts a previously normalized
// book:
//
//	n := reader.NewEPUBNormalizer(reader.WithLogger(log))
//	book, err := n.Normalize("book.epub", "library/abc123", progress)
//
// The resulting [Book] carries the spine (linear reading order), the TOC
// tree joined to the spine via [TOCEntry.FileHref], bibliographic metadata,
// and for PDFs per-page geometry and annotations. DRM-protected ePubs are
// rejected with [ErrDRMProtected]; encrypted PDFs with [ErrEncryptedPDF].
//
// # Search
//
// [Searcher] maintains a persistent BM25 term index per book, rebuilt
// automatically whenever the book is reprocessed:
//
//	s := reader.NewSearcher()
//	hits, err := s.Search("whale hunting", bookIDs, libraryDir, load, 20)
//
// For PDF books, [SearchPDFPositions] additionally resolves matches to
// bounding boxes on the page by re-reading the retained source PDF.
//
// # Loading
//
// [LoadBook] reads a previously normalized book back; [LoadBookMeta] reads
// only the small JSON sidecar for cheap library listings.
package reader
