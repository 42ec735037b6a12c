package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/simp-lee/reader"
)

func main() {
	out := flag.String("out", "", "Output book directory (default: <source name> without extension)")
	dpi := flag.Int("dpi", 150, "Render resolution for PDF page images")
	thumbs := flag.Bool("thumbs", true, "Generate PDF page thumbnails")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: reader [--out DIR] [--dpi N] [--thumbs] [-v] <file.epub|file.pdf>")
	}
	source := flag.Arg(0)

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		defer logger.Sync()
	}

	outDir := *out
	if outDir == "" {
		base := filepath.Base(source)
		outDir = strings.TrimSuffix(base, filepath.Ext(base))
	}

	opts := []reader.Option{
		reader.WithDPI(*dpi),
		reader.WithThumbnails(*thumbs),
		reader.WithLogger(logger),
	}

	var n reader.Normalizer
	switch strings.ToLower(filepath.Ext(source)) {
	case ".epub":
		n = reader.NewEPUBNormalizer(opts...)
	case ".pdf":
		n = reader.NewPDFNormalizer(opts...)
	default:
		log.Fatalf("Unsupported file type: %s", source)
	}

	progress := func(percent int, message string) {
		if *verbose {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, message)
		}
	}

	book, err := n.Normalize(source, outDir, progress)
	if err != nil {
		log.Fatalf("Failed to normalize %s: %v", source, err)
	}

	summary := map[string]any{
		"title":        book.Metadata.Title,
		"authors":      book.Metadata.Authors,
		"language":     book.Metadata.Language,
		"chapters":     len(book.Spine),
		"toc_entries":  len(book.TOC),
		"images":       len(book.Images),
		"cover_image":  book.CoverImage,
		"is_pdf":       book.IsPDF,
		"processed_at": book.ProcessedAt,
		"output_dir":   outDir,
	}
	if book.IsPDF {
		summary["pdf_stats"] = book.PDFStats()
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(summary); err != nil {
		log.Fatalf("Failed to encode summary: %v", err)
	}
}
