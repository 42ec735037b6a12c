package reader

import (
	"time"

	"go.uber.org/zap"
)

// ProgressFunc receives coarse-grained progress milestones during
// normalization. percent is 0–100. Implementations may be arbitrarily slow or
// buggy; failures inside the callback never abort processing.
type ProgressFunc func(percent int, message string)

// Normalizer converts one source file into the canonical Book model, writing
// derived artifacts (images, thumbnails, the persisted Book) into outputDir.
// The output directory is replaced atomically: a failed run never corrupts a
// previously normalized version.
//
// Normalization is synchronous and single-threaded per document. Callers
// wanting concurrency must run separate invocations on disjoint output
// directories.
type Normalizer interface {
	Normalize(sourcePath, outputDir string, progress ProgressFunc) (*Book, error)
}

// options carries normalizer configuration shared by both formats.
type options struct {
	dpi        int
	thumbnails bool
	thumbSize  int
	log        *zap.Logger
}

func defaultOptions() options {
	return options{
		dpi:        150,
		thumbnails: true,
		thumbSize:  150,
		log:        zap.NewNop(),
	}
}

// Option configures a Normalizer.
type Option func(*options)

// WithDPI sets the render resolution for PDF page images. Default 150.
func WithDPI(dpi int) Option {
	return func(o *options) {
		if dpi > 0 {
			o.dpi = dpi
		}
	}
}

// WithThumbnails toggles PDF page thumbnail generation. Default true.
func WithThumbnails(enabled bool) Option {
	return func(o *options) { o.thumbnails = enabled }
}

// WithThumbnailSize sets the bounding box (in pixels) thumbnails must fit,
// preserving aspect ratio. Default 150.
func WithThumbnailSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.thumbSize = size
		}
	}
}

// WithLogger sets the logger used for recoverable-failure warnings and
// milestone debug output. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// report invokes progress, swallowing panics: a broken callback must never
// abort document processing.
func report(progress ProgressFunc, percent int, message string) {
	if progress == nil {
		return
	}
	defer func() { _ = recover() }()
	progress(percent, message)
}

// nowISO returns the current time as an ISO 8601 / RFC 3339 string.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
