package reader

import "errors"

// Sentinel errors returned by the reader package.
var (
	// ErrDRMProtected indicates the source ePub is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP) and cannot be read.
	ErrDRMProtected = errors.New("reader: file is DRM protected")

	// ErrInvalidEPub indicates the file is not a valid ePub container
	// (e.g., missing container.xml and no .opf file found).
	ErrInvalidEPub = errors.New("reader: invalid ePub file")

	// ErrInvalidPDF indicates the file is not a readable PDF document.
	ErrInvalidPDF = errors.New("reader: invalid PDF file")

	// ErrEncryptedPDF indicates the PDF is encrypted or password protected.
	ErrEncryptedPDF = errors.New("reader: PDF is password-protected")

	// ErrEmptyPDF indicates the PDF contains no pages.
	ErrEmptyPDF = errors.New("reader: PDF contains no pages")

	// ErrAllPagesFailed indicates every page of a PDF failed extraction.
	// Individually recoverable page failures escalate to this when nothing
	// usable remains.
	ErrAllPagesFailed = errors.New("reader: all PDF pages failed extraction")

	// ErrFileNotFound indicates the requested file does not exist in the
	// source archive.
	ErrFileNotFound = errors.New("reader: file not found in archive")

	// ErrNoSourcePDF indicates the retained source PDF copy is missing from
	// the book directory, so positional extraction is unavailable.
	ErrNoSourcePDF = errors.New("reader: retained source PDF not found")

	// ErrNotPDF indicates a PDF-only operation was invoked on a non-PDF book.
	ErrNotPDF = errors.New("reader: book is not a PDF")
)
