package reader

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"strings"
)

// containerXML models META-INF/container.xml, used to locate the OPF.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// containerPath is the well-known location of container.xml in an ePub.
const containerPath = "META-INF/container.xml"

// parseContainer locates and parses the OPF path from the ePub ZIP archive.
// It tries META-INF/container.xml first (case-insensitive lookup) and falls
// back to scanning the archive for any ".opf" entry.
func parseContainer(zr *zip.Reader) (string, error) {
	if f := findFileInsensitive(zr, containerPath); f != nil {
		return parseContainerXML(f)
	}
	return fallbackFindOPF(zr)
}

// parseContainerXML reads a container.xml entry and returns the full-path of
// the first package rootfile.
func parseContainerXML(f *zip.File) (string, error) {
	data, err := readZipFile(f)
	if err != nil {
		return "", fmt.Errorf("reader: read container.xml: %w", err)
	}
	data = stripBOM(data)

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("reader: parse container.xml: %w", err)
	}
	if len(c.RootFiles) == 0 {
		return "", fmt.Errorf("reader: container.xml has no rootfile entries: %w", ErrInvalidEPub)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), "application/oebps-package+xml") {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}
	if fallbackPath == "" {
		return "", fmt.Errorf("reader: container.xml rootfile has empty full-path: %w", ErrInvalidEPub)
	}
	return fallbackPath, nil
}

// fallbackFindOPF scans the archive for the first ".opf" entry.
func fallbackFindOPF(zr *zip.Reader) (string, error) {
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("reader: no OPF file found in archive: %w", ErrInvalidEPub)
}
