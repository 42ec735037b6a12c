package reader

import "strings"

// extractMetadata converts raw OPF Dublin Core elements into BookMetadata.
// Multi-valued fields (creator, identifier, subject) become lists;
// single-valued fields take the first non-empty value. Title and Language
// fall back to "Untitled" and "en" when the source omits them, so every
// Book carries a displayable identity.
func extractMetadata(opf *opfPackage) BookMetadata {
	om := &opf.Metadata

	md := BookMetadata{
		Title:       firstValue(om.Titles),
		Language:    firstValue(om.Languages),
		Authors:     allValues(om.Creators),
		Description: firstValue(om.Descriptions),
		Publisher:   firstValue(om.Publishers),
		Date:        firstValue(om.Dates),
		Identifiers: allValues(om.Identifiers),
		Subjects:    allValues(om.Subjects),
	}

	if md.Title == "" {
		md.Title = "Untitled"
	}
	if md.Language == "" {
		md.Language = "en"
	}
	return md
}

// firstValue returns the first non-empty trimmed value, or "".
func firstValue(elems []opfDCElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// allValues returns all non-empty trimmed values in document order.
func allValues(elems []opfDCElement) []string {
	var out []string
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}
