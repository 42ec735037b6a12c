package reader

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// newTOCEntry builds a TOCEntry from a title and an href, splitting the
// anchor so that FileHref is always the spine join key.
// Invariant: FileHref == Href up to the first '#'.
func newTOCEntry(title, href string) TOCEntry {
	file, anchor := splitHrefAnchor(href)
	return TOCEntry{
		Title:    title,
		Href:     href,
		FileHref: file,
		Anchor:   anchor,
	}
}

// splitHrefAnchor splits "file.html#sec2" into ("file.html", "sec2").
func splitHrefAnchor(href string) (file, anchor string) {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[:idx], href[idx+1:]
	}
	return href, ""
}

// --- PDF outline ---

// pdfOutlineItem is one flat entry of a PDF's native outline.
// Page is 1-based.
type pdfOutlineItem struct {
	Level int
	Title string
	Page  int
}

// pdfTOCNode is the mutable tree node used while reconstructing hierarchy.
type pdfTOCNode struct {
	entry TOCEntry
	kids  []*pdfTOCNode
}

func (n *pdfTOCNode) toEntry() TOCEntry {
	e := n.entry
	for _, k := range n.kids {
		e.Children = append(e.Children, k.toEntry())
	}
	return e
}

// buildPDFOutline reconstructs a hierarchical TOC from a flat level-tagged
// outline list. A stack keyed by level decides attachment: the stack is
// popped while its top level >= the current item's level, the new entry
// attaches to the new top (or the root list when the stack is empty), and is
// then pushed. 1-based source pages become 0-based "page_N" href tokens.
func buildPDFOutline(items []pdfOutlineItem) []TOCEntry {
	if len(items) == 0 {
		return nil
	}

	type frame struct {
		level int
		node  *pdfTOCNode
	}

	var roots []*pdfTOCNode
	var stack []frame

	for _, it := range items {
		pageIdx := it.Page - 1
		if pageIdx < 0 {
			pageIdx = 0
		}
		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = fmt.Sprintf("Section (Page %d)", it.Page)
		}
		href := fmt.Sprintf("page_%d", pageIdx+1)
		node := &pdfTOCNode{entry: newTOCEntry(title, href)}

		for len(stack) > 0 && stack[len(stack)-1].level >= it.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1].node
			top.kids = append(top.kids, node)
		} else {
			roots = append(roots, node)
		}
		stack = append(stack, frame{level: it.Level, node: node})
	}

	out := make([]TOCEntry, 0, len(roots))
	for _, r := range roots {
		out = append(out, r.toEntry())
	}
	return out
}

// fallbackPDFTOC builds a flat one-entry-per-page navigation list.
func fallbackPDFTOC(totalPages int) []TOCEntry {
	toc := make([]TOCEntry, 0, totalPages)
	for i := 0; i < totalPages; i++ {
		href := fmt.Sprintf("page_%d", i+1)
		toc = append(toc, newTOCEntry(fmt.Sprintf("Page %d", i+1), href))
	}
	return toc
}

// --- EPUB NCX (ePub 2) ---

type ncxDocument struct {
	XMLName xml.Name  `xml:"ncx"`
	NavMap  ncxNavMap `xml:"navMap"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	Label    ncxNavLabel   `xml:"navLabel"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxNavLabel struct {
	Text string `xml:"text"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// parseNCX parses NCX data into a TOCEntry tree. ncxPath is the ZIP-internal
// path of the NCX file, used to resolve relative hrefs so that FileHref lines
// up with spine chapter hrefs.
func parseNCX(data []byte, ncxPath string) ([]TOCEntry, error) {
	data = preprocessHTMLEntities(data)
	data = stripBOM(data)

	var doc ncxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("reader: parse NCX: %w", err)
	}
	return convertNavPoints(doc.NavMap.NavPoints, ncxPath), nil
}

func convertNavPoints(points []ncxNavPoint, ncxPath string) []TOCEntry {
	if len(points) == 0 {
		return nil
	}
	entries := make([]TOCEntry, 0, len(points))
	for _, np := range points {
		href := ""
		src := strings.TrimSpace(np.Content.Src)
		if src != "" {
			file, anchor := splitHrefAnchor(src)
			if resolved := resolveRelativePath(ncxPath, file); resolved != "" {
				href = resolved
				if anchor != "" {
					href += "#" + anchor
				}
			}
		}
		entry := newTOCEntry(strings.TrimSpace(np.Label.Text), href)
		entry.Children = convertNavPoints(np.Children, ncxPath)
		entries = append(entries, entry)
	}
	return entries
}

// --- EPUB nav document (ePub 3) ---

// parseNavDocument parses an ePub 3 XHTML nav document and returns the toc
// nav's entries. basePath is the nav document's ZIP-internal path.
func parseNavDocument(data []byte, basePath string) ([]TOCEntry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reader: parse nav document: %w", err)
	}

	var navNodes []*html.Node
	var findNavs func(*html.Node)
	findNavs = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "nav" {
			navNodes = append(navNodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findNavs(c)
		}
	}
	findNavs(doc)

	for _, nav := range navNodes {
		if !hasEpubType(nav, "toc") {
			continue
		}
		if ol := findFirstChildElement(nav, "ol"); ol != nil {
			return parseNavOL(ol, basePath), nil
		}
	}
	return nil, nil
}

// parseNavOL processes an <ol> element's <li> children.
func parseNavOL(ol *html.Node, basePath string) []TOCEntry {
	var entries []TOCEntry
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			entries = append(entries, parseNavLI(c, basePath))
		}
	}
	return entries
}

// parseNavLI processes a single <li>: <a> (or <span> fallback) for
// title/href, nested <ol> for children.
func parseNavLI(li *html.Node, basePath string) TOCEntry {
	var entry TOCEntry
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "a":
			if entry.Href == "" {
				href := navGetAttr(c, "href")
				if href != "" {
					file, anchor := splitHrefAnchor(href)
					if resolved := resolveRelativePath(basePath, file); resolved != "" {
						full := resolved
						if anchor != "" {
							full += "#" + anchor
						}
						entry = newTOCEntry(strings.TrimSpace(nodeTextContent(c)), full)
						continue
					}
				}
				entry.Title = strings.TrimSpace(nodeTextContent(c))
			}
		case "span":
			if entry.Title == "" {
				entry.Title = strings.TrimSpace(nodeTextContent(c))
			}
		case "ol":
			entry.Children = parseNavOL(c, basePath)
		}
	}
	return entry
}

// hasEpubType checks whether n's epub:type attribute contains the given token.
func hasEpubType(n *html.Node, typeName string) bool {
	for _, t := range strings.Fields(navGetAttr(n, "epub:type")) {
		if t == typeName {
			return true
		}
	}
	return false
}

func navGetAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findFirstChildElement performs a depth-first search for the first
// descendant element with the given tag name.
func findFirstChildElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findFirstChildElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// nodeTextContent recursively collects all text content within a node.
func nodeTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeTextContent(c))
	}
	return sb.String()
}

// humanizeFilename derives a display title from a content file name:
// "part_01.xhtml" becomes "Part 01".
func humanizeFilename(name string) string {
	base := pathBase(name)
	for _, ext := range []string{".xhtml", ".html", ".htm"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
			break
		}
	}
	base = strings.ReplaceAll(base, "_", " ")
	return cases.Title(language.English).String(base)
}
