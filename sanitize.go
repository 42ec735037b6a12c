package reader

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// strippedTags is the set of elements removed entirely (with their content)
// from chapter HTML before it is served or indexed.
var strippedTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Iframe: true,
	atom.Video:  true,
	atom.Nav:    true,
	atom.Form:   true,
	atom.Button: true,
	atom.Input:  true,
}

// CleanHTML removes script, style, iframe, video, nav, form, button and input
// elements along with all comment nodes, and strips event handler attributes.
// Surviving element structure and text content are left intact. Unparseable
// input is returned unchanged.
func CleanHTML(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}
	cleanNode(doc)
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return src
	}
	return buf.String()
}

// cleanNode recursively removes stripped elements and comment nodes, and
// drops event handler attributes from the subtree rooted at n.
func cleanNode(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
			continue
		}
		if c.Type == html.ElementNode && strippedTags[c.DataAtom] {
			n.RemoveChild(c)
			continue
		}
		if c.Type == html.ElementNode {
			stripEventAttributes(c)
		}
		cleanNode(c)
	}
}

// stripEventAttributes removes all event handler attributes (on*) from n.
func stripEventAttributes(n *html.Node) {
	cleaned := n.Attr[:0]
	for _, attr := range n.Attr {
		if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
			continue
		}
		cleaned = append(cleaned, attr)
	}
	n.Attr = cleaned
}

// ExtractPlainText extracts the text content of HTML, collapsing every
// whitespace run (including newlines) to a single space and trimming the
// result. Content inside stripped tags is skipped. Markup-only input
// yields "".
func ExtractPlainText(src string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(src))

	var parts []string
	skipDepth := 0 // depth inside a stripped tag
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseWhitespace(strings.Join(parts, " "))

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if strippedTags[atom.Lookup(tn)] {
				skipDepth++
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if strippedTags[atom.Lookup(tn)] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			if text := string(tokenizer.Text()); strings.TrimSpace(text) != "" {
				parts = append(parts, text)
			}
		}
	}
}

// collapseWhitespace replaces runs of whitespace with single spaces, trims,
// and NFC-normalizes the result.
func collapseWhitespace(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// SanitizeText replaces UTF-16 surrogate code points (0xD800–0xDFFF, which
// malformed source encodings can smuggle in as three-byte sequences) and any
// other invalid byte with U+FFFD. Well-formed input is returned unchanged.
// Idempotent: the output is always valid UTF-8.
func SanitizeText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			// A surrogate encoded in WTF-8 style is 0xED 0xA0–0xBF 0x80–0xBF;
			// consume the whole three-byte unit as one replacement.
			if i+2 < len(s) && s[i] == 0xED && s[i+1] >= 0xA0 && s[i+1] <= 0xBF &&
				s[i+2] >= 0x80 && s[i+2] <= 0xBF {
				b.WriteRune(utf8.RuneError)
				i += 3
				continue
			}
			b.WriteRune(utf8.RuneError)
			i++
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// extractBodyHTML parses a full document and renders the inner HTML of its
// <body>. When no <body> exists the whole cleaned document is rendered, since
// some producers emit bare fragments.
func extractBodyHTML(doc *html.Node) (string, error) {
	body := findElement(doc, atom.Body)
	if body == nil {
		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err != nil {
			return "", err
		}
		return strings.TrimSpace(buf.String()), nil
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// findElement performs a depth-first search for a node with the given atom tag.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result := findElement(c, a); result != nil {
			return result
		}
	}
	return nil
}

// rewriteImageSources rewrites every <img src> in the tree against the
// extracted-images map. The src is URL-decoded first, then looked up by full
// decoded path and finally by basename, because chapter HTML may reference
// either form. Unresolvable sources are left untouched.
func rewriteImageSources(n *html.Node, images map[string]string) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		for i, attr := range n.Attr {
			if attr.Key != "src" || attr.Namespace != "" || attr.Val == "" {
				continue
			}
			decoded := attr.Val
			if d, err := url.PathUnescape(attr.Val); err == nil {
				decoded = d
			}
			if local, ok := images[decoded]; ok {
				n.Attr[i].Val = local
			} else if local, ok := images[pathBase(decoded)]; ok {
				n.Attr[i].Val = local
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteImageSources(c, images)
	}
}

// sanitizeBook applies SanitizeText to every string field reachable from the
// Book before persistence. Malformed source encodings otherwise corrupt the
// JSON sidecars downstream.
func sanitizeBook(b *Book) {
	md := &b.Metadata
	md.Title = SanitizeText(md.Title)
	md.Language = SanitizeText(md.Language)
	md.Description = SanitizeText(md.Description)
	md.Publisher = SanitizeText(md.Publisher)
	md.Date = SanitizeText(md.Date)
	sanitizeSlice(md.Authors)
	sanitizeSlice(md.Identifiers)
	sanitizeSlice(md.Subjects)

	for i := range b.Spine {
		ch := &b.Spine[i]
		ch.ID = SanitizeText(ch.ID)
		ch.Href = SanitizeText(ch.Href)
		ch.Title = SanitizeText(ch.Title)
		ch.Content = SanitizeText(ch.Content)
		ch.Text = SanitizeText(ch.Text)
	}

	sanitizeTOC(b.TOC)

	if len(b.Images) > 0 {
		images := make(map[string]string, len(b.Images))
		for k, v := range b.Images {
			images[SanitizeText(k)] = SanitizeText(v)
		}
		b.Images = images
	}

	b.SourceFile = SanitizeText(b.SourceFile)
	b.CoverImage = SanitizeText(b.CoverImage)

	for num, pd := range b.PDFPageData {
		for i := range pd.Annotations {
			an := &pd.Annotations[i]
			an.Type = SanitizeText(an.Type)
			an.Content = SanitizeText(an.Content)
			an.Author = SanitizeText(an.Author)
			an.Created = SanitizeText(an.Created)
		}
		pd.Error = SanitizeText(pd.Error)
		b.PDFPageData[num] = pd
	}
}

func sanitizeSlice(ss []string) {
	for i := range ss {
		ss[i] = SanitizeText(ss[i])
	}
}

func sanitizeTOC(entries []TOCEntry) {
	for i := range entries {
		e := &entries[i]
		e.Title = SanitizeText(e.Title)
		e.Href = SanitizeText(e.Href)
		e.FileHref = SanitizeText(e.FileHref)
		e.Anchor = SanitizeText(e.Anchor)
		sanitizeTOC(e.Children)
	}
}
