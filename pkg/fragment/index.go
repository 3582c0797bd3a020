package fragment

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"linkcheck/pkg/models"
)

// htmlAnchorPattern finds id= and name= attributes inside raw HTML embedded
// in markdown documents, where no full tree is built.
var htmlAnchorPattern = regexp.MustCompile(`(?i)\b(id|name)\s*=\s*["']([^"']+)["']`)

// Index is the set of anchor ids reachable in one document. Markdown-derived
// heading slugs match case-insensitively; explicit HTML ids match exactly
// after percent-decoding.
type Index struct {
	ids      map[string]bool // exact: HTML id= and a[name=]
	headings map[string]bool // lower-cased heading slugs
}

func newIndex() *Index {
	return &Index{ids: make(map[string]bool), headings: make(map[string]bool)}
}

// Build constructs the index for one document according to its content kind.
// Plaintext documents have no anchors.
func Build(kind models.ContentKind, content []byte) *Index {
	switch kind {
	case models.ContentMarkdown:
		return fromMarkdown(content)
	case models.ContentHTML:
		return fromHTML(content)
	}
	return newIndex()
}

// Contains reports whether the fragment resolves to an anchor. The empty
// fragment and "top" always do. The GitHub "user-content-" prefix is
// accepted in either direction.
func (i *Index) Contains(fragment string) bool {
	if fragment == "" || fragment == "top" {
		return true
	}
	decoded := fragment
	if d, err := url.PathUnescape(fragment); err == nil {
		decoded = d
	}
	if i.ids[decoded] {
		return true
	}
	lower := strings.ToLower(decoded)
	if i.headings[lower] {
		return true
	}
	if trimmed := strings.TrimPrefix(lower, "user-content-"); trimmed != lower && i.headings[trimmed] {
		return true
	}
	if trimmed := strings.TrimPrefix(decoded, "user-content-"); trimmed != decoded && i.ids[trimmed] {
		return true
	}
	return i.ids["user-content-"+decoded] || i.headings["user-content-"+lower]
}

// Len returns the number of distinct anchors.
func (i *Index) Len() int { return len(i.ids) + len(i.headings) }

// fromMarkdown walks the goldmark AST collecting heading slugs and any raw
// HTML anchors embedded in the document.
func fromMarkdown(content []byte) *Index {
	idx := newIndex()
	reader := text.NewReader(content)
	parser := goldmark.DefaultParser()
	doc := parser.Parse(reader)

	seen := make(map[string]int)
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			var buf bytes.Buffer
			collectText(node, content, &buf)
			if buf.Len() == 0 {
				return ast.WalkContinue, nil
			}
			slug := Slugify(buf.String())
			if slug == "" {
				return ast.WalkContinue, nil
			}
			// Repeated headings get numeric suffixes, matching rendered ids
			if n, dup := seen[slug]; dup {
				seen[slug] = n + 1
				slug = fmt.Sprintf("%s-%d", slug, n)
			} else {
				seen[slug] = 1
			}
			idx.headings[slug] = true
		case *ast.RawHTML:
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				idx.addRawAnchors(seg.Value(content))
			}
		case *ast.HTMLBlock:
			for i := 0; i < node.Lines().Len(); i++ {
				seg := node.Lines().At(i)
				idx.addRawAnchors(seg.Value(content))
			}
		}
		return ast.WalkContinue, nil
	})
	return idx
}

func collectText(n ast.Node, content []byte, buf *bytes.Buffer) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if textNode, ok := child.(*ast.Text); ok {
			buf.Write(textNode.Segment.Value(content))
			continue
		}
		collectText(child, content, buf)
	}
}

func (i *Index) addRawAnchors(raw []byte) {
	for _, m := range htmlAnchorPattern.FindAllSubmatch(raw, -1) {
		i.ids[string(m[2])] = true
	}
}

// fromHTML collects every id attribute plus legacy anchor names.
func fromHTML(content []byte) *Index {
	idx := newIndex()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return idx
	}
	doc.Find("[id]").Each(func(_ int, sel *goquery.Selection) {
		if id, ok := sel.Attr("id"); ok && id != "" {
			idx.ids[id] = true
		}
	})
	doc.Find("a[name]").Each(func(_ int, sel *goquery.Selection) {
		if name, ok := sel.Attr("name"); ok && name != "" {
			idx.ids[name] = true
		}
	})
	return idx
}

// Slugify turns a heading text into its GitHub-style anchor id: lower-cased,
// spaces become hyphens, everything else non-alphanumeric is dropped.
func Slugify(heading string) string {
	var b strings.Builder
	b.Grow(len(heading))
	for _, r := range strings.TrimSpace(strings.ToLower(heading)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return b.String()
}
