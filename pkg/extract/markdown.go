package extract

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"linkcheck/pkg/models"
)

var wikilinkPattern = regexp.MustCompile(`\[\[([^\]|#]+)(?:#[^\]|]*)?(?:\|[^\]]*)?\]\]`)

// extractMarkdown walks the goldmark AST collecting link destinations from
// autolinks, inline links, reference links and image sources. Code blocks
// and spans are skipped unless IncludeVerbatim is set, in which case their
// text is linkified like plaintext.
func (e *Extractor) extractMarkdown(content []byte) []models.RawUri {
	parser := goldmark.New(goldmark.WithExtensions(extension.Linkify)).Parser()
	doc := parser.Parse(text.NewReader(content))

	finder := &spanFinder{content: content}
	var uris []models.RawUri

	add := func(dest string) {
		dest = strings.TrimSpace(dest)
		if dest == "" {
			return
		}
		uris = append(uris, models.RawUri{Text: dest, Span: finder.find(dest)})
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			// Inline and resolved reference links share the node type
			add(string(node.Destination))
		case *ast.AutoLink:
			dest := string(node.URL(content))
			span := finder.find(dest)
			// Email autolinks come back as bare addresses
			if node.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(dest, "mailto:") {
				dest = "mailto:" + dest
			}
			if dest != "" {
				uris = append(uris, models.RawUri{Text: dest, Span: span})
			}
		case *ast.Image:
			add(string(node.Destination))
		case *ast.CodeSpan:
			if e.IncludeVerbatim {
				for _, raw := range e.extractPlaintext([]byte(node.Text(content))) {
					add(raw.Text)
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if e.IncludeVerbatim {
				uris = append(uris, e.linkifySegments(content, node.Lines())...)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if e.IncludeVerbatim {
				uris = append(uris, e.linkifySegments(content, node.Lines())...)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	if e.IncludeWikilinks {
		uris = append(uris, extractWikilinks(content)...)
	}
	return uris
}

// linkifySegments runs the plaintext extractor over raw source segments,
// keeping spans relative to the whole document.
func (e *Extractor) linkifySegments(content []byte, lines *text.Segments) []models.RawUri {
	var uris []models.RawUri
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		for _, raw := range e.extractPlaintext(seg.Value(content)) {
			if raw.Span >= 0 {
				raw.Span += seg.Start
			}
			uris = append(uris, raw)
		}
	}
	return uris
}

// extractWikilinks finds [[target]], [[target|label]] and [[target#frag]]
// forms. The target is returned as-is; the resolver completes it against the
// base URL (wikilink extraction requires one).
func extractWikilinks(content []byte) []models.RawUri {
	var uris []models.RawUri
	for _, m := range wikilinkPattern.FindAllSubmatchIndex(content, -1) {
		target := strings.TrimSpace(string(content[m[2]:m[3]]))
		if target == "" {
			continue
		}
		uris = append(uris, models.RawUri{Text: target, Span: m[2]})
	}
	return uris
}
