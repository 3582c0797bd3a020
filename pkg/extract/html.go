package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"linkcheck/pkg/models"
)

// tagAttrs maps an element name to the attributes that may carry URIs.
var tagAttrs = map[string][]string{
	"a":          {"href"},
	"area":       {"href"},
	"img":        {"src", "srcset"},
	"link":       {"href"},
	"script":     {"src"},
	"iframe":     {"src"},
	"source":     {"src", "srcset"},
	"audio":      {"src"},
	"video":      {"src", "poster"},
	"track":      {"src"},
	"embed":      {"src"},
	"object":     {"data"},
	"input":      {"src"},
	"form":       {"action"},
	"blockquote": {"cite"},
	"q":          {"cite"},
	"ins":        {"cite"},
	"del":        {"cite"},
	"body":       {"background"},
}

// skippedRels are link-rel values that name DNS hints rather than resources.
var skippedRels = map[string]bool{
	"dns-prefetch": true,
	"preconnect":   true,
}

// extractHTML walks the full HTML5 tree collecting URIs from the attribute
// set appropriate to each tag. Element text content is never treated as a
// URL, and the RDFa prefix attribute is never extracted.
func (e *Extractor) extractHTML(content []byte) []models.RawUri {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		if e.log != nil {
			e.log.Warnf("Skipping malformed HTML: %v", err)
		}
		return nil
	}

	finder := &spanFinder{content: content}
	var uris []models.RawUri

	add := func(tag, attr, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		uris = append(uris, models.RawUri{
			Text:      value,
			Span:      finder.find(value),
			Element:   tag,
			Attribute: attr,
		})
	}

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		if len(sel.Nodes) == 0 {
			return
		}
		tag := sel.Nodes[0].Data

		if tag == "meta" {
			if u := metaRefreshURL(sel); u != "" {
				add(tag, "content", u)
			}
			return
		}

		attrs, ok := tagAttrs[tag]
		if !ok {
			return
		}
		if tag == "link" && skipLink(sel) {
			return
		}
		if tag == "input" {
			if t, _ := sel.Attr("type"); !strings.EqualFold(t, "image") {
				return
			}
		}

		for _, attr := range attrs {
			value, exists := sel.Attr(attr)
			if !exists {
				continue
			}
			if attr == "srcset" {
				for _, u := range ParseSrcset(value) {
					add(tag, attr, u)
				}
				continue
			}
			add(tag, attr, value)
		}
	})

	return uris
}

// skipLink filters <link> elements that do not reference checkable
// resources: DNS hints and disabled stylesheets.
func skipLink(sel *goquery.Selection) bool {
	rel, _ := sel.Attr("rel")
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if skippedRels[r] {
			return true
		}
		if r == "stylesheet" {
			if _, disabled := sel.Attr("disabled"); disabled {
				return true
			}
		}
	}
	return false
}

// metaRefreshURL extracts the target of <meta http-equiv="refresh"
// content="0; url=https://...">.
func metaRefreshURL(sel *goquery.Selection) string {
	equiv, _ := sel.Attr("http-equiv")
	if !strings.EqualFold(equiv, "refresh") {
		return ""
	}
	content, _ := sel.Attr("content")
	for _, part := range strings.Split(content, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 4 && strings.EqualFold(part[:4], "url=") {
			return strings.Trim(part[4:], `'" `)
		}
	}
	return ""
}
