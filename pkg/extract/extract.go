package extract

import (
	"bytes"

	"github.com/sirupsen/logrus"

	"linkcheck/pkg/models"
)

// Extractor discovers raw URIs in collected content, dispatching on the
// content kind. Extraction is pure: running it twice on the same content
// yields the same URIs.
type Extractor struct {
	// IncludeVerbatim also extracts from code blocks and spans.
	IncludeVerbatim bool
	// IncludeWikilinks enables [[wikilink]] extraction in markdown.
	IncludeWikilinks bool
	log              *logrus.Entry
}

// New creates an Extractor.
func New(includeVerbatim, includeWikilinks bool, log *logrus.Entry) *Extractor {
	return &Extractor{
		IncludeVerbatim:  includeVerbatim,
		IncludeWikilinks: includeWikilinks,
		log:              log,
	}
}

// Extract returns every raw URI found in the content, in document order.
func (e *Extractor) Extract(content *models.InputContent) []models.RawUri {
	switch content.Kind {
	case models.ContentMarkdown:
		return e.extractMarkdown(content.Bytes)
	case models.ContentHTML:
		return e.extractHTML(content.Bytes)
	default:
		return e.extractPlaintext(content.Bytes)
	}
}

// spanFinder attributes byte offsets to extracted strings by scanning
// forward through the content. Extraction walks documents in order, so a
// monotonically advancing cursor finds the right occurrence even when the
// same URL appears twice.
type spanFinder struct {
	content []byte
	pos     int
}

func (f *spanFinder) find(text string) int {
	if text == "" || f.pos >= len(f.content) {
		return -1
	}
	idx := indexFrom(f.content, text, f.pos)
	if idx < 0 {
		// Fall back to a full scan for out-of-order matches
		idx = indexFrom(f.content, text, 0)
		if idx < 0 {
			return -1
		}
		return idx
	}
	f.pos = idx + len(text)
	return idx
}

func indexFrom(content []byte, text string, from int) int {
	if from >= len(content) {
		return -1
	}
	idx := bytes.Index(content[from:], []byte(text))
	if idx < 0 {
		return -1
	}
	return from + idx
}
