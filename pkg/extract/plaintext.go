package extract

import (
	"gitlab.com/golang-commonmark/linkify"

	"linkcheck/pkg/models"
)

// extractPlaintext finds bare URLs and mail addresses in free text. The
// linkifier already excludes trailing punctuation, so "see https://a.test."
// yields "https://a.test".
func (e *Extractor) extractPlaintext(content []byte) []models.RawUri {
	s := string(content)
	var uris []models.RawUri
	for _, link := range linkify.Links(s) {
		text := s[link.Start:link.End]
		switch link.Scheme {
		case "":
			// Bare domain like www.example.com
			text = "http://" + text
		case "mailto:":
			text = "mailto:" + text
		}
		uris = append(uris, models.RawUri{Text: text, Span: link.Start})
	}
	return uris
}
