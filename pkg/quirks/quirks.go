package quirks

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"linkcheck/pkg/models"
)

var (
	cratesPattern       = regexp.MustCompile(`^(https?://)?(www\.)?crates\.io`)
	youtubePattern      = regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com`)
	youtubeShortPattern = regexp.MustCompile(`^(https?://)?(www\.)?youtu\.?be`)
)

// Quirk is one site-specific adjustment. Pattern is matched against the full
// request URL; Rewrite may mutate the outgoing request and Classify may
// override the status derived from the response. Either hook may be nil.
type Quirk struct {
	Name     string
	Pattern  *regexp.Regexp
	Rewrite  func(*http.Request)
	Classify func(*http.Response) (models.Status, bool)
}

// Chain is a flat ordered list of quirks. Only the first quirk whose pattern
// matches the URL applies; the rest are skipped.
type Chain struct {
	quirks []Quirk
}

// NewChain builds the default quirk chain.
func NewChain() *Chain {
	return &Chain{quirks: []Quirk{
		{
			// crates.io serves HTML only when asked for it; the default
			// Accept yields a 404 for crate pages.
			Name:    "crates.io-accept",
			Pattern: cratesPattern,
			Rewrite: func(req *http.Request) {
				req.Header.Set("Accept", "text/html")
			},
		},
		{
			// Watch pages respond 200 even for missing videos. Probe the
			// thumbnail endpoint instead, which 404s for unknown ids.
			Name:    "youtube-watch",
			Pattern: youtubePattern,
			Rewrite: func(req *http.Request) {
				if req.URL.Path != "/watch" {
					return
				}
				id := req.URL.Query().Get("v")
				if id == "" {
					return
				}
				req.URL = thumbnailURL(id)
				req.Host = ""
			},
		},
		{
			Name:    "youtube-short",
			Pattern: youtubeShortPattern,
			Rewrite: func(req *http.Request) {
				id := strings.TrimPrefix(req.URL.Path, "/")
				if id == "" {
					return
				}
				req.URL = thumbnailURL(id)
				req.Host = ""
			},
		},
	}}
}

// Register appends a quirk to the chain.
func (c *Chain) Register(q Quirk) { c.quirks = append(c.quirks, q) }

// Apply runs the first matching quirk's rewrite against req and returns the
// quirk so the caller can later consult its Classify hook.
func (c *Chain) Apply(req *http.Request) *Quirk {
	urlStr := req.URL.String()
	for i := range c.quirks {
		q := &c.quirks[i]
		if q.Pattern.MatchString(urlStr) {
			if q.Rewrite != nil {
				q.Rewrite(req)
			}
			return q
		}
	}
	return nil
}

func thumbnailURL(id string) *url.URL {
	return &url.URL{
		Scheme: "https",
		Host:   "img.youtube.com",
		Path:   "/vi/" + id + "/0.jpg",
	}
}
