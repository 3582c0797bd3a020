package models

import (
	"linkcheck/pkg/uri"
)

// ContentKind identifies how a document's links get extracted.
type ContentKind int

const (
	ContentPlaintext ContentKind = iota
	ContentMarkdown
	ContentHTML
)

func (k ContentKind) String() string {
	switch k {
	case ContentMarkdown:
		return "markdown"
	case ContentHTML:
		return "html"
	}
	return "plaintext"
}

// SourceKind identifies where an input came from.
type SourceKind int

const (
	SourceFsPath SourceKind = iota
	SourceFsGlob
	SourceRemoteURL
	SourceStdin
	SourceString
)

func (k SourceKind) String() string {
	switch k {
	case SourceFsPath:
		return "path"
	case SourceFsGlob:
		return "glob"
	case SourceRemoteURL:
		return "url"
	case SourceStdin:
		return "stdin"
	}
	return "string"
}

// InputSource is a single enumerable source of content.
type InputSource struct {
	Kind SourceKind
	// Value holds the path, glob pattern, URL or raw string depending on Kind.
	Value string
}

func (s InputSource) String() string {
	switch s.Kind {
	case SourceStdin:
		return "<stdin>"
	case SourceString:
		return "<string>"
	}
	return s.Value
}

// Input pairs a source with optional per-input request headers and an
// explicit content kind hint overriding extension detection.
type Input struct {
	Source  InputSource
	Headers map[string]string
	// KindHint forces the content kind when non-nil.
	KindHint *ContentKind
}

// InputContent is the collected content of one source. Filesystem contents
// have passed the binary and UTF-8 check; stdin and remote contents are
// passed through as received, without that check.
type InputContent struct {
	Source InputSource
	// FilePath is set for filesystem sources; used for relative resolution
	// and local fragment checks.
	FilePath string
	Kind     ContentKind
	Bytes    []byte
}

// RawUri is a URI as discovered by an extractor, before resolution.
type RawUri struct {
	Text string
	// Span is the byte offset of Text within the originating content, or -1
	// when the extractor cannot attribute an offset.
	Span int
	// Element is the HTML tag name the URI was found on, if any.
	Element string
	// Attribute is the HTML attribute the URI was found in, if any.
	Attribute string
}

// Request is a resolved, filtered URI ready for checking. It moves forward
// through the pipeline and is never shared concurrently.
type Request struct {
	Uri    *uri.Uri
	Source InputSource
	// SourceFile is the local file that contained the link, if any.
	SourceFile string
	// Credentials holds basic-auth for this request, if matched.
	Credentials *BasicAuth
	// ExtraHeaders are merged into the outgoing HTTP request.
	ExtraHeaders map[string]string
}

// BasicAuth is a username/password pair applied to matching URIs.
type BasicAuth struct {
	Username string
	Password string
}

// Redirect records one hop of a followed redirect chain.
type Redirect struct {
	From string
	To   string
	Code int
}

// BodyMetadata captures the little we retain about a response body.
type BodyMetadata struct {
	ContentType   string
	ContentLength int64
}

// Response pairs a request with its terminal status.
type Response struct {
	Request *Request
	Status  Status
	Body    BodyMetadata
	// Redirects holds the followed chain, oldest hop first.
	Redirects []Redirect
}
