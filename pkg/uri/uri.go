package uri

import (
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strings"

	"linkcheck/pkg/utils"
)

// Kind classifies a parsed URI by the way it gets checked.
type Kind int

const (
	// KindWebsite is an http or https URL checked over the network.
	KindWebsite Kind = iota
	// KindMail is a mailto address checked syntactically.
	KindMail
	// KindFileLocal is a file URL checked against the local filesystem.
	KindFileLocal
)

func (k Kind) String() string {
	switch k {
	case KindWebsite:
		return "website"
	case KindMail:
		return "mail"
	case KindFileLocal:
		return "file"
	}
	return "unknown"
}

// Uri is a validated absolute URI. The zero value is not valid; use Parse.
type Uri struct {
	url  *url.URL
	kind Kind
}

// Parse parses s strictly (scheme required) and classifies it.
// Schemes other than http/https/mailto/file fail with ErrUnsupported.
func Parse(s string) (*Uri, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", utils.ErrInvalidURL, s, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q: missing scheme", utils.ErrInvalidURL, s)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q: missing host", utils.ErrInvalidURL, s)
		}
		return &Uri{url: u, kind: KindWebsite}, nil
	case "mailto":
		addr := u.Opaque
		if addr == "" {
			addr = u.Path
		}
		// Strip mailto query params (subject=, body=) before address validation
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if _, err := mail.ParseAddress(addr); err != nil {
			return nil, fmt.Errorf("%w: %q: invalid mail address: %v", utils.ErrInvalidURL, s, err)
		}
		return &Uri{url: u, kind: KindMail}, nil
	case "file":
		if !strings.HasPrefix(u.Path, "/") {
			return nil, fmt.Errorf("%w: %q: file URI path must be absolute", utils.ErrInvalidURL, s)
		}
		return &Uri{url: u, kind: KindFileLocal}, nil
	default:
		return nil, fmt.Errorf("%w: %q", utils.ErrUnsupported, u.Scheme)
	}
}

// FromURL wraps an already parsed *url.URL, applying the same classification
// rules as Parse.
func FromURL(u *url.URL) (*Uri, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: nil URL", utils.ErrInvalidURL)
	}
	return Parse(u.String())
}

// Kind returns the URI classification.
func (u *Uri) Kind() Kind { return u.kind }

// URL returns a copy of the underlying parsed URL.
func (u *Uri) URL() *url.URL {
	cp := *u.url
	return &cp
}

// Scheme returns the lower-cased scheme.
func (u *Uri) Scheme() string { return strings.ToLower(u.url.Scheme) }

// Host returns the lower-cased host without port. Empty for mail and file URIs.
func (u *Uri) Host() string { return strings.ToLower(u.url.Hostname()) }

// HostPort returns "host:port" with the host lower-cased and the default
// port stripped. Used as the per-host pacing key.
func (u *Uri) HostPort() string {
	host := strings.ToLower(u.url.Hostname())
	port := u.url.Port()
	if port == "" || isDefaultPort(u.Scheme(), port) {
		return host
	}
	return net.JoinHostPort(host, port)
}

// Path returns the URL path.
func (u *Uri) Path() string { return u.url.Path }

// Fragment returns the raw fragment without the leading '#'.
func (u *Uri) Fragment() string { return u.url.Fragment }

// MailAddress returns the address part of a mailto URI, without query params.
func (u *Uri) MailAddress() string {
	if u.kind != KindMail {
		return ""
	}
	addr := u.url.Opaque
	if addr == "" {
		addr = u.url.Path
	}
	if i := strings.IndexByte(addr, '?'); i >= 0 {
		addr = addr[:i]
	}
	return addr
}

// FilePath returns the absolute filesystem path of a file URI.
func (u *Uri) FilePath() string {
	if u.kind != KindFileLocal {
		return ""
	}
	return u.url.Path
}

// String returns the URI in its original serialized form.
func (u *Uri) String() string { return u.url.String() }

// WithoutFragment returns a copy of the URI with the fragment removed.
func (u *Uri) WithoutFragment() *Uri {
	cp := *u.url
	cp.Fragment = ""
	cp.RawFragment = ""
	return &Uri{url: &cp, kind: u.kind}
}

// WithURL returns a copy of the URI with the underlying URL replaced,
// re-classifying against the new scheme.
func (u *Uri) WithURL(nu *url.URL) (*Uri, error) {
	return FromURL(nu)
}

// Fingerprint returns the canonical serialization used for equality and as
// the cache key: lower-case scheme and host, default port stripped,
// percent-normalized path, query preserved verbatim, fragment dropped.
func (u *Uri) Fingerprint() string {
	n := *u.url
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = normalizeHost(n.Scheme, n.Host)
	// Normalize the escaped form so reserved characters like %2F stay
	// distinct from their literal counterparts.
	esc := normalizePath(u.url.EscapedPath())
	if p, err := url.PathUnescape(esc); err == nil {
		n.Path = p
	}
	n.RawPath = esc
	n.Fragment = ""
	n.RawFragment = ""
	return n.String()
}

// Equivalent reports whether two URIs share the same fingerprint.
func (u *Uri) Equivalent(other *Uri) bool {
	if other == nil {
		return false
	}
	return u.Fingerprint() == other.Fingerprint()
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if isDefaultPort(scheme, port) {
		return h
	}
	return host
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// normalizePath collapses percent-encodings of unreserved characters so that
// "/%7Efoo" and "/~foo" compare equal. Reserved characters keep their
// encoded form. A trailing slash is preserved (directory semantics).
func normalizePath(p string) string {
	if p == "" {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); {
		c := p[i]
		if c == '%' && i+2 < len(p) {
			hi, ok1 := unhex(p[i+1])
			lo, ok2 := unhex(p[i+2])
			if ok1 && ok2 {
				decoded := hi<<4 | lo
				if isUnreserved(decoded) {
					b.WriteByte(decoded)
					i += 3
					continue
				}
				// Keep encoded but upper-case the hex digits
				b.WriteByte('%')
				b.WriteByte(upperHex(p[i+1]))
				b.WriteByte(upperHex(p[i+2]))
				i += 3
				continue
			}
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func upperHex(c byte) byte {
	if 'a' <= c && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
