package filter

import (
	"net/netip"
	"regexp"
	"strings"

	"linkcheck/pkg/uri"
)

// Filter decides which resolved URIs are actually checked. The checks run
// in a fixed order: include patterns, exclude patterns, scheme allow-list,
// mail toggle, IP class exclusions, path exclusions. The first rule that
// rejects wins and the reason names it.
type Filter struct {
	Include      []*regexp.Regexp
	Exclude      []*regexp.Regexp
	ExcludePaths []*regexp.Regexp

	Schemes     map[string]bool
	IncludeMail bool

	ExcludePrivate   bool
	ExcludeLinkLocal bool
	ExcludeLoopback  bool

	Offline bool
}

// Options mirrors the policy settings the filter is built from.
type Options struct {
	Include          []string
	Exclude          []string
	ExcludePath      []string
	Schemes          []string
	IncludeMail      bool
	ExcludePrivate   bool
	ExcludeLinkLocal bool
	ExcludeLoopback  bool
	ExcludeAll       bool
	Offline          bool
}

// New compiles the policy. Patterns are assumed pre-validated by the
// configuration layer; invalid ones are skipped here.
func New(opts Options) *Filter {
	f := &Filter{
		IncludeMail:      opts.IncludeMail,
		ExcludePrivate:   opts.ExcludePrivate || opts.ExcludeAll,
		ExcludeLinkLocal: opts.ExcludeLinkLocal || opts.ExcludeAll,
		ExcludeLoopback:  opts.ExcludeLoopback || opts.ExcludeAll,
		Offline:          opts.Offline,
	}
	f.Include = compileAll(opts.Include)
	f.Exclude = compileAll(opts.Exclude)
	f.ExcludePaths = compileAll(opts.ExcludePath)
	if len(opts.Schemes) > 0 {
		f.Schemes = make(map[string]bool, len(opts.Schemes))
		for _, s := range opts.Schemes {
			f.Schemes[strings.ToLower(s)] = true
		}
	}
	return f
}

func compileAll(patterns []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			out = append(out, re)
		}
	}
	return out
}

// Excluded reports whether the URI is filtered out, with a short reason
// for the status record. Include patterns override every later rule.
func (f *Filter) Excluded(u *uri.Uri) (string, bool) {
	s := u.String()

	if len(f.Include) > 0 {
		if matchAny(f.Include, s) {
			return "", false
		}
		return "not in include patterns", true
	}
	if matchAny(f.Exclude, s) {
		return "matches exclude pattern", true
	}
	if f.Schemes != nil && !f.Schemes[u.Scheme()] {
		return "scheme not allowed: " + u.Scheme(), true
	}
	if u.Kind() == uri.KindMail && !f.IncludeMail {
		return "mail checking disabled", true
	}
	if reason, excluded := f.excludedIP(u); excluded {
		return reason, true
	}
	if u.Kind() == uri.KindFileLocal && matchAny(f.ExcludePaths, u.FilePath()) {
		return "matches excluded path", true
	}
	if f.Offline && u.Kind() == uri.KindWebsite {
		return "offline mode", true
	}
	return "", false
}

// SkipInputPath reports whether a source document path is excluded from
// scanning. Path exclusions apply to both sides: documents read and file
// links checked.
func (f *Filter) SkipInputPath(path string) bool {
	return matchAny(f.ExcludePaths, path)
}

// excludedIP applies the private, link-local and loopback classes to hosts
// that are IP literals. Hostnames are never resolved here.
func (f *Filter) excludedIP(u *uri.Uri) (string, bool) {
	if u.Kind() != uri.KindWebsite {
		return "", false
	}
	host := strings.Trim(u.Host(), "[]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		if f.ExcludeLoopback && strings.EqualFold(host, "localhost") {
			return "loopback address excluded", true
		}
		return "", false
	}
	switch {
	case f.ExcludeLoopback && addr.IsLoopback():
		return "loopback address excluded", true
	case f.ExcludeLinkLocal && (addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()):
		return "link-local address excluded", true
	case f.ExcludePrivate && addr.IsPrivate():
		return "private address excluded", true
	}
	return "", false
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
