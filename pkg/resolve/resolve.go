package resolve

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"linkcheck/pkg/models"
	"linkcheck/pkg/uri"
	"linkcheck/pkg/utils"
)

// RemapRule rewrites URIs matching a pattern. The replacement may use
// capture group references in the regexp expansion syntax.
type RemapRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Resolver completes raw link text into absolute URIs. Relative links
// resolve against the originating file's directory when there is one,
// otherwise against the base URL. Absolute paths resolve under the root
// directory when configured.
type Resolver struct {
	BaseURL            *url.URL
	RootDir            string
	IndexFiles         []string
	FallbackExtensions []string
	Remaps             []RemapRule
}

// New validates the resolution settings. A relative base URL or relative
// root directory is a configuration error.
func New(baseURL, rootDir string, indexFiles, fallbackExtensions []string, remaps []RemapRule) (*Resolver, error) {
	r := &Resolver{
		RootDir:            rootDir,
		IndexFiles:         indexFiles,
		FallbackExtensions: fallbackExtensions,
		Remaps:             remaps,
	}
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || !parsed.IsAbs() {
			return nil, fmt.Errorf("%w: base URL must be absolute: %q", utils.ErrConfigValidation, baseURL)
		}
		r.BaseURL = parsed
	}
	if rootDir != "" && !filepath.IsAbs(rootDir) {
		return nil, fmt.Errorf("%w: root dir must be absolute: %q", utils.ErrConfigValidation, rootDir)
	}
	return r, nil
}

// Resolve turns one extracted link into a checkable URI. sourceFile is the
// path of the document the link came from, empty for non-file inputs.
func (r *Resolver) Resolve(raw models.RawUri, sourceFile string) (*uri.Uri, error) {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty link", utils.ErrInvalidURL)
	}

	if u, err := uri.Parse(text); err == nil {
		return r.remap(u)
	} else if hasScheme(text) {
		// Absolute but unparseable or unsupported; surface the parse error.
		return nil, err
	}

	u, err := r.resolveRelative(text, sourceFile)
	if err != nil {
		return nil, err
	}
	return r.remap(u)
}

// hasScheme reports whether the text already carries a URI scheme, which
// makes it absolute rather than a candidate for base resolution. A single
// letter before the colon is treated as a Windows drive, not a scheme.
func hasScheme(text string) bool {
	idx := strings.Index(text, ":")
	if idx <= 1 {
		return false
	}
	for _, c := range text[:idx] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}

func (r *Resolver) resolveRelative(text, sourceFile string) (*uri.Uri, error) {
	path, fragment := splitFragment(text)

	switch {
	case strings.HasPrefix(path, "/") && r.RootDir != "":
		return r.resolveFile(filepath.Join(r.RootDir, filepath.FromSlash(path)), fragment)
	case sourceFile != "":
		if path == "" {
			// Fragment-only link targets the source document itself.
			return fileURI(sourceFile, fragment)
		}
		target := filepath.Join(filepath.Dir(sourceFile), filepath.FromSlash(path))
		return r.resolveFile(target, fragment)
	case r.BaseURL != nil:
		ref, err := url.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", utils.ErrInvalidURL, text, err)
		}
		return uri.Parse(r.BaseURL.ResolveReference(ref).String())
	default:
		return nil, fmt.Errorf("%w: relative link %q with no file context or base URL", utils.ErrInvalidURL, text)
	}
}

// resolveFile maps a filesystem target to a file URI, probing index files
// for directories and fallback extensions for extension-less paths.
func (r *Resolver) resolveFile(path, fragment string) (*uri.Uri, error) {
	decoded := path
	if unescaped, err := url.PathUnescape(path); err == nil {
		decoded = unescaped
	}
	abs, err := filepath.Abs(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", utils.ErrInvalidFile, path, err)
	}

	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		for _, index := range r.IndexFiles {
			candidate := filepath.Join(abs, index)
			if _, err := os.Stat(candidate); err == nil {
				return fileURI(candidate, fragment)
			}
		}
		return fileURI(abs, fragment)
	}

	if filepath.Ext(abs) == "" {
		for _, ext := range r.FallbackExtensions {
			candidate := abs + "." + strings.TrimPrefix(ext, ".")
			if _, err := os.Stat(candidate); err == nil {
				return fileURI(candidate, fragment)
			}
		}
	}
	return fileURI(abs, fragment)
}

func fileURI(path, fragment string) (*uri.Uri, error) {
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path), Fragment: fragment}
	return uri.Parse(u.String())
}

func splitFragment(text string) (string, string) {
	if idx := strings.IndexByte(text, '#'); idx >= 0 {
		return text[:idx], text[idx+1:]
	}
	return text, ""
}

// remap applies the first matching rewrite rule. The rewritten text must
// parse as a valid URI again.
func (r *Resolver) remap(u *uri.Uri) (*uri.Uri, error) {
	if len(r.Remaps) == 0 {
		return u, nil
	}
	s := u.String()
	for _, rule := range r.Remaps {
		if !rule.Pattern.MatchString(s) {
			continue
		}
		rewritten := rule.Pattern.ReplaceAllString(s, rule.Replacement)
		mapped, err := uri.Parse(rewritten)
		if err != nil {
			return nil, fmt.Errorf("%w: remap of %q produced %q: %v", utils.ErrInvalidURL, s, rewritten, err)
		}
		return mapped, nil
	}
	return u, nil
}
