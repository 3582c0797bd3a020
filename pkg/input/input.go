package input

import (
	"os"
	"path/filepath"
	"strings"

	"linkcheck/pkg/models"
)

// markdownExtensions and htmlExtensions drive content kind detection.
var markdownExtensions = map[string]bool{
	"md": true, "mkd": true, "mdx": true, "mdown": true, "markdown": true,
}

var htmlExtensions = map[string]bool{
	"html": true, "htm": true,
}

// DefaultExtensions is the file extension set scanned in directory walks
// when the user does not pass --extensions.
var DefaultExtensions = []string{"md", "mkd", "mdx", "mdown", "markdown", "html", "htm", "txt"}

// ParseSource turns a user-supplied input string into an InputSource.
// "-" means stdin, anything with an http(s) scheme is remote, glob
// metacharacters make it a glob, everything else is a literal path.
func ParseSource(value string) models.InputSource {
	switch {
	case value == "-":
		return models.InputSource{Kind: models.SourceStdin}
	case strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://"):
		return models.InputSource{Kind: models.SourceRemoteURL, Value: value}
	case strings.ContainsAny(value, "*?[{"):
		return models.InputSource{Kind: models.SourceFsGlob, Value: ExpandTilde(value)}
	default:
		return models.InputSource{Kind: models.SourceFsPath, Value: ExpandTilde(value)}
	}
}

// ExpandTilde rewrites a leading ~/ against the current user's home
// directory. A lone "~" expands to the home directory itself.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// KindForPath derives the content kind from the file extension.
// defaultExtension applies when the path has no extension. ok is false when
// the extension is recognized as neither markdown, HTML nor plaintext.
func KindForPath(path, defaultExtension string) (models.ContentKind, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		ext = strings.ToLower(defaultExtension)
	}
	switch {
	case markdownExtensions[ext]:
		return models.ContentMarkdown, true
	case htmlExtensions[ext]:
		return models.ContentHTML, true
	case ext == "txt" || ext == "text" || ext == "":
		return models.ContentPlaintext, true
	}
	return models.ContentPlaintext, false
}

// IsHidden reports whether any path segment starts with a dot.
func IsHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
