package input

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"

	"linkcheck/pkg/models"
	"linkcheck/pkg/utils"
)

// Collector resolves input sources into document contents. Directory walks,
// globs, stdin and remote URLs all funnel through the same channel so the
// extractor can start before collection finishes.
type Collector struct {
	Extensions       []string
	DefaultExtension string
	GlobIgnoreCase   bool
	Hidden           bool
	NoIgnore         bool
	SkipMissing      bool

	httpClient *http.Client
	log        *logrus.Entry
}

// Item carries one collected document or the error that prevented collecting
// it. A failed input never stops the other inputs.
type Item struct {
	Content models.InputContent
	Err     error
}

// NewCollector builds a collector with the given options. A nil httpClient
// gets a default with a 20 second timeout for remote inputs.
func NewCollector(log *logrus.Entry, httpClient *http.Client) *Collector {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Collector{
		Extensions:       DefaultExtensions,
		DefaultExtension: "md",
		httpClient:       httpClient,
		log:              log,
	}
}

// Collect streams the contents of all inputs. The returned channel is closed
// once every input has been visited or the context is cancelled.
func (c *Collector) Collect(ctx context.Context, inputs []models.Input) <-chan Item {
	out := make(chan Item)
	go func() {
		defer close(out)
		for _, in := range inputs {
			if ctx.Err() != nil {
				return
			}
			c.collectOne(ctx, in, out)
		}
	}()
	return out
}

func (c *Collector) collectOne(ctx context.Context, in models.Input, out chan<- Item) {
	switch in.Source.Kind {
	case models.SourceStdin:
		c.emit(ctx, out, c.readStdin(in))
	case models.SourceString:
		kind := models.ContentPlaintext
		if in.KindHint != nil {
			kind = *in.KindHint
		}
		c.emit(ctx, out, Item{Content: models.InputContent{
			Source: in.Source,
			Kind:   kind,
			Bytes:  []byte(in.Source.Value),
		}})
	case models.SourceRemoteURL:
		c.emit(ctx, out, c.fetchRemote(ctx, in))
	case models.SourceFsGlob:
		c.collectGlob(ctx, in, out)
	case models.SourceFsPath:
		c.collectPath(ctx, in, out)
	}
}

func (c *Collector) emit(ctx context.Context, out chan<- Item, item Item) {
	if item.Err == nil && item.Content.Bytes == nil {
		// Skipped file (binary, wrong extension, missing with skip enabled).
		return
	}
	select {
	case out <- item:
	case <-ctx.Done():
	}
}

func (c *Collector) readStdin(in models.Input) Item {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return Item{Err: fmt.Errorf("%w: reading stdin: %v", utils.ErrUnreadableInput, err)}
	}
	kind := models.ContentPlaintext
	if in.KindHint != nil {
		kind = *in.KindHint
	}
	return Item{Content: models.InputContent{
		Source: in.Source,
		Kind:   kind,
		Bytes:  data,
	}}
}

func (c *Collector) fetchRemote(ctx context.Context, in models.Input) Item {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.Source.Value, nil)
	if err != nil {
		return Item{Err: fmt.Errorf("%w: %s: %v", utils.ErrRequestCreation, in.Source.Value, err)}
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Item{Err: fmt.Errorf("%w: fetching %s: %v", utils.ErrNetworkTransport, in.Source.Value, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Item{Err: fmt.Errorf("%w: fetching %s: status %d",
			utils.ErrUnreadableInput, in.Source.Value, resp.StatusCode)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Item{Err: fmt.Errorf("%w: reading %s: %v", utils.ErrResponseBodyRead, in.Source.Value, err)}
	}

	kind := models.ContentPlaintext
	if in.KindHint != nil {
		kind = *in.KindHint
	} else if k, ok := kindForContentType(resp.Header.Get("Content-Type")); ok {
		kind = k
	} else if k, ok := KindForPath(req.URL.Path, ""); ok {
		kind = k
	}
	return Item{Content: models.InputContent{
		Source: in.Source,
		Kind:   kind,
		Bytes:  data,
	}}
}

func kindForContentType(value string) (models.ContentKind, bool) {
	mediaType := strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
	switch strings.ToLower(mediaType) {
	case "text/html", "application/xhtml+xml":
		return models.ContentHTML, true
	case "text/markdown":
		return models.ContentMarkdown, true
	case "text/plain":
		return models.ContentPlaintext, true
	}
	return models.ContentPlaintext, false
}

func (c *Collector) collectPath(ctx context.Context, in models.Input, out chan<- Item) {
	path := in.Source.Value
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) && c.SkipMissing {
			c.log.WithFields(logrus.Fields{"path": path}).Debug("Skipping missing input")
			return
		}
		c.emit(ctx, out, Item{Err: fmt.Errorf("%w: %s: %v", utils.ErrUnreadableInput, path, err)})
		return
	}
	if info.IsDir() {
		c.walkDir(ctx, path, in, out)
		return
	}
	// An explicitly named file is read regardless of extension filters.
	c.emit(ctx, out, c.readFile(path, in, true))
}

func (c *Collector) collectGlob(ctx context.Context, in models.Input, out chan<- Item) {
	pattern := filepath.ToSlash(in.Source.Value)
	base, rest := doublestar.SplitPattern(pattern)
	if c.GlobIgnoreCase {
		rest = strings.ToLower(rest)
	}

	matched := 0
	fsys := os.DirFS(base)
	err := doublestar.GlobWalk(fsys, patternOrAll(rest, c.GlobIgnoreCase), func(p string, d os.DirEntry) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if c.GlobIgnoreCase {
			ok, matchErr := doublestar.Match(rest, strings.ToLower(p))
			if matchErr != nil || !ok {
				return nil
			}
		}
		full := filepath.Join(base, filepath.FromSlash(p))
		if !c.Hidden && IsHidden(p) {
			return nil
		}
		matched++
		c.emit(ctx, out, c.readFile(full, in, true))
		return nil
	})
	if err != nil && ctx.Err() == nil {
		c.emit(ctx, out, Item{Err: fmt.Errorf("%w: %s: %v", utils.ErrGlobPattern, in.Source.Value, err)})
		return
	}
	if matched == 0 && !c.SkipMissing && ctx.Err() == nil {
		c.emit(ctx, out, Item{Err: fmt.Errorf("%w: glob matched no files: %s",
			utils.ErrUnreadableInput, in.Source.Value)})
	}
}

// patternOrAll widens a lowercased pattern to a full walk so case-insensitive
// matching can be applied per-path. Case-sensitive globs run as-is.
func patternOrAll(pattern string, ignoreCase bool) string {
	if ignoreCase {
		return "**"
	}
	return pattern
}

func (c *Collector) walkDir(ctx context.Context, root string, in models.Input, out chan<- Item) {
	ignorers := c.loadIgnorers(root)
	extensions := c.extensionSet()

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.log.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Skipping unreadable entry")
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if rel == "." {
			return nil
		}
		if !c.Hidden && IsHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !c.NoIgnore && matchesIgnore(ignorers, rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if !extensions[ext] {
			return nil
		}
		c.emit(ctx, out, c.readFile(path, in, false))
		return nil
	})
	if err != nil && ctx.Err() == nil {
		c.emit(ctx, out, Item{Err: fmt.Errorf("%w: walking %s: %v", utils.ErrUnreadableInput, root, err)})
	}
}

// loadIgnorers collects .gitignore files from the walk root and its parents
// up to the filesystem root. Closer files are consulted first.
func (c *Collector) loadIgnorers(root string) []ignoreFile {
	if c.NoIgnore {
		return nil
	}
	var files []ignoreFile
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	dir := abs
	for {
		path := filepath.Join(dir, ".gitignore")
		if ign, err := gitignore.CompileIgnoreFile(path); err == nil && ign != nil {
			files = append(files, ignoreFile{matcher: ign, dir: dir, root: abs})
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return files
}

type ignoreFile struct {
	matcher *gitignore.GitIgnore
	dir     string
	root    string
}

func matchesIgnore(files []ignoreFile, rel string, isDir bool) bool {
	for _, f := range files {
		// Rebase the path onto the directory holding the .gitignore.
		full := filepath.Join(f.root, rel)
		sub, err := filepath.Rel(f.dir, full)
		if err != nil || strings.HasPrefix(sub, "..") {
			continue
		}
		candidate := filepath.ToSlash(sub)
		if isDir {
			candidate += "/"
		}
		if f.matcher.MatchesPath(candidate) {
			return true
		}
	}
	return false
}

func (c *Collector) extensionSet() map[string]bool {
	set := make(map[string]bool, len(c.Extensions))
	for _, ext := range c.Extensions {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return set
}

// readFile loads one file, deciding its content kind from the extension.
// Binary files are skipped with a warning rather than treated as errors.
func (c *Collector) readFile(path string, in models.Input, explicit bool) Item {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && c.SkipMissing {
			return Item{}
		}
		return Item{Err: fmt.Errorf("%w: %s: %v", utils.ErrUnreadableInput, path, err)}
	}
	if isBinary(data) {
		c.log.WithFields(logrus.Fields{"path": path}).Warn("Skipping binary file")
		return Item{}
	}

	kind := models.ContentPlaintext
	if in.KindHint != nil {
		kind = *in.KindHint
	} else if k, ok := KindForPath(path, c.DefaultExtension); ok {
		kind = k
	} else if !explicit {
		return Item{}
	}
	return Item{Content: models.InputContent{
		Source:   in.Source,
		FilePath: path,
		Kind:     kind,
		Bytes:    data,
	}}
}

// isBinary reports whether data looks like a non-text payload. NUL bytes in
// the first block or invalid UTF-8 both disqualify a file.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	for _, b := range probe {
		if b == 0 {
			return true
		}
	}
	return !utf8.Valid(data)
}

// DumpSources resolves every input to the list of files, URLs or streams it
// would read. Stdin and remote URLs are not read; filesystem inputs are
// collected in full, so each file is read and binary files are left out.
// Used by the inputs dump mode.
func (c *Collector) DumpSources(ctx context.Context, inputs []models.Input) ([]string, error) {
	var sources []string
	for _, in := range inputs {
		switch in.Source.Kind {
		case models.SourceStdin:
			sources = append(sources, "<stdin>")
		case models.SourceString:
			sources = append(sources, "<string>")
		case models.SourceRemoteURL:
			sources = append(sources, in.Source.Value)
		case models.SourceFsPath, models.SourceFsGlob:
			paths, err := c.listPath(ctx, in)
			if err != nil {
				return nil, err
			}
			sources = append(sources, paths...)
		}
	}
	sort.Strings(sources)
	return sources, nil
}

func (c *Collector) listPath(ctx context.Context, in models.Input) ([]string, error) {
	var paths []string
	for item := range c.Collect(ctx, []models.Input{in}) {
		if item.Err != nil {
			return nil, item.Err
		}
		if item.Content.FilePath != "" {
			paths = append(paths, item.Content.FilePath)
		}
	}
	return paths, nil
}
