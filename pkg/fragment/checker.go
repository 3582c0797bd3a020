package fragment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"linkcheck/pkg/models"
	"linkcheck/pkg/utils"
)

// Checker verifies that fragment references point at existing anchors.
// Indexes for local files are memoized per path and invalidated when the
// file's mtime or size changes, so repeated links into the same document
// parse it once.
type Checker struct {
	mu    sync.Mutex
	cache map[string]cachedIndex
	log   *logrus.Entry
}

type cachedIndex struct {
	index *Index
	mtime time.Time
	size  int64
}

// NewChecker creates a Checker with an empty memo.
func NewChecker(log *logrus.Entry) *Checker {
	return &Checker{cache: make(map[string]cachedIndex), log: log}
}

// CheckFile verifies fragment against the anchors of a local file. The
// content kind is derived from the path's extension.
func (c *Checker) CheckFile(path, fragment string) error {
	if fragment == "" || fragment == "top" {
		return nil
	}
	idx, err := c.fileIndex(path)
	if err != nil {
		return err
	}
	if !idx.Contains(fragment) {
		return fmt.Errorf("%w: #%s in %s", utils.ErrInvalidFragment, fragment, path)
	}
	return nil
}

// CheckBody verifies fragment against a fetched response body of the given
// content kind. Used for remote documents, where only the first chunk of the
// body is scanned.
func (c *Checker) CheckBody(body []byte, kind models.ContentKind, fragment string) error {
	if fragment == "" || fragment == "top" {
		return nil
	}
	if !Build(kind, body).Contains(fragment) {
		return fmt.Errorf("%w: #%s", utils.ErrInvalidFragment, fragment)
	}
	return nil
}

// KindForPath maps a file path to the content kind used for anchor
// indexing. Unknown extensions index as plaintext, which has no anchors.
func KindForPath(path string) models.ContentKind {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "md", "mkd", "mdx", "mdown", "markdown":
		return models.ContentMarkdown
	case "html", "htm":
		return models.ContentHTML
	}
	return models.ContentPlaintext
}

// Checkable reports whether fragment verification applies to a document:
// HTML and markdown always, plaintext only when the path says markdown.
func Checkable(kind models.ContentKind, path string) bool {
	switch kind {
	case models.ContentHTML, models.ContentMarkdown:
		return true
	}
	return KindForPath(path) == models.ContentMarkdown
}

func (c *Checker) fileIndex(path string) (*Index, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", utils.ErrInvalidFile, path, err)
	}

	c.mu.Lock()
	cached, ok := c.cache[path]
	c.mu.Unlock()
	if ok && cached.mtime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.index, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", utils.ErrInvalidFile, path, err)
	}
	idx := Build(KindForPath(path), data)
	if c.log != nil {
		c.log.WithFields(logrus.Fields{"path": path, "anchors": idx.Len()}).Debug("Built fragment index")
	}

	c.mu.Lock()
	c.cache[path] = cachedIndex{index: idx, mtime: info.ModTime(), size: info.Size()}
	c.mu.Unlock()
	return idx, nil
}
