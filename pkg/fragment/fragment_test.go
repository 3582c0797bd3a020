package fragment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"linkcheck/pkg/models"
	"linkcheck/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.NewFile(0, os.DevNull))
	return logrus.NewEntry(log)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		heading string
		want    string
	}{
		{"Foo Bar", "foo-bar"},
		{"Getting Started!", "getting-started"},
		{"C++ & Go", "c--go"},
		{"  spaced  ", "spaced"},
		{"under_score", "under_score"},
		{"Dots.and.commas,", "dotsandcommas"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.heading); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.heading, got, tt.want)
		}
	}
}

func TestMarkdownHeadings(t *testing.T) {
	idx := Build(models.ContentMarkdown, []byte(`# Title

## Foo Bar

### Foo Bar

Some text.

<a name="legacy-anchor"></a>
<div id="explicit-id"></div>
`))
	for _, frag := range []string{"title", "foo-bar", "foo-bar-1", "legacy-anchor", "explicit-id", "", "top"} {
		if !idx.Contains(frag) {
			t.Errorf("fragment %q should exist", frag)
		}
	}
	for _, frag := range []string{"missing", "foo-bar-2", "Title-x"} {
		if idx.Contains(frag) {
			t.Errorf("fragment %q should not exist", frag)
		}
	}
}

func TestMarkdownCaseAndUserContent(t *testing.T) {
	idx := Build(models.ContentMarkdown, []byte("## Foo Bar\n"))
	for _, frag := range []string{"FOO-BAR", "Foo-Bar", "user-content-foo-bar"} {
		if !idx.Contains(frag) {
			t.Errorf("fragment %q should match heading slug", frag)
		}
	}
}

func TestHTMLIndex(t *testing.T) {
	idx := Build(models.ContentHTML, []byte(`<html><body>
<h1 id="Intro">Intro</h1>
<a name="old-style">x</a>
<div id="with space"></div>
</body></html>`))
	if !idx.Contains("Intro") {
		t.Error("exact id must match")
	}
	if idx.Contains("intro") {
		t.Error("HTML ids are case-sensitive")
	}
	if !idx.Contains("old-style") {
		t.Error("anchor name must be indexed")
	}
	if !idx.Contains("with%20space") {
		t.Error("fragment must match after percent-decoding")
	}
}

func TestPlaintextHasNoAnchors(t *testing.T) {
	idx := Build(models.ContentPlaintext, []byte("# Not a heading"))
	if idx.Contains("not-a-heading") {
		t.Error("plaintext documents have no anchors")
	}
	if !idx.Contains("top") {
		t.Error("#top is always valid")
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(path, []byte("## Foo Bar\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewChecker(testLogger())
	if err := c.CheckFile(path, "foo-bar"); err != nil {
		t.Errorf("existing fragment rejected: %v", err)
	}
	if err := c.CheckFile(path, "top"); err != nil {
		t.Errorf("#top must always pass: %v", err)
	}
	err := c.CheckFile(path, "missing")
	if !errors.Is(err, utils.ErrInvalidFragment) {
		t.Errorf("missing fragment error = %v, want ErrInvalidFragment", err)
	}
}

func TestCheckFileMemoInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(path, []byte("## First\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewChecker(testLogger())
	if err := c.CheckFile(path, "first"); err != nil {
		t.Fatal(err)
	}

	// Rewrite with different size so the (mtime, size) key changes even on
	// filesystems with coarse mtime resolution.
	if err := os.WriteFile(path, []byte("## Second Heading\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.CheckFile(path, "second-heading"); err != nil {
		t.Errorf("index must rebuild after file change: %v", err)
	}
	if err := c.CheckFile(path, "first"); err == nil {
		t.Error("stale anchor should be gone after rebuild")
	}
}

func TestCheckBody(t *testing.T) {
	c := NewChecker(testLogger())
	body := []byte(`<html><body><h2 id="section-two">x</h2></body></html>`)
	if err := c.CheckBody(body, models.ContentHTML, "section-two"); err != nil {
		t.Errorf("existing anchor rejected: %v", err)
	}
	if err := c.CheckBody(body, models.ContentHTML, "absent"); !errors.Is(err, utils.ErrInvalidFragment) {
		t.Errorf("missing anchor error = %v", err)
	}
}

func TestKindForPath(t *testing.T) {
	tests := []struct {
		path string
		kind models.ContentKind
	}{
		{"doc.md", models.ContentMarkdown},
		{"doc.markdown", models.ContentMarkdown},
		{"page.html", models.ContentHTML},
		{"notes.txt", models.ContentPlaintext},
	}
	for _, tt := range tests {
		if got := KindForPath(tt.path); got != tt.kind {
			t.Errorf("KindForPath(%q) = %v, want %v", tt.path, got, tt.kind)
		}
	}
}
