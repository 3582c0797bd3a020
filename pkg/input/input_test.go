package input

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"

	"linkcheck/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.NewFile(0, os.DevNull))
	return logrus.NewEntry(log)
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		value string
		kind  models.SourceKind
	}{
		{"-", models.SourceStdin},
		{"https://example.com/page", models.SourceRemoteURL},
		{"http://example.com", models.SourceRemoteURL},
		{"docs/**/*.md", models.SourceFsGlob},
		{"README.md", models.SourceFsPath},
		{"./docs", models.SourceFsPath},
		{"file?.md", models.SourceFsGlob},
	}
	for _, tt := range tests {
		got := ParseSource(tt.value)
		if got.Kind != tt.kind {
			t.Errorf("ParseSource(%q).Kind = %v, want %v", tt.value, got.Kind, tt.kind)
		}
	}
}

func TestKindForPath(t *testing.T) {
	tests := []struct {
		path       string
		defaultExt string
		kind       models.ContentKind
		ok         bool
	}{
		{"doc.md", "", models.ContentMarkdown, true},
		{"doc.markdown", "", models.ContentMarkdown, true},
		{"page.HTML", "", models.ContentHTML, true},
		{"notes.txt", "", models.ContentPlaintext, true},
		{"LICENSE", "md", models.ContentMarkdown, true},
		{"LICENSE", "", models.ContentPlaintext, true},
		{"image.png", "", models.ContentPlaintext, false},
	}
	for _, tt := range tests {
		kind, ok := KindForPath(tt.path, tt.defaultExt)
		if kind != tt.kind || ok != tt.ok {
			t.Errorf("KindForPath(%q, %q) = (%v, %v), want (%v, %v)",
				tt.path, tt.defaultExt, kind, ok, tt.kind, tt.ok)
		}
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"docs/readme.md", false},
		{".git/config", true},
		{"docs/.cache/page.html", true},
		{"../docs/readme.md", false},
		{".env", true},
	}
	for _, tt := range tests {
		if got := IsHidden(tt.path); got != tt.want {
			t.Errorf("IsHidden(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func collectPaths(t *testing.T, c *Collector, inputs []models.Input) []string {
	t.Helper()
	var paths []string
	for item := range c.Collect(context.Background(), inputs) {
		if item.Err != nil {
			t.Fatalf("unexpected error: %v", item.Err)
		}
		paths = append(paths, item.Content.FilePath)
	}
	sort.Strings(paths)
	return paths
}

func TestCollectDirectoryWalk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "# hi")
	writeFile(t, dir, "sub/page.html", "<a href=x>x</a>")
	writeFile(t, dir, "sub/notes.rst", "skipped extension")
	writeFile(t, dir, ".hidden/secret.md", "hidden")

	c := NewCollector(testLogger(), nil)
	paths := collectPaths(t, c, []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsPath, Value: dir,
	}}})

	want := []string{
		filepath.Join(dir, "readme.md"),
		filepath.Join(dir, "sub", "page.html"),
	}
	if len(paths) != len(want) {
		t.Fatalf("collected %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("collected %v, want %v", paths, want)
		}
	}
}

func TestCollectHiddenFlag(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".hidden/secret.md", "hidden")

	c := NewCollector(testLogger(), nil)
	c.Hidden = true
	paths := collectPaths(t, c, []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsPath, Value: dir,
	}}})
	if len(paths) != 1 {
		t.Fatalf("collected %v, want the hidden file", paths)
	}
}

func TestCollectGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "ignored/\n*.tmp.md\n")
	writeFile(t, dir, "kept.md", "x")
	writeFile(t, dir, "draft.tmp.md", "x")
	writeFile(t, dir, "ignored/gone.md", "x")

	c := NewCollector(testLogger(), nil)
	paths := collectPaths(t, c, []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsPath, Value: dir,
	}}})
	if len(paths) != 1 || paths[0] != filepath.Join(dir, "kept.md") {
		t.Fatalf("collected %v, want only kept.md", paths)
	}

	c.NoIgnore = true
	paths = collectPaths(t, c, []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsPath, Value: dir,
	}}})
	if len(paths) != 3 {
		t.Fatalf("with ignores disabled collected %v, want 3 files", paths)
	}
}

func TestCollectGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/one.md", "x")
	writeFile(t, dir, "a/b/two.md", "x")
	writeFile(t, dir, "a/three.txt", "x")

	c := NewCollector(testLogger(), nil)
	pattern := filepath.ToSlash(filepath.Join(dir, "a")) + "/**/*.md"
	paths := collectPaths(t, c, []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsGlob, Value: pattern,
	}}})
	if len(paths) != 2 {
		t.Fatalf("glob collected %v, want two markdown files", paths)
	}
}

func TestCollectGlobIgnoreCase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "README.MD", "x")

	c := NewCollector(testLogger(), nil)
	c.GlobIgnoreCase = true
	pattern := filepath.ToSlash(dir) + "/*.md"
	paths := collectPaths(t, c, []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsGlob, Value: pattern,
	}}})
	if len(paths) != 1 {
		t.Fatalf("case-insensitive glob collected %v, want README.MD", paths)
	}
}

func TestCollectMissingFile(t *testing.T) {
	c := NewCollector(testLogger(), nil)
	in := []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsPath, Value: filepath.Join(t.TempDir(), "nope.md"),
	}}}

	var errs int
	for item := range c.Collect(context.Background(), in) {
		if item.Err != nil {
			errs++
		}
	}
	if errs != 1 {
		t.Fatalf("got %d errors, want 1", errs)
	}

	c.SkipMissing = true
	for item := range c.Collect(context.Background(), in) {
		if item.Err != nil {
			t.Fatalf("skip-missing still produced error: %v", item.Err)
		}
	}
}

func TestCollectSkipsBinary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.md")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCollector(testLogger(), nil)
	items := 0
	for range c.Collect(context.Background(), []models.Input{{Source: models.InputSource{
		Kind: models.SourceFsPath, Value: path,
	}}}) {
		items++
	}
	if items != 0 {
		t.Fatalf("binary file produced %d items, want 0", items)
	}
}

func TestCollectRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<a href="https://example.com">x</a>`))
	}))
	defer srv.Close()

	c := NewCollector(testLogger(), srv.Client())
	var got []models.InputContent
	for item := range c.Collect(context.Background(), []models.Input{{Source: models.InputSource{
		Kind: models.SourceRemoteURL, Value: srv.URL,
	}}}) {
		if item.Err != nil {
			t.Fatal(item.Err)
		}
		got = append(got, item.Content)
	}
	if len(got) != 1 {
		t.Fatalf("got %d items, want 1", len(got))
	}
	if got[0].Kind != models.ContentHTML {
		t.Errorf("kind = %v, want HTML from content type", got[0].Kind)
	}
}

func TestDumpSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.md", "x")
	writeFile(t, dir, "two.md", "x")

	c := NewCollector(testLogger(), nil)
	sources, err := c.DumpSources(context.Background(), []models.Input{
		{Source: models.InputSource{Kind: models.SourceFsPath, Value: dir}},
		{Source: models.InputSource{Kind: models.SourceRemoteURL, Value: "https://example.com"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 3 {
		t.Fatalf("sources = %v, want 3 entries", sources)
	}
}
