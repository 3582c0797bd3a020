package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"linkcheck/pkg/models"
	"linkcheck/pkg/uri"
	"linkcheck/pkg/utils"
)

func newTestClient(t *testing.T, b ClientBuilder) *Client {
	t.Helper()
	if b.Log == nil {
		log := logrus.New()
		log.SetOutput(os.NewFile(0, os.DevNull))
		b.Log = log
	}
	c, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func requestFor(t *testing.T, rawURL string) *models.Request {
	t.Helper()
	u, err := uri.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	return &models.Request{Uri: u, Source: models.InputSource{Kind: models.SourceString, Value: rawURL}}
}

func TestCheckOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet})
	resp := c.Check(context.Background(), requestFor(t, srv.URL+"/page"))
	if resp.Status.Kind != models.StatusOk || resp.Status.Code != 200 {
		t.Errorf("status = %v", resp.Status)
	}
}

func TestCheckErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet})
	resp := c.Check(context.Background(), requestFor(t, srv.URL+"/missing"))
	if resp.Status.Kind != models.StatusError {
		t.Fatalf("status = %v, want error", resp.Status)
	}
	if !errors.Is(resp.Status.Err, utils.ErrHTTPStatus) || resp.Status.Code != 404 {
		t.Errorf("error = %v (code %d)", resp.Status.Err, resp.Status.Code)
	}
}

func TestCheckAcceptedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet, Accepted: []string{"429"}})
	resp := c.Check(context.Background(), requestFor(t, srv.URL))
	if resp.Status.Kind != models.StatusOk || resp.Status.Code != 429 {
		t.Errorf("accepted 429 = %v", resp.Status)
	}
}

func TestCheckUnknownCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet})
	resp := c.Check(context.Background(), requestFor(t, srv.URL))
	if resp.Status.Kind != models.StatusUnknownCode || resp.Status.Code != 101 {
		t.Errorf("status = %v, want unknown code 101", resp.Status)
	}
}

func TestRedirectRecorded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet})
	resp := c.Check(context.Background(), requestFor(t, srv.URL+"/a"))
	if resp.Status.Kind != models.StatusRedirected || resp.Status.Code != 200 {
		t.Fatalf("status = %v, want redirected 200", resp.Status)
	}
	if len(resp.Redirects) != 1 {
		t.Fatalf("redirects = %v, want one hop", resp.Redirects)
	}
	hop := resp.Redirects[0]
	if hop.Code != http.StatusFound || hop.From != srv.URL+"/a" || hop.To != srv.URL+"/b" {
		t.Errorf("hop = %+v", hop)
	}
}

func TestRedirectLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet, MaxRedirects: 2})
	resp := c.Check(context.Background(), requestFor(t, srv.URL+"/loop"))
	if resp.Status.Kind != models.StatusError || !errors.Is(resp.Status.Err, utils.ErrTooManyRedirects) {
		t.Errorf("status = %v, want redirect-limit error", resp.Status)
	}
}

func TestHeadFallsBackToGet(t *testing.T) {
	var heads, gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			atomic.AddInt32(&heads, 1)
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			atomic.AddInt32(&gets, 1)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodHead})
	resp := c.Check(context.Background(), requestFor(t, srv.URL))
	if resp.Status.Kind != models.StatusOk {
		t.Errorf("status = %v, want ok after GET fallback", resp.Status)
	}
	if atomic.LoadInt32(&heads) == 0 || atomic.LoadInt32(&gets) == 0 {
		t.Errorf("heads = %d, gets = %d, want both methods tried", heads, gets)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet, MaxRetries: 2, RetryWaitTime: 10 * time.Millisecond})
	start := time.Now()
	resp := c.Check(context.Background(), requestFor(t, srv.URL))
	if resp.Status.Kind != models.StatusOk {
		t.Fatalf("status = %v, want ok after retry", resp.Status)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("retried after %v, want at least the server-provided 1s", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestNoRetryOn404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet, MaxRetries: 3, RetryWaitTime: 10 * time.Millisecond})
	c.Check(context.Background(), requestFor(t, srv.URL))
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server saw %d requests, want 1 (404 is not transient)", got)
	}
}

func TestCustomAndExtraHeaders(t *testing.T) {
	var gotUA, gotCustom, gotExtra string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Custom")
		gotExtra = r.Header.Get("X-Extra")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{
		Method:        http.MethodGet,
		UserAgent:     "linkcheck-test/1.0",
		CustomHeaders: map[string]string{"X-Custom": "yes"},
	})
	req := requestFor(t, srv.URL)
	req.ExtraHeaders = map[string]string{"X-Extra": "also"}
	c.Check(context.Background(), req)

	if gotUA != "linkcheck-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotCustom != "yes" || gotExtra != "also" {
		t.Errorf("headers = %q / %q", gotCustom, gotExtra)
	}
}

func TestBasicAuthRule(t *testing.T) {
	var user, pass string
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, present = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{
		Method:    http.MethodGet,
		BasicAuth: []string{"127\\.0\\.0\\.1 alice:secret"},
	})
	c.Check(context.Background(), requestFor(t, srv.URL+"/private"))
	if !present || user != "alice" || pass != "secret" {
		t.Errorf("auth = %q:%q (present=%v)", user, pass, present)
	}
}

func TestCheckWithBodyReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><h1 id="x">x</h1></body></html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet})
	resp, body := c.CheckWithBody(context.Background(), requestFor(t, srv.URL), true)
	if resp.Status.Kind != models.StatusOk {
		t.Fatalf("status = %v", resp.Status)
	}
	if len(body) == 0 {
		t.Error("body must be returned when requested")
	}
	if resp.Body.ContentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", resp.Body.ContentType)
	}
}

func TestTimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	c := newTestClient(t, ClientBuilder{Method: http.MethodGet, Timeout: 50 * time.Millisecond})
	resp := c.Check(context.Background(), requestFor(t, srv.URL))
	if resp.Status.Kind != models.StatusTimeout {
		t.Errorf("status = %v, want timeout", resp.Status)
	}
}

func TestMailCheckedSyntactically(t *testing.T) {
	c := newTestClient(t, ClientBuilder{})
	resp := c.Check(context.Background(), requestFor(t, "mailto:user@example.com"))
	if resp.Status.Kind != models.StatusOk {
		t.Errorf("mail status = %v", resp.Status)
	}
}

func TestFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.md")
	if err := os.WriteFile(path, []byte("# hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, ClientBuilder{})
	resp := c.Check(context.Background(), requestFor(t, "file://"+path))
	if resp.Status.Kind != models.StatusOk {
		t.Errorf("existing file = %v", resp.Status)
	}

	resp = c.Check(context.Background(), requestFor(t, "file://"+filepath.Join(dir, "nope.md")))
	if resp.Status.Kind != models.StatusError || !errors.Is(resp.Status.Err, utils.ErrInvalidFile) {
		t.Errorf("missing file = %v", resp.Status)
	}
}

func TestAcceptSet(t *testing.T) {
	set, err := NewAcceptSet([]string{"429", "500..502"})
	if err != nil {
		t.Fatal(err)
	}
	for _, code := range []int{200, 204, 299, 429, 500, 502} {
		if !set.Contains(code) {
			t.Errorf("code %d should be accepted", code)
		}
	}
	for _, code := range []int{199, 301, 404, 503} {
		if set.Contains(code) {
			t.Errorf("code %d should not be accepted", code)
		}
	}

	if _, err := NewAcceptSet([]string{"abc"}); err == nil {
		t.Error("malformed accept entry must fail")
	}
}
