package fetch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// persistedCookie is the on-disk shape of a single cookie.
type persistedCookie struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Path   string `json:"path,omitempty"`
	Secure bool   `json:"secure,omitempty"`
}

// CookieJar wraps the standard jar with file load/persist and a read-write
// lock: readers during request build, single writer on Set-Cookie.
type CookieJar struct {
	mu   sync.RWMutex
	jar  *cookiejar.Jar
	path string
	// seen tracks every URL cookies were set for, so persistence can
	// enumerate them (the standard jar has no iteration API).
	seen map[string]*url.URL
}

// NewCookieJar builds a jar backed by path. An empty path means a purely
// in-memory jar. An existing file is loaded; a missing one is fine.
func NewCookieJar(path string) (*CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	cj := &CookieJar{jar: jar, path: path, seen: make(map[string]*url.URL)}
	if path != "" {
		if err := cj.load(); err != nil {
			return nil, err
		}
	}
	return cj, nil
}

func (c *CookieJar) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cookie jar %q: %w", c.path, err)
	}
	var cookies []persistedCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("parsing cookie jar %q: %w", c.path, err)
	}
	for _, pc := range cookies {
		u, err := url.Parse(pc.URL)
		if err != nil {
			continue
		}
		c.jar.SetCookies(u, []*http.Cookie{{
			Name: pc.Name, Value: pc.Value, Path: pc.Path, Secure: pc.Secure,
		}})
		c.seen[u.Scheme+"://"+u.Host] = u
	}
	return nil
}

// Cookies implements http.CookieJar.
func (c *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jar.Cookies(u)
}

// SetCookies implements http.CookieJar.
func (c *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jar.SetCookies(u, cookies)
	base := *u
	base.Path = "/"
	c.seen[base.Scheme+"://"+base.Host] = &base
}

// Persist writes the jar back to its file. No-op for in-memory jars.
func (c *CookieJar) Persist() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	var out []persistedCookie
	for key, u := range c.seen {
		for _, ck := range c.jar.Cookies(u) {
			out = append(out, persistedCookie{
				URL: key, Name: ck.Name, Value: ck.Value, Path: ck.Path, Secure: ck.Secure,
			})
		}
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}
