package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"linkcheck/pkg/utils"
)

var validTLSVersions = map[string]bool{
	"": true, "TLSv1.0": true, "TLSv1.1": true, "TLSv1.2": true, "TLSv1.3": true,
}

var validMethods = map[string]bool{
	"get": true, "head": true, "put": true, "post": true, "delete": true,
	"options": true, "patch": true,
}

// Validate checks cross-field consistency and value ranges. It returns an
// error wrapping ErrConfigValidation; configuration errors abort startup.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", utils.ErrConfigValidation, fmt.Sprintf(format, args...))
	}

	if c.Timeout < 0 {
		return fail("timeout must be non-negative, got %v", c.Timeout)
	}
	if c.MaxRedirects < 0 {
		return fail("max_redirects must be non-negative, got %d", c.MaxRedirects)
	}
	if c.MaxRetries < 0 {
		return fail("max_retries must be non-negative, got %d", c.MaxRetries)
	}
	if c.MaxConcurrency <= 0 {
		return fail("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.HostConcurrency <= 0 {
		return fail("host_concurrency must be positive, got %d", c.HostConcurrency)
	}
	if !validTLSVersions[c.MinTLS] {
		return fail("min_tls must be one of TLSv1.0, TLSv1.1, TLSv1.2, TLSv1.3, got %q", c.MinTLS)
	}
	if c.Method != "" && !validMethods[strings.ToLower(c.Method)] {
		return fail("unknown HTTP method %q", c.Method)
	}

	for _, pat := range append(append([]string{}, c.Include...), c.Exclude...) {
		if _, err := regexp.Compile(pat); err != nil {
			return fail("invalid regex %q: %v", pat, err)
		}
	}
	for _, pat := range c.ExcludePath {
		if _, err := regexp.Compile(pat); err != nil {
			return fail("invalid exclude_path regex %q: %v", pat, err)
		}
	}
	for _, r := range c.Remap {
		if _, _, err := SplitRemapRule(r); err != nil {
			return fail("%v", err)
		}
	}
	for _, a := range c.BasicAuth {
		if _, _, _, err := SplitBasicAuthRule(a); err != nil {
			return fail("%v", err)
		}
	}
	for _, a := range c.Accept {
		if _, _, err := ParseAcceptRange(a); err != nil {
			return fail("%v", err)
		}
	}

	if c.BaseURL != "" && !strings.Contains(c.BaseURL, "://") {
		return fail("base_url must be absolute, got %q", c.BaseURL)
	}
	return nil
}

// SplitRemapRule parses a "<pattern> <replacement>" remap rule.
func SplitRemapRule(rule string) (*regexp.Regexp, string, error) {
	fields := strings.Fields(rule)
	if len(fields) != 2 {
		return nil, "", fmt.Errorf("remap rule %q must be \"<pattern> <replacement>\"", rule)
	}
	re, err := regexp.Compile(fields[0])
	if err != nil {
		return nil, "", fmt.Errorf("invalid remap pattern %q: %v", fields[0], err)
	}
	return re, fields[1], nil
}

// SplitBasicAuthRule parses a "<uri-pattern> <user>:<password>" rule.
func SplitBasicAuthRule(rule string) (*regexp.Regexp, string, string, error) {
	fields := strings.Fields(rule)
	if len(fields) != 2 {
		return nil, "", "", fmt.Errorf("basic auth rule %q must be \"<uri-pattern> <user>:<password>\"", rule)
	}
	re, err := regexp.Compile(fields[0])
	if err != nil {
		return nil, "", "", fmt.Errorf("invalid basic auth pattern %q: %v", fields[0], err)
	}
	user, pass, found := strings.Cut(fields[1], ":")
	if !found || user == "" {
		return nil, "", "", fmt.Errorf("basic auth credentials in %q must be \"user:password\"", rule)
	}
	return re, user, pass, nil
}

// ParseAcceptRange parses an accept entry, either a single code ("200") or
// an inclusive range ("200..204" or "200-204").
func ParseAcceptRange(s string) (int, int, error) {
	sep := ".."
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	if strings.Contains(s, sep) && !strings.HasPrefix(s, "-") {
		lo, hi, _ := strings.Cut(s, sep)
		hi = strings.TrimPrefix(hi, ".") // tolerate "200..=204"
		hi = strings.TrimPrefix(hi, "=")
		l, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid accept range %q", s)
		}
		h, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid accept range %q", s)
		}
		if l > h || l < 100 || h > 999 {
			return 0, 0, fmt.Errorf("accept range %q out of order or out of bounds", s)
		}
		return l, h, nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || code < 100 || code > 999 {
		return 0, 0, fmt.Errorf("invalid accept status code %q", s)
	}
	return code, code, nil
}
