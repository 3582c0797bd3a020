package uri

import (
	"errors"
	"testing"

	"linkcheck/pkg/utils"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
	}{
		{"https://example.com/page", KindWebsite},
		{"http://example.com:8080/x?q=1", KindWebsite},
		{"mailto:user@example.com", KindMail},
		{"mailto:user@example.com?subject=hi", KindMail},
		{"file:///tmp/doc.md", KindFileLocal},
	}
	for _, tt := range tests {
		u, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.input, err)
			continue
		}
		if u.Kind() != tt.kind {
			t.Errorf("Parse(%q).Kind = %v, want %v", tt.input, u.Kind(), tt.kind)
		}
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"example.com/page", utils.ErrInvalidURL},
		{"https://", utils.ErrInvalidURL},
		{"mailto:not-an-address", utils.ErrInvalidURL},
		{"tel:+1234567890", utils.ErrUnsupported},
		{"ftp://example.com/file", utils.ErrUnsupported},
	}
	for _, tt := range tests {
		_, err := Parse(tt.input)
		if !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.input, err, tt.want)
		}
	}
}

func TestFingerprintNormalization(t *testing.T) {
	equivalent := [][2]string{
		{"https://Example.COM/path", "https://example.com/path"},
		{"https://example.com:443/path", "https://example.com/path"},
		{"http://example.com:80/path", "http://example.com/path"},
		{"https://example.com/%7Euser", "https://example.com/~user"},
		{"https://example.com/path#frag", "https://example.com/path#other"},
	}
	for _, pair := range equivalent {
		a, err := Parse(pair[0])
		if err != nil {
			t.Fatalf("Parse(%q): %v", pair[0], err)
		}
		b, err := Parse(pair[1])
		if err != nil {
			t.Fatalf("Parse(%q): %v", pair[1], err)
		}
		if !a.Equivalent(b) {
			t.Errorf("expected %q == %q, got fingerprints %q and %q",
				pair[0], pair[1], a.Fingerprint(), b.Fingerprint())
		}
	}

	distinct := [][2]string{
		{"https://example.com/path", "https://example.com/path/"},
		{"https://example.com/path?q=1", "https://example.com/path?q=2"},
		{"https://example.com:8080/path", "https://example.com/path"},
		{"https://example.com/%2Fup", "https://example.com//up"},
	}
	for _, pair := range distinct {
		a, _ := Parse(pair[0])
		b, _ := Parse(pair[1])
		if a.Equivalent(b) {
			t.Errorf("expected %q != %q", pair[0], pair[1])
		}
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://Example.com/x", "example.com"},
		{"https://example.com:443/x", "example.com"},
		{"http://example.com:8080/x", "example.com:8080"},
	}
	for _, tt := range tests {
		u, err := Parse(tt.input)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.input, err)
		}
		if got := u.HostPort(); got != tt.want {
			t.Errorf("HostPort(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWithoutFragment(t *testing.T) {
	u, err := Parse("https://example.com/doc#section")
	if err != nil {
		t.Fatal(err)
	}
	if got := u.WithoutFragment().String(); got != "https://example.com/doc" {
		t.Errorf("WithoutFragment = %q", got)
	}
	if u.Fragment() != "section" {
		t.Error("original URI must keep its fragment")
	}
}

func TestMailAddress(t *testing.T) {
	u, err := Parse("mailto:user@example.com?subject=hello")
	if err != nil {
		t.Fatal(err)
	}
	if got := u.MailAddress(); got != "user@example.com" {
		t.Errorf("MailAddress = %q", got)
	}
}
