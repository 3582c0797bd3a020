package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full programmatic configuration. Every field mirrors a
// CLI flag; a config file uses the same keys and CLI values override it.
type Config struct {
	// Inputs
	Inputs    []string `yaml:"inputs,omitempty"`
	FilesFrom string   `yaml:"files_from,omitempty"`

	// Discovery
	Extensions         []string `yaml:"extensions,omitempty"`
	DefaultExtension   string   `yaml:"default_extension,omitempty"`
	FallbackExtensions []string `yaml:"fallback_extensions,omitempty"`
	IndexFiles         []string `yaml:"index_files,omitempty"`
	GlobIgnoreCase     bool     `yaml:"glob_ignore_case,omitempty"`
	Hidden             bool     `yaml:"hidden,omitempty"`
	NoIgnore           bool     `yaml:"no_ignore,omitempty"`
	SkipMissing        bool     `yaml:"skip_missing,omitempty"`

	// Policy
	Include          []string `yaml:"include,omitempty"`
	Exclude          []string `yaml:"exclude,omitempty"`
	ExcludePath      []string `yaml:"exclude_path,omitempty"`
	ExcludeAllPrivate bool    `yaml:"exclude_all_private,omitempty"`
	ExcludePrivate   bool     `yaml:"exclude_private,omitempty"`
	ExcludeLinkLocal bool     `yaml:"exclude_link_local,omitempty"`
	ExcludeLoopback  bool     `yaml:"exclude_loopback,omitempty"`
	IncludeMail      bool     `yaml:"include_mail,omitempty"`
	IncludeFragments bool     `yaml:"include_fragments,omitempty"`
	IncludeVerbatim  bool     `yaml:"include_verbatim,omitempty"`
	IncludeWikilinks bool     `yaml:"include_wikilinks,omitempty"`
	Schemes          []string `yaml:"scheme,omitempty"`
	Accept           []string `yaml:"accept,omitempty"`

	// Network
	Method              string            `yaml:"method,omitempty"`
	Headers             map[string]string `yaml:"headers,omitempty"`
	BasicAuth           []string          `yaml:"basic_auth,omitempty"` // "<uri-pattern> <user>:<password>"
	CookieJar           string            `yaml:"cookie_jar,omitempty"`
	UserAgent           string            `yaml:"user_agent,omitempty"`
	Insecure            bool              `yaml:"insecure,omitempty"`
	MinTLS              string            `yaml:"min_tls,omitempty"`
	Timeout             time.Duration     `yaml:"timeout,omitempty"`
	MaxRedirects        int               `yaml:"max_redirects,omitempty"`
	MaxRetries          int               `yaml:"max_retries,omitempty"`
	RetryWaitTime       time.Duration     `yaml:"retry_wait_time,omitempty"`
	MaxConcurrency      int               `yaml:"max_concurrency,omitempty"`
	HostConcurrency     int               `yaml:"host_concurrency,omitempty"`
	HostRequestInterval time.Duration     `yaml:"host_request_interval,omitempty"`
	GithubToken         string            `yaml:"github_token,omitempty"`
	Offline             bool              `yaml:"offline,omitempty"`
	Remap               []string          `yaml:"remap,omitempty"` // "<pattern> <replacement>"
	RequireHTTPS        bool              `yaml:"require_https,omitempty"`

	// Resolution
	BaseURL string `yaml:"base_url,omitempty"`
	RootDir string `yaml:"root_dir,omitempty"`

	// Cache
	Cache              bool          `yaml:"cache,omitempty"`
	CacheFile          string        `yaml:"cache_file,omitempty"`
	MaxCacheAge        time.Duration `yaml:"max_cache_age,omitempty"`
	CacheExcludeStatus []string      `yaml:"cache_exclude_status,omitempty"`

	// Reporting (collaborator surface)
	Format     string `yaml:"format,omitempty"`
	Output     string `yaml:"output,omitempty"`
	Mode       string `yaml:"mode,omitempty"`
	Verbose    bool   `yaml:"verbose,omitempty"`
	NoProgress bool   `yaml:"no_progress,omitempty"`
}

// Default returns the configuration used when neither file nor flags set a value.
func Default() *Config {
	return &Config{
		Method:              "get",
		UserAgent:           "linkcheck/1.0",
		Timeout:             20 * time.Second,
		MaxRedirects:        5,
		MaxRetries:          3,
		RetryWaitTime:       1 * time.Second,
		MaxConcurrency:      128,
		HostConcurrency:     4,
		HostRequestInterval: 0,
		IndexFiles:          []string{"index.html", "index.htm", "README.md"},
		Schemes:             []string{"http", "https", "file", "mailto"},
		CacheFile:           ".lycheecache",
		MaxCacheAge:         24 * time.Hour,
		Format:              "text",
	}
}

// Load reads a YAML config file into a Config based on Default().
// A missing file at the default location is not an error; pass explicit=true
// when the user named the file so a missing file is fatal. A malformed file
// is an error in either case.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// EffectiveGithubToken returns the configured token, falling back to the
// GITHUB_TOKEN environment variable.
func (c *Config) EffectiveGithubToken() string {
	if c.GithubToken != "" {
		return c.GithubToken
	}
	return os.Getenv("GITHUB_TOKEN")
}
