package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"linkcheck/pkg/cache"
	"linkcheck/pkg/config"
	"linkcheck/pkg/extract"
	"linkcheck/pkg/fetch"
	"linkcheck/pkg/filter"
	"linkcheck/pkg/fragment"
	"linkcheck/pkg/input"
	"linkcheck/pkg/models"
	"linkcheck/pkg/pipeline"
	"linkcheck/pkg/resolve"
	"linkcheck/pkg/utils"
)

const (
	exitSuccess     = 0
	exitConfigError = 1
	exitLinkFailure = 2
)

var (
	cfg         *config.Config
	configPath  string
	headerFlags []string
	excludeFile []string
	dumpLinks   bool
	dumpInputs  bool
)

func main() {
	os.Exit(run())
}

func run() int {
	// The config file has to be loaded before flag binding so that CLI
	// flags override file values simply by being parsed later.
	path, explicit := configPathFromArgs(os.Args[1:])
	loaded, err := config.Load(path, explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkcheck: %v\n", err)
		return exitConfigError
	}
	cfg = loaded

	root := newRootCmd()
	exitCode := exitSuccess
	root.RunE = func(cmd *cobra.Command, args []string) error {
		code, err := runCheck(cmd, args)
		exitCode = code
		return err
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "linkcheck: %v\n", err)
		if exitCode == exitSuccess {
			exitCode = exitConfigError
		}
	}
	return exitCode
}

// configPathFromArgs pre-scans the raw arguments for --config so the file
// can be loaded before cobra parses anything.
func configPathFromArgs(args []string) (string, bool) {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1], true
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v, true
		}
	}
	return "lychee.yaml", false
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "linkcheck [inputs...]",
		Short:         "Find broken hyperlinks in markdown, HTML and plaintext",
		Long:          "linkcheck discovers every link in the given files, globs, URLs or stdin\nand reports reachability for each one.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := root.Flags()

	f.StringVar(&configPath, "config", "lychee.yaml", "configuration file to use")
	f.StringVar(&cfg.FilesFrom, "files-from", cfg.FilesFrom, "file listing one input per line, '-' for stdin")

	// Discovery
	f.StringSliceVar(&cfg.Extensions, "extensions", cfg.Extensions, "file extensions scanned in directory walks")
	f.StringVar(&cfg.DefaultExtension, "default-extension", cfg.DefaultExtension, "content kind assumed for files without a known extension")
	f.StringSliceVar(&cfg.FallbackExtensions, "fallback-extensions", cfg.FallbackExtensions, "extensions probed for extension-less link targets")
	f.StringSliceVar(&cfg.IndexFiles, "index-files", cfg.IndexFiles, "file names probed when a link resolves to a directory")
	f.BoolVar(&cfg.GlobIgnoreCase, "glob-ignore-case", cfg.GlobIgnoreCase, "case-insensitive glob matching")
	f.BoolVar(&cfg.Hidden, "hidden", cfg.Hidden, "also scan hidden files and directories")
	f.BoolVar(&cfg.NoIgnore, "no-ignore", cfg.NoIgnore, "do not honor gitignore files")
	f.BoolVar(&cfg.SkipMissing, "skip-missing", cfg.SkipMissing, "ignore inputs that match no files")

	// Policy
	f.StringSliceVar(&cfg.Include, "include", cfg.Include, "only check URLs matching these patterns")
	f.StringSliceVar(&cfg.Exclude, "exclude", cfg.Exclude, "skip URLs matching these patterns")
	f.StringSliceVar(&cfg.ExcludePath, "exclude-path", cfg.ExcludePath, "skip paths matching these patterns")
	f.StringSliceVar(&excludeFile, "exclude-file", nil, "deprecated alias for --exclude-path")
	_ = f.MarkDeprecated("exclude-file", "use --exclude-path instead")
	f.BoolVar(&cfg.ExcludeAllPrivate, "exclude-all-private", cfg.ExcludeAllPrivate, "skip private, link-local and loopback addresses")
	f.BoolVar(&cfg.ExcludePrivate, "exclude-private", cfg.ExcludePrivate, "skip private addresses")
	f.BoolVar(&cfg.ExcludeLinkLocal, "exclude-link-local", cfg.ExcludeLinkLocal, "skip link-local addresses")
	f.BoolVar(&cfg.ExcludeLoopback, "exclude-loopback", cfg.ExcludeLoopback, "skip loopback addresses")
	f.BoolVar(&cfg.IncludeMail, "include-mail", cfg.IncludeMail, "also check mailto addresses")
	f.BoolVar(&cfg.IncludeFragments, "include-fragments", cfg.IncludeFragments, "verify URL fragments against document anchors")
	f.BoolVar(&cfg.IncludeVerbatim, "include-verbatim", cfg.IncludeVerbatim, "also extract links from code blocks")
	f.BoolVar(&cfg.IncludeWikilinks, "include-wikilinks", cfg.IncludeWikilinks, "also extract [[wikilinks]] (requires --base-url)")
	f.StringSliceVar(&cfg.Schemes, "scheme", cfg.Schemes, "URI schemes that are checked")
	f.StringSliceVar(&cfg.Accept, "accept", cfg.Accept, "additional status codes treated as success, e.g. 200..204,429")

	// Network
	f.StringVar(&cfg.Method, "method", cfg.Method, "HTTP method used for checks")
	f.StringArrayVarP(&headerFlags, "header", "H", nil, "custom header sent with every request, 'Name: Value'")
	f.StringSliceVar(&cfg.BasicAuth, "basic-auth", cfg.BasicAuth, "credentials per URI pattern, '<pattern> <user>:<password>'")
	f.StringVar(&cfg.CookieJar, "cookie-jar", cfg.CookieJar, "cookie file read before and written after the run")
	f.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header value")
	f.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "skip TLS certificate verification")
	f.StringVar(&cfg.MinTLS, "min-tls", cfg.MinTLS, "minimum accepted TLS version (TLSv1.0 .. TLSv1.3)")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request timeout")
	f.IntVar(&cfg.MaxRedirects, "max-redirects", cfg.MaxRedirects, "redirects followed per request")
	f.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "retries after transient failures")
	f.DurationVar(&cfg.RetryWaitTime, "retry-wait-time", cfg.RetryWaitTime, "base delay before the first retry")
	f.IntVar(&cfg.MaxConcurrency, "max-concurrency", cfg.MaxConcurrency, "checks in flight at once")
	f.IntVar(&cfg.HostConcurrency, "host-concurrency", cfg.HostConcurrency, "checks in flight per host")
	f.DurationVar(&cfg.HostRequestInterval, "host-request-interval", cfg.HostRequestInterval, "minimum delay between requests to the same host")
	f.StringVar(&cfg.GithubToken, "github-token", cfg.GithubToken, "GitHub API token (falls back to GITHUB_TOKEN)")
	f.BoolVar(&cfg.Offline, "offline", cfg.Offline, "only check local files, skip the network")
	f.StringSliceVar(&cfg.Remap, "remap", cfg.Remap, "URI rewrite rule, '<pattern> <replacement>'")
	f.BoolVar(&cfg.RequireHTTPS, "require-https", cfg.RequireHTTPS, "fail http URLs that are also reachable over https")

	// Resolution
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "base for completing relative URLs")
	f.StringVar(&cfg.RootDir, "root-dir", cfg.RootDir, "filesystem root for absolute link paths")

	// Cache
	f.BoolVar(&cfg.Cache, "cache", cfg.Cache, "reuse results from the cache file")
	f.DurationVar(&cfg.MaxCacheAge, "max-cache-age", cfg.MaxCacheAge, "age beyond which cache entries are ignored")
	f.StringSliceVar(&cfg.CacheExcludeStatus, "cache-exclude-status", cfg.CacheExcludeStatus, "status classes never cached")

	// Reporting
	f.StringVarP(&cfg.Format, "format", "f", cfg.Format, "output format: text or json")
	f.StringVarP(&cfg.Output, "output", "o", cfg.Output, "write the report to this file instead of stdout")
	f.StringVar(&cfg.Mode, "mode", cfg.Mode, "text detail mode: plain or verbose")
	f.BoolVar(&dumpLinks, "dump", false, "print every resolved link without checking")
	f.BoolVar(&dumpInputs, "dump-inputs", false, "print every input source without checking links")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging")
	f.BoolVar(&cfg.NoProgress, "no-progress", cfg.NoProgress, "suppress per-link output, print only the summary")

	return root
}

func runCheck(cmd *cobra.Command, args []string) (int, error) {
	cfg.ExcludePath = append(cfg.ExcludePath, excludeFile...)
	if err := cfg.Validate(); err != nil {
		return exitConfigError, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger)

	inputs, err := gatherInputs(args)
	if err != nil {
		return exitConfigError, err
	}
	if len(inputs) == 0 {
		return exitConfigError, fmt.Errorf("%w: no inputs given", utils.ErrConfigValidation)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := input.NewCollector(log, nil)
	if len(cfg.Extensions) > 0 {
		collector.Extensions = cfg.Extensions
	}
	collector.DefaultExtension = cfg.DefaultExtension
	collector.GlobIgnoreCase = cfg.GlobIgnoreCase
	collector.Hidden = cfg.Hidden
	collector.NoIgnore = cfg.NoIgnore
	collector.SkipMissing = cfg.SkipMissing

	if dumpInputs {
		sources, err := collector.DumpSources(ctx, inputs)
		if err != nil {
			return exitConfigError, err
		}
		out, closeOut, err := openOutput()
		if err != nil {
			return exitConfigError, err
		}
		defer closeOut()
		for _, s := range sources {
			fmt.Fprintln(out, s)
		}
		return exitSuccess, nil
	}

	remaps, err := parseRemaps(cfg.Remap)
	if err != nil {
		return exitConfigError, err
	}
	resolver, err := resolve.New(cfg.BaseURL, cfg.RootDir, cfg.IndexFiles, cfg.FallbackExtensions, remaps)
	if err != nil {
		return exitConfigError, err
	}

	pol := filter.New(filter.Options{
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		ExcludePath:      cfg.ExcludePath,
		Schemes:          cfg.Schemes,
		IncludeMail:      cfg.IncludeMail,
		ExcludePrivate:   cfg.ExcludePrivate,
		ExcludeLinkLocal: cfg.ExcludeLinkLocal,
		ExcludeLoopback:  cfg.ExcludeLoopback,
		ExcludeAll:       cfg.ExcludeAllPrivate,
		Offline:          cfg.Offline,
	})

	extractor := extract.New(cfg.IncludeVerbatim, cfg.IncludeWikilinks, log)
	if cfg.IncludeWikilinks && cfg.BaseURL == "" {
		return exitConfigError, fmt.Errorf("%w: --include-wikilinks requires --base-url", utils.ErrConfigValidation)
	}

	builder := fetch.FromConfig(cfg, logger)
	headers, err := parseHeaders(headerFlags)
	if err != nil {
		return exitConfigError, err
	}
	for k, v := range headers {
		if builder.CustomHeaders == nil {
			builder.CustomHeaders = make(map[string]string)
		}
		builder.CustomHeaders[k] = v
	}
	client, err := builder.Build()
	if err != nil {
		return exitConfigError, err
	}
	defer client.Close()

	if dumpLinks {
		p := pipeline.New(collector, extractor, resolver, pol, client, nil, nil, false, cfg.MaxConcurrency, log)
		reqs, failures := p.Dump(ctx, inputs)
		out, closeOut, err := openOutput()
		if err != nil {
			return exitConfigError, err
		}
		defer closeOut()
		for _, req := range reqs {
			fmt.Fprintln(out, req.Uri.String())
		}
		for _, f := range failures {
			log.Warnf("Input failed: %v", f)
		}
		if len(failures) > 0 && !cfg.SkipMissing {
			return exitConfigError, nil
		}
		return exitSuccess, nil
	}

	var store *cache.Store
	if cfg.Cache {
		store = cache.New(cfg.CacheFile, cfg.MaxCacheAge, cfg.CacheExcludeStatus, client.Accepted, log)
		defer store.Close()
	}

	p := pipeline.New(collector, extractor, resolver, pol, client, store,
		fragment.NewChecker(log), cfg.IncludeFragments, cfg.MaxConcurrency, log)

	out, closeOut, err := openOutput()
	if err != nil {
		return exitConfigError, err
	}
	defer closeOut()

	renderer, err := newRenderer(cfg.Format, cfg.Mode, cfg.NoProgress, out)
	if err != nil {
		return exitConfigError, err
	}

	stats := &Stats{}
	results, errs := p.Run(ctx, inputs)
	inputFailures := 0
	for results != nil || errs != nil {
		select {
		case resp, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			stats.Add(resp)
			renderer.Response(resp)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			inputFailures++
			log.Warnf("Input failed: %v", err)
		}
	}
	renderer.Summary(stats)

	switch {
	case stats.Failures() > 0:
		return exitLinkFailure, nil
	case inputFailures > 0 && !cfg.SkipMissing:
		return exitConfigError, fmt.Errorf("%d input(s) could not be read", inputFailures)
	}
	return exitSuccess, nil
}

// gatherInputs merges positional arguments with the --files-from list.
func gatherInputs(args []string) ([]models.Input, error) {
	values := append([]string{}, args...)
	values = append(values, cfg.Inputs...)

	if cfg.FilesFrom != "" {
		var r io.Reader
		if cfg.FilesFrom == "-" {
			r = os.Stdin
		} else {
			f, err := os.Open(cfg.FilesFrom)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", utils.ErrUnreadableInput, err)
			}
			defer f.Close()
			r = f
		}
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			values = append(values, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", utils.ErrUnreadableInput, cfg.FilesFrom, err)
		}
	}

	inputs := make([]models.Input, 0, len(values))
	for _, v := range values {
		inputs = append(inputs, models.Input{Source: input.ParseSource(v)})
	}
	return inputs, nil
}

func parseHeaders(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(flags))
	for _, h := range flags {
		name, value, found := strings.Cut(h, ":")
		if !found || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: header %q must be 'Name: Value'", utils.ErrConfigValidation, h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func parseRemaps(rules []string) ([]resolve.RemapRule, error) {
	var remaps []resolve.RemapRule
	for _, rule := range rules {
		re, replacement, err := config.SplitRemapRule(rule)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
		}
		remaps = append(remaps, resolve.RemapRule{Pattern: re, Replacement: replacement})
	}
	return remaps, nil
}

func openOutput() (io.Writer, func(), error) {
	if cfg.Output == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: creating %s: %v", utils.ErrConfigValidation, cfg.Output, err)
	}
	return f, func() { f.Close() }, nil
}
