package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"linkcheck/pkg/config"
	"linkcheck/pkg/models"
	"linkcheck/pkg/quirks"
	"linkcheck/pkg/uri"
	"linkcheck/pkg/utils"
)

// maxBodyScan bounds how much of a remote body is read for fragment checks.
const maxBodyScan = 4 << 20

var errRedirectLimit = errors.New("redirect limit reached")

type redirectRecorderKey struct{}

type redirectRecorder struct {
	hops []models.Redirect
}

// authRule matches a URI pattern to basic-auth credentials.
type authRule struct {
	pattern *regexp.Regexp
	user    string
	pass    string
}

// ClientBuilder assembles a Client. Zero values fall back to the defaults
// from config.Default().
type ClientBuilder struct {
	Method              string
	UserAgent           string
	Timeout             time.Duration
	MaxRedirects        int
	MaxRetries          int
	RetryWaitTime       time.Duration
	Insecure            bool
	MinTLS              string
	CustomHeaders       map[string]string
	BasicAuth           []string // "<uri-pattern> <user>:<password>"
	CookieJarPath       string
	GithubToken         string
	RequireHTTPS        bool
	Accepted            []string
	HostConcurrency     int
	HostRequestInterval time.Duration
	Log                 *logrus.Logger
}

// FromConfig seeds a builder from a validated Config.
func FromConfig(cfg *config.Config, log *logrus.Logger) ClientBuilder {
	return ClientBuilder{
		Method:              cfg.Method,
		UserAgent:           cfg.UserAgent,
		Timeout:             cfg.Timeout,
		MaxRedirects:        cfg.MaxRedirects,
		MaxRetries:          cfg.MaxRetries,
		RetryWaitTime:       cfg.RetryWaitTime,
		Insecure:            cfg.Insecure,
		MinTLS:              cfg.MinTLS,
		CustomHeaders:       cfg.Headers,
		BasicAuth:           cfg.BasicAuth,
		CookieJarPath:       cfg.CookieJar,
		GithubToken:         cfg.EffectiveGithubToken(),
		RequireHTTPS:        cfg.RequireHTTPS,
		Accepted:            cfg.Accept,
		HostConcurrency:     cfg.HostConcurrency,
		HostRequestInterval: cfg.HostRequestInterval,
		Log:                 log,
	}
}

// Client performs a single Request -> Response check. Safe for concurrent
// use; the underlying connection pool is shared across all checks.
type Client struct {
	http         *http.Client
	method       string
	userAgent    string
	headers      map[string]string
	auth         []authRule
	accept       *AcceptSet
	retry        RetryPolicy
	maxRedirects int
	requireHTTPS bool
	hosts        *HostPool
	quirks       *quirks.Chain
	github       *quirks.GithubChecker
	jar          *CookieJar
	timeout      time.Duration
	log          *logrus.Entry
}

// Build validates the builder and constructs the Client.
func (b ClientBuilder) Build() (*Client, error) {
	logger := b.Log
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	entry := logrus.NewEntry(logger)

	def := config.Default()
	if b.Method == "" {
		b.Method = def.Method
	}
	if b.UserAgent == "" {
		b.UserAgent = def.UserAgent
	}
	if b.Timeout == 0 {
		b.Timeout = def.Timeout
	}
	if b.MaxRedirects == 0 {
		b.MaxRedirects = def.MaxRedirects
	}
	if b.HostConcurrency == 0 {
		b.HostConcurrency = def.HostConcurrency
	}
	if b.RetryWaitTime == 0 {
		b.RetryWaitTime = def.RetryWaitTime
	}

	accept, err := NewAcceptSet(b.Accepted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
	}

	var auth []authRule
	for _, rule := range b.BasicAuth {
		re, user, pass, err := config.SplitBasicAuthRule(rule)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
		}
		auth = append(auth, authRule{pattern: re, user: user, pass: pass})
	}

	jar, err := NewCookieJar(b.CookieJarPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrConfigValidation, err)
	}

	tlsCfg := &tls.Config{InsecureSkipVerify: b.Insecure}
	switch b.MinTLS {
	case "TLSv1.0":
		tlsCfg.MinVersion = tls.VersionTLS10
	case "TLSv1.1":
		tlsCfg.MinVersion = tls.VersionTLS11
	case "TLSv1.2":
		tlsCfg.MinVersion = tls.VersionTLS12
	case "TLSv1.3":
		tlsCfg.MinVersion = tls.VersionTLS13
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: b.HostConcurrency,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     tlsCfg,
	}

	maxRedirects := b.MaxRedirects
	httpClient := &http.Client{
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return errRedirectLimit
			}
			if rec, ok := req.Context().Value(redirectRecorderKey{}).(*redirectRecorder); ok {
				code := 0
				if req.Response != nil {
					code = req.Response.StatusCode
				}
				rec.hops = append(rec.hops, models.Redirect{
					From: via[len(via)-1].URL.String(),
					To:   req.URL.String(),
					Code: code,
				})
			}
			return nil
		},
	}

	return &Client{
		http:         httpClient,
		method:       strings.ToUpper(b.Method),
		userAgent:    b.UserAgent,
		headers:      b.CustomHeaders,
		auth:         auth,
		accept:       accept,
		retry:        RetryPolicy{MaxRetries: b.MaxRetries, WaitTime: b.RetryWaitTime, MaxWait: time.Minute, Jitter: true},
		maxRedirects: maxRedirects,
		requireHTTPS: b.RequireHTTPS,
		hosts:        NewHostPool(b.HostConcurrency, b.HostRequestInterval, entry),
		quirks:       quirks.NewChain(),
		github:       quirks.NewGithubChecker(b.GithubToken, entry),
		jar:          jar,
		timeout:      b.Timeout,
		log:          entry,
	}, nil
}

// Accepted reports whether an HTTP status code counts as success for this
// client. Exposed for cache replay.
func (c *Client) Accepted(code int) bool { return c.accept.Contains(code) }

// HostPool exposes the per-host pacing state shared with callers that need
// to run eviction.
func (c *Client) HostPool() *HostPool { return c.hosts }

// Close persists the cookie jar.
func (c *Client) Close() error { return c.jar.Persist() }

// Check performs the full check for one request. The body is discarded; use
// CheckWithBody when the caller needs it for fragment verification.
func (c *Client) Check(ctx context.Context, req *models.Request) models.Response {
	resp, _ := c.CheckWithBody(ctx, req, false)
	return resp
}

// CheckWithBody checks the request and, when wantBody is set and the
// response was successful, returns up to 4 MiB of the body for fragment
// scanning.
func (c *Client) CheckWithBody(ctx context.Context, req *models.Request, wantBody bool) (models.Response, []byte) {
	switch req.Uri.Kind() {
	case uri.KindMail:
		// Address syntax was validated at parse time
		return models.Response{Request: req, Status: models.Ok(0)}, nil
	case uri.KindFileLocal:
		return c.checkFile(req), nil
	default:
		return c.checkWebsite(ctx, req, wantBody)
	}
}

func (c *Client) checkFile(req *models.Request) models.Response {
	path := req.Uri.FilePath()
	if _, err := os.Stat(path); err != nil {
		return models.Response{
			Request: req,
			Status:  models.ErrorStatus(fmt.Errorf("%w: %v", utils.ErrInvalidFile, err), path),
		}
	}
	return models.Response{Request: req, Status: models.Ok(0)}
}

func (c *Client) checkWebsite(ctx context.Context, req *models.Request, wantBody bool) (models.Response, []byte) {
	host := req.Uri.HostPort()
	if err := c.hosts.Acquire(ctx, host); err != nil {
		return models.Response{Request: req, Status: models.ErrorStatus(err, "cancelled")}, nil
	}
	defer c.hosts.Release(host)

	resp, body := c.doWithRetry(ctx, req, c.method, wantBody)

	// HEAD is rejected outright by some servers; retry the whole check as GET
	if c.method == http.MethodHead && headRejected(resp.Status) {
		c.log.WithField("url", req.Uri.String()).Debug("HEAD rejected, falling back to GET")
		resp, body = c.doWithRetry(ctx, req, http.MethodGet, wantBody)
	}

	if c.requireHTTPS && req.Uri.Scheme() == "http" && resp.Status.IsSuccess() {
		if c.httpsAvailable(ctx, req) {
			resp.Status = models.ErrorStatus(
				fmt.Errorf("%w: this URL is available in HTTPS", utils.ErrHTTPStatus),
				"use https instead of http")
		}
	}

	// A failed plain request against a github.com repo falls back to the
	// repositories API, which can answer for rate-limited or
	// private-but-accessible repos. The API result only replaces a failure
	// when it reports success.
	if resp.Status.IsFailure() && c.github.Matches(req.Uri) {
		if status := c.github.Check(ctx, req.Uri); status.IsSuccess() {
			resp.Status = status
		}
	}
	return resp, body
}

func headRejected(s models.Status) bool {
	if s.Kind != models.StatusError && s.Kind != models.StatusUnknownCode {
		return false
	}
	switch s.Code {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return false
}

// doWithRetry runs the attempt loop for one method, driven by the retry
// policy state machine.
func (c *Client) doWithRetry(ctx context.Context, req *models.Request, method string, wantBody bool) (models.Response, []byte) {
	reqLog := c.log.WithField("url", req.Uri.String())

	var lastOutcome Outcome
	var lastResp models.Response
	var lastBody []byte

	attempt := 0
	for ; ; attempt++ {
		select {
		case <-ctx.Done():
			return models.Response{Request: req, Status: models.ErrorStatus(ctx.Err(), "cancelled")}, nil
		default:
		}

		lastResp, lastBody, lastOutcome = c.attempt(ctx, req, method, wantBody)
		decision := c.retry.Decide(attempt, lastOutcome)
		if !decision.Retry {
			break
		}
		reqLog.WithFields(logrus.Fields{"attempt": attempt + 1, "delay": decision.Delay}).Warn("Retrying request...")
		select {
		case <-time.After(decision.Delay):
		case <-ctx.Done():
			return models.Response{Request: req, Status: models.ErrorStatus(ctx.Err(), "cancelled during backoff")}, nil
		}
	}
	if attempt > 0 && !lastResp.Status.IsSuccess() && lastResp.Status.Err != nil {
		lastResp.Status.Err = fmt.Errorf("%w: %w", utils.ErrRetriesExhausted, lastResp.Status.Err)
	}
	return lastResp, lastBody
}

// attempt performs one HTTP request and classifies its result.
func (c *Client) attempt(ctx context.Context, req *models.Request, method string, wantBody bool) (models.Response, []byte, Outcome) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	rec := &redirectRecorder{}
	attemptCtx = context.WithValue(attemptCtx, redirectRecorderKey{}, rec)

	httpReq, err := c.buildRequest(attemptCtx, req, method)
	if err != nil {
		status := models.ErrorStatus(fmt.Errorf("%w: %v", utils.ErrRequestCreation, err), "")
		return models.Response{Request: req, Status: status}, nil, Outcome{Err: err}
	}
	quirk := c.quirks.Apply(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.classifyTransportError(ctx, req, err, rec)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if quirk != nil && quirk.Classify != nil {
		if status, ok := quirk.Classify(resp); ok {
			return models.Response{Request: req, Status: status, Redirects: rec.hops}, nil, Outcome{StatusCode: resp.StatusCode}
		}
	}

	outcome := Outcome{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}

	status := c.classifyStatusCode(resp.StatusCode, len(rec.hops))
	var body []byte
	if wantBody && status.IsSuccess() {
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyScan))
		if err != nil {
			status = models.ErrorStatus(fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, err), "")
			body = nil
		}
	}

	return models.Response{
		Request:   req,
		Status:    status,
		Redirects: rec.hops,
		Body: models.BodyMetadata{
			ContentType:   resp.Header.Get("Content-Type"),
			ContentLength: resp.ContentLength,
		},
	}, body, outcome
}

func (c *Client) buildRequest(ctx context.Context, req *models.Request, method string) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, req.Uri.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
	if req.Credentials != nil {
		httpReq.SetBasicAuth(req.Credentials.Username, req.Credentials.Password)
	} else if cred := c.matchAuth(req.Uri.String()); cred != nil {
		httpReq.SetBasicAuth(cred.Username, cred.Password)
	}
	return httpReq, nil
}

func (c *Client) matchAuth(urlStr string) *models.BasicAuth {
	for _, rule := range c.auth {
		if rule.pattern.MatchString(urlStr) {
			return &models.BasicAuth{Username: rule.user, Password: rule.pass}
		}
	}
	return nil
}

func (c *Client) classifyTransportError(ctx context.Context, req *models.Request, err error, rec *redirectRecorder) (models.Response, []byte, Outcome) {
	var status models.Status
	retryable := false

	switch {
	case errors.Is(err, errRedirectLimit):
		status = models.ErrorStatus(utils.ErrTooManyRedirects, fmt.Sprintf("more than %d redirects", c.maxRedirects))
	case errors.Is(err, context.DeadlineExceeded):
		if ctx.Err() != nil {
			// Whole-pipeline cancellation, not a per-request timeout
			status = models.ErrorStatus(ctx.Err(), "cancelled")
		} else {
			status = models.Timeout()
			retryable = true
		}
	case errors.Is(err, context.Canceled):
		status = models.ErrorStatus(err, "cancelled")
	case isDNSError(err):
		status = models.ErrorStatus(fmt.Errorf("%w: %v", utils.ErrNetworkTransport, err), "dns lookup failed")
	case isTLSVerifyError(err):
		status = models.ErrorStatus(fmt.Errorf("%w: %v", utils.ErrNetworkTransport, err), "tls verification failed")
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			status = models.Timeout()
		} else {
			status = models.ErrorStatus(fmt.Errorf("%w: %v", utils.ErrNetworkTransport, err), "")
		}
		retryable = true
	}

	return models.Response{Request: req, Status: status, Redirects: rec.hops}, nil,
		Outcome{Err: err, TransportRetryable: retryable}
}

// classifyStatusCode maps the final HTTP status to a terminal Status using
// the accept set.
func (c *Client) classifyStatusCode(code, hops int) models.Status {
	switch {
	case c.accept.Contains(code):
		if hops > 0 {
			return models.Redirected(code)
		}
		return models.Ok(code)
	case code >= 400 && code < 600:
		s := models.ErrorStatus(fmt.Errorf("%w: %d", utils.ErrHTTPStatus, code), http.StatusText(code))
		s.Code = code
		return s
	default:
		return models.UnknownCode(code)
	}
}

// httpsAvailable probes the https variant of an http URL.
func (c *Client) httpsAvailable(ctx context.Context, req *models.Request) bool {
	u := req.Uri.URL()
	u.Scheme = "https"
	httpsURI, err := uri.FromURL(u)
	if err != nil {
		return false
	}
	probe := &models.Request{Uri: httpsURI, Source: req.Source, ExtraHeaders: req.ExtraHeaders}
	resp, _ := c.doWithRetry(ctx, probe, c.method, false)
	return resp.Status.IsSuccess()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTLSVerifyError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	return errors.As(err, &unknownAuth) || errors.As(err, &hostnameErr)
}

// CheckURL is the one-shot convenience: parse, build a default client and
// check a single URI.
func CheckURL(ctx context.Context, rawURL string) (models.Response, error) {
	u, err := uri.Parse(rawURL)
	if err != nil {
		return models.Response{}, err
	}
	client, err := ClientBuilder{}.Build()
	if err != nil {
		return models.Response{}, err
	}
	defer client.Close()
	req := &models.Request{Uri: u, Source: models.InputSource{Kind: models.SourceString, Value: rawURL}}
	return client.Check(ctx, req), nil
}
