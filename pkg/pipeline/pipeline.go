package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"linkcheck/pkg/cache"
	"linkcheck/pkg/extract"
	"linkcheck/pkg/fetch"
	"linkcheck/pkg/filter"
	"linkcheck/pkg/fragment"
	"linkcheck/pkg/input"
	"linkcheck/pkg/models"
	"linkcheck/pkg/resolve"
	"linkcheck/pkg/uri"
	"linkcheck/pkg/utils"
)

// Pipeline wires the stages together: collect, extract, resolve, filter,
// cache lookup, network check, fragment check, cache record. Results are
// emitted unordered; every request produces exactly one response.
type Pipeline struct {
	Collector *input.Collector
	Extractor *extract.Extractor
	Resolver  *resolve.Resolver
	Filter    *filter.Filter
	Client    *fetch.Client
	Cache     *cache.Store // nil disables caching
	Fragments *fragment.Checker

	// IncludeFragments enables anchor verification for URIs that carry one.
	IncludeFragments bool
	// MaxConcurrency bounds the number of checks in flight.
	MaxConcurrency int

	log    *logrus.Entry
	flight singleflight.Group
	// seen memoizes per-run outcomes by fingerprint so duplicates of the
	// same URI cost one check even without the on-disk cache.
	seen sync.Map
}

// New assembles a pipeline from already-constructed stages.
func New(collector *input.Collector, extractor *extract.Extractor, resolver *resolve.Resolver,
	f *filter.Filter, client *fetch.Client, store *cache.Store, fragments *fragment.Checker,
	includeFragments bool, maxConcurrency int, log *logrus.Entry) *Pipeline {
	if maxConcurrency <= 0 {
		maxConcurrency = 128
	}
	return &Pipeline{
		Collector:        collector,
		Extractor:        extractor,
		Resolver:         resolver,
		Filter:           f,
		Client:           client,
		Cache:            store,
		Fragments:        fragments,
		IncludeFragments: includeFragments,
		MaxConcurrency:   maxConcurrency,
		log:              log,
	}
}

// Run checks every link discovered in the inputs. Responses arrive on the
// first channel, per-input collection failures on the second. Both channels
// are closed when the pipeline drains or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, inputs []models.Input) (<-chan models.Response, <-chan error) {
	results := make(chan models.Response, p.MaxConcurrency)
	errs := make(chan error, len(inputs)+1)

	headers := headerTable(inputs)
	contents := p.Collector.Collect(ctx, inputs)
	// Small buffer keeps extraction ahead of the checkers without reading
	// whole directory trees into memory.
	requests := make(chan *models.Request, p.MaxConcurrency)

	var extractors sync.WaitGroup
	nExtract := runtime.GOMAXPROCS(0)
	for i := 0; i < nExtract; i++ {
		extractors.Add(1)
		go func() {
			defer extractors.Done()
			for item := range contents {
				if item.Err != nil {
					select {
					case errs <- item.Err:
					case <-ctx.Done():
						return
					}
					continue
				}
				p.processContent(ctx, item.Content, headers[item.Content.Source], requests, results)
			}
		}()
	}

	var checkers sync.WaitGroup
	for i := 0; i < p.MaxConcurrency; i++ {
		checkers.Add(1)
		go func() {
			defer checkers.Done()
			for req := range requests {
				resp := p.check(ctx, req)
				select {
				case results <- resp:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		extractors.Wait()
		close(requests)
		checkers.Wait()
		close(results)
		close(errs)
	}()

	return results, errs
}

// Dump resolves every link without checking it and returns every resolved
// request, including those the filter excludes; links that fail to resolve
// are left out.
func (p *Pipeline) Dump(ctx context.Context, inputs []models.Input) ([]*models.Request, []error) {
	var reqs []*models.Request
	var failures []error
	headers := headerTable(inputs)
	for item := range p.Collector.Collect(ctx, inputs) {
		if item.Err != nil {
			failures = append(failures, item.Err)
			continue
		}
		for _, raw := range p.Extractor.Extract(&item.Content) {
			req, _, err := p.resolveOne(raw, item.Content, headers[item.Content.Source])
			if err != nil || req == nil {
				continue
			}
			reqs = append(reqs, req)
		}
	}
	return reqs, failures
}

// processContent extracts one document and feeds resolved requests forward.
// Excluded and unresolvable links short-circuit into responses here.
func (p *Pipeline) processContent(ctx context.Context, content models.InputContent,
	extraHeaders map[string]string, requests chan<- *models.Request, results chan<- models.Response) {

	if content.FilePath != "" && p.Filter.SkipInputPath(content.FilePath) {
		return
	}

	for _, raw := range p.Extractor.Extract(&content) {
		req, status, err := p.resolveOne(raw, content, extraHeaders)
		if err != nil {
			resp := models.Response{
				Request: &models.Request{Source: content.Source, SourceFile: content.FilePath},
				Status:  statusForResolveError(raw, err),
			}
			select {
			case results <- resp:
			case <-ctx.Done():
				return
			}
			continue
		}
		if status != nil {
			select {
			case results <- models.Response{Request: req, Status: *status}:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case requests <- req:
		case <-ctx.Done():
			return
		}
	}
}

// resolveOne maps a raw URI to a request, or to a terminal status when the
// filter rejects it. On failure only err is set; otherwise the request is
// set, and the status is set alongside it when the filter rejects the link.
func (p *Pipeline) resolveOne(raw models.RawUri, content models.InputContent,
	extraHeaders map[string]string) (*models.Request, *models.Status, error) {

	u, err := p.Resolver.Resolve(raw, content.FilePath)
	if err != nil {
		return nil, nil, err
	}
	req := &models.Request{
		Uri:          u,
		Source:       content.Source,
		SourceFile:   content.FilePath,
		ExtraHeaders: extraHeaders,
	}
	if reason, excluded := p.Filter.Excluded(u); excluded {
		s := models.Excluded(reason)
		return req, &s, nil
	}
	return req, nil, nil
}

func statusForResolveError(raw models.RawUri, err error) models.Status {
	if errors.Is(err, utils.ErrUnsupported) {
		return models.Unsupported(strings.TrimSpace(raw.Text))
	}
	return models.ErrorStatus(err, raw.Text)
}

// flightOutcome is the shared result of one deduplicated check.
type flightOutcome struct {
	status    models.Status
	redirects []models.Redirect
	body      models.BodyMetadata
	bodyBytes []byte
}

// check performs the cache lookup, the single-flighted network or file
// check, and the fragment verification for one request.
func (p *Pipeline) check(ctx context.Context, req *models.Request) models.Response {
	fp := req.Uri.Fingerprint()

	var outcome flightOutcome
	if v, ok := p.seen.Load(fp); ok {
		outcome = v.(flightOutcome)
	} else {
		wantBody := p.IncludeFragments && req.Uri.Kind() == uri.KindWebsite
		v, _, _ := p.flight.Do(fp, func() (interface{}, error) {
			if memo, ok := p.seen.Load(fp); ok {
				return memo.(flightOutcome), nil
			}
			out := flightOutcome{status: models.Status{}}
			if p.Cache != nil {
				if status, ok := p.Cache.Lookup(fp); ok {
					out.status = status
					p.seen.Store(fp, out)
					return out, nil
				}
			}
			resp, body := p.Client.CheckWithBody(ctx, req, wantBody)
			if p.Cache != nil {
				p.Cache.Put(fp, resp.Status)
			}
			out = flightOutcome{
				status:    resp.Status,
				redirects: resp.Redirects,
				body:      resp.Body,
				bodyBytes: body,
			}
			p.seen.Store(fp, out)
			return out, nil
		})
		outcome = v.(flightOutcome)
	}

	resp := models.Response{
		Request:   req,
		Status:    outcome.status,
		Body:      outcome.body,
		Redirects: outcome.redirects,
	}
	// The cache only suppresses the network call. Anchors are verified
	// against local content on every request that names one.
	if p.IncludeFragments && resp.Status.IsSuccess() {
		if err := p.checkFragment(req, outcome); err != nil {
			resp.Status = models.ErrorStatus(err, req.Uri.Fragment())
		}
	}
	return resp
}

func (p *Pipeline) checkFragment(req *models.Request, outcome flightOutcome) error {
	frag := req.Uri.Fragment()
	if frag == "" || frag == "top" || p.Fragments == nil {
		return nil
	}
	switch req.Uri.Kind() {
	case uri.KindFileLocal:
		path := req.Uri.FilePath()
		if !fragment.Checkable(fragment.KindForPath(path), path) {
			return nil
		}
		return p.Fragments.CheckFile(path, frag)
	case uri.KindWebsite:
		if outcome.bodyBytes == nil {
			// Cache hits carry no body; remote anchors cannot be re-verified.
			return nil
		}
		kind, ok := kindForResponse(outcome.body.ContentType, req.Uri.Path())
		if !ok {
			return nil
		}
		return p.Fragments.CheckBody(outcome.bodyBytes, kind, frag)
	}
	return nil
}

// kindForResponse maps a response content type (and the URI path as a tie
// breaker for text/plain) to the kind used for anchor indexing.
func kindForResponse(contentType, path string) (models.ContentKind, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return models.ContentHTML, true
	case "text/markdown":
		return models.ContentMarkdown, true
	case "text/plain":
		if fragment.KindForPath(path) == models.ContentMarkdown {
			return models.ContentMarkdown, true
		}
	}
	return models.ContentPlaintext, false
}

func headerTable(inputs []models.Input) map[models.InputSource]map[string]string {
	table := make(map[models.InputSource]map[string]string, len(inputs))
	for _, in := range inputs {
		if len(in.Headers) > 0 {
			table[in.Source] = in.Headers
		}
	}
	return table
}

// CheckURI is the library one-shot: resolve and check a single URI string
// with a default client. The fmt of failures matches Client.Check.
func CheckURI(ctx context.Context, rawURL string) (models.Response, error) {
	resp, err := fetch.CheckURL(ctx, rawURL)
	if err != nil {
		return models.Response{}, fmt.Errorf("checking %q: %w", rawURL, err)
	}
	return resp, nil
}
