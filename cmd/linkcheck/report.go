package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"linkcheck/pkg/models"
	"linkcheck/pkg/utils"
)

// Stats buckets responses for the summary and the exit code. Redirected
// links get their own bucket and never count as failures.
type Stats struct {
	Total       int
	Successful  int
	Redirected  int
	UnknownCode int
	Excluded    int
	Unsupported int
	Timeouts    int
	Errors      int
	Cached      int
}

func (s *Stats) Add(resp models.Response) {
	s.Total++
	if resp.Status.Cached {
		s.Cached++
	}
	switch resp.Status.Kind {
	case models.StatusOk:
		s.Successful++
	case models.StatusRedirected:
		s.Redirected++
	case models.StatusUnknownCode:
		s.UnknownCode++
	case models.StatusExcluded:
		s.Excluded++
	case models.StatusUnsupported:
		s.Unsupported++
	case models.StatusTimeout:
		s.Timeouts++
	case models.StatusError:
		s.Errors++
	}
}

// Failures counts the responses that drive exit code 2.
func (s *Stats) Failures() int {
	return s.Errors + s.Timeouts + s.UnknownCode
}

// Renderer receives each response as it arrives and the final summary.
type Renderer interface {
	Response(models.Response)
	Summary(*Stats)
}

func newRenderer(format, mode string, summaryOnly bool, out io.Writer) (Renderer, error) {
	switch format {
	case "", "text":
		return &textRenderer{out: out, verbose: mode == "verbose", summaryOnly: summaryOnly}, nil
	case "json":
		return &jsonRenderer{out: out}, nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", utils.ErrConfigValidation, format)
}

type textRenderer struct {
	out         io.Writer
	verbose     bool
	summaryOnly bool
}

func (r *textRenderer) Response(resp models.Response) {
	if r.summaryOnly {
		return
	}
	if !r.verbose && resp.Status.IsSuccess() {
		return
	}
	marker := "✗"
	if resp.Status.IsSuccess() {
		marker = "✓"
	} else if resp.Status.Kind == models.StatusExcluded || resp.Status.Kind == models.StatusUnsupported {
		marker = "-"
	}
	fmt.Fprintf(r.out, "%s [%s] %s\n", marker, resp.Status, resp.Request.Uri)
	if r.verbose {
		for _, hop := range resp.Redirects {
			fmt.Fprintf(r.out, "    -> %s (%d)\n", hop.To, hop.Code)
		}
		if resp.Status.Err != nil {
			fmt.Fprintf(r.out, "    category: %s\n", utils.CategorizeError(resp.Status.Err))
		}
	}
}

func (r *textRenderer) Summary(s *Stats) {
	fmt.Fprintf(r.out, "\n%d total", s.Total)
	fmt.Fprintf(r.out, " | %d OK", s.Successful)
	if s.Redirected > 0 {
		fmt.Fprintf(r.out, " | %d redirected", s.Redirected)
	}
	if s.Excluded > 0 {
		fmt.Fprintf(r.out, " | %d excluded", s.Excluded)
	}
	if s.Unsupported > 0 {
		fmt.Fprintf(r.out, " | %d unsupported", s.Unsupported)
	}
	if s.Cached > 0 {
		fmt.Fprintf(r.out, " | %d cached", s.Cached)
	}
	fmt.Fprintf(r.out, " | %d failed\n", s.Failures())
}

// jsonEntry is the wire shape of one result in the JSON report.
type jsonEntry struct {
	URL       string            `json:"url"`
	Status    string            `json:"status"`
	Code      int               `json:"code,omitempty"`
	Category  string            `json:"category,omitempty"`
	Source    string            `json:"source,omitempty"`
	Cached    bool              `json:"cached,omitempty"`
	Redirects []models.Redirect `json:"redirects,omitempty"`
}

type jsonReport struct {
	Total       int         `json:"total"`
	Successful  int         `json:"successful"`
	Redirected  int         `json:"redirected"`
	Excluded    int         `json:"excluded"`
	Unsupported int         `json:"unsupported"`
	Cached      int         `json:"cached"`
	Failed      int         `json:"failed"`
	Links       []jsonEntry `json:"links"`
}

type jsonRenderer struct {
	out     io.Writer
	entries []jsonEntry
}

func (r *jsonRenderer) Response(resp models.Response) {
	uri := ""
	if resp.Request.Uri != nil {
		uri = resp.Request.Uri.String()
	}
	source := resp.Request.SourceFile
	if source == "" {
		source = resp.Request.Source.String()
	}
	category := ""
	if resp.Status.Err != nil {
		category = utils.CategorizeError(resp.Status.Err)
	}
	r.entries = append(r.entries, jsonEntry{
		URL:       uri,
		Status:    resp.Status.String(),
		Code:      resp.Status.Code,
		Category:  category,
		Source:    source,
		Cached:    resp.Status.Cached,
		Redirects: resp.Redirects,
	})
}

func (r *jsonRenderer) Summary(s *Stats) {
	sort.Slice(r.entries, func(i, j int) bool { return r.entries[i].URL < r.entries[j].URL })
	report := jsonReport{
		Total:       s.Total,
		Successful:  s.Successful,
		Redirected:  s.Redirected,
		Excluded:    s.Excluded,
		Unsupported: s.Unsupported,
		Cached:      s.Cached,
		Failed:      s.Failures(),
		Links:       r.entries,
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	enc.Encode(report)
}
