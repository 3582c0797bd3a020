package models

import (
	"fmt"

	"linkcheck/pkg/utils"
)

// StatusKind enumerates the terminal classifications of a check.
type StatusKind int

const (
	// StatusOk is an HTTP 2xx or user-accepted code.
	StatusOk StatusKind = iota
	// StatusRedirected means redirects were followed to a success.
	StatusRedirected
	// StatusUnknownCode is a code outside both the accept set and the error classes.
	StatusUnknownCode
	// StatusExcluded means the request was filtered by policy.
	StatusExcluded
	// StatusUnsupported is a scheme we do not handle.
	StatusUnsupported
	// StatusTimeout is a request that exceeded its deadline.
	StatusTimeout
	// StatusError is any other failure; Err carries the category.
	StatusError
)

// Status is the terminal classification of a single checked URI.
// Cached wraps the original status when the result was served from the
// on-disk cache instead of a live check.
type Status struct {
	Kind StatusKind
	// Code is the HTTP status code where applicable, 0 otherwise.
	Code int
	// Reason holds detail for Excluded, Unsupported and Error statuses.
	Reason string
	// Err is the underlying error for StatusError and StatusTimeout, nil otherwise.
	Err error
	// Cached marks a status replayed from the cache.
	Cached bool
}

func Ok(code int) Status          { return Status{Kind: StatusOk, Code: code} }
func Redirected(code int) Status  { return Status{Kind: StatusRedirected, Code: code} }
func UnknownCode(code int) Status { return Status{Kind: StatusUnknownCode, Code: code} }
func Excluded(reason string) Status {
	return Status{Kind: StatusExcluded, Reason: reason}
}
func Unsupported(reason string) Status {
	return Status{Kind: StatusUnsupported, Reason: reason}
}
func Timeout() Status { return Status{Kind: StatusTimeout, Err: utils.ErrTimeout} }
func ErrorStatus(err error, detail string) Status {
	return Status{Kind: StatusError, Reason: detail, Err: err}
}

// AsCached returns a copy of s marked as replayed from the cache.
func (s Status) AsCached() Status {
	s.Cached = true
	return s
}

// IsSuccess reports whether the status counts as a working link.
// Redirected links land in their own bucket and never count as errors.
func (s Status) IsSuccess() bool {
	return s.Kind == StatusOk || s.Kind == StatusRedirected
}

// IsFailure reports whether the status counts toward exit code 2.
func (s Status) IsFailure() bool {
	switch s.Kind {
	case StatusError, StatusTimeout, StatusUnknownCode:
		return true
	}
	return false
}

func (s Status) String() string {
	var base string
	switch s.Kind {
	case StatusOk:
		base = fmt.Sprintf("OK (%d)", s.Code)
	case StatusRedirected:
		base = fmt.Sprintf("Redirected (%d)", s.Code)
	case StatusUnknownCode:
		base = fmt.Sprintf("Unknown status code (%d)", s.Code)
	case StatusExcluded:
		base = "Excluded"
		if s.Reason != "" {
			base = fmt.Sprintf("Excluded (%s)", s.Reason)
		}
	case StatusUnsupported:
		base = fmt.Sprintf("Unsupported (%s)", s.Reason)
	case StatusTimeout:
		base = "Timeout"
	case StatusError:
		if s.Err != nil {
			base = fmt.Sprintf("Error (%v)", s.Err)
		} else {
			base = fmt.Sprintf("Error (%s)", s.Reason)
		}
	default:
		base = "Unknown"
	}
	if s.Cached {
		return "Cached: " + base
	}
	return base
}

// CacheClass returns the coarse class persisted to the cache file.
// The empty string means the status is never cached (excluded and
// unsupported results may change with configuration or future versions).
func (s Status) CacheClass() string {
	switch s.Kind {
	case StatusOk, StatusRedirected:
		if s.Code > 0 {
			return fmt.Sprintf("%d", s.Code)
		}
		return "200"
	case StatusUnknownCode, StatusError, StatusTimeout:
		if s.Code > 0 {
			return fmt.Sprintf("%d", s.Code)
		}
		return "error"
	}
	return ""
}

// StatusFromCacheClass reconstructs a replayable status from a persisted
// class. Unknown classes return false and are ignored by the loader.
func StatusFromCacheClass(class string, code int, accepted func(int) bool) (Status, bool) {
	switch {
	case class == "error":
		return ErrorStatus(nil, "cached failure").AsCached(), true
	case code > 0:
		if accepted(code) {
			return Ok(code).AsCached(), true
		}
		return ErrorStatus(nil, fmt.Sprintf("cached status %d", code)).AsCached(), true
	}
	return Status{}, false
}
