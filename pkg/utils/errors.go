package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrInvalidURL       = errors.New("invalid URL")                      // Wraps the parse error
	ErrInvalidFile      = errors.New("invalid or missing file")          // Wraps os errors
	ErrInvalidFragment  = errors.New("fragment not found in document")   // Carries the missing fragment
	ErrUnreadableInput  = errors.New("unreadable input")                 // Missing or unreadable source
	ErrNetworkTransport = errors.New("network transport error")          // Connect/TLS/DNS/read failures
	ErrTimeout          = errors.New("request timed out")
	ErrHTTPStatus       = errors.New("unexpected HTTP status")           // Wraps status code detail
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrRetriesExhausted = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrUnsupported      = errors.New("unsupported scheme")
	ErrConfigValidation = errors.New("configuration validation error")
	ErrCacheIO          = errors.New("cache I/O error")                  // Wraps file errors
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrGlobPattern      = errors.New("invalid glob pattern")
)

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Check against sentinel errors first
	switch {
	case errors.Is(err, ErrRetriesExhausted):
		switch {
		case errors.Is(err, ErrHTTPStatus):
			return "RetriesExhausted_HTTPStatus"
		case errors.Is(err, ErrTimeout):
			return "RetriesExhausted_Timeout"
		}
		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
			return "RetriesExhausted_Timeout"
		}
		if strings.Contains(errMsg, "connection refused") {
			return "RetriesExhausted_ConnectionRefused"
		}
		if strings.Contains(errMsg, "no such host") {
			return "RetriesExhausted_DNSLookup"
		}
		return "RetriesExhausted_NetworkOther"
	case errors.Is(err, ErrInvalidURL):
		return "URI_Invalid"
	case errors.Is(err, ErrInvalidFile):
		if errors.Is(err, os.ErrPermission) {
			return "File_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "File_NotExist"
		}
		return "File_Other"
	case errors.Is(err, ErrInvalidFragment):
		return "Fragment_Missing"
	case errors.Is(err, ErrUnreadableInput):
		return "Input_Unreadable"
	case errors.Is(err, ErrTimeout):
		return "Network_Timeout"
	case errors.Is(err, ErrTooManyRedirects):
		return "Network_TooManyRedirects"
	case errors.Is(err, ErrHTTPStatus):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 429") {
			return "HTTP_429"
		}
		return "HTTP_Other"
	case errors.Is(err, ErrUnsupported):
		return "URI_Unsupported"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrCacheIO):
		return "Cache_IO"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrGlobPattern):
		return "Input_GlobPattern"
	}

	// --- Fallback checks for common underlying error types/strings ---

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
