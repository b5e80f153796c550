package httpclient

import (
	"errors"
	"fmt"
)

const (
	transientErrorTemplateConstant       = "%s %s failed after %d attempts: %s"
	transientErrorStatusTemplateConstant = "status %d"
	statusErrorTemplateConstant          = "%s %s returned status %d"
	statusErrorWithBodyTemplateConstant  = "%s %s returned status %d: %s"
	pageErrorTemplateConstant            = "page %d could not be fetched: %w"
	httpClientMissingMessageConstant     = "http client not configured"
	requestURLMissingMessageConstant     = "request url required"
	maximumErrorBodyLengthConstant       = 512
	truncatedBodySuffixConstant          = "..."
)

var (
	// ErrHTTPClientNotConfigured indicates the client was constructed without a transport.
	ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)
	// ErrRequestURLMissing indicates a request without a target URL.
	ErrRequestURLMissing       = errors.New(requestURLMissingMessageConstant)
)

// TransientError reports a retryable failure that persisted through every attempt.
type TransientError struct {
	Method     string
	URL        string
	Attempts   int
	StatusCode int
	Cause      error
}

// Error describes the exhausted retries.
func (transientError TransientError) Error() string {
	description := fmt.Sprintf(transientErrorStatusTemplateConstant, transientError.StatusCode)
	if transientError.Cause != nil {
		description = transientError.Cause.Error()
	}
	return fmt.Sprintf(transientErrorTemplateConstant, transientError.Method, transientError.URL, transientError.Attempts, description)
}

// Unwrap exposes the transport failure, if any.
func (transientError TransientError) Unwrap() error {
	return transientError.Cause
}

// StatusError reports a non-retryable error status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error describes the rejected request.
func (statusError StatusError) Error() string {
	if len(statusError.Body) == 0 {
		return fmt.Sprintf(statusErrorTemplateConstant, statusError.Method, statusError.URL, statusError.StatusCode)
	}
	return fmt.Sprintf(statusErrorWithBodyTemplateConstant, statusError.Method, statusError.URL, statusError.StatusCode, truncateBody(statusError.Body))
}

// IsStatus reports whether err is a StatusError carrying statusCode.
func IsStatus(err error, statusCode int) bool {
	var statusError StatusError
	if errors.As(err, &statusError) {
		return statusError.StatusCode == statusCode
	}
	return false
}

// PageError reports a collection fetch that failed part way through.
type PageError struct {
	PageNumber int
	Cause      error
}

// Error describes the failed page.
func (pageError PageError) Error() string {
	return fmt.Errorf(pageErrorTemplateConstant, pageError.PageNumber, pageError.Cause).Error()
}

// Unwrap exposes the page failure.
func (pageError PageError) Unwrap() error {
	return pageError.Cause
}

func truncateBody(body string) string {
	if len(body) <= maximumErrorBodyLengthConstant {
		return body
	}
	return body[:maximumErrorBodyLengthConstant] + truncatedBodySuffixConstant
}
