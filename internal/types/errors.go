package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrEmptyResponse      = errors.New("empty response body")
	ErrBrowserUnavailable = errors.New("browser session unavailable")
	ErrMissingName        = errors.New("record has no name")
	ErrUnknownAcquirer    = errors.New("no acquirer registered for kind")
	ErrUnknownVariant     = errors.New("no extractor registered for variant")
)

// FetchError wraps errors that occur while downloading a page or payload.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// AcquireError is a source-level failure: the source is skipped and the run continues.
type AcquireError struct {
	Source string
	Kind   AcquisitionKind
	Err    error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("acquire %s (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// ExtractError describes a field lookup that failed inside a live element.
type ExtractError struct {
	Field    string
	Selector string
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s (selector=%q): %v", e.Field, e.Selector, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during persistence/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised by a record middleware.
type PipelineError struct {
	Stage  string
	Record *ProductRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
