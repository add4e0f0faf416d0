package thumbnail

import "errors"

// Error kinds surfaced by pipeline stages. Stages wrap these with %w so
// callers can branch on kind while still receiving the user-facing message.
var (
	// ErrNotFound means no image candidate could be resolved from any
	// scraping strategy.
	ErrNotFound = errors.New("image not found")

	// ErrUnsupportedInput means a supplied local file path does not exist or
	// could not be read.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrServiceAuth means a remote service rejected the supplied
	// credentials (HTTP 401/403).
	ErrServiceAuth = errors.New("service auth failure")

	// ErrServiceQuota means a remote service reported payment or credit
	// exhaustion (HTTP 402).
	ErrServiceQuota = errors.New("service quota failure")

	// ErrTimeout means a bounded external call exceeded its budget.
	ErrTimeout = errors.New("timeout")

	// ErrProcessing means a local decode, resize, or compose step failed.
	ErrProcessing = errors.New("processing failure")
)
