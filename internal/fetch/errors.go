package fetch

import (
	"errors"
	"fmt"
)

// Error kinds, one per failure class. Each implies a different fix for
// whoever publishes the data files.
const (
	KindTransport             = "transport"
	KindUnexpectedContentType = "unexpected_content_type"
	KindMalformedJSON         = "malformed_json"
	KindInvalidShape          = "invalid_shape"
	KindUnknown               = "unknown"
)

// TransportError is a network failure or a non-2xx response.
type TransportError struct {
	Locator string
	// StatusCode is 0 when no response was received.
	StatusCode int
	Status     string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to load %s (HTTP %d)", e.Locator, e.StatusCode)
	}
	return fmt.Sprintf("failed to load %s: %v", e.Locator, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Kind() string { return KindTransport }

// UnexpectedContentTypeError means an HTML page came back where JSON was
// expected, usually a static host's fallback page for a wrong path.
type UnexpectedContentTypeError struct {
	Locator string
}

func (e *UnexpectedContentTypeError) Error() string {
	return fmt.Sprintf("expected JSON but got HTML from %s (wrong publish folder/path?)", e.Locator)
}

func (e *UnexpectedContentTypeError) Kind() string { return KindUnexpectedContentType }

// MalformedJSONError wraps the parser error.
type MalformedJSONError struct {
	Locator string
	Err     error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("invalid JSON in %s: %v", e.Locator, e.Err)
}

func (e *MalformedJSONError) Unwrap() error { return e.Err }

func (e *MalformedJSONError) Kind() string { return KindMalformedJSON }

// InvalidShapeError is valid JSON of the wrong shape. Index is -1 when the
// top-level value is not an array, otherwise the offending element.
type InvalidShapeError struct {
	Locator string
	Index   int
}

func (e *InvalidShapeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s must be a JSON array (e.g. [] or [{...}])", e.Locator)
	}
	return fmt.Sprintf("%s[%d] must be an object { ... }", e.Locator, e.Index)
}

func (e *InvalidShapeError) Kind() string { return KindInvalidShape }

// KindOf returns the kind of err, or KindUnknown.
func KindOf(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}
