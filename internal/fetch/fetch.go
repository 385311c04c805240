package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
)

const defaultTimeout = 15 * time.Second

// Gateway retrieves category data files and validates their shape.
type Gateway struct {
	client *http.Client
	base   *url.URL
}

// NewGateway creates a Gateway.
//
// base is either an http(s) URL (e.g. "https://example.org/calendar/") or a
// local directory (e.g. "./data"), which is served through a file transport
// for development runs.
func NewGateway(base string, timeout time.Duration) (*Gateway, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if base == "" {
		base = "."
	}

	g := &Gateway{client: &http.Client{Timeout: timeout}}

	u, err := url.Parse(base)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		g.base = u
		return g, nil
	}

	dir, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir %q: %w", base, err)
	}
	tr := &http.Transport{}
	tr.RegisterProtocol("file", http.NewFileTransport(http.Dir(dir)))
	g.client.Transport = tr
	g.base = &url.URL{Scheme: "file", Path: "/"}
	return g, nil
}

// FetchCategoryArray fetches one data file and returns its records.
//
// Checks run in this order, each failing with its own error type:
// transport/HTTP status, HTML payload, JSON syntax, top-level array,
// object elements.
func (g *Gateway) FetchCategoryArray(ctx context.Context, locator string) ([]model.RawRecord, error) {
	if locator == "" {
		return nil, &TransportError{Locator: locator, Err: errors.New("empty locator")}
	}
	ref, err := url.Parse(locator)
	if err != nil {
		return nil, &TransportError{Locator: locator, Err: err}
	}
	target := g.base.ResolveReference(ref).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{Locator: locator, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	appLog.Debug("data fetch start", "locator", locator, "url", redactURL(target))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransportError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Locator:    locator,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        errors.New(resp.Status),
		}
	}

	// Read as text first so that HTML fallbacks get a better message than a
	// JSON syntax error.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Locator: locator, Err: err}
	}

	recs, err := decodeArray(locator, body)
	if err != nil {
		return nil, err
	}

	appLog.Info("data fetch success", "locator", locator, "status", resp.StatusCode, "records", len(recs))
	return recs, nil
}

// decodeArray validates and decodes a data file payload.
func decodeArray(locator string, body []byte) ([]model.RawRecord, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if looksLikeHTML(trimmed) {
		return nil, &UnexpectedContentTypeError{Locator: locator}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, &MalformedJSONError{Locator: locator, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, &MalformedJSONError{Locator: locator, Err: err}
	}

	arr, ok := parsed.([]any)
	if !ok {
		return nil, &InvalidShapeError{Locator: locator, Index: -1}
	}

	out := make([]model.RawRecord, 0, len(arr))
	for i, v := range arr {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, &InvalidShapeError{Locator: locator, Index: i}
		}
		out = append(out, model.RawRecord(obj))
	}
	return out, nil
}

func looksLikeHTML(b []byte) bool {
	head := b
	if len(head) > 16 {
		head = head[:16]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}

// redactURL hides sensitive parts of a data URL for logging purposes.
//
//	https://example.com/path/to/conferences.json?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme == "" {
		return "data://...(redacted)"
	}
	if parsed.Scheme == "file" {
		return "file://" + filepath.Base(parsed.Path)
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
