package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured reports that a required setting is missing for the
	// requested operation.
	ErrNotConfigured    = errors.New("configuration missing")
	ErrMissingAssertion = errors.New("user assertion not available for on-behalf-of exchange")
	ErrEventNotFound    = errors.New("event not found")
	ErrObjectNotFound   = errors.New("object not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

const maxErrorBody = 64 << 10

// UpstreamError carries the status and payload of a failed provider call.
type UpstreamError struct {
	Service    string
	StatusCode int
	Details    any
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: request failed with status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed", e.Service)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// newUpstreamError drains resp and builds an error that keeps the provider
// payload for diagnostics.
func newUpstreamError(service string, resp *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	upstream := &UpstreamError{Service: service, StatusCode: resp.StatusCode}
	if len(body) > 0 {
		if json.Valid(body) {
			upstream.Details = json.RawMessage(body)
		} else {
			upstream.Details = strings.TrimSpace(string(body))
		}
	}
	return upstream
}

// ParseError reports a SharePoint URL that could not be understood.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid SharePoint URL %q: %s", e.Input, e.Reason)
}
