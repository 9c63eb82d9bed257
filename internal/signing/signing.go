// Package signing implements multi-scheme request signing with memoization.
//
// Generators are pure functions of their inputs, so results can be cached and
// credential bundles read-shared across concurrent calls without locking.
package signing

import (
	"errors"
	"fmt"
)

// Signing errors. All are returned inline; the manager never retries.
var (
	// ErrSchemeUnsupported indicates no registered generator matches the request.
	ErrSchemeUnsupported = errors.New("scheme unsupported")
	// ErrMissingCredential indicates a required credential key is absent.
	ErrMissingCredential = errors.New("missing credential")
	// ErrEncodingFailure indicates the signing string could not be assembled.
	ErrEncodingFailure = errors.New("encoding failure")
)

// Credentials holds the secret material a scheme needs. The bundle is never
// mutated by the signing layer.
type Credentials map[string]string

// Get returns the credential for key, or ErrMissingCredential.
func (c Credentials) Get(key string) (string, error) {
	v, ok := c[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingCredential, key)
	}
	return v, nil
}

// Identity derives a non-secret identity label for cache fingerprinting.
// Secrets themselves never participate in fingerprints.
func (c Credentials) Identity() string {
	id := c["app_id"]
	if id == "" {
		id = c["app_key"]
	}
	if tok := c["token"]; tok != "" {
		id += ":" + tok
	}
	return id
}

// Request captures everything needed to sign one request. Immutable once
// constructed.
type Request struct {
	// Scheme selects a generator; empty enables auto-detection.
	Scheme string
	// Params is the parameter mapping to sign.
	Params map[string]string
	// Creds supplies the secret material required by the scheme.
	Creds Credentials
	// Optional HTTP context some schemes fold into the signing string.
	Method string
	URL    string
	Body   []byte
}

// Result is the outcome of a signing call.
type Result struct {
	// Scheme is the scheme that produced the signature (useful in auto mode).
	Scheme string `json:"scheme"`
	// Signature is the final encoded signature value.
	Signature string `json:"signature"`
	// Params is the signed parameter mapping, including the signature fields.
	Params map[string]string `json:"params"`
	// Headers optionally carries auth headers the scheme mandates.
	Headers map[string]string `json:"headers,omitempty"`
}
