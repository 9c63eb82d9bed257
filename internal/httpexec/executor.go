// Package httpexec turns task specs into scheduler task bodies: it signs the
// request parameters, issues the HTTP call, and surfaces failures with
// enough structure for the fault classifier.
package httpexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/agent"
	"github.com/wrenlabs/quill/internal/schedule"
	"github.com/wrenlabs/quill/internal/signing"
)

const defaultBodySnippet = 4 << 10

// Config controls Executor behavior.
type Config struct {
	// Timeout is the HTTP client timeout; per-task timeouts still apply on top.
	Timeout time.Duration
	// UserAgent is sent on every request when the spec sets none.
	UserAgent string
	// BodySnippet bounds how much of an error response body is retained for
	// classification.
	BodySnippet int
}

// Executor builds executable task bodies from specs.
type Executor struct {
	client  *http.Client
	signer  *signing.Manager
	creds   signing.Credentials
	rotator *ProxyRotator
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Executor. rotator may be nil when no proxies are
// configured.
func New(cfg Config, signer *signing.Manager, creds signing.Credentials, rotator *ProxyRotator, logger *zap.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BodySnippet <= 0 {
		cfg.BodySnippet = defaultBodySnippet
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport
	if rotator != nil {
		transport = rotator.Transport()
	}
	return &Executor{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		signer:  signer,
		creds:   creds,
		rotator: rotator,
		cfg:     cfg,
		logger:  logger,
	}
}

// TaskFor wraps a spec into a scheduler task. The task body is a pure
// function of the spec; all mutable state stays inside the executor.
func (e *Executor) TaskFor(spec agent.TaskSpec) *schedule.Task {
	return &schedule.Task{
		ID:         spec.ID,
		Priority:   spec.Priority,
		Delay:      time.Duration(spec.DelayMs) * time.Millisecond,
		Timeout:    time.Duration(spec.TimeoutMs) * time.Millisecond,
		MaxRetries: spec.MaxRetries,
		Fn: func(ctx context.Context) error {
			return e.do(ctx, spec)
		},
	}
}

func (e *Executor) do(ctx context.Context, spec agent.TaskSpec) error {
	params := spec.Params
	headers := map[string]string{}
	for k, v := range spec.Headers {
		headers[k] = v
	}

	if spec.Scheme != "" {
		res, err := e.signer.Generate(ctx, signing.Request{
			Scheme: spec.Scheme,
			Params: spec.Params,
			Creds:  e.creds,
			Method: spec.Method,
			URL:    spec.URL,
			Body:   []byte(spec.Body),
		})
		if err != nil {
			// Signing failures are deterministic; retrying burns budget
			// for nothing.
			if errors.Is(err, signing.ErrSchemeUnsupported) || errors.Is(err, signing.ErrMissingCredential) {
				return schedule.NonRetryable(fmt.Errorf("sign request: %w", err))
			}
			return fmt.Errorf("sign request: %w", err)
		}
		params = res.Params
		for k, v := range res.Headers {
			headers[k] = v
		}
	}

	target, err := buildURL(spec.URL, params)
	if err != nil {
		return schedule.NonRetryable(fmt.Errorf("build url: %w", err))
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if spec.Body != "" {
		body = strings.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return schedule.NonRetryable(fmt.Errorf("build request: %w", err))
	}
	if e.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, int64(e.cfg.BodySnippet)))
	if resp.StatusCode >= 400 {
		return &agent.HTTPError{
			StatusCode: resp.StatusCode,
			URL:        spec.URL,
			Body:       string(snippet),
		}
	}
	return nil
}

func buildURL(raw string, params map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
