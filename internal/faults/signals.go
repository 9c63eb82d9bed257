package faults

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/wrenlabs/quill/internal/agent"
	"github.com/wrenlabs/quill/internal/limits"
	"github.com/wrenlabs/quill/internal/schedule"
)

// Signals are the structural facts extracted from an error and its execution
// context. Rules match on these, never on raw error strings scattered
// through control flow.
type Signals struct {
	Err        error
	StatusCode int
	Body       string
	URL        string
	Attempt    int
	Latency    time.Duration

	// Derived error kinds.
	Timeout     bool
	ConnFailure bool
	DNSFailure  bool
	TaskTimeout bool
	RateLimited bool
	Panic       bool
}

// Extract pulls signals from the error chain and the free-form context map
// the scheduler hands over (url, attempt, latency, response metadata).
func Extract(err error, fctx map[string]any) Signals {
	s := Signals{Err: err}

	var httpErr *agent.HTTPError
	if errors.As(err, &httpErr) {
		s.StatusCode = httpErr.StatusCode
		s.Body = httpErr.Body
		s.URL = httpErr.URL
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		s.Timeout = true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		s.DNSFailure = true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		s.ConnFailure = true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.Timeout = true
	}
	if errors.Is(err, schedule.ErrTaskTimeout) {
		s.TaskTimeout = true
	}
	if errors.Is(err, limits.ErrBudgetExceeded) {
		s.RateLimited = true
	}
	if err != nil && strings.Contains(err.Error(), "task panic") {
		s.Panic = true
	}

	if fctx != nil {
		if v, ok := fctx["status_code"].(int); ok && s.StatusCode == 0 {
			s.StatusCode = v
		}
		if v, ok := fctx["body"].(string); ok && s.Body == "" {
			s.Body = v
		}
		if v, ok := fctx["url"].(string); ok && s.URL == "" {
			s.URL = v
		}
		if v, ok := fctx["attempt"].(int); ok {
			s.Attempt = v
		}
		if v, ok := fctx["latency"].(time.Duration); ok {
			s.Latency = v
		}
	}
	return s
}

// Marker sets matched against response bodies. Lowercase; matching is
// case-insensitive.
var (
	blockMarkers = []string{
		"access denied",
		"ip has been blocked",
		"ip blocked",
		"unusual traffic",
		"request blocked",
		"forbidden by rule",
	}
	challengeMarkers = []string{
		"captcha",
		"verify you are human",
		"are you a robot",
		"challenge-platform",
		"cf-chl",
		"slide to verify",
	}
	dataMarkers = []string{
		"unexpected end of json",
		"invalid character",
		"cannot unmarshal",
		"malformed response",
		"unexpected eof",
	}
)

func containsAny(body string, markers []string) int {
	if body == "" {
		return 0
	}
	lower := strings.ToLower(body)
	hits := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	return hits
}
