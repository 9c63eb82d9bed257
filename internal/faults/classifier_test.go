package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wrenlabs/quill/internal/agent"
	"github.com/wrenlabs/quill/internal/limits"
	"github.com/wrenlabs/quill/internal/schedule"
)

// TestClassifyIPBlock checks a 403 with block markers lands in
// anti-automation with identity rotation ranked first.
func TestClassifyIPBlock(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	err := &agent.HTTPError{
		StatusCode: 403,
		URL:        "https://shop.example/api/items",
		Body:       "Access Denied: your IP has been blocked due to unusual traffic",
	}
	d := c.Classify(err, nil)
	require.Equal(t, CategoryAntiAutomation, d.Category)
	require.Equal(t, "ip-block", d.Rule)
	require.Equal(t, ActionRotateIdentity, d.Actions[0])
	require.Equal(t, SeverityHigh, d.Severity)
	// Three body markers plus the status corroboration raise confidence
	// above the rule base.
	require.Greater(t, d.Confidence, 0.6)
	require.LessOrEqual(t, d.Confidence, 0.95)
}

// TestClassifyBare403IsProtocol checks a 403 without block markers reads as
// a protocol client error, not a block.
func TestClassifyBare403IsProtocol(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	d := c.Classify(&agent.HTTPError{StatusCode: 403, Body: "nope"}, nil)
	require.Equal(t, CategoryProtocol, d.Category)
	require.Equal(t, "client-error", d.Rule)
}

// TestClassifyChallenge checks captcha markers map to anti-automation with
// the challenge rule.
func TestClassifyChallenge(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	d := c.Classify(&agent.HTTPError{
		StatusCode: 503,
		Body:       "<html>cf-chl challenge-platform: verify you are human</html>",
	}, nil)
	require.Equal(t, CategoryAntiAutomation, d.Category)
	require.Equal(t, "challenge", d.Rule)
	require.Contains(t, d.Actions, ActionSolveChallenge)
}

// TestClassifyRatePushback checks a bare 429 maps to anti-automation via the
// rate rule.
func TestClassifyRatePushback(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	d := c.Classify(&agent.HTTPError{StatusCode: 429, Body: "slow down"}, nil)
	require.Equal(t, CategoryAntiAutomation, d.Category)
	require.Equal(t, "rate-pushback", d.Rule)
	require.Contains(t, d.Actions, ActionAdjustRate)
}

// TestClassifyNetworkShapes checks DNS, connection, and timeout errors land
// in the network category.
func TestClassifyNetworkShapes(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	cases := []error{
		&net.DNSError{Err: "no such host", Name: "shop.example"},
		&net.OpError{Op: "dial", Err: errors.New("connection refused")},
		fmt.Errorf("fetch: %w", context.DeadlineExceeded),
	}
	for _, err := range cases {
		d := c.Classify(err, nil)
		require.Equal(t, CategoryNetwork, d.Category, "error %v", err)
		require.Equal(t, ActionRetry, d.Actions[0])
	}
}

// TestClassifyServerError checks 5xx maps to protocol.
func TestClassifyServerError(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	d := c.Classify(&agent.HTTPError{StatusCode: 502, Body: "bad gateway"}, nil)
	require.Equal(t, CategoryProtocol, d.Category)
	require.Equal(t, "server-error", d.Rule)
}

// TestClassifyMalformedData checks parse errors map to the data category.
func TestClassifyMalformedData(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	d := c.Classify(errors.New("decode items: unexpected end of JSON input"), nil)
	require.Equal(t, CategoryData, d.Category)
	require.Equal(t, "malformed-data", d.Rule)
	require.Equal(t, []Action{ActionRetry, ActionEscalate}, d.Actions)
}

// TestClassifyExecutionShapes checks task timeouts, panics, and budget
// exhaustion land in execution.
func TestClassifyExecutionShapes(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	cases := []error{
		fmt.Errorf("%w after 5s", schedule.ErrTaskTimeout),
		errors.New("task panic: nil map write"),
		fmt.Errorf("%w: no token within 1s", limits.ErrBudgetExceeded),
	}
	for _, err := range cases {
		d := c.Classify(err, nil)
		require.Equal(t, CategoryExecution, d.Category, "error %v", err)
	}
}

// TestClassifyFallback checks unknown shapes never fail: low-confidence
// logic diagnosis with escalation only.
func TestClassifyFallback(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	d := c.Classify(errors.New("selector matched nothing"), nil)
	require.Equal(t, CategoryLogic, d.Category)
	require.Equal(t, []Action{ActionEscalate}, d.Actions)
	require.InDelta(t, 0.2, d.Confidence, 0.001)
	require.Equal(t, "fallback", d.Rule)

	d = c.Classify(nil, nil)
	require.Equal(t, CategoryLogic, d.Category)
}

// TestClassifyUsesContextMap checks response metadata can arrive through the
// context map instead of the error chain.
func TestClassifyUsesContextMap(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	d := c.Classify(errors.New("request failed"), map[string]any{
		"status_code": 429,
		"url":         "https://shop.example",
		"attempt":     2,
	})
	require.Equal(t, CategoryAntiAutomation, d.Category)
	require.Equal(t, "rate-pushback", d.Rule)
}

// TestClassifyConfidenceCorroboration checks confidence grows with
// corroborating signals and respects the cap.
func TestClassifyConfidenceCorroboration(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	single := c.Classify(&agent.HTTPError{StatusCode: 200, Body: "access denied"}, nil)
	multi := c.Classify(&agent.HTTPError{
		StatusCode: 403,
		Body:       "access denied: ip blocked, request blocked, unusual traffic, forbidden by rule",
	}, nil)
	require.Equal(t, single.Rule, multi.Rule)
	require.Greater(t, multi.Confidence, single.Confidence)
	require.LessOrEqual(t, multi.Confidence, 0.95)
}

// TestExtractSignals spot-checks the structural extraction.
func TestExtractSignals(t *testing.T) {
	t.Parallel()

	httpErr := &agent.HTTPError{StatusCode: 500, URL: "https://x", Body: "oops"}
	s := Extract(fmt.Errorf("do request: %w", httpErr), map[string]any{
		"attempt": 3,
		"latency": 120 * time.Millisecond,
	})
	require.Equal(t, 500, s.StatusCode)
	require.Equal(t, "https://x", s.URL)
	require.Equal(t, "oops", s.Body)
	require.Equal(t, 3, s.Attempt)
	require.Equal(t, 120*time.Millisecond, s.Latency)

	s = Extract(fmt.Errorf("%w: exhausted", limits.ErrBudgetExceeded), nil)
	require.True(t, s.RateLimited)

	s = Extract(nil, nil)
	require.Zero(t, s.StatusCode)
	require.False(t, s.Timeout)
}
