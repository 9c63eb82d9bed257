package httpexec

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/faults"
)

// ProxyRotator cycles through a pool of egress proxies. Rotation is the
// rotate-identity recovery action: after anti-automation pushback the next
// request leaves from a different address.
type ProxyRotator struct {
	mu      sync.RWMutex
	proxies []*url.URL
	index   int
	logger  *zap.Logger
}

// NewProxyRotator parses the proxy URLs; invalid entries are rejected.
func NewProxyRotator(proxies []string, logger *zap.Logger) (*ProxyRotator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed := make([]*url.URL, 0, len(proxies))
	for _, p := range proxies {
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			return nil, errors.New("invalid proxy url: " + p)
		}
		parsed = append(parsed, u)
	}
	return &ProxyRotator{proxies: parsed, logger: logger}, nil
}

// Current returns the proxy in use, or nil for direct egress.
func (r *ProxyRotator) Current() *url.URL {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.proxies) == 0 {
		return nil
	}
	return r.proxies[r.index]
}

// Rotate advances to the next proxy in the pool.
func (r *ProxyRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) < 2 {
		return errors.New("no alternate identity available")
	}
	r.index = (r.index + 1) % len(r.proxies)
	r.logger.Info("egress identity rotated", zap.String("proxy", r.proxies[r.index].Host))
	return nil
}

// Transport returns an http.RoundTripper that reads the current proxy per
// request, so rotation applies to in-flight retries immediately.
func (r *ProxyRotator) Transport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	t := base.Clone()
	t.Proxy = func(*http.Request) (*url.URL, error) {
		return r.Current(), nil
	}
	return t
}

// Handler adapts rotation to the fault executor's action registry.
func (r *ProxyRotator) Handler() faults.HandlerFunc {
	return func(context.Context, faults.Diagnosis) error {
		return r.Rotate()
	}
}
