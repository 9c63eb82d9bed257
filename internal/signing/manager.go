package signing

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/metrics"
)

// ManagerConfig controls Manager behavior.
type ManagerConfig struct {
	// Cache is optional; nil disables memoization.
	Cache Cache
	// DefaultTTL caps cache lifetimes when a generator reports no tolerance.
	DefaultTTL time.Duration
	Logger     *zap.Logger
}

// Manager routes signing requests to registered generators, applying the
// cache in front of generation. It holds no per-request state and is safe
// for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	generators map[string]Generator
	order      []string
	cache      Cache
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewManager constructs an empty Manager; callers register generators.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Manager{
		generators: make(map[string]Generator),
		cache:      cfg.Cache,
		defaultTTL: ttl,
		logger:     logger,
	}
}

// NewDefaultManager constructs a Manager with the built-in schemes
// registered in detection-priority order.
func NewDefaultManager(cfg ManagerConfig) *Manager {
	m := NewManager(cfg)
	m.Register(NewTokenCompositeGenerator())
	m.Register(NewHMACSHA256Generator())
	m.Register(NewMD5SaltGenerator())
	return m
}

// Register adds or replaces the generator for its scheme. Registration order
// doubles as auto-detection priority.
func (m *Manager) Register(gen Generator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.generators[gen.Scheme()]; !exists {
		m.order = append(m.order, gen.Scheme())
	}
	m.generators[gen.Scheme()] = gen
}

// Generate signs the request, consulting the cache first. Auto-detect mode
// (empty req.Scheme) picks the first registered generator whose Match
// accepts the parameter shape.
func (m *Manager) Generate(ctx context.Context, req Request) (Result, error) {
	gen, err := m.resolve(req)
	if err != nil {
		metrics.SigningRequest(req.Scheme, "unsupported")
		return Result{}, err
	}

	fp := Fingerprint(gen.Scheme(), req.Params, req.Creds)
	if m.cache != nil {
		if res, ok := m.cache.Get(ctx, fp); ok {
			metrics.SigningCacheHit(gen.Scheme())
			return res, nil
		}
		metrics.SigningCacheMiss(gen.Scheme())
	}

	res, err := gen.Generate(req)
	if err != nil {
		metrics.SigningRequest(gen.Scheme(), "error")
		return Result{}, err
	}
	metrics.SigningRequest(gen.Scheme(), "ok")

	if m.cache != nil {
		m.cache.Put(ctx, fp, res, m.cacheTTL(gen))
	}
	return res, nil
}

// Verify regenerates the signature and compares in constant time, so
// credential-bearing schemes do not leak match prefixes through timing.
func (m *Manager) Verify(ctx context.Context, params map[string]string, signature, scheme string, creds Credentials) (bool, error) {
	m.mu.RLock()
	gen, ok := m.generators[scheme]
	m.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrSchemeUnsupported, scheme)
	}
	res, err := gen.Generate(Request{Scheme: scheme, Params: params, Creds: creds})
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(res.Signature), []byte(signature)) == 1, nil
}

// Schemes lists registered scheme keys in registration order.
func (m *Manager) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) resolve(req Request) (Generator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if req.Scheme != "" {
		gen, ok := m.generators[req.Scheme]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrSchemeUnsupported, req.Scheme)
		}
		return gen, nil
	}
	for _, key := range m.order {
		gen := m.generators[key]
		if gen.Match(req.Params) {
			return gen, nil
		}
	}
	return nil, fmt.Errorf("%w: no generator matches parameter shape", ErrSchemeUnsupported)
}

func (m *Manager) cacheTTL(gen Generator) time.Duration {
	ttl := gen.Tolerance()
	if ttl <= 0 || ttl > m.defaultTTL {
		ttl = m.defaultTTL
	}
	return ttl
}
