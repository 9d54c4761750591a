// Package credential keeps one valid upstream access token per process and
// shares it with other processes through a key/value store.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/domain"
	"github.com/Domenick1991/cabinbooking/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBuffer  = 5 * time.Minute
	DefaultTimeout = 15 * time.Second

	renewKey = "renew"
)

// ErrUnavailable wraps every failure to obtain a credential from upstream.
var ErrUnavailable = errors.New("upstream credential unavailable")

// Grant is a freshly issued token and its lifetime.
type Grant struct {
	AccessToken string
	ExpiresIn   time.Duration
}

type Fetcher interface {
	FetchToken(ctx context.Context) (Grant, error)
}

// Store is the shared credential storage. Get returns nil, nil when empty.
type Store interface {
	GetCredential(ctx context.Context) (*domain.Credential, error)
	SetCredential(ctx context.Context, cred domain.Credential, ttl time.Duration) error
}

type Manager struct {
	fetcher Fetcher
	store   Store
	buffer  time.Duration
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu      sync.RWMutex
	current *domain.Credential

	group singleflight.Group
}

type Option func(*Manager)

func WithBuffer(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.buffer = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager builds a Manager. store may be nil, in which case only the
// in-process cache is used.
func NewManager(fetcher Fetcher, store Store, opts ...Option) *Manager {
	m := &Manager{
		fetcher: fetcher,
		store:   store,
		buffer:  DefaultBuffer,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns an access token that stays valid for at least the buffer window.
// Concurrent callers share a single renewal.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if cred := m.cached(); cred != nil {
		return cred.AccessToken, nil
	}

	ch := m.group.DoChan(renewKey, func() (interface{}, error) {
		return m.renew(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(domain.Credential).AccessToken, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Credential returns a copy of the in-process credential, if any.
func (m *Manager) Credential() (domain.Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.Credential{}, false
	}
	return *m.current, true
}

// Reset drops the in-process credential. The shared store is left alone.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Invalidate drops the in-process credential only if it still holds token,
// so a rejection of an old token cannot discard a newer one.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	if m.current != nil && m.current.AccessToken == token {
		m.current = nil
	}
	m.mu.Unlock()
}

func (m *Manager) cached() *domain.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current.ValidAt(m.now(), m.buffer) {
		return m.current
	}
	return nil
}

func (m *Manager) adopt(cred domain.Credential) {
	m.mu.Lock()
	m.current = &cred
	m.mu.Unlock()
}

// renew runs at most once per process at a time. It is detached from the
// caller that started it so other waiters are not failed by its cancellation.
func (m *Manager) renew(ctx context.Context) (domain.Credential, error) {
	ctx = context.WithoutCancel(ctx)

	// Another renewal may have finished between the cache miss and this call.
	if cred := m.cached(); cred != nil {
		m.metrics.ObserveCredential("memory")
		return *cred, nil
	}

	if m.store != nil {
		shared, err := m.store.GetCredential(ctx)
		switch {
		case err != nil:
			log.Printf("WARNING: read shared credential: %v", err)
		case shared.ValidAt(m.now(), m.buffer):
			m.adopt(*shared)
			m.metrics.ObserveCredential("shared")
			return *shared, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	grant, err := m.fetcher.FetchToken(fetchCtx)
	if err != nil {
		m.metrics.ObserveCredential("error")
		return domain.Credential{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if grant.AccessToken == "" {
		m.metrics.ObserveCredential("error")
		return domain.Credential{}, fmt.Errorf("%w: empty access token", ErrUnavailable)
	}
	if grant.ExpiresIn <= m.buffer {
		m.metrics.ObserveCredential("error")
		return domain.Credential{}, fmt.Errorf("%w: token lifetime %s is within the %s renewal buffer", ErrUnavailable, grant.ExpiresIn, m.buffer)
	}

	renewals := 1
	if prev, ok := m.Credential(); ok {
		renewals = prev.RenewalCount + 1
	}
	cred := domain.Credential{
		AccessToken:  grant.AccessToken,
		ExpiresAt:    m.now().Add(grant.ExpiresIn),
		RenewalCount: renewals,
	}

	// In-process first: callers succeed even if the shared write fails.
	m.adopt(cred)
	m.metrics.ObserveCredential("upstream")

	if m.store != nil {
		if err := m.store.SetCredential(ctx, cred, grant.ExpiresIn); err != nil {
			log.Printf("WARNING: write shared credential (renewal %d): %v", cred.RenewalCount, err)
		}
	}

	log.Printf("upstream credential renewed: renewal=%d expires_at=%s", cred.RenewalCount, cred.ExpiresAt.Format(time.RFC3339))
	return cred, nil
}
