package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
	"github.com/wekeepgrowing/qris-gateway/internal/domain/provider"
)

// State of the cached access token
type State string

const (
	StateNoToken    State = "NO_TOKEN"
	StateValid      State = "VALID"
	StateRefreshing State = "REFRESHING"
)

const (
	DefaultSafetyMargin = 60 * time.Second
	DefaultTokenTTL     = time.Hour
)

// TokenExchanger performs the signed token exchange
type TokenExchanger interface {
	ExchangeToken(ctx context.Context) (*provider.AccessToken, error)
	GetProfileName() provider.ProfileType
}

// Manager caches the gateway access token and coalesces concurrent refreshes
// into a single exchange. Waiters share the outcome, success or failure.
type Manager struct {
	exchanger    TokenExchanger
	safetyMargin time.Duration
	defaultTTL   time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu         sync.RWMutex
	token      string
	expiry     time.Time
	refreshing bool

	group singleflight.Group
}

// Option configures a Manager
type Option func(*Manager)

// WithSafetyMargin sets how long before reported expiry a token is treated as expired
func WithSafetyMargin(d time.Duration) Option {
	return func(m *Manager) { m.safetyMargin = d }
}

// WithDefaultTTL sets the ttl used when the gateway does not report one
func WithDefaultTTL(d time.Duration) Option {
	return func(m *Manager) { m.defaultTTL = d }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(exchanger TokenExchanger, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		exchanger:    exchanger,
		safetyMargin: DefaultSafetyMargin,
		defaultTTL:   DefaultTokenTTL,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a valid access token, exchanging a new one if needed.
// The shared exchange is detached from the first caller's cancellation.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	ch := m.group.DoChan("token", func() (interface{}, error) {
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token so the next call re-authenticates
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = ""
	m.expiry = time.Time{}
}

// State reports the current token state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.refreshing {
		return StateRefreshing
	}
	if m.token != "" && m.now().Before(m.expiry) {
		return StateValid
	}
	return StateNoToken
}

// Expiry returns the effective expiry of the cached token
func (m *Manager) Expiry() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiry
}

func (m *Manager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token != "" && m.now().Before(m.expiry) {
		return m.token, true
	}
	return "", false
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.refreshing = true
	m.mu.Unlock()

	profile := string(m.exchanger.GetProfileName())
	issuedAt := m.now()

	token, err := m.exchanger.ExchangeToken(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshing = false

	if err != nil {
		m.token = ""
		m.expiry = time.Time{}
		m.logger.Error("Token exchange failed",
			zap.String("profile", profile),
			zap.Error(err))
		return "", &domainErrors.AuthFailureError{Profile: profile, Cause: err}
	}

	ttl := token.ExpiresIn
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.token = token.Value
	m.expiry = issuedAt.Add(ttl - m.safetyMargin)

	m.logger.Info("Access token refreshed",
		zap.String("profile", profile),
		zap.Duration("ttl", ttl),
		zap.Time("expires_at", m.expiry))

	return m.token, nil
}
