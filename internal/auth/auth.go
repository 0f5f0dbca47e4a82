// Package auth holds admin sessions and the rating policy derived from them.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/models"
)

var (
	// ErrInvalidCredentials is returned by SignIn for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned by SignIn when too many attempts were made for an email.
	ErrRateLimited = errors.New("too many sign-in attempts")
	// ErrDisabled is returned by SignIn when no admin account is configured.
	ErrDisabled = errors.New("sign-in is not configured")
)

// Credentials identify the admin on sign-in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is an authenticated admin session.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider manages sessions. Session returns (nil, nil) for an unknown or expired token.
type Provider interface {
	Session(ctx context.Context, token string) (*Session, error)
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context, token string) error
}

// ResolveRatings returns the ratings a caller may see. Without a session only safe posts
// are visible; with one, the requested set applies, defaulting to safe.
func ResolveRatings(session *Session, requested models.RatingSet) models.RatingSet {
	if session == nil {
		return models.DefaultRatings()
	}
	return models.NewRatingSet(requested...)
}

// HashPassword returns the bcrypt hash stored in auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MemoryProvider keeps sessions in memory for the single configured admin account.
type MemoryProvider struct {
	cfg    *config.AuthConfig
	now    func() time.Time
	logger *zap.Logger // optional; when set, logs sign-in events

	mu        sync.Mutex
	sessions  map[string]*Session
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

// limiterIdle is how long a sign-in limiter must go unused to refill its whole burst.
// An entry idle that long behaves like a new one and can be dropped.
const limiterIdle = time.Minute

// maxLimiters caps the number of tracked emails.
const maxLimiters = 4096

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

var _ Provider = (*MemoryProvider)(nil)

// MemoryProviderOption configures a MemoryProvider.
type MemoryProviderOption func(*MemoryProvider)

// WithLogger sets a logger for sign-in events.
func WithLogger(l *zap.Logger) MemoryProviderOption {
	return func(p *MemoryProvider) { p.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryProviderOption {
	return func(p *MemoryProvider) { p.now = now }
}

// NewMemoryProvider creates a provider for the admin account in cfg.
func NewMemoryProvider(cfg *config.AuthConfig, opts ...MemoryProviderOption) *MemoryProvider {
	p := &MemoryProvider{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
		limiters: make(map[string]*limiterEntry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session returns the live session for token, or nil.
func (p *MemoryProvider) Session(_ context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[token]
	if !ok {
		return nil, nil
	}
	if !p.now().Before(s.ExpiresAt) {
		delete(p.sessions, token)
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// SignIn checks creds against the admin account and opens a session.
// Attempts are limited per email to auth.login_rate_per_minute.
func (p *MemoryProvider) SignIn(_ context.Context, creds Credentials) (*Session, error) {
	if !p.cfg.Enabled() {
		return nil, ErrDisabled
	}
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if !p.limiter(email).AllowN(p.now(), 1) {
		if p.logger != nil {
			p.logger.Warn("sign-in rate limited", zap.String("email", email))
		}
		return nil, ErrRateLimited
	}

	// The hash is compared even when the email is wrong.
	hashErr := bcrypt.CompareHashAndPassword([]byte(p.cfg.AdminPasswordHash), []byte(creds.Password))
	if email != strings.ToLower(p.cfg.AdminEmail) || hashErr != nil {
		if p.logger != nil {
			p.logger.Info("sign-in failed", zap.String("email", email))
		}
		return nil, ErrInvalidCredentials
	}

	s := &Session{
		Token:     uuid.New().String(),
		Email:     email,
		ExpiresAt: p.now().Add(p.cfg.SessionTTL),
	}
	p.mu.Lock()
	p.sessions[s.Token] = s
	p.pruneLocked()
	p.mu.Unlock()
	if p.logger != nil {
		p.logger.Info("signed in", zap.String("email", email), zap.Time("expires_at", s.ExpiresAt))
	}
	copied := *s
	return &copied, nil
}

// SignOut ends the session for token. Unknown tokens are ignored.
func (p *MemoryProvider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	delete(p.sessions, token)
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) limiter(email string) *rate.Limiter {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.limiters[email]; ok {
		e.lastSeen = now
		return e.lim
	}
	if now.Sub(p.lastSweep) >= limiterIdle || len(p.limiters) >= maxLimiters {
		p.sweepLimitersLocked(now)
	}
	if len(p.limiters) >= maxLimiters {
		p.evictOldestLimiterLocked()
	}
	perMinute := p.cfg.LoginRatePerMinute
	if perMinute <= 0 {
		perMinute = 5
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	p.limiters[email] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// sweepLimitersLocked drops limiters unused for limiterIdle. p.mu must be held.
func (p *MemoryProvider) sweepLimitersLocked(now time.Time) {
	for email, e := range p.limiters {
		if now.Sub(e.lastSeen) >= limiterIdle {
			delete(p.limiters, email)
		}
	}
	p.lastSweep = now
}

func (p *MemoryProvider) evictOldestLimiterLocked() {
	var (
		oldest string
		seen   time.Time
		found  bool
	)
	for email, e := range p.limiters {
		if !found || e.lastSeen.Before(seen) {
			oldest, seen, found = email, e.lastSeen, true
		}
	}
	if found {
		delete(p.limiters, oldest)
	}
}

// pruneLocked drops expired sessions. p.mu must be held.
func (p *MemoryProvider) pruneLocked() {
	now := p.now()
	for token, s := range p.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(p.sessions, token)
		}
	}
}
