package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestProvider(t *testing.T, perMinute int) (*MemoryProvider, *fakeClock) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := &config.AuthConfig{
		AdminEmail:         "Admin@Example.com",
		AdminPasswordHash:  string(hash),
		SessionTTL:         time.Hour,
		LoginRatePerMinute: perMinute,
	}
	return NewMemoryProvider(cfg, WithClock(clock.now)), clock
}

func TestResolveRatings(t *testing.T) {
	all := models.NewRatingSet(models.AllRatings...)
	assert.Equal(t, models.DefaultRatings(), ResolveRatings(nil, all), "anonymous callers only see safe")
	assert.Equal(t, models.DefaultRatings(), ResolveRatings(nil, nil))

	s := &Session{Token: "t"}
	assert.Equal(t, all, ResolveRatings(s, all))
	assert.Equal(t, models.DefaultRatings(), ResolveRatings(s, nil), "empty request falls back to safe")
}

func TestMemoryProvider_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestProvider(t, 5)

	s, err := p.SignIn(ctx, Credentials{Email: " admin@example.com", Password: "hunter2"})
	require.NoError(t, err)
	require.NotEmpty(t, s.Token)
	assert.Equal(t, clock.t.Add(time.Hour), s.ExpiresAt)

	got, err := p.Session(ctx, s.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "admin@example.com", got.Email)

	require.NoError(t, p.SignOut(ctx, s.Token))
	got, err = p.Session(ctx, s.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryProvider_SessionExpires(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestProvider(t, 5)
	s, err := p.SignIn(ctx, Credentials{Email: "admin@example.com", Password: "hunter2"})
	require.NoError(t, err)

	clock.t = clock.t.Add(59 * time.Minute)
	got, _ := p.Session(ctx, s.Token)
	assert.NotNil(t, got)

	clock.t = clock.t.Add(time.Minute)
	got, _ = p.Session(ctx, s.Token)
	assert.Nil(t, got)

	got, _ = p.Session(ctx, "")
	assert.Nil(t, got)
}

func TestMemoryProvider_RejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, 10)
	_, err := p.SignIn(ctx, Credentials{Email: "admin@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignIn(ctx, Credentials{Email: "someone@example.com", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMemoryProvider_RateLimitsPerEmail(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestProvider(t, 2)
	for i := 0; i < 2; i++ {
		_, err := p.SignIn(ctx, Credentials{Email: "admin@example.com", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := p.SignIn(ctx, Credentials{Email: "admin@example.com", Password: "hunter2"})
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = p.SignIn(ctx, Credentials{Email: "other@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "other emails have their own budget")

	clock.t = clock.t.Add(30 * time.Second)
	_, err = p.SignIn(ctx, Credentials{Email: "admin@example.com", Password: "hunter2"})
	assert.NoError(t, err)
}

func TestMemoryProvider_DropsIdleLimiters(t *testing.T) {
	ctx := context.Background()
	p, clock := newTestProvider(t, 5)
	for i := 0; i < 50; i++ {
		_, err := p.SignIn(ctx, Credentials{Email: fmt.Sprintf("user%d@example.com", i), Password: "x"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	assert.Len(t, p.limiters, 50)

	clock.t = clock.t.Add(2 * time.Minute)
	_, err := p.SignIn(ctx, Credentials{Email: "late@example.com", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Len(t, p.limiters, 1)
}

func TestMemoryProvider_CapsLimiters(t *testing.T) {
	p, clock := newTestProvider(t, 5)
	for i := 0; i < maxLimiters+500; i++ {
		p.limiter(fmt.Sprintf("user%d@example.com", i))
		if i%100 == 0 {
			clock.t = clock.t.Add(time.Millisecond)
		}
	}
	assert.Len(t, p.limiters, maxLimiters)
	_, ok := p.limiters[fmt.Sprintf("user%d@example.com", maxLimiters+499)]
	assert.True(t, ok, "newest email is tracked")
	_, ok = p.limiters["user0@example.com"]
	assert.False(t, ok, "oldest email was evicted")
}

func TestMemoryProvider_Disabled(t *testing.T) {
	p := NewMemoryProvider(&config.AuthConfig{})
	_, err := p.SignIn(context.Background(), Credentials{Email: "a", Password: "b"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}
