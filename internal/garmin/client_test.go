package garmin

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstent/zwiftsync/internal/auth"
	"github.com/sstent/zwiftsync/internal/config"
)

func newTestClient(t *testing.T, cfg config.GarminConfig, clock *time.Time) *Client {
	t.Helper()
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return *clock }
	return c
}

func TestEnsureValid_SignsInAndPersistsSession(t *testing.T) {
	cfg := config.GarminConfig{
		Email:       "rider@example.com",
		Password:    "secret",
		SessionPath: filepath.Join(t.TempDir(), "session.json"),
	}
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	c := newTestClient(t, cfg, &clock)
	logins := 0
	c.authenticate = func() (string, error) {
		logins++
		return "session-1", nil
	}
	assert.False(t, c.IsAuthorized())

	require.NoError(t, auth.EnsureValid(context.Background(), c))
	assert.Equal(t, 1, logins)
	assert.True(t, c.IsAccessTokenValid())

	restored := newTestClient(t, cfg, &clock)
	assert.True(t, restored.IsAuthorized())
	assert.True(t, restored.IsAccessTokenValid())

	clock = clock.Add(31 * time.Minute)
	assert.False(t, restored.IsAccessTokenValid(), "sessions expire after the timeout")
	restored.authenticate = func() (string, error) {
		logins++
		return "session-2", nil
	}
	require.NoError(t, auth.EnsureValid(context.Background(), restored))
	assert.Equal(t, 2, logins)
	assert.Equal(t, "session-2", restored.session.SessionID)
}

func TestEnsureValid_MissingCredentials(t *testing.T) {
	clock := time.Now()
	c := newTestClient(t, config.GarminConfig{SessionPath: filepath.Join(t.TempDir(), "s.json")}, &clock)

	err := auth.EnsureValid(context.Background(), c)
	require.ErrorIs(t, err, auth.ErrAuth)
}

func TestEnsureValid_AuthenticationError(t *testing.T) {
	clock := time.Now()
	c := newTestClient(t, config.GarminConfig{
		Email:       "rider@example.com",
		Password:    "wrong",
		SessionPath: filepath.Join(t.TempDir(), "s.json"),
	}, &clock)
	c.authenticate = func() (string, error) { return "", errors.New("invalid credentials") }

	err := auth.EnsureValid(context.Background(), c)
	require.ErrorIs(t, err, auth.ErrAuth)
	assert.False(t, c.IsAuthorized())
}
