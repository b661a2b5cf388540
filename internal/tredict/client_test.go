package tredict

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sstent/zwiftsync/internal/auth"
	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/upload"
)

type fakeTredict struct {
	t         *testing.T
	grants    []string
	uploads   []string
	notes     []string
	rejectFit bool
	status    int
}

func (f *fakeTredict) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		grant := r.Form.Get("grant_type")
		f.grants = append(f.grants, grant)
		switch grant {
		case "authorization_code":
			if r.Form.Get("code") != "the-code" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "refresh-1" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-" + grant,
			"token_type":    "bearer",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-refresh_token" &&
			r.Header.Get("Authorization") != "Bearer access-authorization_code" &&
			r.Header.Get("Authorization") != "Bearer stored" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		file, header, err := r.FormFile("file")
		require.NoError(f.t, err)
		defer file.Close()
		io.Copy(io.Discard, file)
		f.uploads = append(f.uploads, header.Filename)
		f.notes = append(f.notes, r.FormValue("notes"))
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if f.rejectFit {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"activity already exists"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"abc123"}`))
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server, dir string) *Client {
	t.Helper()
	c, err := NewClient(config.TredictConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "https://example.com/callback",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		UploadURL:    srv.URL + "/upload",
		TokenPath:    filepath.Join(dir, "token.json"),
	}, nil)
	require.NoError(t, err)
	c.Out = io.Discard
	return c
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(config.TredictConfig{}, nil)
	require.Error(t, err)
}

func TestEnsureValid_FirstAuthorization(t *testing.T) {
	fake := &fakeTredict{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	dir := t.TempDir()

	c := newTestClient(t, srv, dir)
	c.In = strings.NewReader("the-code\n")
	assert.False(t, c.IsAuthorized())
	assert.False(t, c.IsAccessTokenValid())

	require.NoError(t, auth.EnsureValid(context.Background(), c))
	assert.True(t, c.IsAuthorized())
	assert.True(t, c.IsAccessTokenValid())
	assert.Equal(t, []string{"authorization_code"}, fake.grants)

	// the token survives a restart
	reloaded := newTestClient(t, srv, dir)
	assert.True(t, reloaded.IsAuthorized())
	assert.True(t, reloaded.IsAccessTokenValid())
	require.NoError(t, auth.EnsureValid(context.Background(), reloaded))
	assert.Equal(t, []string{"authorization_code"}, fake.grants)
}

func TestEnsureValid_RefreshesExpiredToken(t *testing.T) {
	fake := &fakeTredict{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	dir := t.TempDir()

	require.NoError(t, saveToken(filepath.Join(dir, "token.json"), &oauth2.Token{
		AccessToken:  "old",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	c := newTestClient(t, srv, dir)
	assert.True(t, c.IsAuthorized())
	assert.False(t, c.IsAccessTokenValid())

	require.NoError(t, auth.EnsureValid(context.Background(), c))
	assert.Equal(t, []string{"refresh_token"}, fake.grants)
	assert.Equal(t, "access-refresh_token", c.token.AccessToken)
	assert.Equal(t, "refresh-1", c.token.RefreshToken)
}

func TestEnsureValid_RejectedCode(t *testing.T) {
	fake := &fakeTredict{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, t.TempDir())
	c.In = strings.NewReader("wrong\n")

	err := auth.EnsureValid(context.Background(), c)
	require.ErrorIs(t, err, auth.ErrAuth)
	assert.False(t, c.IsAuthorized())
}

func TestRequestAuthCode_Empty(t *testing.T) {
	fake := &fakeTredict{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := newTestClient(t, srv, t.TempDir())
	c.In = strings.NewReader("\n")
	require.Error(t, c.RequestAuthCode(context.Background()))
}

func storedClient(t *testing.T, srv *httptest.Server) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, saveToken(filepath.Join(dir, "token.json"), &oauth2.Token{
		AccessToken:  "stored",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}))
	activity := filepath.Join(dir, "b.fit")
	require.NoError(t, os.WriteFile(activity, []byte("FIT DATA"), 0o644))
	return newTestClient(t, srv, dir), activity
}

func TestUpload_Success(t *testing.T) {
	fake := &fakeTredict{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c, activity := storedClient(t, srv)

	require.NoError(t, c.Upload(context.Background(), activity, "Zwift: 20.00 km"))
	assert.Equal(t, []string{"b.fit"}, fake.uploads)
	assert.Equal(t, []string{"Zwift: 20.00 km"}, fake.notes)
}

func TestUpload_Rejected(t *testing.T) {
	fake := &fakeTredict{t: t, rejectFit: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c, activity := storedClient(t, srv)

	err := c.Upload(context.Background(), activity, "")
	require.ErrorIs(t, err, upload.ErrUpload)

	var uerr *upload.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusUnprocessableEntity, uerr.StatusCode)
	assert.Equal(t, "activity already exists", uerr.Message)
}

func TestUpload_ServerErrorIsNotResent(t *testing.T) {
	fake := &fakeTredict{t: t, status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c, activity := storedClient(t, srv)
	c.http.RetryMax = 2
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = time.Millisecond

	err := c.Upload(context.Background(), activity, "")
	var uerr *upload.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusServiceUnavailable, uerr.StatusCode)
	assert.Equal(t, []string{"b.fit"}, fake.uploads)
}

func TestRetryConnectionErrors(t *testing.T) {
	ctx := context.Background()

	retry, err := retryConnectionErrors(ctx, &http.Response{StatusCode: http.StatusBadGateway}, nil)
	require.NoError(t, err)
	assert.False(t, retry)

	retry, err = retryConnectionErrors(ctx, nil, errors.New("connection refused"))
	require.NoError(t, err)
	assert.True(t, retry)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	retry, err = retryConnectionErrors(cancelled, nil, errors.New("connection refused"))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, retry)
}

func TestUpload_MissingFile(t *testing.T) {
	fake := &fakeTredict{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	c, activity := storedClient(t, srv)

	err := c.Upload(context.Background(), activity+".missing", "")
	require.ErrorIs(t, err, upload.ErrUpload)
	assert.Empty(t, fake.uploads)
}

func TestAPIMessage(t *testing.T) {
	assert.Equal(t, "bad", apiMessage([]byte(`{"error":"bad"}`), "400 Bad Request"))
	assert.Equal(t, "nested", apiMessage([]byte(`{"errors":[{"message":"nested"}]}`), "x"))
	assert.Equal(t, "plain text", apiMessage([]byte("plain text\n"), "x"))
	assert.Equal(t, "500 Internal Server Error", apiMessage(nil, "500 Internal Server Error"))
}
