package upload

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sstent/zwiftsync/internal/store"
)

type fakeClient struct {
	fail    map[string]bool
	uploads []string
	notes   []string
	onCall  func()
}

func (f *fakeClient) IsAuthorized() bool                                         { return true }
func (f *fakeClient) IsAccessTokenValid() bool                                   { return true }
func (f *fakeClient) RequestAuthCode(ctx context.Context) error                  { return nil }
func (f *fakeClient) RequestAccessToken(ctx context.Context, refresh bool) error { return nil }
func (f *fakeClient) Name() string                                               { return "fake" }

func (f *fakeClient) Upload(ctx context.Context, path, notes string) error {
	f.uploads = append(f.uploads, filepath.Base(path))
	f.notes = append(f.notes, notes)
	if f.onCall != nil {
		f.onCall()
	}
	if f.fail[filepath.Base(path)] {
		return &Error{Path: path, StatusCode: 500, Message: "server error"}
	}
	return nil
}

type memHistory struct {
	attempts []Attempt
}

func (h *memHistory) RecordAttempt(a Attempt) error {
	h.attempts = append(h.attempts, a)
	return nil
}

func queued(t *testing.T, names ...string) *store.Store {
	t.Helper()
	s := store.New()
	s.Touch(time.Unix(1000, 0))
	for _, n := range names {
		require.NoError(t, s.Append(store.Record{Filename: n}))
	}
	return s
}

func TestRun_Success(t *testing.T) {
	s := queued(t, "b.fit")
	client := &fakeClient{}
	p := &Pipeline{Now: func() time.Time { return time.Unix(3000, 0) }}

	sum, err := p.Run(context.Background(), s, client, "/activities")
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Uploaded: 1}, sum)
	assert.Equal(t, []store.Record{{Filename: "b.fit", Uploaded: true, Processed: true}}, s.Activities)
	assert.Equal(t, int64(3000), s.LastChecked.Unix())
}

func TestRun_FailureIsNotRetried(t *testing.T) {
	s := queued(t, "b.fit")
	client := &fakeClient{fail: map[string]bool{"b.fit": true}}
	p := &Pipeline{}

	sum, err := p.Run(context.Background(), s, client, "/activities")
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 1, Failed: 1}, sum)
	assert.Equal(t, []store.Record{{Filename: "b.fit", Uploaded: false, Processed: true}}, s.Activities)

	sum, err = p.Run(context.Background(), s, client, "/activities")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
	assert.Equal(t, []string{"b.fit"}, client.uploads, "a failed upload is attempted once")
}

func TestRun_FailureDoesNotBlockQueue(t *testing.T) {
	s := queued(t, "a.fit", "b.fit", "c.fit")
	require.NoError(t, s.Append(store.Record{Filename: "old.fit", Processed: true}))
	client := &fakeClient{fail: map[string]bool{"b.fit": true}}
	history := &memHistory{}
	p := &Pipeline{
		History: history,
		Notes:   func(path string) string { return "notes for " + filepath.Base(path) },
	}

	sum, err := p.Run(context.Background(), s, client, "/activities")
	require.NoError(t, err)
	assert.Equal(t, Summary{Attempted: 3, Uploaded: 2, Failed: 1}, sum)
	assert.Equal(t, []string{"a.fit", "b.fit", "c.fit"}, client.uploads)
	assert.Equal(t, "notes for a.fit", client.notes[0])

	for _, r := range s.Activities {
		assert.True(t, r.Processed, r.Filename)
		if r.Uploaded {
			assert.True(t, r.Processed)
		}
	}
	rec, _ := s.Get("b.fit")
	assert.False(t, rec.Uploaded)

	require.Len(t, history.attempts, 3)
	assert.False(t, history.attempts[1].Success)
	assert.Contains(t, history.attempts[1].Error, "status 500")
	assert.Equal(t, "fake", history.attempts[0].Destination)
}

func TestRun_NothingEligible(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Append(store.Record{Filename: "a.fit", Processed: true}))
	client := &fakeClient{}

	sum, err := (&Pipeline{}).Run(context.Background(), s, client, "/activities")
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
	assert.Empty(t, client.uploads)
	assert.Equal(t, []store.Record{{Filename: "a.fit", Processed: true}}, s.Activities)
}

func TestRun_CancellationLeavesRestQueued(t *testing.T) {
	s := queued(t, "a.fit", "b.fit")
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{onCall: cancel}

	_, err := (&Pipeline{}).Run(ctx, s, client, "/activities")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a.fit"}, client.uploads)

	rec, _ := s.Get("b.fit")
	assert.False(t, rec.Processed)
}

func TestRun_PausesBetweenUploads(t *testing.T) {
	s := queued(t, "a.fit", "b.fit", "c.fit")
	var slept []time.Duration
	p := &Pipeline{
		Pause: 2 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	_, err := p.Run(context.Background(), s, &fakeClient{}, "/activities")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
}

func TestError_MatchesErrUpload(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&Error{Path: "/a.fit", Err: cause})

	assert.ErrorIs(t, err, ErrUpload)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "upload of /a.fit failed: connection reset", err.Error())
}
