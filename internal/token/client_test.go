package token

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immxrtalbeast/videocall/internal/domain"
)

type tokenServer struct {
	*httptest.Server
	calls   atomic.Int32
	arrived chan struct{}
	release chan struct{}
}

// newTokenServer answers every request with status and body. When block is
// set each request waits for release to be closed.
func newTokenServer(t *testing.T, status int, body string, block bool) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		arrived: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultPath, r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("roomName"))
		assert.NotEmpty(t, r.PostForm.Get("identity"))

		ts.arrived <- struct{}{}
		if block {
			<-ts.release
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func waitArrived(t *testing.T, ts *tokenServer) {
	t.Helper()
	select {
	case <-ts.arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("token request never reached the server")
	}
}

func TestRequestTokenSuccess(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"token":"abc123"}`, false)
	c := NewClient(ts.URL)

	tok, err := c.RequestToken(context.Background(), "demo", "bob")

	require.NoError(t, err)
	assert.Equal(t, "abc123", tok.Value)
	assert.Nil(t, tok.ExpiresAt)
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestRequestTokenNestedDataShape(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"data":{"token":"nested","expiresAt":"2030-01-02T03:04:05Z"}}`, false)
	c := NewClient(ts.URL)

	tok, err := c.RequestToken(context.Background(), "demo", "bob")

	require.NoError(t, err)
	assert.Equal(t, "nested", tok.Value)
	require.NotNil(t, tok.ExpiresAt)
	assert.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), tok.ExpiresAt.UTC())
}

func TestRequestTokenReadsJWTExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	ts := newTokenServer(t, http.StatusOK, `{"token":"`+signed+`"}`, false)
	tok, err := NewClient(ts.URL).RequestToken(context.Background(), "demo", "bob")

	require.NoError(t, err)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, exp.Equal(*tok.ExpiresAt))
}

func TestRequestTokenEmptyArgumentsNeverCallNetwork(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"token":"abc123"}`, false)
	c := NewClient(ts.URL)

	_, err := c.RequestToken(context.Background(), "demo", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = c.RequestToken(context.Background(), "  ", "bob")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	assert.Zero(t, ts.calls.Load())
}

func TestRequestTokenSingleFlight(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"token":"shared"}`, true)
	c := NewClient(ts.URL)

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := c.RequestToken(context.Background(), "room1", "alice")
			results[i] = tok.Value
			errs[i] = err
		}()
	}

	waitArrived(t, ts)
	// Give the second caller time to join the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(ts.release)
	wg.Wait()

	assert.Equal(t, int32(1), ts.calls.Load())
	for i := range 2 {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestRequestTokenDistinctPairsAreNotShared(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"token":"abc"}`, false)
	c := NewClient(ts.URL)

	_, err := c.RequestToken(context.Background(), "room1", "alice")
	require.NoError(t, err)
	_, err = c.RequestToken(context.Background(), "room1", "bob")
	require.NoError(t, err)

	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestRequestTokenCallerCancellation(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, `{"token":"late"}`, true)
	c := NewClient(ts.URL)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.RequestToken(ctx, "demo", "bob")
		errCh <- err
	}()

	waitArrived(t, ts)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
	close(ts.release)
}

func TestRequestTokenErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   domain.ErrorKind
	}{
		{"server error", http.StatusInternalServerError, `oops`, domain.KindTransportFailure},
		{"bad gateway", http.StatusBadGateway, ``, domain.KindTransportFailure},
		{"throttled", http.StatusTooManyRequests, ``, domain.KindTransportFailure},
		{"unknown room", http.StatusNotFound, `{"error":"room not found"}`, domain.KindRejected},
		{"forbidden", http.StatusForbidden, ``, domain.KindRejected},
		{"malformed body", http.StatusOK, `{"token":`, domain.KindTransportFailure},
		{"missing token", http.StatusOK, `{"status":"ok"}`, domain.KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, tt.status, tt.body, false)
			_, err := NewClient(ts.URL).RequestToken(context.Background(), "demo", "bob")

			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Equal(t, int32(1), ts.calls.Load())
		})
	}
}

func TestRequestTokenUnreachableEndpoint(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url, WithTimeout(time.Second)).RequestToken(context.Background(), "demo", "bob")

	require.Error(t, err)
	assert.Equal(t, domain.KindTransportFailure, domain.KindOf(err))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.True(t, derr.Retryable())
}
