package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSendsRefreshGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Contains(t, r.PostForm.Get("scope"), "Files.ReadWrite.All")

		fmt.Fprint(w, `{"access_token":"at-123","expires_in":3600}`)
	}))
	defer srv.Close()

	b := New(srv.URL, "client-1", "secret-1", "refresh-1", nil, nil)

	tok, err := b.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at-123", tok)
}

func TestTokenRejectedRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer srv.Close()

	b := New(srv.URL, "c", "s", "expired", nil, nil)

	_, err := b.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Contains(t, authErr.Message, "invalid_grant")
}

func TestTokenMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"expires_in":3600}`)
	}))
	defer srv.Close()

	b := New(srv.URL, "c", "s", "r", nil, nil)

	_, err := b.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing access_token")
}

// Every call pays a fresh round-trip: the broker holds no token state.
func TestTokenNotCached(t *testing.T) {
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprintf(w, `{"access_token":"at-%d","expires_in":3600}`, calls)
	}))
	defer srv.Close()

	b := New(srv.URL, "c", "s", "r", nil, nil)

	first, err := b.Token(context.Background())
	require.NoError(t, err)

	second, err := b.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.NotEqual(t, first, second)
}

// A caller that goes away mid-exchange aborts the token request
// instead of leaving it running against the identity platform.
func TestTokenCanceledContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		fmt.Fprint(w, `{"access_token":"at","expires_in":3600}`)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-started
		cancel()
	}()

	b := New(srv.URL, "c", "s", "r", nil, nil)

	_, err := b.Token(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
