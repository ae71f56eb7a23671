package authflow

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callbackRequest(t *testing.T, query string) (*httptest.ResponseRecorder, chan callbackResult) {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/?"+query, nil)
	resultCh := make(chan callbackResult, 1)
	handleCallback(w, r, "expected-state", resultCh)

	return w, resultCh
}

func TestHandleCallbackSuccess(t *testing.T) {
	w, resultCh := callbackRequest(t, "state=expected-state&code=auth-code")

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Authentication successful")

	result := <-resultCh
	require.NoError(t, result.err)
	assert.Equal(t, "auth-code", result.code)
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	w, resultCh := callbackRequest(t, "state=forged&code=auth-code")

	assert.Equal(t, 400, w.Code)

	result := <-resultCh
	require.Error(t, result.err)
	assert.Contains(t, result.err.Error(), "state mismatch")
}

func TestHandleCallbackProviderError(t *testing.T) {
	w, resultCh := callbackRequest(t, "state=expected-state&error=access_denied&error_description=user+cancelled")

	assert.Equal(t, 400, w.Code)

	result := <-resultCh
	require.Error(t, result.err)
	assert.Contains(t, result.err.Error(), "access_denied")
	assert.Contains(t, result.err.Error(), "user cancelled")
}

func TestHandleCallbackMissingCode(t *testing.T) {
	w, resultCh := callbackRequest(t, "state=expected-state")

	assert.Equal(t, 400, w.Code)

	result := <-resultCh
	require.Error(t, result.err)
	assert.Contains(t, result.err.Error(), "missing authorization code")
}

func TestMicrosoftConfigScopes(t *testing.T) {
	cfg := MicrosoftConfig("client-id", "client-secret")

	assert.Equal(t, "client-id", cfg.ClientID)
	assert.Contains(t, cfg.Scopes, "offline_access")
	assert.Contains(t, cfg.Scopes, "Files.ReadWrite.All")
}

func TestGoogleConfigScopes(t *testing.T) {
	cfg := GoogleConfig("client-id", "")

	assert.Contains(t, cfg.Scopes, "https://www.googleapis.com/auth/drive.readonly")
	assert.Contains(t, cfg.Scopes, "https://www.googleapis.com/auth/photospicker.mediaitems.readonly")
}
