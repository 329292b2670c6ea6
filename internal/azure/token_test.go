package azure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fabriziosalmi/activitylogs/internal/config"
)

const testScope = "https://management.core.windows.net//.default"

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*TokenProvider, *observer.ObservedLogs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	core, logs := observer.New(zapcore.InfoLevel)
	p := NewTokenProvider(config.AzureConfig{
		AuthorityHost:  srv.URL,
		TenantID:       "contoso",
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		RequestTimeout: 5 * time.Second,
	}, zap.New(core))
	return p, logs
}

func TestTokenProvider_Acquire(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/oauth2/v2.0/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, testScope, r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","expires_in":3599,"access_token":"eyJ0eXAi"}`))
	})

	tok, err := p.Acquire(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, "eyJ0eXAi", tok)
}

func TestTokenProvider_ErrorResponse(t *testing.T) {
	p, logs := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"AADSTS7000215: Invalid client secret provided."}`))
	})

	tok, err := p.Acquire(context.Background(), testScope)
	require.Error(t, err)
	assert.Empty(t, tok)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid_client", authErr.Code)
	assert.Contains(t, authErr.Description, "AADSTS7000215")

	entries := logs.FilterMessage("error obtaining access token").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "invalid_client", entries[0].ContextMap()["error"])
}

func TestTokenProvider_MissingTokenType(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"expires_in":3599,"access_token":"eyJ0eXAi"}`))
	})

	_, err := p.Acquire(context.Background(), testScope)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "invalid_response", authErr.Code)
}

func TestTokenProvider_MissingAccessToken(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	})

	_, err := p.Acquire(context.Background(), testScope)
	var authErr *AuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestTokenProvider_TokenURL(t *testing.T) {
	p := NewTokenProvider(config.AzureConfig{TenantID: "fabrikam"}, zap.NewNop())
	assert.Equal(t, "https://login.microsoftonline.com/fabrikam/oauth2/v2.0/token", p.TokenURL())
}
