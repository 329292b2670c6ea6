package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fabriziosalmi/activitylogs/internal/config"
)

func testConfig(t *testing.T, srvURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App: config.AppConfig{Name: "activitylogs", Env: "development", Version: "1.2.3"},
		Azure: config.AzureConfig{
			TenantID:       "contoso",
			ClientID:       "app",
			ClientSecret:   "secret",
			AuthorityHost:  srvURL,
			BaseURL:        srvURL,
			Resource:       "https://management.core.windows.net//.default",
			APIVersion:     "2015-04-01",
			RequestTimeout: 5 * time.Second,
			EventChannels:  "Admin,Operation",
		},
		Export:  config.ExportConfig{Days: 1, OutputPath: filepath.Join(dir, "logs.json")},
		Storage: config.StorageConfig{Backend: "fs", FSRoot: filepath.Join(dir, "archive")},
	}
}

func fakeServer(t *testing.T, tokenBody string, pageStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/contoso/oauth2/v2.0/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tokenBody))
	})
	mux.HandleFunc("/providers/Microsoft.Insights/eventtypes/management/values", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(pageStatus)
		if pageStatus != http.StatusOK {
			_, _ = w.Write([]byte(`{"code":"Forbidden","message":"no access"}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":[{"id":"a"},{"id":"b"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const okToken = `{"token_type":"Bearer","expires_in":3599,"access_token":"tkn"}`

func TestRunExport_ArchivesToFilesystem(t *testing.T) {
	srv := fakeServer(t, okToken, http.StatusOK)
	cfg := testConfig(t, srv.URL)

	require.NoError(t, runExport(context.Background(), cfg))

	data, err := os.ReadFile(cfg.Export.OutputPath)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"},{"id":"b"}]`, string(data))

	archived, err := filepath.Glob(filepath.Join(cfg.Storage.FSRoot, "exports", "*", "*", "*", "*.json.gz"))
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestRunExport_LogsBuildInfo(t *testing.T) {
	srv := fakeServer(t, okToken, http.StatusOK)
	cfg := testConfig(t, srv.URL)
	cfg.App.LogFile = filepath.Join(t.TempDir(), "activitylogs.log")

	require.NoError(t, runExport(context.Background(), cfg))

	data, err := os.ReadFile(cfg.App.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "starting export")
	assert.Contains(t, string(data), `"version": "1.2.3"`)
	assert.Contains(t, string(data), `"app": "activitylogs"`)
}

func TestRunExport_AuthFailureExitCode(t *testing.T) {
	srv := fakeServer(t, `{"access_token":"tkn"}`, http.StatusOK)
	cfg := testConfig(t, srv.URL)

	err := runExport(context.Background(), cfg)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitAuth, ee.code)

	_, statErr := os.Stat(cfg.Export.OutputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunExport_APIFailurePolicy(t *testing.T) {
	srv := fakeServer(t, okToken, http.StatusForbidden)

	lenient := testConfig(t, srv.URL)
	require.NoError(t, runExport(context.Background(), lenient), "api failures are logged, not fatal")
	data, err := os.ReadFile(lenient.Export.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	strict := testConfig(t, srv.URL)
	strict.Export.Strict = true
	err = runExport(context.Background(), strict)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitPartial, ee.code)
}

func TestStorageBackends(t *testing.T) {
	cfg := testConfig(t, "http://unused")

	cfg.Storage.Backend = "none"
	backends, err := storageBackends(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, backends)

	cfg.Storage.Backend = "fs"
	backends, err = storageBackends(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, backends, 1)
	assert.Equal(t, "filesystem", backends[0].Provider())

	cfg.Storage.Backend = "tape"
	_, err = storageBackends(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
