package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "logs.json", cfg.Export.OutputPath)
	assert.Equal(t, 1, cfg.Export.Days)
	assert.Equal(t, "2015-04-01", cfg.Azure.APIVersion)
	assert.Equal(t, "https://management.core.windows.net//.default", cfg.Azure.Resource)
	assert.Equal(t, "Admin,Operation", cfg.Azure.EventChannels)
	assert.Equal(t, 30*time.Second, cfg.Azure.RequestTimeout)
	assert.Equal(t, "none", cfg.Storage.Backend)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ACTIVITYLOGS_AZURE_TENANT_ID", "contoso.onmicrosoft.com")
	t.Setenv("ACTIVITYLOGS_EXPORT_DAYS", "7")
	t.Setenv("ACTIVITYLOGS_AZURE_RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "contoso.onmicrosoft.com", cfg.Azure.TenantID)
	assert.Equal(t, 7, cfg.Export.Days)
	assert.InDelta(t, 2.5, cfg.Azure.RateLimit, 0.0001)
}

func TestLoad_LegacyEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TENANT_NAME", "fabrikam")
	t.Setenv("CLIENT_ID", "11111111-2222-3333-4444-555555555555")
	t.Setenv("CLIENT_SECRET", "s3cr3t")
	t.Setenv("DAYS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fabrikam", cfg.Azure.TenantID)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", cfg.Azure.ClientID)
	assert.Equal(t, "s3cr3t", cfg.Azure.ClientSecret)
	assert.Equal(t, 3, cfg.Export.Days)
	require.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedWinsOverLegacy(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DAYS", "3")
	t.Setenv("ACTIVITYLOGS_EXPORT_DAYS", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Export.Days)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Azure:  AzureConfig{TenantID: "t", ClientID: "c", ClientSecret: "s", EventChannels: "Admin,Operation"},
		Export: ExportConfig{Days: 1, OutputPath: "logs.json"},
	}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.Azure.ClientSecret = ""
	missing.Azure.TenantID = ""
	err := missing.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure.tenant_id")
	assert.Contains(t, err.Error(), "azure.client_secret")

	negative := valid
	negative.Export.Days = -1
	assert.Error(t, negative.Validate())

	noChannels := valid
	noChannels.Azure.EventChannels = " "
	err = noChannels.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure.event_channels")
}

func TestLoad_EmptyEventChannelsRejected(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	yaml := "azure:\n  tenant_id: contoso\n  client_id: app\n  client_secret: secret\n  event_channels: \"\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "activitylogs.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Azure.EventChannels)
	assert.Error(t, cfg.Validate())
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
