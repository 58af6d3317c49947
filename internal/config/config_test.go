package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, ".license", cfg.License.LicenseFile)
	assert.Equal(t, ".admin-fingerprint", cfg.License.BindingFile)
	assert.True(t, cfg.License.Enforcement)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Security.RateLimit.Enabled)
}

func TestFileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
license:
  enforcement: false
  license_file: /var/lib/profileapi/.license
logging:
  level: debug
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.License.Enforcement)
	assert.Equal(t, "/var/lib/profileapi/.license", cfg.License.LicenseFile)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, ".admin-fingerprint", cfg.License.BindingFile)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
`)
	t.Setenv("PROFILE_SERVER_PORT", "7070")
	t.Setenv("PROFILE_LOGGING_LEVEL", "warn")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestBareCompanySecretEnv(t *testing.T) {
	t.Setenv("COMPANY_SECRET", "from-bare-env")

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, "from-bare-env", cfg.License.CompanySecret)
}

func TestBareCompanySecretWinsOverFile(t *testing.T) {
	path := writeConfigFile(t, `
license:
  company_secret: from-file
`)
	t.Setenv("COMPANY_SECRET", "from-env")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.License.CompanySecret)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid port",
			content: `
server:
  port: -1
`,
		},
		{
			name: "empty license file",
			content: `
license:
  license_file: ""
`,
		},
		{
			name: "rate limit enabled without rps",
			content: `
security:
  rate_limit:
    enabled: true
    rps: 0
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}
