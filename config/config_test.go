package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		_ENV_CONFIG, _ENV_LICENSE_KEY, _ENV_COUNTRIES, _ENV_ASN_LIST_URL,
		_ENV_EXTRACT_DIR, _ENV_OUTPUT_DIR, _ENV_LOG_FILE, _ENV_NO_IPV4, _ENV_NO_IPV6,
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"RU"}, cfg.Countries)
	assert.Equal(t, DefaultASNListURL, cfg.ASNListURL)
	assert.Equal(t, "ru", cfg.ASNListTag)
	assert.Equal(t, ASNSourceMaxMind, cfg.ASNSource)
	assert.Equal(t, "./extracted", cfg.ExtractDir)
	assert.Equal(t, "./out", cfg.OutputDir)
	assert.Equal(t, "ruleset", cfg.Format)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.False(t, cfg.NoIPv4)
	assert.False(t, cfg.NoIPv6)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	name := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(name, []byte(`
license_key: abc
countries: [ru, " by "]
asn_list_tag: cis
extra_asns: [AS8359, "12389"]
asn_source: IPtoASN
output_dir: /tmp/rules
format: pf
workers: 0
timeout: 30s
`), 0o600))

	cfg, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.LicenseKey)
	assert.Equal(t, []string{"RU", "BY"}, cfg.Countries)
	assert.Equal(t, "cis", cfg.ASNListTag)
	assert.Equal(t, []string{"AS8359", "12389"}, cfg.ExtraASNs)
	assert.Equal(t, ASNSourceIPtoASN, cfg.ASNSource)
	assert.Equal(t, "/tmp/rules", cfg.OutputDir)
	assert.Equal(t, "./extracted", cfg.ExtractDir)
	assert.Equal(t, "pf", cfg.Format)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadDefaultFileName(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(_DEFAULT_CONFIGFILE, []byte("asn_list_tag: local\n"), 0o600))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.ASNListTag)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	name := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(name, []byte("countries: {nope"), 0o600))
	_, err = Load(name)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	name := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(name, []byte("license_key: file\noutput_dir: /from/file\n"), 0o600))

	t.Setenv(_ENV_LICENSE_KEY, "env")
	t.Setenv(_ENV_COUNTRIES, "ru, by kz")
	t.Setenv(_ENV_ASN_LIST_URL, "http://example.invalid/list.txt")
	t.Setenv(_ENV_EXTRACT_DIR, "/data")
	t.Setenv(_ENV_OUTPUT_DIR, "/rules")
	t.Setenv(_ENV_LOG_FILE, "/var/log/g.log")
	t.Setenv(_ENV_NO_IPV6, "")

	cfg, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.LicenseKey)
	assert.Equal(t, []string{"RU", "BY", "KZ"}, cfg.Countries)
	assert.Equal(t, "http://example.invalid/list.txt", cfg.ASNListURL)
	assert.Equal(t, "/data", cfg.ExtractDir)
	assert.Equal(t, "/rules", cfg.OutputDir)
	assert.Equal(t, "/var/log/g.log", cfg.LogFile)
	assert.False(t, cfg.NoIPv4)
	assert.True(t, cfg.NoIPv6)
}

func TestEnvConfigPath(t *testing.T) {
	clearEnv(t)
	name := filepath.Join(t.TempDir(), "other.yaml")
	require.NoError(t, os.WriteFile(name, []byte("asn_list_tag: env-file\n"), 0o600))
	t.Setenv(_ENV_CONFIG, name)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-file", cfg.ASNListTag)
}

func TestValidate(t *testing.T) {
	ok := func() *Config {
		c := Default()
		c.LicenseKey = "key"
		return c
	}
	require.NoError(t, ok().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing license key", func(c *Config) { c.LicenseKey = "" }},
		{"unknown asn source", func(c *Config) { c.ASNSource = "bgp" }},
		{"both families off", func(c *Config) { c.NoIPv4, c.NoIPv6 = true, true }},
		{"bad country", func(c *Config) { c.Countries = []string{"RUS"} }},
		{"bad tag", func(c *Config) { c.ASNListTag = "../x" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ok()
			tt.modify(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestLicenseKeyOptional(t *testing.T) {
	c := Default()
	c.Countries = nil
	c.ASNSource = ASNSourceIPtoASN
	assert.False(t, c.NeedsLicenseKey())
	assert.NoError(t, c.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"RU", "BY", "KZ"}, SplitList(" RU,BY\tKZ,, "))
	assert.Empty(t, SplitList(" , "))
}
