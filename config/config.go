// Package config holds the geo2ruleset run configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables, then command line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

// const asn sources
const (
	ASNSourceMaxMind = "maxmind"
	ASNSourceIPtoASN = "iptoasn"
)

// const defaults
const (
	DefaultASNListURL = "https://raw.githubusercontent.com/C24Be/AS_Network_List/refs/heads/main/auto/all-ru-asn.txt"
	DefaultASNListTag = "ru"
	DefaultExtractDir = "./extracted"
	DefaultOutputDir  = "./out"
	DefaultTimeout    = 5 * time.Minute
)

// const env var names
const (
	_APPNAME            = "GEO2RULESET"
	_ENV_CONFIG         = _APPNAME + "_CONFIG"
	_ENV_LICENSE_KEY    = _APPNAME + "_LICENSE_KEY"
	_ENV_COUNTRIES      = _APPNAME + "_COUNTRIES"
	_ENV_ASN_LIST_URL   = _APPNAME + "_ASN_LIST_URL"
	_ENV_EXTRACT_DIR    = _APPNAME + "_EXTRACT_DIR"
	_ENV_OUTPUT_DIR     = _APPNAME + "_OUTPUT_DIR"
	_ENV_LOG_FILE       = _APPNAME + "_LOG_FILE"
	_ENV_NO_IPV4        = "NO_IPV4"
	_ENV_NO_IPV6        = "NO_IPV6"
	_DEFAULT_CONFIGFILE = "geo2ruleset.yaml"
)

// ErrInvalid reports an unusable configuration.
var ErrInvalid = errors.New("[config] invalid configuration")

// Config is the complete run configuration.
type Config struct {
	// LicenseKey authenticates GeoLite2 downloads.
	LicenseKey string `yaml:"license_key"`
	// Countries are the ISO codes to build per-country rule-sets for.
	Countries []string `yaml:"countries"`
	// ASNListURL points at a text list of "AS<digits>" lines.
	ASNListURL string `yaml:"asn_list_url"`
	// ASNListTag names the asn rule-set files.
	ASNListTag string `yaml:"asn_list_tag"`
	// ExtraASNs are merged into the downloaded asn list.
	ExtraASNs []string `yaml:"extra_asns"`
	// ASNSource selects the asn to network table: maxmind or iptoasn.
	ASNSource string `yaml:"asn_source"`
	// ExtractDir holds downloaded archives and extracted tables.
	ExtractDir string `yaml:"extract_dir"`
	// OutputDir receives the rule-set files; it is recreated on every run.
	OutputDir string `yaml:"output_dir"`
	// Clean wipes ExtractDir before running.
	Clean bool `yaml:"clean"`
	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
	// Format is the output syntax: ruleset or pf.
	Format string `yaml:"format"`
	// NoIPv4 and NoIPv6 skip a family entirely.
	NoIPv4 bool `yaml:"no_ipv4"`
	NoIPv6 bool `yaml:"no_ipv6"`
	// Workers bounds concurrent aggregations.
	Workers int `yaml:"workers"`
	// LogFile additionally writes the log to a rotated file.
	LogFile string `yaml:"log_file"`
	// Timeout bounds all downloads of one run.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Countries:  []string{"RU"},
		ASNListURL: DefaultASNListURL,
		ASNListTag: DefaultASNListTag,
		ASNSource:  ASNSourceMaxMind,
		ExtractDir: DefaultExtractDir,
		OutputDir:  DefaultOutputDir,
		Format:     "ruleset",
		Workers:    runtime.NumCPU(),
		Timeout:    DefaultTimeout,
	}
}

// Load reads path (or $GEO2RULESET_CONFIG, or ./geo2ruleset.yaml when
// present) over the defaults and applies environment overrides. An empty
// path with no config file found yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if env, ok := syscall.Getenv(_ENV_CONFIG); ok {
			path = env
		} else if _, err := os.Stat(_DEFAULT_CONFIGFILE); err == nil {
			path = _DEFAULT_CONFIGFILE
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.Normalize()
	return cfg, nil
}

// applyEnv ...
func (c *Config) applyEnv() {
	if env, ok := syscall.Getenv(_ENV_LICENSE_KEY); ok {
		c.LicenseKey = env
	}
	if env, ok := syscall.Getenv(_ENV_COUNTRIES); ok {
		c.Countries = SplitList(env)
	}
	if env, ok := syscall.Getenv(_ENV_ASN_LIST_URL); ok {
		c.ASNListURL = env
	}
	if env, ok := syscall.Getenv(_ENV_EXTRACT_DIR); ok {
		c.ExtractDir = env
	}
	if env, ok := syscall.Getenv(_ENV_OUTPUT_DIR); ok {
		c.OutputDir = env
	}
	if env, ok := syscall.Getenv(_ENV_LOG_FILE); ok {
		c.LogFile = env
	}
	if isEnv(_ENV_NO_IPV4) {
		c.NoIPv4 = true
	}
	if isEnv(_ENV_NO_IPV6) {
		c.NoIPv6 = true
	}
}

// Normalize fills zero values with defaults, upper-cases country codes and
// drops duplicate countries.
func (c *Config) Normalize() {
	d := Default()
	if c.ASNListTag == "" {
		c.ASNListTag = d.ASNListTag
	}
	if c.ASNSource == "" {
		c.ASNSource = d.ASNSource
	}
	if c.ExtractDir == "" {
		c.ExtractDir = d.ExtractDir
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.Format == "" {
		c.Format = d.Format
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	c.ASNSource = strings.ToLower(c.ASNSource)
	seen := make(map[string]bool, len(c.Countries))
	countries := make([]string, 0, len(c.Countries))
	for _, cc := range c.Countries {
		cc = strings.ToUpper(strings.TrimSpace(cc))
		if cc == "" || seen[cc] {
			continue
		}
		seen[cc] = true
		countries = append(countries, cc)
	}
	c.Countries = countries
}

// NeedsLicenseKey reports whether any configured table comes from MaxMind.
func (c *Config) NeedsLicenseKey() bool {
	return len(c.Countries) > 0 || c.ASNSource == ASNSourceMaxMind
}

// Validate checks the configuration before a run.
func (c *Config) Validate() error {
	var errs []error
	if c.NeedsLicenseKey() && c.LicenseKey == "" {
		errs = append(errs, errors.New("license key required for GeoLite2 downloads"))
	}
	switch c.ASNSource {
	case ASNSourceMaxMind, ASNSourceIPtoASN:
	default:
		errs = append(errs, fmt.Errorf("unknown asn source %q", c.ASNSource))
	}
	if c.NoIPv4 && c.NoIPv6 {
		errs = append(errs, errors.New("both address families disabled"))
	}
	for _, cc := range c.Countries {
		if len(cc) != 2 {
			errs = append(errs, fmt.Errorf("invalid country code %q", cc))
		}
	}
	if c.ASNListTag == "" || strings.ContainsAny(c.ASNListTag, `/\`) {
		errs = append(errs, fmt.Errorf("invalid asn list tag %q", c.ASNListTag))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// SplitList splits a comma or space separated list, dropping empty items.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
}

// isEnv ...
func isEnv(in string) bool {
	_, ok := syscall.Getenv(in)
	return ok
}
