/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package config loads dnpack settings from defaults, an optional YAML file
// and the environment. It is the only place that reads process state; the
// pipeline receives an already-built *Config.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrConfigNotFound is returned by Load when no config file exists in any of
// the searched directories. The returned *Config still carries defaults.
var ErrConfigNotFound = errors.New("config file not found")

// IsNotFoundError reports whether err indicates a missing config file.
func IsNotFoundError(err error) bool {
	if errors.Is(err, ErrConfigNotFound) {
		return true
	}
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

// Config is the single source of settings for a dnpack run.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Build  BuildConfig  `mapstructure:"build"`
	Upload UploadConfig `mapstructure:"upload"`
	Pinata PinataConfig `mapstructure:"pinata"`
	Git    GitConfig    `mapstructure:"git"`
	Pins   PinsConfig   `mapstructure:"pins"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BuildConfig holds image build settings.
type BuildConfig struct {
	Timeout          string `mapstructure:"timeout"`
	VariantsDir      string `mapstructure:"variants_dir"`
	ComposeFileName  string `mapstructure:"compose_file_name"`
	Compression      string `mapstructure:"compression"`
	BuildxMinVersion string `mapstructure:"buildx_min_version"`
	BuilderName      string `mapstructure:"builder_name"`
	BinfmtImage      string `mapstructure:"binfmt_image"`
	CacheFile        string `mapstructure:"cache_file"`
}

// UploadConfig selects the release upload backend.
type UploadConfig struct {
	// Target is "ipfs" or "swarm".
	Target string `mapstructure:"target"`
	// Provider is a known alias (dappnode, remote, infura, localhost, public)
	// or a full URL.
	Provider string `mapstructure:"provider"`
	// ContentProvider is "node" or "pinata" when Target is ipfs.
	ContentProvider string `mapstructure:"content_provider"`
	// Timeout bounds each upload request, e.g. "10min". Empty means none.
	Timeout string `mapstructure:"timeout"`
}

// PinataConfig holds the pinning service endpoint and credentials. The
// credentials are only ever taken from the environment.
type PinataConfig struct {
	URL          string `mapstructure:"url"`
	APIKey       string `mapstructure:"-"`
	SecretAPIKey string `mapstructure:"-"`
}

// GitConfig carries CI-provided overrides for repository state.
type GitConfig struct {
	Branch          string `mapstructure:"branch"`
	Commit          string `mapstructure:"commit"`
	CI              bool   `mapstructure:"ci"`
	UpstreamVersion string `mapstructure:"upstream_version"`
}

// PinsConfig tunes pin cleanup.
type PinsConfig struct {
	Concurrency    int  `mapstructure:"concurrency"`
	StrictAncestry bool `mapstructure:"strict_ancestry"`
	MaxAgeDays     int  `mapstructure:"max_age_days"`
}

// HasPinataCredentials reports whether both pinning service keys are set.
func (c *Config) HasPinataCredentials() bool {
	return c.Pinata.APIKey != "" && c.Pinata.SecretAPIKey != ""
}

// Load reads the configuration from the first config.yaml found in
// GetConfigDirs() or the working directory. A missing file is reported as
// ErrConfigNotFound alongside a usable default config.
func Load() (*Config, error) {
	v, notFound := NewViper("")
	if notFound != nil && !IsNotFoundError(notFound) {
		return nil, notFound
	}
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	return cfg, notFound
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// NewViper returns a viper instance carrying the defaults, the environment
// bindings and the config file at path. With an empty path the first
// config.yaml in GetConfigDirs() or the working directory is used, and a
// missing file yields ErrConfigNotFound with the instance still usable.
// Callers bind command flags on top before calling FromViper.
func NewViper(path string) (*viper.Viper, error) {
	loadDotEnv()

	v := newViper()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, ErrConfigNotFound
			}
			return nil, err
		}
		return v, nil
	}

	v.SetConfigName("config")
	for _, dir := range GetConfigDirs() {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if IsNotFoundError(err) {
			return v, ErrConfigNotFound
		}
		return nil, err
	}
	return v, nil
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DNPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Pinata.APIKey = os.Getenv("PINATA_API_KEY")
	cfg.Pinata.SecretAPIKey = os.Getenv("PINATA_SECRET_API_KEY")

	if cfg.Build.CacheFile == "" {
		if path, err := CacheFile("image-cache.txt"); err == nil {
			cfg.Build.CacheFile = path
		}
	}
	return &cfg, nil
}

// loadDotEnv imports a .env file from the working directory when one
// exists. Values already present in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	v.SetDefault("build.timeout", "60min")
	v.SetDefault("build.variants_dir", "package_variants")
	v.SetDefault("build.compose_file_name", "docker-compose.yml")
	v.SetDefault("build.compression", "xz")
	v.SetDefault("build.buildx_min_version", "0.10.0")
	v.SetDefault("build.builder_name", "dnpack-builder")
	v.SetDefault("build.binfmt_image", "tonistiigi/binfmt")

	v.SetDefault("upload.target", "ipfs")
	v.SetDefault("upload.provider", "dappnode")
	v.SetDefault("upload.content_provider", "node")
	v.SetDefault("upload.timeout", "")

	v.SetDefault("pinata.url", "https://api.pinata.cloud")

	v.SetDefault("pins.concurrency", 4)
	v.SetDefault("pins.strict_ancestry", false)
	v.SetDefault("pins.max_age_days", 30)

	v.SetDefault("git.ci", false)
}

// bindEnvVars binds the CI environment alongside the DNPACK_ prefixed keys.
// Earlier names take precedence.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("git.branch", "DNPACK_GIT_BRANCH", "GITHUB_HEAD_REF", "GITHUB_REF_NAME")
	_ = v.BindEnv("git.commit", "DNPACK_GIT_COMMIT", "GITHUB_SHA")
	_ = v.BindEnv("git.ci", "DNPACK_GIT_CI", "CI")
	_ = v.BindEnv("git.upstream_version", "DNPACK_UPSTREAM_VERSION", "UPSTREAM_VERSION")

	_ = v.BindEnv("upload.provider", "DNPACK_UPLOAD_PROVIDER")
	_ = v.BindEnv("upload.target", "DNPACK_UPLOAD_TARGET")
	_ = v.BindEnv("upload.content_provider", "DNPACK_UPLOAD_CONTENT_PROVIDER")
	_ = v.BindEnv("upload.timeout", "DNPACK_UPLOAD_TIMEOUT")

	_ = v.BindEnv("build.timeout", "DNPACK_BUILD_TIMEOUT")
	_ = v.BindEnv("build.cache_file", "DNPACK_BUILD_CACHE_FILE")

	_ = v.BindEnv("log.level", "DNPACK_LOG_LEVEL")
	_ = v.BindEnv("log.format", "DNPACK_LOG_FORMAT")
}

// DefaultConfigPath returns where `dnpack` writes a new config file.
func DefaultConfigPath() (string, error) {
	return ConfigFile("config.yaml")
}

// ResolvePath expands a leading ~ in path.
func ResolvePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
