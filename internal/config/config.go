package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Fyun48/autoextract"
)

// EnvPrefix starts every environment override. Nested keys are separated by
// a double underscore: AUTOEXTRACT_EXTRACT__NESTED__MAX_DEPTH=5.
const EnvPrefix = "AUTOEXTRACT_"

// Config is the host configuration.
type Config struct {
	Paths     PathsConfig               `koanf:"paths"`
	Watch     WatchConfig               `koanf:"watch"`
	Executor  ExecutorConfig            `koanf:"executor"`
	Failure   FailureConfig             `koanf:"failure"`
	Passwords PasswordsConfig           `koanf:"passwords"`
	Extract   autoextract.ExtractConfig `koanf:"extract"`
}

// PathsConfig locates the directories and the database.
type PathsConfig struct {
	WatchDir   string `koanf:"watch_dir"`
	ExtractDir string `koanf:"extract_dir"`
	Database   string `koanf:"database"`
}

// WatchConfig drives the directory watcher.
type WatchConfig struct {
	Interval time.Duration `koanf:"interval"`
	// Settle is how long a file must stay unmodified before it is picked up.
	Settle  time.Duration `koanf:"settle"`
	Workers int           `koanf:"workers"`
}

// ExecutorConfig selects the extraction backend.
type ExecutorConfig struct {
	Timeout time.Duration `koanf:"timeout"`
	// Backend is "native", "unrar" or "7z".
	Backend string `koanf:"backend"`
	Binary  string `koanf:"binary"`
}

// FailureConfig sets the failure ceiling.
type FailureConfig struct {
	MaxFailures int `koanf:"max_failures"`
}

// PasswordsConfig lists password candidates.
type PasswordsConfig struct {
	List []string `koanf:"list"`
	// Mappings maps a keyword in the archive name to "a|b|c" passwords.
	Mappings map[string]string `koanf:"mappings"`
	Builtin  bool              `koanf:"builtin"`
}

// Backends accepted by executor.backend.
const (
	BackendNative = "native"
	BackendUnrar  = "unrar"
	Backend7z     = "7z"
)

// Defaults returns the default configuration as flat dotted keys.
func Defaults() map[string]interface{} {
	defaults := map[string]interface{}{
		"paths.watch_dir":      xdg.UserDirs.Download,
		"paths.extract_dir":    "",
		"paths.database":       filepath.Join(xdg.DataHome, "autoextract", "autoextract.db"),
		"watch.interval":       "30s",
		"watch.settle":         "30s",
		"watch.workers":        2,
		"executor.timeout":     autoextract.DefaultTimeout.String(),
		"executor.backend":     BackendNative,
		"executor.binary":      "",
		"failure.max_failures": autoextract.DefaultMaxFailures,
		"passwords.list":       []string{},
		"passwords.builtin":    true,
	}
	for key, value := range autoextract.DefaultExtractConfigMap() {
		defaults["extract."+key] = value
	}
	return defaults
}

// DefaultConfigPath is autoextract/config.yaml under XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "autoextract", "config.yaml")
}

// Load builds the configuration from defaults, the file at path and the
// environment, in increasing priority. A missing file is fine unless path
// was given explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the host settings and the extraction options.
func (c *Config) Validate() error {
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval)
	}
	if c.Watch.Settle < 0 {
		return fmt.Errorf("watch.settle must not be negative, got %s", c.Watch.Settle)
	}
	if c.Watch.Workers < 1 {
		return fmt.Errorf("watch.workers must be >= 1, got %d", c.Watch.Workers)
	}
	if c.Failure.MaxFailures < 1 {
		return fmt.Errorf("failure.max_failures must be >= 1, got %d", c.Failure.MaxFailures)
	}
	switch c.Executor.Backend {
	case BackendNative, BackendUnrar, Backend7z:
	default:
		return fmt.Errorf("unknown executor.backend %q", c.Executor.Backend)
	}
	if c.Paths.ExtractDir == "" {
		c.Paths.ExtractDir = c.Paths.WatchDir
	}
	return c.Extract.Validate()
}

// PasswordProvider assembles the configured password sources: mappings
// first, then the list, then the built-in passwords.
func (c *Config) PasswordProvider() autoextract.PasswordProvider {
	chain := autoextract.ChainPasswords{
		autoextract.MappedPasswords(c.Passwords.Mappings),
		autoextract.StaticPasswords(c.Passwords.List),
	}
	if c.Passwords.Builtin {
		chain = append(chain, autoextract.BuiltinPasswords())
	}
	return chain
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Parser()
	}
	return yaml.Parser()
}
