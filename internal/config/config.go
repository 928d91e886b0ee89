package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. LAPBOARD_LISTEN_ADDR.
const EnvPrefix = "LAPBOARD"

// Global configuration structure.
type Global struct {
	// Input
	SheetName        string `mapstructure:"sheet_name" yaml:"sheet_name"`
	SheetIndex       int    `mapstructure:"sheet_index" yaml:"sheet_index"`
	DecimalSeparator string `mapstructure:"decimal_separator" yaml:"decimal_separator"`
	CSVDelimiter     string `mapstructure:"csv_delimiter" yaml:"csv_delimiter"`

	// Output
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`

	// HTTP server
	ListenAddr  string `mapstructure:"listen_addr" yaml:"listen_addr"`
	SessionTTL  string `mapstructure:"session_ttl" yaml:"session_ttl"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Keys lists the settable keys in display order.
var Keys = []string{
	"sheet_name", "sheet_index", "decimal_separator", "csv_delimiter", "output_format",
	"listen_addr", "session_ttl", "max_upload_mb", "log_level", "log_format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sheet_name", "")
	v.SetDefault("sheet_index", 1)
	v.SetDefault("decimal_separator", "auto")
	v.SetDefault("csv_delimiter", "auto")
	v.SetDefault("output_format", "markdown")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("session_ttl", "30m")
	v.SetDefault("max_upload_mb", 32)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Dir returns ~/.lapboard.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".lapboard"), nil
}

// Defaults returns a viper instance carrying only defaults and environment.
func Defaults() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// New returns a viper instance with defaults, environment and the config
// file (cfgFile, or ~/.lapboard/config.yaml) wired in. A missing file is not
// an error.
func New(cfgFile string) (*viper.Viper, error) {
	v := Defaults()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes the effective configuration.
func FromViper(v *viper.Viper) (*Global, error) {
	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are layered on by the caller.
func Load(cfgFile string) (*Global, error) {
	v, err := New(cfgFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.lapboard/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Get returns the string form of a key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "sheet_name":
		return c.SheetName, nil
	case "sheet_index":
		return strconv.Itoa(c.SheetIndex), nil
	case "decimal_separator":
		return c.DecimalSeparator, nil
	case "csv_delimiter":
		return c.CSVDelimiter, nil
	case "output_format":
		return c.OutputFormat, nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "session_ttl":
		return c.SessionTTL, nil
	case "max_upload_mb":
		return strconv.Itoa(c.MaxUploadMB), nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set validates and assigns one key.
func (c *Global) Set(key, val string) error {
	switch key {
	case "sheet_name":
		c.SheetName = val
	case "sheet_index":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for sheet_index: %v (must be >= 1)", val)
		}
		c.SheetIndex = i
	case "decimal_separator":
		if _, err := ParseDecimal(val); err != nil {
			return err
		}
		c.DecimalSeparator = val
	case "csv_delimiter":
		if _, err := ParseDelimiter(val); err != nil {
			return err
		}
		c.CSVDelimiter = val
	case "output_format":
		switch strings.ToLower(val) {
		case "markdown", "md", "json":
			c.OutputFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid output_format: %s (use markdown or json)", val)
		}
	case "listen_addr":
		c.ListenAddr = val
	case "session_ttl":
		d, err := cast.ToDurationE(val)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration for session_ttl: %v", val)
		}
		c.SessionTTL = val
	case "max_upload_mb":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for max_upload_mb: %v (must be >= 1)", val)
		}
		c.MaxUploadMB = i
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug|info|warn|error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "console", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use console or json)", val)
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// TTL parses SessionTTL ("30m", "1h30m").
func (c *Global) TTL() (time.Duration, error) {
	d, err := cast.ToDurationE(c.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid session_ttl %q: %w", c.SessionTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid session_ttl %q: must be positive", c.SessionTTL)
	}
	return d, nil
}

// ParseDecimal maps a decimal_separator setting to a rune; 0 means auto-detect.
func ParseDecimal(s string) (rune, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case ".", "dot":
		return '.', nil
	}
	return 0, fmt.Errorf("unsupported decimal separator: %s (use auto|dot|comma)", s)
}

// ParseDelimiter maps a csv_delimiter setting to a rune; 0 means sniff.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case ",", "comma":
		return ',', nil
	case ";", "semicolon":
		return ';', nil
	case "\t", "tab":
		return '\t', nil
	}
	return 0, fmt.Errorf("unsupported delimiter: %s (use auto|,|;|tab)", s)
}
