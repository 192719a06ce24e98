package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/tengjizhang/feedexec/internal/opml"
)

const (
	defaultEnvFile  = ".env"
	defaultLogLevel = "warn"
)

const (
	configFolderName  = "feedexec"
	configFileName    = "config.toml"
	configPathEnvName = "XDG_CONFIG_HOME"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	URLs      []string
	Cmd       string
	Args      []string
	Keywords  []string
	Timestamp int64
	// OPML names a subscription list whose feed URLs are appended to URLs.
	OPML string

	HTTPTimeout      time.Duration
	FetchConcurrency int
	UserAgent        string
	Strict           bool
	LogLevel         string
	LogFile          string
}

// Options controls where Load looks and carries command-line overrides,
// which take precedence over the file and the environment.
type Options struct {
	EnvFile    string
	ConfigPath string
	OPML       string

	Timestamp *int64
	Strict    *bool
	LogLevel  string
}

func LoadConfig() (Config, error) {
	return Load(Options{})
}

func Load(opts Options) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	cfg := Config{LogLevel: defaultLogLevel}
	var hasTimestamp bool

	configPath, hasConfig, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	if hasConfig {
		fileCfg, err := loadFileConfig(configPath)
		if err != nil {
			return Config{}, err
		}
		applyFileConfig(&cfg, fileCfg)
		hasTimestamp = fileCfg.Timestamp != nil
	}

	envHasTimestamp, err := applyEnv(&cfg)
	if err != nil {
		return Config{}, err
	}
	hasTimestamp = hasTimestamp || envHasTimestamp
	applyOverrides(&cfg, opts)
	hasTimestamp = hasTimestamp || opts.Timestamp != nil
	if err := applyOPML(&cfg); err != nil {
		return Config{}, err
	}

	if err := validate(cfg, hasTimestamp); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadEnvFile overlays path onto the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: env file %q: %v", ErrInvalidConfig, path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: env file %q: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

type fileConfig struct {
	URLs      []string `toml:"urls"`
	Cmd       *string  `toml:"cmd"`
	Args      []string `toml:"args"`
	Keywords  []string `toml:"keywords"`
	Timestamp *int64   `toml:"timestamp"`
	OPML      *string  `toml:"opml"`

	HTTPTimeoutSeconds *int    `toml:"http_timeout_seconds"`
	FetchConcurrency   *int    `toml:"fetch_concurrency"`
	UserAgent          *string `toml:"user_agent"`
	Strict             *bool   `toml:"strict"`
	LogLevel           *string `toml:"log_level"`
	LogFile            *string `toml:"log_file"`
}

func resolveConfigPath(explicit string) (string, bool, error) {
	if explicit != "" {
		info, err := os.Stat(explicit)
		if err != nil {
			return "", false, fmt.Errorf("%w: config path %q: %v", ErrInvalidConfig, explicit, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("%w: config path %q is a directory; expected a file", ErrInvalidConfig, explicit)
		}
		return explicit, true, nil
	}

	candidates := make([]string, 0, 2)
	if xdgConfigHome := strings.TrimSpace(os.Getenv(configPathEnvName)); xdgConfigHome != "" {
		candidates = append(candidates, filepath.Join(xdgConfigHome, configFolderName, configFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", configFolderName, configFileName))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("%w: config path %q is a directory; expected a file", ErrInvalidConfig, candidate)
			}
			return candidate, true, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return "", false, fmt.Errorf("failed to read config path %q: %w", candidate, err)
	}
	return "", false, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%w: config file %q: %v", ErrInvalidConfig, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		unknown := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			unknown = append(unknown, key.String())
		}
		sort.Strings(unknown)
		return fileConfig{}, fmt.Errorf("%w: config file %q: unknown key(s): %s", ErrInvalidConfig, path, strings.Join(unknown, ", "))
	}
	if err := validateFileConfig(path, cfg); err != nil {
		return fileConfig{}, err
	}
	return cfg, nil
}

func validateFileConfig(path string, cfg fileConfig) error {
	if cfg.HTTPTimeoutSeconds != nil && *cfg.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("%w: config file %q: http_timeout_seconds must be >= 0", ErrInvalidConfig, path)
	}
	if cfg.FetchConcurrency != nil && *cfg.FetchConcurrency < 0 {
		return fmt.Errorf("%w: config file %q: fetch_concurrency must be >= 0", ErrInvalidConfig, path)
	}
	return nil
}

func applyFileConfig(cfg *Config, fileCfg fileConfig) {
	if fileCfg.URLs != nil {
		cfg.URLs = fileCfg.URLs
	}
	if fileCfg.Cmd != nil {
		cfg.Cmd = *fileCfg.Cmd
	}
	if fileCfg.Args != nil {
		cfg.Args = fileCfg.Args
	}
	if fileCfg.Keywords != nil {
		cfg.Keywords = fileCfg.Keywords
	}
	if fileCfg.Timestamp != nil {
		cfg.Timestamp = *fileCfg.Timestamp
	}
	if fileCfg.OPML != nil {
		cfg.OPML = *fileCfg.OPML
	}
	if fileCfg.HTTPTimeoutSeconds != nil {
		cfg.HTTPTimeout = time.Duration(*fileCfg.HTTPTimeoutSeconds) * time.Second
	}
	if fileCfg.FetchConcurrency != nil {
		cfg.FetchConcurrency = *fileCfg.FetchConcurrency
	}
	if fileCfg.UserAgent != nil {
		cfg.UserAgent = *fileCfg.UserAgent
	}
	if fileCfg.Strict != nil {
		cfg.Strict = *fileCfg.Strict
	}
	if fileCfg.LogLevel != nil {
		cfg.LogLevel = *fileCfg.LogLevel
	}
	if fileCfg.LogFile != nil {
		cfg.LogFile = *fileCfg.LogFile
	}
}

// applyEnv reads the pipeline variables (urls, cmd, args, keywords,
// timestamp) and the FEEDEXEC_* ambient overrides. It reports whether a
// timestamp was present.
func applyEnv(cfg *Config) (bool, error) {
	if v, ok := lookupEnv("urls"); ok {
		urls, err := ParseList(v)
		if err != nil {
			return false, fmt.Errorf("%w: urls: %v", ErrInvalidConfig, err)
		}
		cfg.URLs = urls
	}
	if v, ok := lookupEnv("cmd"); ok {
		cfg.Cmd = v
	}
	if v, ok := lookupEnv("args"); ok {
		args, err := ParseList(v)
		if err != nil {
			return false, fmt.Errorf("%w: args: %v", ErrInvalidConfig, err)
		}
		cfg.Args = args
	}
	if v, ok := lookupEnv("keywords"); ok {
		keywords, err := ParseList(v)
		if err != nil {
			return false, fmt.Errorf("%w: keywords: %v", ErrInvalidConfig, err)
		}
		cfg.Keywords = keywords
	}

	hasTimestamp := false
	if v, ok := lookupEnv("timestamp"); ok {
		ts, err := ParseTimestamp(v)
		if err != nil {
			return false, err
		}
		cfg.Timestamp = ts
		hasTimestamp = true
	}

	if v, ok := os.LookupEnv("FEEDEXEC_OPML"); ok && v != "" {
		cfg.OPML = v
	}
	if v, ok := os.LookupEnv("FEEDEXEC_HTTP_TIMEOUT_SECONDS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := os.LookupEnv("FEEDEXEC_FETCH_CONCURRENCY"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.FetchConcurrency = n
		}
	}
	if v, ok := os.LookupEnv("FEEDEXEC_USER_AGENT"); ok && v != "" {
		cfg.UserAgent = v
	}
	if v, ok := os.LookupEnv("FEEDEXEC_STRICT"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Strict = b
		}
	}
	if v, ok := os.LookupEnv("FEEDEXEC_LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("FEEDEXEC_LOG_FILE"); ok && v != "" {
		cfg.LogFile = v
	}
	return hasTimestamp, nil
}

func applyOverrides(cfg *Config, opts Options) {
	if opts.Timestamp != nil {
		cfg.Timestamp = *opts.Timestamp
	}
	if opts.Strict != nil {
		cfg.Strict = *opts.Strict
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.OPML != "" {
		cfg.OPML = opts.OPML
	}
}

// applyOPML appends the subscription list's feeds after the configured urls.
// An OPML source alone satisfies the urls requirement.
func applyOPML(cfg *Config) error {
	if cfg.OPML == "" {
		return nil
	}
	fromOPML, err := opml.ReadURLs(cfg.OPML)
	if err != nil {
		return fmt.Errorf("%w: opml %q: %v", ErrInvalidConfig, cfg.OPML, err)
	}
	cfg.URLs = append(append([]string{}, cfg.URLs...), fromOPML...)
	return nil
}

// lookupEnv tries the name as written, then upper-cased.
func lookupEnv(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	return os.LookupEnv(strings.ToUpper(name))
}

// ParseList accepts a JSON array of strings or a comma-separated list.
// Blank comma-separated elements are dropped.
func ParseList(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var out []string
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON list: %v", err)
		}
		if out == nil {
			out = []string{}
		}
		return out, nil
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

func ParseTimestamp(raw string) (int64, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q is not an integer", ErrInvalidConfig, raw)
	}
	return ts, nil
}

func validate(cfg Config, hasTimestamp bool) error {
	if cfg.URLs == nil {
		return fmt.Errorf("%w: urls is required", ErrInvalidConfig)
	}
	if !hasTimestamp {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidConfig)
	}
	if cfg.FetchConcurrency < 0 {
		return fmt.Errorf("%w: fetch concurrency must be >= 0", ErrInvalidConfig)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unsupported log level %q", ErrInvalidConfig, cfg.LogLevel)
	}
	return nil
}
