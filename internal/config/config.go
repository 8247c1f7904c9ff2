package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is loaded from an optional YAML file and then from the environment,
// which wins.
type Config struct {
	// Apps Script endpoints
	CourseAPI string `yaml:"course_api" validate:"omitempty,url"`
	ToolsAPI  string `yaml:"tools_api" validate:"omitempty,url"`

	CachePath          string `yaml:"cache_path" validate:"required"`
	RequirePrimaryTool bool   `yaml:"require_primary_tool"`

	HTTPTimeout     time.Duration `yaml:"http_timeout" validate:"gt=0"`
	HTTPMaxAttempts int           `yaml:"http_max_attempts" validate:"min=1,max=10"`
	ListLimit       int           `yaml:"list_limit" validate:"min=1,max=1000"`

	Env      string `yaml:"env" validate:"oneof=development production"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// SFTP drop for exported sheets
	SFTPHost                  string `yaml:"sftp_host"`
	SFTPPort                  int    `yaml:"sftp_port" validate:"min=1,max=65535"`
	SFTPUser                  string `yaml:"sftp_user"`
	SFTPPass                  string `yaml:"sftp_pass"`
	SFTPDir                   string `yaml:"sftp_dir"`
	SFTPKnownHosts            string `yaml:"sftp_known_hosts"`
	SFTPInsecureIgnoreHostKey bool   `yaml:"sftp_insecure_ignore_hostkey"`
}

// ConfigFileEnv names the YAML file to read when no path is passed to Load.
const ConfigFileEnv = "WORKBENCH_CONFIG"

var validate = validator.New()

func Defaults() Config {
	return Config{
		CachePath:          defaultCachePath(),
		RequirePrimaryTool: true,
		HTTPTimeout:        30 * time.Second,
		HTTPMaxAttempts:    1,
		ListLimit:          300,
		Env:                "development",
		LogLevel:           "info",
		SFTPPort:           22,
		SFTPDir:            "/inbound",
	}
}

func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "course-workbench", "cache.db")
	}
	return filepath.Join(".workbench", "cache.db")
}

// Load builds the configuration: defaults, then the YAML file at path (or
// $WORKBENCH_CONFIG when path is empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.CourseAPI = getenv("WORKBENCH_COURSE_API", cfg.CourseAPI)
	cfg.ToolsAPI = getenv("WORKBENCH_TOOLS_API", cfg.ToolsAPI)
	cfg.CachePath = getenv("WORKBENCH_CACHE_PATH", cfg.CachePath)
	cfg.RequirePrimaryTool = getenvBool("WORKBENCH_REQUIRE_PRIMARY_TOOL", cfg.RequirePrimaryTool)
	cfg.HTTPTimeout = getenvDuration("WORKBENCH_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.HTTPMaxAttempts = getenvInt("WORKBENCH_HTTP_MAX_ATTEMPTS", cfg.HTTPMaxAttempts)
	cfg.ListLimit = getenvInt("WORKBENCH_LIST_LIMIT", cfg.ListLimit)
	cfg.Env = strings.ToLower(getenv("WORKBENCH_ENV", cfg.Env))
	cfg.LogLevel = strings.ToLower(getenv("WORKBENCH_LOG_LEVEL", cfg.LogLevel))

	cfg.SFTPHost = getenv("SFTP_HOST", cfg.SFTPHost)
	cfg.SFTPPort = getenvInt("SFTP_PORT", cfg.SFTPPort)
	cfg.SFTPUser = getenv("SFTP_USER", cfg.SFTPUser)
	cfg.SFTPPass = getenv("SFTP_PASS", cfg.SFTPPass)
	cfg.SFTPDir = getenv("SFTP_DIR", cfg.SFTPDir)
	cfg.SFTPKnownHosts = getenv("SFTP_KNOWN_HOSTS", cfg.SFTPKnownHosts)
	cfg.SFTPInsecureIgnoreHostKey = getenvBool("SFTP_INSECURE_IGNORE_HOSTKEY", cfg.SFTPInsecureIgnoreHostKey)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", fe.Field(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "min", "max", "gt":
		return fmt.Sprintf("%s must be %s %s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// SheetConfigured reports whether a course endpoint is set.
func (c Config) SheetConfigured() bool { return c.CourseAPI != "" }

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvDuration accepts Go durations ("45s") or bare seconds ("45").
func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
