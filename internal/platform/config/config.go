// Package config provides application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Port     int
	LogLevel string
	APIToken string // bearer token for the REST API; empty disables auth

	// Stack files, relative to the source root
	StackFile        string
	BaseDir          string
	RequirementsFile string
	TestEnvFile      string

	// Git source (optional)
	GitRepo         string        // clone URL; selects the git source when set
	GitLocalPath    string        // local path for the clone
	GitRef          string        // branch or tag; default branch when empty
	GitSyncInterval time.Duration // how often to pull
	AutoApply       bool          // apply the stack after every new revision
	WebhookSecret   string        // enables POST /webhook; pushes trigger a sync

	// GitHub contents source (optional)
	GitHubRepo           string // "owner/name"; selects the GitHub source when set
	GitHubRef            string
	GitHubToken          string
	GitHubAppID          int64
	GitHubInstallationID int64
	GitHubPrivateKey     string // PEM file contents

	// Tooling
	HelmBin     string
	PipBin      string
	PythonBin   string
	Kubeconfig  string
	LockFile    string
	DefaultRepo string // repository alias used when upgrading installed charts

	// OpenTelemetry (optional)
	OTelEnabled bool // OTEL_ENABLED feature flag
}

// Source names the place stack files are read from.
func (c Config) Source() string {
	switch {
	case c.GitHubRepo != "":
		return "github"
	case c.GitRepo != "":
		return "git"
	default:
		return "file"
	}
}

// Load reads configuration from environment variables, validates it and
// applies defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:             8080,
		LogLevel:         "info",
		StackFile:        "stack.yaml",
		BaseDir:          ".",
		RequirementsFile: "requirements.txt",
		TestEnvFile:      "tox.ini",
		HelmBin:          "helm",
		PipBin:           "pip",
		PythonBin:        "python",
		LockFile:         "/tmp/chart-stack.lock",
		DefaultRepo:      "cloudve",
	}

	if err := loadCoreConfig(&cfg); err != nil {
		return Config{}, err
	}

	if err := loadGitConfig(&cfg); err != nil {
		return Config{}, err
	}

	if err := loadGitHubConfig(&cfg); err != nil {
		return Config{}, err
	}

	loadOTelConfig(&cfg)

	return cfg, nil
}

func loadCoreConfig(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT %q: out of range", v)
		}
		cfg.Port = p
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.APIToken = os.Getenv("API_TOKEN")

	cfg.StackFile = getEnvOrDefault("STACK_FILE", cfg.StackFile)
	cfg.BaseDir = getEnvOrDefault("STACK_BASE_DIR", cfg.BaseDir)
	cfg.RequirementsFile = getEnvOrDefault("REQUIREMENTS_FILE", cfg.RequirementsFile)
	cfg.TestEnvFile = getEnvOrDefault("TESTENV_FILE", cfg.TestEnvFile)

	cfg.HelmBin = getEnvOrDefault("HELM_BIN", cfg.HelmBin)
	cfg.PipBin = getEnvOrDefault("PIP_BIN", cfg.PipBin)
	cfg.PythonBin = getEnvOrDefault("PYTHON_BIN", cfg.PythonBin)
	cfg.Kubeconfig = os.Getenv("KUBECONFIG")
	cfg.LockFile = getEnvOrDefault("LOCK_FILE", cfg.LockFile)
	cfg.DefaultRepo = getEnvOrDefault("HELMSMAN_DEFAULT_REPO", cfg.DefaultRepo)

	return nil
}

func loadGitConfig(cfg *Config) error {
	cfg.GitRepo = os.Getenv("STACK_GIT_REPO")
	if cfg.GitRepo == "" {
		if os.Getenv("STACK_AUTO_APPLY") == "true" {
			return errors.New("STACK_AUTO_APPLY requires STACK_GIT_REPO")
		}
		if os.Getenv("WEBHOOK_SECRET") != "" {
			return errors.New("WEBHOOK_SECRET requires STACK_GIT_REPO")
		}
		return nil // git source is optional
	}

	cfg.GitLocalPath = getEnvOrDefault("STACK_GIT_LOCAL_PATH", "/tmp/chart-stack-repo")
	cfg.GitRef = os.Getenv("STACK_GIT_REF")
	cfg.AutoApply = os.Getenv("STACK_AUTO_APPLY") == "true"
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	dur, err := parseDurationOrDefault("STACK_GIT_SYNC_INTERVAL", 1*time.Hour)
	if err != nil {
		return err
	}
	cfg.GitSyncInterval = dur

	return nil
}

func loadGitHubConfig(cfg *Config) error {
	cfg.GitHubRepo = os.Getenv("STACK_GITHUB_REPO")
	if cfg.GitHubRepo == "" {
		return nil // GitHub source is optional
	}
	if cfg.GitRepo != "" {
		return errors.New("STACK_GIT_REPO and STACK_GITHUB_REPO are mutually exclusive")
	}
	if owner, name, ok := strings.Cut(cfg.GitHubRepo, "/"); !ok || owner == "" || name == "" {
		return fmt.Errorf("invalid STACK_GITHUB_REPO %q: want owner/name", cfg.GitHubRepo)
	}

	cfg.GitHubRef = getEnvOrDefault("STACK_GITHUB_REF", "main")
	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	if cfg.GitHubToken != "" {
		return nil
	}

	if os.Getenv("GITHUB_APP_ID") == "" {
		return nil // anonymous access to public repositories
	}

	var err error
	cfg.GitHubAppID, err = parseRequiredInt64("GITHUB_APP_ID")
	if err != nil {
		return err
	}

	cfg.GitHubInstallationID, err = parseRequiredInt64("GITHUB_INSTALLATION_ID")
	if err != nil {
		return err
	}

	cfg.GitHubPrivateKey = os.Getenv("GITHUB_PRIVATE_KEY")
	if cfg.GitHubPrivateKey == "" {
		return errors.New("GITHUB_PRIVATE_KEY is required")
	}

	return nil
}

func parseRequiredInt64(envKey string) (int64, error) {
	v := os.Getenv(envKey)
	if v == "" {
		return 0, fmt.Errorf("%s is required", envKey)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, v, err)
	}
	return id, nil
}

func getEnvOrDefault(envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

func loadOTelConfig(cfg *Config) {
	cfg.OTelEnabled = os.Getenv("OTEL_ENABLED") == "true"
}

func parseDurationOrDefault(envKey string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(envKey)
	if v == "" {
		return defaultValue, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, v, err)
	}
	return dur, nil
}
