package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultGitUsername = "genie-backup-bot"
	defaultGitEmail    = "bot@company.com"
	defaultSnapshotDir = "genie_configs"
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"

	// reportEnvVar names the run report path when --report-file is unset.
	reportEnvVar = "GENIE_BACKUP_REPORT"
)

// Config captures runtime options for a backup run, sourced from CLI flags
// and the environment.
type Config struct {
	// SpaceID is the Genie space to snapshot.
	SpaceID string

	// SecretScope and SecretKey locate the Git PAT in the workspace secret
	// store.
	SecretScope string
	SecretKey   string

	// GitUsername and GitEmail form the commit identity. Defaults:
	// genie-backup-bot / bot@company.com.
	GitUsername string
	GitEmail    string

	// GitBranch is the push target. When empty the remote's default branch
	// is resolved, falling back to main.
	GitBranch string

	// RepoDir is the repository checkout. Defaults to the working
	// directory, where a Databricks Git Folder task starts.
	RepoDir string

	// SnapshotDir is the snapshot directory relative to RepoDir.
	SnapshotDir string

	// AllowEmptyCommit commits even when the configuration is unchanged.
	AllowEmptyCommit bool

	// DryRun fetches and writes the snapshot without touching git state.
	DryRun bool

	LogLevel  string
	LogFormat string

	// ReportFile, when set, receives a JSON report of the run outcome.
	// Falls back to the GENIE_BACKUP_REPORT environment variable.
	ReportFile string
}

// Finalize applies defaults and validates the configuration. It must be
// called once before the config is used.
func (c *Config) Finalize() error {
	c.SpaceID = strings.TrimSpace(c.SpaceID)
	c.SecretScope = strings.TrimSpace(c.SecretScope)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.GitBranch = strings.TrimSpace(c.GitBranch)

	if c.SpaceID == "" {
		return fmt.Errorf("--space-id is required")
	}
	if c.SecretScope == "" {
		return fmt.Errorf("--secret-scope is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("--secret-key is required")
	}

	if strings.TrimSpace(c.GitUsername) == "" {
		c.GitUsername = defaultGitUsername
	}
	if strings.TrimSpace(c.GitEmail) == "" {
		c.GitEmail = defaultGitEmail
	}

	if c.RepoDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		c.RepoDir = wd
	}

	if strings.TrimSpace(c.SnapshotDir) == "" {
		c.SnapshotDir = defaultSnapshotDir
	}
	// The snapshot directory is replaced wholesale on every run, so it must
	// stay strictly inside the checkout.
	cleaned := filepath.Clean(c.SnapshotDir)
	if filepath.IsAbs(cleaned) || cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("--snapshot-dir %q must name a directory inside the repository", c.SnapshotDir)
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if c.ReportFile == "" {
		c.ReportFile = strings.TrimSpace(os.Getenv(reportEnvVar))
	}

	return nil
}

// LoadDotEnv loads a .env file when one is present, matching the local
// development flow the verification tooling uses. A missing file is not an
// error; the Databricks Job injects DATABRICKS_HOST/DATABRICKS_TOKEN itself.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load()
}
