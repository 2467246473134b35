package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/genie-ops/genie-backup/internal/backup"
	"github.com/genie-ops/genie-backup/internal/databricks"
	"github.com/genie-ops/genie-backup/internal/git"
	gh "github.com/genie-ops/genie-backup/internal/github"
	"github.com/genie-ops/genie-backup/internal/snapshot"
)

// Runner glues together the Databricks client, the snapshot writer, and the
// git and GitHub layers to execute one backup run.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	secrets   backup.SecretsClient
	genie     backup.GenieClient
	gitFac    backup.GitFactory
	ghFactory gh.Factory
}

// NewRunner constructs a Runner with the supplied configuration, building
// the workspace client from DATABRICKS_HOST/DATABRICKS_TOKEN.
func NewRunner(cfg Config) (*Runner, error) {
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	client, err := databricks.NewClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("create databricks client: %w", err)
	}

	// Dry runs must not reach GitHub: branch resolution falls back to the
	// noop factory's static answer.
	ghFactory := gh.NewRESTFactory()
	if cfg.DryRun {
		ghFactory = gh.NewNoopFactory()
	}

	return &Runner{
		cfg:       cfg,
		log:       logger,
		secrets:   client,
		genie:     client,
		gitFac:    shellGitFactory(cfg),
		ghFactory: ghFactory,
	}, nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for
// testing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, secrets backup.SecretsClient, genie backup.GenieClient, gitFactory backup.GitFactory, ghFactory gh.Factory) *Runner {
	return &Runner{cfg: cfg, log: log, secrets: secrets, genie: genie, gitFac: gitFactory, ghFactory: ghFactory}
}

// shellGitFactory builds shell executors carrying the resolved identity and
// token. The token is only known once the pipeline has read the secret.
func shellGitFactory(cfg Config) backup.GitFactory {
	return backup.GitFactoryFunc(func(creds backup.Credentials) (git.Executor, error) {
		if cfg.DryRun {
			return git.NewNoopExecutor(), nil
		}
		exec := git.NewShellExecutor()
		exec.Token = creds.GitToken
		exec.UserName = creds.GitUsername
		exec.UserEmail = creds.GitEmail
		return exec, nil
	})
}

// Run executes the backup pipeline and writes the optional run report. The
// returned error is the pipeline error; report-writing problems are only
// logged.
func (r *Runner) Run(ctx context.Context) error {
	if r.log != nil {
		r.log.Info("starting genie space backup",
			"space_id", r.cfg.SpaceID,
			"repo_dir", r.cfg.RepoDir,
			"snapshot_dir", r.cfg.SnapshotDir,
			"dry_run", r.cfg.DryRun)
	}

	writer := &snapshot.Writer{RepoDir: r.cfg.RepoDir, Dir: r.cfg.SnapshotDir}

	orchCfg := backup.Config{
		SpaceID:          r.cfg.SpaceID,
		SecretScope:      r.cfg.SecretScope,
		SecretKey:        r.cfg.SecretKey,
		GitUsername:      r.cfg.GitUsername,
		GitEmail:         r.cfg.GitEmail,
		Branch:           r.cfg.GitBranch,
		RepoDir:          r.cfg.RepoDir,
		AllowEmptyCommit: r.cfg.AllowEmptyCommit,
		DryRun:           r.cfg.DryRun,
	}

	orch := backup.New(orchCfg, r.secrets, r.genie, writer, r.gitFac, r.ghFactory, r.log)
	result, runErr := orch.Run(ctx)

	if err := r.writeRunReport(result, runErr); err != nil && r.log != nil {
		r.log.Warn("failed to write run report", "error", err)
	}

	if runErr != nil {
		return runErr
	}

	if r.log != nil {
		switch {
		case result.Skipped:
			r.log.Info("backup run finished without a push", "reason", result.SkippedReason)
		default:
			r.log.Info("backup run finished", "branch", result.Branch, "commit", result.CommitSHA)
		}
	}

	return nil
}
