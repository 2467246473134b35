// Package backup runs the snapshot pipeline: resolve git credentials from
// the workspace secret store, fetch the Genie space configuration, serialize
// it into the checkout, and commit and push the result.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/genie-ops/genie-backup/internal/databricks"
	"github.com/genie-ops/genie-backup/internal/git"
	gh "github.com/genie-ops/genie-backup/internal/github"
)

// Stage identifies how far a run progressed. Stages are strictly ordered;
// any failure aborts the run at the stage it occurred in.
type Stage string

const (
	StageStart               Stage = "start"
	StageCredentialsResolved Stage = "credentials_resolved"
	StageConfigFetched       Stage = "config_fetched"
	StageFilesWritten        Stage = "files_written"
	StageCommitted           Stage = "committed"
	StagePushed              Stage = "pushed"
)

// DefaultBranchFallback is used when no branch is configured and the remote's
// default branch cannot be resolved.
const DefaultBranchFallback = "main"

// SecretsClient reads secret values from the workspace secret store.
type SecretsClient interface {
	GetSecret(ctx context.Context, scope, key string) (string, error)
}

// GenieClient reads Genie space configuration from the platform.
type GenieClient interface {
	GetSpace(ctx context.Context, spaceID string) (databricks.GenieSpaceConfig, error)
}

// SnapshotWriter persists a fetched configuration into the checkout.
type SnapshotWriter interface {
	Write(cfg databricks.GenieSpaceConfig) ([]string, error)
	Path() string
}

// GitFactory builds a git executor once credentials have been resolved. The
// token is only known after the secret lookup stage, so executors cannot be
// constructed up front.
type GitFactory interface {
	New(creds Credentials) (git.Executor, error)
}

// GitFactoryFunc adapts a function to the GitFactory interface.
type GitFactoryFunc func(creds Credentials) (git.Executor, error)

func (f GitFactoryFunc) New(creds Credentials) (git.Executor, error) { return f(creds) }

// Credentials carries the resolved git identity for the run. The token lives
// only in process memory and must never be logged.
type Credentials struct {
	GitToken    string
	GitUsername string
	GitEmail    string
}

// Config captures the runtime controls the pipeline needs.
type Config struct {
	SpaceID     string
	SecretScope string
	SecretKey   string

	GitUsername string
	GitEmail    string

	// Branch is the push target. When empty the remote's default branch is
	// resolved via the GitHub API, falling back to DefaultBranchFallback.
	Branch string

	// RepoDir is the repository checkout the job runs inside.
	RepoDir string

	// AllowEmptyCommit forces a commit even when the snapshot is unchanged.
	AllowEmptyCommit bool

	// DryRun fetches and writes the snapshot but performs no git mutation.
	DryRun bool
}

// Result captures the outcome of a single run.
type Result struct {
	Stage         Stage
	SpaceID       string
	Branch        string
	Files         []string
	CommitSHA     string
	CommitMessage string
	Committed     bool
	Pushed        bool
	Skipped       bool
	SkippedReason string
}

// Orchestrator coordinates the secret store, the Genie API, the snapshot
// writer, and git into the linear backup pipeline.
type Orchestrator struct {
	cfg       Config
	secrets   SecretsClient
	genie     GenieClient
	snapshots SnapshotWriter
	gitFac    GitFactory
	ghFac     gh.Factory
	log       *slog.Logger

	now func() time.Time
}

// New returns a configured Orchestrator instance. ghFactory may be nil when
// default-branch resolution is not wanted.
func New(cfg Config, secrets SecretsClient, genie GenieClient, snapshots SnapshotWriter, gitFactory GitFactory, ghFactory gh.Factory, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		secrets:   secrets,
		genie:     genie,
		snapshots: snapshots,
		gitFac:    gitFactory,
		ghFac:     ghFactory,
		log:       logger,
		now:       time.Now,
	}
}

// Run executes the pipeline. It fails fast: a stage error aborts every
// subsequent stage, and the returned Result reports the last stage that
// completed.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	result := Result{Stage: StageStart, SpaceID: o.cfg.SpaceID}

	if err := o.validate(); err != nil {
		return result, err
	}

	// Stage 1: credential resolution. A missing secret is fatal before any
	// platform call is made.
	token, err := o.secrets.GetSecret(ctx, o.cfg.SecretScope, o.cfg.SecretKey)
	if err != nil {
		return result, &AuthenticationError{Scope: o.cfg.SecretScope, Key: o.cfg.SecretKey, Err: err}
	}
	creds := Credentials{
		GitToken:    token,
		GitUsername: o.cfg.GitUsername,
		GitEmail:    o.cfg.GitEmail,
	}
	result.Stage = StageCredentialsResolved
	if o.log != nil {
		o.log.Info("resolved git credentials", "scope", o.cfg.SecretScope, "key", o.cfg.SecretKey, "username", creds.GitUsername)
	}

	// Stage 2: fetch the space configuration.
	spaceCfg, err := o.genie.GetSpace(ctx, o.cfg.SpaceID)
	if err != nil {
		if databricks.IsNotFound(err) {
			return result, &NotFoundError{SpaceID: o.cfg.SpaceID, Err: err}
		}
		return result, &TransportError{Err: err}
	}
	result.Stage = StageConfigFetched
	if o.log != nil {
		o.log.Info("fetched genie space configuration",
			"space_id", spaceCfg.SpaceID,
			"title", spaceCfg.Title,
			"trusted_assets", len(spaceCfg.TrustedAssets),
			"example_sql", len(spaceCfg.ExampleSQL))
	}

	gitExec, err := o.gitFac.New(creds)
	if err != nil {
		return result, fmt.Errorf("configure git executor: %w", err)
	}

	workspace, err := gitExec.Open(ctx, o.cfg.RepoDir)
	if err != nil {
		return result, &GitOperationError{Op: "open", Err: err}
	}

	branch := o.resolveBranch(ctx, workspace, creds)
	result.Branch = branch

	if !o.cfg.DryRun {
		if err := workspace.AuthenticateRemote(ctx); err != nil {
			return result, &GitOperationError{Op: "authenticate remote", Err: err}
		}
		// Pull before writing so the snapshot lands on the branch tip and
		// the push is not rejected as stale.
		if err := workspace.Pull(ctx, branch); err != nil {
			return result, &GitOperationError{Op: "pull", Err: err}
		}
	}

	// Stage 3: serialize the snapshot into the checkout.
	files, err := o.snapshots.Write(spaceCfg)
	if err != nil {
		return result, fmt.Errorf("write snapshot: %w", err)
	}
	result.Stage = StageFilesWritten
	result.Files = files
	if o.log != nil {
		o.log.Info("wrote snapshot files", "dir", o.snapshots.Path(), "files", len(files))
	}

	changed, err := workspace.HasChanges(ctx)
	if err != nil {
		return result, &GitOperationError{Op: "status", Err: err}
	}

	if !changed && !o.cfg.AllowEmptyCommit {
		result.Skipped = true
		result.SkippedReason = "configuration unchanged since last snapshot"
		if o.log != nil {
			o.log.Info("no changes to commit, configuration is up to date", "space_id", o.cfg.SpaceID)
		}
		return result, nil
	}

	if o.cfg.DryRun {
		result.Skipped = true
		result.SkippedReason = "dry run enabled"
		if o.log != nil {
			o.log.Info("dry run: skipping commit and push", "space_id", o.cfg.SpaceID, "branch", branch)
		}
		return result, nil
	}

	// Stage 4: commit.
	message := o.commitMessage()
	result.CommitMessage = message

	if err := workspace.StageAll(ctx); err != nil {
		return result, &GitOperationError{Op: "stage", Err: err}
	}
	if err := workspace.Commit(ctx, message, !changed); err != nil {
		return result, &GitOperationError{Op: "commit", Err: err}
	}
	result.Stage = StageCommitted
	result.Committed = true

	if sha, err := workspace.Head(ctx); err == nil {
		result.CommitSHA = sha
	}

	// Stage 5: push. A failure here leaves the local commit behind and the
	// run reports failure; it is never silently treated as success.
	if err := workspace.Push(ctx, branch); err != nil {
		return result, &GitOperationError{Op: "push", Err: err}
	}
	result.Stage = StagePushed
	result.Pushed = true

	if o.log != nil {
		o.log.Info("pushed snapshot", "space_id", o.cfg.SpaceID, "branch", branch, "commit", result.CommitSHA)
	}

	return result, nil
}

func (o *Orchestrator) validate() error {
	if o.secrets == nil {
		return fmt.Errorf("secrets client is required")
	}
	if o.genie == nil {
		return fmt.Errorf("genie client is required")
	}
	if o.snapshots == nil {
		return fmt.Errorf("snapshot writer is required")
	}
	if o.gitFac == nil {
		return fmt.Errorf("git factory is required")
	}
	if strings.TrimSpace(o.cfg.SpaceID) == "" {
		return fmt.Errorf("space id is required")
	}
	if strings.TrimSpace(o.cfg.SecretScope) == "" || strings.TrimSpace(o.cfg.SecretKey) == "" {
		return fmt.Errorf("secret scope and key are required")
	}
	if strings.TrimSpace(o.cfg.RepoDir) == "" {
		return fmt.Errorf("repository directory is required")
	}
	return nil
}

// resolveBranch picks the push target: the configured branch, else the
// GitHub remote's default branch, else the fallback. Resolution failures are
// warnings only; the run proceeds against the fallback.
func (o *Orchestrator) resolveBranch(ctx context.Context, workspace git.Workspace, creds Credentials) string {
	if branch := strings.TrimSpace(o.cfg.Branch); branch != "" {
		return branch
	}

	if o.ghFac == nil {
		return DefaultBranchFallback
	}

	remoteURL, err := workspace.OriginURL(ctx)
	if err != nil {
		if o.log != nil {
			o.log.Warn("could not read origin remote, using fallback branch", "branch", DefaultBranchFallback, "error", err)
		}
		return DefaultBranchFallback
	}

	remote, err := gh.ParseRemote(remoteURL)
	if err != nil {
		if o.log != nil {
			o.log.Debug("remote is not a github.com repository, using fallback branch", "branch", DefaultBranchFallback)
		}
		return DefaultBranchFallback
	}

	client, err := o.ghFac.New(ctx, creds.GitToken)
	if err != nil {
		if o.log != nil {
			o.log.Warn("could not build github client, using fallback branch", "branch", DefaultBranchFallback, "error", err)
		}
		return DefaultBranchFallback
	}

	branch, err := client.DefaultBranch(ctx, remote.Owner, remote.Repo)
	if err != nil {
		if o.log != nil {
			o.log.Warn("could not resolve default branch, using fallback",
				"owner", remote.Owner, "repo", remote.Repo, "branch", DefaultBranchFallback, "error", err)
		}
		return DefaultBranchFallback
	}

	return branch
}

func (o *Orchestrator) commitMessage() string {
	return fmt.Sprintf("Backup: Genie config update for space %s (%s)",
		o.cfg.SpaceID, o.now().UTC().Format(time.RFC3339))
}
