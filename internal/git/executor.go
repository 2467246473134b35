package git

import "context"

// Executor opens repository worktrees used for snapshot commits.
type Executor interface {
	Open(ctx context.Context, dir string) (Workspace, error)
}

// Workspace exposes the git primitives the backup pipeline needs against an
// existing checkout. Implementations may shell out to git or use a pure Go
// library.
type Workspace interface {
	// Dir returns the worktree root.
	Dir() string

	// OriginURL reports the configured URL of the origin remote, without
	// embedded credentials.
	OriginURL(ctx context.Context) (string, error)

	// AuthenticateRemote rewrites the origin remote URL to embed the
	// executor's username and token for HTTPS pushes.
	AuthenticateRemote(ctx context.Context) error

	// Pull brings the checkout up to date with origin before new snapshot
	// files are written.
	Pull(ctx context.Context, branch string) error

	// HasChanges reports whether the worktree differs from HEAD.
	HasChanges(ctx context.Context) (bool, error)

	// StageAll stages every change in the worktree.
	StageAll(ctx context.Context) error

	// Commit records the staged changes. allowEmpty permits a commit even
	// when nothing is staged.
	Commit(ctx context.Context, message string, allowEmpty bool) error

	// Push publishes the branch to origin.
	Push(ctx context.Context, branch string) error

	// Head returns the commit SHA the worktree is at.
	Head(ctx context.Context) (string, error)
}
