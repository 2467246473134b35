package git

import (
	"context"
)

// NewNoopExecutor returns an Executor that performs no actual git operations.
// All workspace methods succeed without side effects, useful for testing and
// dry-run scenarios.
func NewNoopExecutor() Executor {
	return &noopExecutor{}
}

type noopExecutor struct{}

func (e *noopExecutor) Open(ctx context.Context, dir string) (Workspace, error) {
	return &noopWorkspace{dir: dir}, nil
}

type noopWorkspace struct {
	dir string
}

func (w *noopWorkspace) Dir() string {
	return w.dir
}

func (w *noopWorkspace) OriginURL(ctx context.Context) (string, error) {
	return "https://github.com/example/genie-backups.git", nil
}

func (w *noopWorkspace) AuthenticateRemote(ctx context.Context) error {
	return nil
}

func (w *noopWorkspace) Pull(ctx context.Context, branch string) error {
	return nil
}

func (w *noopWorkspace) HasChanges(ctx context.Context) (bool, error) {
	return true, nil
}

func (w *noopWorkspace) StageAll(ctx context.Context) error {
	return nil
}

func (w *noopWorkspace) Commit(ctx context.Context, message string, allowEmpty bool) error {
	return nil
}

func (w *noopWorkspace) Push(ctx context.Context, branch string) error {
	return nil
}

func (w *noopWorkspace) Head(ctx context.Context) (string, error) {
	return "0000000000000000000000000000000000000000", nil
}
