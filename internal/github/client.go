package gh

import (
	"context"
	"errors"
)

// Client exposes the GitHub operations the backup runner needs: resolving
// which branch the snapshot commit should target.
type Client interface {
	// DefaultBranch returns the repository's default branch name.
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
}

// Factory builds concrete GitHub clients (e.g., REST-backed) for the runner.
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

// ErrRepositoryNotFound indicates the remote repository does not exist or the
// token cannot see it.
var ErrRepositoryNotFound = errors.New("github: repository not found")

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a retryable
// GitHub API failure (for example, a transient network problem or
// rate-limited request).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
