package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// ShellExecutor shells out to the system git binary against an existing
// checkout, the Databricks Git Folder the backup job runs inside.
type ShellExecutor struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// Token, if provided, is embedded into the HTTPS origin remote when
	// AuthenticateRemote is called. The token is redacted from every error
	// and never logged.
	Token string

	// UserName and UserEmail configure the git identity for commits.
	UserName  string
	UserEmail string

	// RemoteName controls which remote the workspace interacts with.
	// Defaults to "origin".
	RemoteName string

	// NetworkRetries controls how many additional attempts should be made
	// for network oriented git commands (pull, push, fetch). When zero, a
	// default of 2 retries is used.
	NetworkRetries int

	// NetworkRetryDelay controls the initial backoff delay between retries.
	// When zero, a default of 1 second is used. Backoff grows exponentially
	// per attempt.
	NetworkRetryDelay time.Duration

	// NetworkTimeout bounds network commands that would otherwise inherit
	// an unbounded context. When zero, a default of 2 minutes is used.
	NetworkTimeout time.Duration
}

// NewShellExecutor returns an Executor backed by system git commands.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

func (e *ShellExecutor) gitBinary() string {
	if e.Git == "" {
		return "git"
	}
	return e.Git
}

func (e *ShellExecutor) remoteName() string {
	if e.RemoteName == "" {
		return "origin"
	}
	return e.RemoteName
}

// Open validates that dir is a git worktree and configures the commit
// identity on it.
func (e *ShellExecutor) Open(ctx context.Context, dir string) (Workspace, error) {
	if dir == "" {
		return nil, fmt.Errorf("repository directory is required")
	}

	if err := e.runGit(ctx, "-C", dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, fmt.Errorf("%s is not a git worktree: %w", dir, err)
	}

	if e.UserName != "" {
		if err := e.runGit(ctx, "-C", dir, "config", "user.name", e.UserName); err != nil {
			return nil, fmt.Errorf("git config user.name: %w", err)
		}
	}
	if e.UserEmail != "" {
		if err := e.runGit(ctx, "-C", dir, "config", "user.email", e.UserEmail); err != nil {
			return nil, fmt.Errorf("git config user.email: %w", err)
		}
	}

	return &shellWorkspace{
		executor:   e,
		path:       dir,
		remoteName: e.remoteName(),
	}, nil
}

type shellWorkspace struct {
	path       string
	remoteName string
	executor   *ShellExecutor
}

func (w *shellWorkspace) Dir() string {
	return w.path
}

func (w *shellWorkspace) OriginURL(ctx context.Context) (string, error) {
	output, err := w.executor.captureGitOutput(ctx, "-C", w.path, "config", "--get", fmt.Sprintf("remote.%s.url", w.remoteName))
	if err != nil {
		return "", fmt.Errorf("git config remote.%s.url: %w", w.remoteName, err)
	}

	remote := strings.TrimSpace(output)
	if remote == "" {
		return "", fmt.Errorf("remote %s has no configured url", w.remoteName)
	}
	return StripCredentials(remote), nil
}

// AuthenticateRemote rewrites the origin URL to the
// https://<user>:<token>@<host>/<path> form the push authenticates with.
func (w *shellWorkspace) AuthenticateRemote(ctx context.Context) error {
	if w.executor.Token == "" {
		return fmt.Errorf("git token is required to authenticate the remote")
	}

	remote, err := w.OriginURL(ctx)
	if err != nil {
		return err
	}

	authenticated, err := authenticatedRemoteURL(remote, w.executor.UserName, w.executor.Token)
	if err != nil {
		return err
	}

	if err := w.exec(ctx, "remote", "set-url", w.remoteName, authenticated); err != nil {
		return fmt.Errorf("git remote set-url %s: %w", w.remoteName, err)
	}
	return nil
}

// authenticatedRemoteURL injects credentials into an HTTPS remote. SSH style
// remotes (git@host:org/repo.git) are rewritten to HTTPS first, since the job
// only holds a PAT.
func authenticatedRemoteURL(remote, username, token string) (string, error) {
	var hostAndPath string
	switch {
	case strings.HasPrefix(remote, "https://"):
		hostAndPath = strings.TrimPrefix(remote, "https://")
	case strings.HasPrefix(remote, "http://"):
		hostAndPath = strings.TrimPrefix(remote, "http://")
	case strings.HasPrefix(remote, "git@"):
		hostAndPath = strings.Replace(strings.TrimPrefix(remote, "git@"), ":", "/", 1)
	default:
		return "", fmt.Errorf("unsupported remote url %q", remote)
	}

	if username == "" {
		username = "x-access-token"
	}

	return fmt.Sprintf("https://%s:%s@%s", url.User(username).String(), url.QueryEscape(token), hostAndPath), nil
}

// StripCredentials removes any userinfo component from an HTTPS remote URL so
// it is safe to log.
func StripCredentials(remote string) string {
	parsed, err := url.Parse(remote)
	if err != nil || parsed.User == nil {
		return remote
	}
	parsed.User = nil
	return parsed.String()
}

func (w *shellWorkspace) Pull(ctx context.Context, branch string) error {
	if err := w.exec(ctx, "pull", w.remoteName, branch); err != nil {
		return fmt.Errorf("git pull %s %s: %w", w.remoteName, branch, err)
	}
	return nil
}

func (w *shellWorkspace) HasChanges(ctx context.Context) (bool, error) {
	output, err := w.executor.captureGitOutput(ctx, "-C", w.path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(output) != "", nil
}

func (w *shellWorkspace) StageAll(ctx context.Context) error {
	if err := w.exec(ctx, "add", "--all"); err != nil {
		return fmt.Errorf("git add: %w", err)
	}
	return nil
}

func (w *shellWorkspace) Commit(ctx context.Context, message string, allowEmpty bool) error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return fmt.Errorf("commit message is required")
	}

	args := []string{"commit", "-m", msg}
	if allowEmpty {
		args = []string{"commit", "--allow-empty", "-m", msg}
	}
	if err := w.exec(ctx, args...); err != nil {
		return fmt.Errorf("git commit: %w", err)
	}
	return nil
}

func (w *shellWorkspace) Push(ctx context.Context, branch string) error {
	if err := w.exec(ctx, "push", w.remoteName, fmt.Sprintf("HEAD:%s", branch)); err != nil {
		return fmt.Errorf("git push %s: %w", branch, err)
	}
	return nil
}

func (w *shellWorkspace) Head(ctx context.Context) (string, error) {
	output, err := w.executor.captureGitOutput(ctx, "-C", w.path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(output), nil
}

func (w *shellWorkspace) exec(ctx context.Context, args ...string) error {
	cmd := append([]string{"-C", w.path}, args...)
	return w.executor.runGit(ctx, cmd...)
}

func (e *ShellExecutor) captureGitOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, e.gitBinary(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", e.newGitError(args, string(output), err)
	}
	return string(output), nil
}

func (e *ShellExecutor) runGit(ctx context.Context, args ...string) error {
	primary := primaryGitCommand(args)
	isNetwork := isNetworkCommand(primary)

	retries := 0
	if isNetwork {
		retries = e.networkRetriesValue()
	}

	delay := e.networkRetryDelayValue()
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		attemptCtx, cancel := e.applyNetworkTimeout(ctx, isNetwork)
		err := e.runGitOnce(attemptCtx, args...)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isNetwork {
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == retries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < time.Second {
			delay = time.Second
		}
		delay *= 2
	}

	return lastErr
}

func (e *ShellExecutor) runGitOnce(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, e.gitBinary(), args...)
	setProcessGroup(cmd)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return e.newGitError(args, output.String(), err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		return ctx.Err()
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return e.newGitError(args, output.String(), err)
		}
	}

	return nil
}

// newGitError builds a GitError with the token scrubbed from arguments and
// command output, so authenticated remote URLs never leak into job logs.
func (e *ShellExecutor) newGitError(args []string, output string, err error) *GitError {
	redactedArgs := make([]string, len(args))
	for i, arg := range args {
		redactedArgs[i] = e.redact(arg)
	}
	return &GitError{Args: redactedArgs, Output: e.redact(output), Err: err}
}

func (e *ShellExecutor) redact(s string) string {
	if e.Token == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(e.Token), "***")
	return strings.ReplaceAll(s, e.Token, "***")
}

func primaryGitCommand(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, "-") {
			switch arg {
			case "-C", "--git-dir", "-c":
				i++
			}
			continue
		}
		return arg
	}
	return ""
}

func isNetworkCommand(cmd string) bool {
	switch cmd {
	case "clone", "fetch", "push", "pull":
		return true
	default:
		return false
	}
}

func (e *ShellExecutor) networkRetriesValue() int {
	if e.NetworkRetries < 0 {
		return 0
	}
	if e.NetworkRetries == 0 {
		return 2
	}
	return e.NetworkRetries
}

func (e *ShellExecutor) networkRetryDelayValue() time.Duration {
	if e.NetworkRetryDelay <= 0 {
		return time.Second
	}
	return e.NetworkRetryDelay
}

func (e *ShellExecutor) networkTimeoutValue() time.Duration {
	if e.NetworkTimeout <= 0 {
		return 2 * time.Minute
	}
	return e.NetworkTimeout
}

func (e *ShellExecutor) applyNetworkTimeout(ctx context.Context, network bool) (context.Context, context.CancelFunc) {
	if !network {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && !deadline.IsZero() {
		return ctx, func() {}
	}
	timeout := e.networkTimeoutValue()
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// GitError wraps failures when invoking the git binary. Arguments and output
// are stored with credentials already redacted.
type GitError struct {
	Args   []string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("git %s: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *GitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
