package backup_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/genie-ops/genie-backup/internal/backup"
	"github.com/genie-ops/genie-backup/internal/databricks"
	"github.com/genie-ops/genie-backup/internal/git"
	gh "github.com/genie-ops/genie-backup/internal/github"
)

func TestBackup(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Backup Suite")
}

type fakeSecrets struct {
	value string
	err   error
	calls int
}

func (f *fakeSecrets) GetSecret(_ context.Context, scope, key string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.value, nil
}

type fakeGenie struct {
	cfg   databricks.GenieSpaceConfig
	err   error
	calls int
}

func (f *fakeGenie) GetSpace(_ context.Context, spaceID string) (databricks.GenieSpaceConfig, error) {
	f.calls++
	if f.err != nil {
		return databricks.GenieSpaceConfig{}, f.err
	}
	return f.cfg, nil
}

type fakeWriter struct {
	files []string
	err   error
	calls int
	last  databricks.GenieSpaceConfig
}

func (f *fakeWriter) Write(cfg databricks.GenieSpaceConfig) ([]string, error) {
	f.calls++
	f.last = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.files, nil
}

func (f *fakeWriter) Path() string { return "genie_configs" }

type fakeWorkspace struct {
	ops []string

	originURL  string
	originErr  error
	hasChanges bool
	statusErr  error

	authErr   error
	pullErr   error
	stageErr  error
	commitErr error
	pushErr   error

	commitMessages []string
	allowEmpty     []bool
	pushedBranches []string
	pulledBranches []string
}

func (w *fakeWorkspace) record(op string) { w.ops = append(w.ops, op) }

func (w *fakeWorkspace) Dir() string { return "/checkout" }

func (w *fakeWorkspace) OriginURL(context.Context) (string, error) {
	w.record("origin-url")
	if w.originErr != nil {
		return "", w.originErr
	}
	if w.originURL == "" {
		return "https://github.com/example/genie-backups.git", nil
	}
	return w.originURL, nil
}

func (w *fakeWorkspace) AuthenticateRemote(context.Context) error {
	w.record("authenticate")
	return w.authErr
}

func (w *fakeWorkspace) Pull(_ context.Context, branch string) error {
	w.record("pull")
	w.pulledBranches = append(w.pulledBranches, branch)
	return w.pullErr
}

func (w *fakeWorkspace) HasChanges(context.Context) (bool, error) {
	w.record("status")
	return w.hasChanges, w.statusErr
}

func (w *fakeWorkspace) StageAll(context.Context) error {
	w.record("stage")
	return w.stageErr
}

func (w *fakeWorkspace) Commit(_ context.Context, message string, allowEmpty bool) error {
	w.record("commit")
	w.commitMessages = append(w.commitMessages, message)
	w.allowEmpty = append(w.allowEmpty, allowEmpty)
	return w.commitErr
}

func (w *fakeWorkspace) Push(_ context.Context, branch string) error {
	w.record("push")
	w.pushedBranches = append(w.pushedBranches, branch)
	return w.pushErr
}

func (w *fakeWorkspace) Head(context.Context) (string, error) {
	w.record("head")
	return "abc123", nil
}

type fakeExecutor struct {
	ws      *fakeWorkspace
	openErr error
}

func (e *fakeExecutor) Open(context.Context, string) (git.Workspace, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.ws, nil
}

type fakeGitFactory struct {
	executor *fakeExecutor
	creds    []backup.Credentials
}

func (f *fakeGitFactory) New(creds backup.Credentials) (git.Executor, error) {
	f.creds = append(f.creds, creds)
	return f.executor, nil
}

type fakeGHClient struct {
	branch string
	err    error
	calls  int
}

func (c *fakeGHClient) DefaultBranch(context.Context, string, string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.branch, nil
}

type fakeGHFactory struct {
	client *fakeGHClient
	tokens []string
}

func (f *fakeGHFactory) New(_ context.Context, token string) (gh.Client, error) {
	f.tokens = append(f.tokens, token)
	return f.client, nil
}

var _ = Describe("Orchestrator", func() {
	var (
		secrets    *fakeSecrets
		genie      *fakeGenie
		writer     *fakeWriter
		workspace  *fakeWorkspace
		gitFactory *fakeGitFactory
		ghFactory  *fakeGHFactory
		cfg        backup.Config
	)

	BeforeEach(func() {
		secrets = &fakeSecrets{value: "pat-token"}
		genie = &fakeGenie{cfg: databricks.GenieSpaceConfig{
			SpaceID:      "01efABC",
			Instructions: "Answer SQL questions",
			TrustedAssets: []databricks.TrustedAsset{
				{Kind: "table", Identifier: "sales"},
			},
			ExampleSQL: []string{"SELECT 1"},
		}}
		writer = &fakeWriter{files: []string{"genie_configs/space_01efABC.json"}}
		workspace = &fakeWorkspace{hasChanges: true}
		gitFactory = &fakeGitFactory{executor: &fakeExecutor{ws: workspace}}
		ghFactory = &fakeGHFactory{client: &fakeGHClient{branch: "main"}}
		cfg = backup.Config{
			SpaceID:     "01efABC",
			SecretScope: "my-scope",
			SecretKey:   "git-pat",
			GitUsername: "genie-backup-bot",
			GitEmail:    "bot@company.com",
			RepoDir:     "/checkout",
		}
	})

	run := func() (backup.Result, error) {
		orch := backup.New(cfg, secrets, genie, writer, gitFactory, ghFactory, nil)
		return orch.Run(context.Background())
	}

	It("runs the stages in order and pushes the snapshot", func() {
		result, err := run()
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Stage).To(Equal(backup.StagePushed))
		Expect(result.Committed).To(BeTrue())
		Expect(result.Pushed).To(BeTrue())
		Expect(result.CommitSHA).To(Equal("abc123"))
		Expect(result.Files).To(ConsistOf("genie_configs/space_01efABC.json"))

		Expect(workspace.ops).To(Equal([]string{
			"origin-url", "authenticate", "pull", "status", "stage", "commit", "head", "push",
		}))
		Expect(workspace.pulledBranches).To(Equal([]string{"main"}))
		Expect(workspace.pushedBranches).To(Equal([]string{"main"}))
	})

	It("passes the resolved credentials to the git factory", func() {
		_, err := run()
		Expect(err).NotTo(HaveOccurred())

		Expect(gitFactory.creds).To(HaveLen(1))
		Expect(gitFactory.creds[0].GitToken).To(Equal("pat-token"))
		Expect(gitFactory.creds[0].GitUsername).To(Equal("genie-backup-bot"))
		Expect(gitFactory.creds[0].GitEmail).To(Equal("bot@company.com"))
		Expect(ghFactory.tokens).To(Equal([]string{"pat-token"}))
	})

	It("hands the fetched configuration to the snapshot writer", func() {
		_, err := run()
		Expect(err).NotTo(HaveOccurred())

		Expect(writer.calls).To(Equal(1))
		Expect(writer.last.SpaceID).To(Equal("01efABC"))
		Expect(writer.last.Instructions).To(Equal("Answer SQL questions"))
	})

	Describe("fail-fast ordering", func() {
		It("makes no platform or git call when the secret lookup fails", func() {
			secrets.err = &databricks.HTTPStatusError{
				StatusCode: 404,
				Status:     "404 Not Found",
				ErrorCode:  databricks.ErrorCodeResourceDoesNotExist,
			}

			result, err := run()
			Expect(err).To(HaveOccurred())

			var authErr *backup.AuthenticationError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(authErr.Scope).To(Equal("my-scope"))

			Expect(genie.calls).To(BeZero())
			Expect(writer.calls).To(BeZero())
			Expect(workspace.ops).To(BeEmpty())
			Expect(result.Stage).To(Equal(backup.StageStart))
		})

		It("performs no git mutation when the fetch fails", func() {
			genie.err = &databricks.HTTPStatusError{StatusCode: 500, Status: "500 Internal Server Error"}

			result, err := run()
			Expect(err).To(HaveOccurred())

			var transportErr *backup.TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(workspace.ops).To(BeEmpty())
			Expect(result.Stage).To(Equal(backup.StageCredentialsResolved))
		})
	})

	It("classifies a missing space as NotFoundError", func() {
		genie.err = &databricks.HTTPStatusError{
			StatusCode: 404,
			Status:     "404 Not Found",
			ErrorCode:  databricks.ErrorCodeResourceDoesNotExist,
		}

		_, err := run()

		var notFoundErr *backup.NotFoundError
		Expect(errors.As(err, &notFoundErr)).To(BeTrue())
		Expect(notFoundErr.SpaceID).To(Equal("01efABC"))
	})

	Describe("push failures", func() {
		It("reports failure while the local commit remains", func() {
			workspace.pushErr = fmt.Errorf("remote rejected")

			result, err := run()
			Expect(err).To(HaveOccurred())

			var gitErr *backup.GitOperationError
			Expect(errors.As(err, &gitErr)).To(BeTrue())
			Expect(gitErr.Op).To(Equal("push"))

			Expect(result.Stage).To(Equal(backup.StageCommitted))
			Expect(result.Committed).To(BeTrue())
			Expect(result.Pushed).To(BeFalse())
		})
	})

	Describe("unchanged configuration", func() {
		BeforeEach(func() {
			workspace.hasChanges = false
		})

		It("skips commit and push", func() {
			result, err := run()
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Skipped).To(BeTrue())
			Expect(result.SkippedReason).To(ContainSubstring("unchanged"))
			Expect(result.Stage).To(Equal(backup.StageFilesWritten))
			Expect(workspace.ops).NotTo(ContainElement("commit"))
			Expect(workspace.ops).NotTo(ContainElement("push"))
		})

		It("commits anyway when empty commits are allowed", func() {
			cfg.AllowEmptyCommit = true

			result, err := run()
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Pushed).To(BeTrue())
			Expect(workspace.allowEmpty).To(Equal([]bool{true}))
		})
	})

	Describe("branch resolution", func() {
		It("prefers the configured branch without asking GitHub", func() {
			cfg.Branch = "backup-history"

			result, err := run()
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Branch).To(Equal("backup-history"))
			Expect(ghFactory.client.calls).To(BeZero())
		})

		It("uses the remote default branch from the GitHub API", func() {
			ghFactory.client.branch = "trunk"

			result, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Branch).To(Equal("trunk"))
			Expect(workspace.pushedBranches).To(Equal([]string{"trunk"}))
		})

		It("falls back to main when the lookup fails", func() {
			ghFactory.client.err = fmt.Errorf("api unavailable")

			result, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Branch).To(Equal(backup.DefaultBranchFallback))
		})

		It("falls back to main for non-github remotes", func() {
			workspace.originURL = "https://gitlab.example.com/team/repo.git"

			result, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Branch).To(Equal(backup.DefaultBranchFallback))
			Expect(ghFactory.client.calls).To(BeZero())
		})
	})

	Describe("dry run", func() {
		BeforeEach(func() {
			cfg.DryRun = true
		})

		It("writes the snapshot but never mutates git state", func() {
			result, err := run()
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Skipped).To(BeTrue())
			Expect(result.SkippedReason).To(Equal("dry run enabled"))
			Expect(writer.calls).To(Equal(1))
			Expect(workspace.ops).NotTo(ContainElement("authenticate"))
			Expect(workspace.ops).NotTo(ContainElement("pull"))
			Expect(workspace.ops).NotTo(ContainElement("commit"))
			Expect(workspace.ops).NotTo(ContainElement("push"))
		})
	})

	It("wraps commit failures as git operation errors", func() {
		workspace.commitErr = fmt.Errorf("identity not configured")

		result, err := run()
		Expect(err).To(HaveOccurred())

		var gitErr *backup.GitOperationError
		Expect(errors.As(err, &gitErr)).To(BeTrue())
		Expect(gitErr.Op).To(Equal("commit"))
		Expect(result.Committed).To(BeFalse())
	})
})
