package git

import (
	"context"
	"testing"
)

func TestNoopExecutorOpen(t *testing.T) {
	ctx := context.Background()
	executor := NewNoopExecutor()

	workspace, err := executor.Open(ctx, "/tmp/checkout")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if workspace.Dir() != "/tmp/checkout" {
		t.Fatalf("unexpected workspace dir %q", workspace.Dir())
	}
}

func TestNoopWorkspaceOperations(t *testing.T) {
	ctx := context.Background()
	executor := NewNoopExecutor()

	workspace, err := executor.Open(ctx, "/tmp/checkout")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := workspace.OriginURL(ctx); err != nil {
		t.Fatalf("OriginURL failed: %v", err)
	}
	if err := workspace.AuthenticateRemote(ctx); err != nil {
		t.Fatalf("AuthenticateRemote failed: %v", err)
	}
	if err := workspace.Pull(ctx, "main"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	// The noop workspace always reports pending changes so a dry run walks
	// the full pipeline.
	changed, err := workspace.HasChanges(ctx)
	if err != nil {
		t.Fatalf("HasChanges failed: %v", err)
	}
	if !changed {
		t.Fatalf("expected noop workspace to report changes")
	}

	if err := workspace.StageAll(ctx); err != nil {
		t.Fatalf("StageAll failed: %v", err)
	}
	if err := workspace.Commit(ctx, "Backup: snapshot", false); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := workspace.Push(ctx, "main"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if _, err := workspace.Head(ctx); err != nil {
		t.Fatalf("Head failed: %v", err)
	}
}
