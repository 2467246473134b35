package gh

import (
	"context"
)

// NewNoopFactory returns a Factory that builds clients answering with a fixed
// default branch, useful for testing and dry-run scenarios.
func NewNoopFactory() Factory {
	return noopFactory{}
}

type noopFactory struct{}

func (noopFactory) New(ctx context.Context, token string) (Client, error) {
	return noopClient{}, nil
}

type noopClient struct{}

func (noopClient) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	return "main", nil
}
