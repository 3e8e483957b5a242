package cascader

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/cascader/internal/githubclt"
)

// DryGithubClient is a github-client that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All other operations are forwarded to a wrapped GithubClient.
type DryGithubClient struct {
	clt    GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) UpdateBranch(context.Context, string, string, int) (*githubclt.UpdateBranchResult, error) {
	c.logger.Info("simulated updating of github branch, returning branch is uptodate")
	return &githubclt.UpdateBranchResult{Changed: false}, nil
}

func (c *DryGithubClient) CreateIssueComment(context.Context, string, string, int, string) error {
	c.logger.Info("simulated creating of github issue comment, no comment created on github")
	return nil
}

func (c *DryGithubClient) ListOpenPRs(ctx context.Context, owner, repo, baseBranch string) ([]*githubclt.PRSummary, error) {
	return c.clt.ListOpenPRs(ctx, owner, repo, baseBranch)
}
