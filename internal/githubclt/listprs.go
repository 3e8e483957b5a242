package githubclt

import (
	"context"

	"github.com/shurcooL/githubv4"
)

// PRSummary describes an open pull request targeting a base branch.
type PRSummary struct {
	Number           int
	Branch           string
	BaseBranch       string
	Title            string
	Author           string
	AutoMergeEnabled bool
}

type prQueryNode struct {
	Number      githubv4.Int
	Title       githubv4.String
	HeadRefName githubv4.String
	BaseRefName githubv4.String
	Author      struct {
		Login githubv4.String
	}
	AutoMergeRequest *struct {
		EnabledAt githubv4.DateTime
	}
}

// ListOpenPRs returns all open pull requests whose base branch is
// baseBranch, including whether github auto-merge is enabled for them.
// When no pull request targets the branch, an empty slice and no error is
// returned.
func (clt *Client) ListOpenPRs(ctx context.Context, owner, repo, baseBranch string) ([]*PRSummary, error) {
	var q struct {
		Repository struct {
			PullRequests struct {
				Nodes    []prQueryNode
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage githubv4.Boolean
				}
			} `graphql:"pullRequests(baseRefName: $baseRefName, states: OPEN, first: 100, after: $prCursor)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	vars := map[string]interface{}{
		"owner":       githubv4.String(owner),
		"repo":        githubv4.String(repo),
		"baseRefName": githubv4.String(baseBranch),
		"prCursor":    (*githubv4.String)(nil),
	}

	var result []*PRSummary

	for {
		if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
			return nil, clt.wrapGraphQLRetryableErrors(err)
		}

		for i := range q.Repository.PullRequests.Nodes {
			node := &q.Repository.PullRequests.Nodes[i]

			result = append(result, &PRSummary{
				Number:           int(node.Number),
				Branch:           string(node.HeadRefName),
				BaseBranch:       string(node.BaseRefName),
				Title:            string(node.Title),
				Author:           string(node.Author.Login),
				AutoMergeEnabled: node.AutoMergeRequest != nil,
			})
		}

		if !q.Repository.PullRequests.PageInfo.HasNextPage {
			return result, nil
		}

		vars["prCursor"] = githubv4.NewString(q.Repository.PullRequests.PageInfo.EndCursor)
	}
}
