package cascader

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/cascader/internal/githubclt"
	"github.com/simplesurance/cascader/internal/logfields"
)

// PullRequest is a candidate pull request for a cascade update.
type PullRequest struct {
	Number    int
	Branch    string
	Title     string
	Author    string
	LogFields []zap.Field
}

func NewPullRequest(nr int, branch, author, title string) (*PullRequest, error) {
	if nr <= 0 {
		return nil, fmt.Errorf("number is %d, must be >0", nr)
	}

	if branch == "" {
		return nil, errors.New("branch is empty")
	}

	return &PullRequest{
		Number: nr,
		Branch: branch,
		Title:  title,
		Author: author,
		LogFields: []zap.Field{
			logfields.PullRequest(nr),
			logfields.Branch(branch),
		},
	}, nil
}

func NewPullRequestFromSummary(summary *githubclt.PRSummary) (*PullRequest, error) {
	return NewPullRequest(summary.Number, summary.Branch, summary.Author, summary.Title)
}
