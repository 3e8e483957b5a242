// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/cascader/internal/cascaderr"
	"github.com/simplesurance/cascader/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// New returns a new github api client.
// The token is treated as an opaque bearer credential, it must grant
// contents:write and pull-requests:read on the queried repositories.
func New(apiToken string) *Client {
	httpClient := newHTTPClient(apiToken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is a github API client.
// Methods return a cascaderr.RetryableError when an operation can be
// retried, e.g. when the API ratelimit is exceeded or github responded with
// a server error.
// Authorization failures are wrapped in cascaderr.ErrPermissionDenied,
// references to pull requests that do not exist anymore in
// cascaderr.ErrNotFound.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// UpdateBranchResult describes the outcome of an UpdateBranch call.
type UpdateBranchResult struct {
	// Changed is true when the pull request branch was not uptodate and
	// merging in the base branch was triggered.
	Changed bool
	// Scheduled is true when github accepted the update operation but
	// executes it asynchronously.
	Scheduled bool
	// HeadCommitID is the commit SHA of the pull request head for which
	// the uptodate check ran.
	HeadCommitID string
}

// branchIsBehindBase returns true if branch is based on an old commit of baseBranch.
func (clt *Client) branchIsBehindBase(ctx context.Context, owner, repo, baseBranch, branch string) (behind bool, err error) {
	cmp, _, err := clt.restClt.Repositories.CompareCommits(ctx, owner, repo, baseBranch, branch, &github.ListOptions{PerPage: 1})
	if err != nil {
		return false, clt.wrapRetryableErrors(err)
	}

	if cmp.BehindBy == nil {
		return false, cascaderr.NewRetryableAnytimeError(errors.New("github returned a nil BehindBy field"))
	}

	return *cmp.BehindBy > 0, nil
}

// prIsUptodate returns true if the pull request is open and contains all
// changes from its base branch.
// Additionally it returns the SHA of the head commit for which the status
// was checked.
// If the pull request is closed, an error wrapping cascaderr.ErrNotFound is
// returned.
func (clt *Client) prIsUptodate(ctx context.Context, owner, repo string, pullRequestNumber int) (isUptodate bool, headSHA string, err error) {
	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, pullRequestNumber)
	if err != nil {
		return false, "", clt.wrapRetryableErrors(err)
	}

	if pr.GetState() == "closed" {
		return false, "", fmt.Errorf("pull request is closed: %w", cascaderr.ErrNotFound)
	}

	prHead := pr.GetHead()
	if prHead == nil {
		return false, "", errors.New("got pull request object with empty head")
	}

	prHeadSHA := prHead.GetSHA()
	if prHeadSHA == "" {
		return false, "", errors.New("got pull request object with empty head sha")
	}

	if pr.GetMergeableState() == "behind" {
		return false, prHeadSHA, nil
	}

	prBranch := prHead.GetRef()
	if prBranch == "" {
		return false, "", errors.New("got pull request object with empty ref field")
	}

	baseBranch := pr.GetBase().GetRef()
	if baseBranch == "" {
		return false, "", errors.New("got pull request object with empty base ref field")
	}

	isBehind, err := clt.branchIsBehindBase(ctx, owner, repo, baseBranch, prBranch)
	if err != nil {
		return false, "", fmt.Errorf("evaluating if branch is behind base failed: %w", err)
	}

	return !isBehind, prHeadSHA, nil
}

// CreateIssueComment creates a comment in an issue or pull request.
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapRetryableErrors(err)
}

// UpdateBranch merges the current base branch tip into the pull request
// branch via the github update-branch operation.
//
// If the pull request already contains all changes of its base branch
// nothing is done and Changed is false. The check runs first because github
// creates an empty merge commit when the operation is triggered for an
// uptodate branch.
// If the branch was changed while the method executed, a
// cascaderr.RetryableError is returned and the operation can be retried.
// If the branch can not be updated automatically because the histories
// diverged, an error wrapping cascaderr.ErrConflict is returned.
func (clt *Client) UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) (*UpdateBranchResult, error) {
	isUptodate, prHeadSHA, err := clt.prIsUptodate(ctx, owner, repo, pullRequestNumber)
	if err != nil {
		return nil, fmt.Errorf("evaluating if pull request is uptodate with base branch failed: %w", err)
	}

	logger := clt.logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pullRequestNumber),
		logfields.Commit(prHeadSHA),
	)

	if isUptodate {
		logger.Debug("branch is uptodate with base branch, skipping update branch operation",
			logfields.Event("github_branch_uptodate_with_base"))
		return &UpdateBranchResult{Changed: false, HeadCommitID: prHeadSHA}, nil
	}

	_, _, err = clt.restClt.PullRequests.UpdateBranch(ctx, owner, repo, pullRequestNumber, &github.PullRequestBranchUpdateOptions{ExpectedHeadSHA: &prHeadSHA})
	if err != nil {
		if _, ok := err.(*github.AcceptedError); ok {
			logger.Debug("updating branch with base branch scheduled",
				logfields.Event("github_branch_update_with_base_scheduled"))
			return &UpdateBranchResult{Changed: true, Scheduled: true, HeadCommitID: prHeadSHA}, nil
		}

		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil {
			if respErr.Response.StatusCode == http.StatusUnprocessableEntity {
				if strings.Contains(respErr.Message, "merge conflict") {
					return nil, fmt.Errorf("%w: %s", cascaderr.ErrConflict, respErr.Message)
				}

				if strings.Contains(respErr.Message, "expected head sha didn’t match current head ref") {
					logger.Debug("branch changed while trying to sync with base branch",
						logfields.Event("github_branch_update_failed_ref_outdated"),
					)

					return nil, cascaderr.NewRetryableAnytimeError(err)
				}
			}
		}

		return nil, clt.wrapRetryableErrors(err)
	}

	logger.Debug("branch was updated with base branch",
		logfields.Event("github_branch_update_with_base_triggered"))
	// github seems to always schedule update operations and return an
	// AcceptedError, this condition might never happen
	return &UpdateBranchResult{Changed: true, HeadCommitID: prHeadSHA}, nil
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return cascaderr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.AbuseRateLimitError:
		retryAfter := time.Now().Add(v.GetRetryAfter())
		return cascaderr.NewRetryableError(err, retryAfter)

	case *github.ErrorResponse:
		if v.Response == nil {
			return err
		}

		switch code := v.Response.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return fmt.Errorf("%w: %s", cascaderr.ErrPermissionDenied, v.Message)

		case code == http.StatusNotFound:
			return fmt.Errorf("%w: %s", cascaderr.ErrNotFound, v.Message)

		case code >= 500 && code < 600:
			return cascaderr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQLHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQLHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	switch {
	case errcode == http.StatusUnauthorized || errcode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", cascaderr.ErrPermissionDenied, err)

	case errcode >= 500 && errcode < 600:
		return cascaderr.NewRetryableAnytimeError(err)
	}

	return err
}
