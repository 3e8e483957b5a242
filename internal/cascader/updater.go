package cascader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/cascader/internal/cascaderr"
	"github.com/simplesurance/cascader/internal/githubclt"
	"github.com/simplesurance/cascader/internal/logfields"
	github_prov "github.com/simplesurance/cascader/internal/provider/github"
)

const loggerName = "cascader"

//go:generate mockgen -package mocks -destination mocks/githubclient.go github.com/simplesurance/cascader/internal/cascader GithubClient

type GithubClient interface {
	ListOpenPRs(ctx context.Context, owner, repo, baseBranch string) ([]*githubclt.PRSummary, error)
	UpdateBranch(ctx context.Context, owner, repo string, pullRequestNumber int) (*githubclt.UpdateBranchResult, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
}

// Retryer is an interface used for running GithubClient methods repeatedly
// if they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
	Stop()
}

// Repository identifies a github repository.
type Repository struct {
	Owner          string
	RepositoryName string
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.RepositoryName)
}

// WatchConfig defines which base branches of a repository trigger runs and
// an optional candidate filter.
type WatchConfig struct {
	Repository   Repository
	BaseBranches []string
	Filter       *Filter
}

type watchedRepository struct {
	baseBranches map[string]struct{}
	filter       *Filter
}

// Updater re-levels all auto-merge enabled pull requests of a base branch
// whenever the base branch moves.
//
// A run is a pure function of the current platform state: it lists the open
// pull requests targeting the base branch, keeps the ones with auto-merge
// enabled and triggers the github update-branch operation for each.
// Per pull-request failures are recorded and do not abort the iteration,
// unresolved pull requests are retried on the next base-branch push.
// Only authorization failures abort a run.
type Updater struct {
	ghClient GithubClient
	retryer  Retryer
	ch       <-chan *github_prov.Event
	logger   *zap.Logger

	repositories map[Repository]*watchedRepository

	branchLocks map[BranchID]*sync.Mutex
	lock        sync.Mutex

	wg sync.WaitGroup
}

func NewUpdater(
	ghClient GithubClient,
	eventChan <-chan *github_prov.Event,
	retryer Retryer,
	watchConfigs []*WatchConfig,
) *Updater {
	repos := make(map[Repository]*watchedRepository, len(watchConfigs))
	for _, wc := range watchConfigs {
		repos[wc.Repository] = &watchedRepository{
			baseBranches: toStrSet(wc.BaseBranches),
			filter:       wc.Filter,
		}
	}

	return &Updater{
		ghClient:     ghClient,
		retryer:      retryer,
		ch:           eventChan,
		logger:       zap.L().Named(loggerName),
		repositories: repos,
		branchLocks:  map[BranchID]*sync.Mutex{},
	}
}

func toStrSet(sl []string) map[string]struct{} {
	result := make(map[string]struct{}, len(sl))

	for _, elem := range sl {
		result[elem] = struct{}{}
	}

	return result
}

func branchRefToRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

// isWatched returns the watch configuration for the repository when branch
// is one of its configured base branches.
func (u *Updater) isWatched(owner, repositoryName, branch string) (*watchedRepository, bool) {
	watched, exist := u.repositories[Repository{
		Owner:          owner,
		RepositoryName: repositoryName,
	}]
	if !exist {
		return nil, false
	}

	if _, exist := watched.baseBranches[branch]; !exist {
		return nil, false
	}

	return watched, true
}

// branchLock returns the mutex serializing runs for the base branch.
// Overlapping triggers for the same branch would race on the same pull
// requests, the lock lets them queue up instead.
func (u *Updater) branchLock(branchID BranchID) *sync.Mutex {
	u.lock.Lock()
	defer u.lock.Unlock()

	mu, exist := u.branchLocks[branchID]
	if !exist {
		mu = &sync.Mutex{}
		u.branchLocks[branchID] = mu
	}

	return mu
}

// listCandidates returns the auto-merge enabled open pull requests targeting
// baseBranch, ascending by pull request number.
// When no pull request qualifies an empty slice and no error is returned.
func (u *Updater) listCandidates(ctx context.Context, baseBranch *BaseBranch) ([]*PullRequest, error) {
	logger := u.logger.With(baseBranch.Logfields...)

	var filter *Filter
	if watched, exist := u.repositories[Repository{
		Owner:          baseBranch.RepositoryOwner,
		RepositoryName: baseBranch.Repository,
	}]; exist {
		filter = watched.filter
	}

	var summaries []*githubclt.PRSummary

	err := u.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		summaries, err = u.ghClient.ListOpenPRs(ctx, baseBranch.RepositoryOwner, baseBranch.Repository, baseBranch.Branch)
		return err
	}, baseBranch.Logfields)
	if err != nil {
		return nil, fmt.Errorf("listing open pull requests failed: %w", err)
	}

	result := make([]*PullRequest, 0, len(summaries))

	for _, summary := range summaries {
		if summary.BaseBranch != baseBranch.Branch {
			logger.Warn(
				"pull request with unrelated base branch returned by list query, skipping it",
				logfields.PullRequest(summary.Number),
				zap.String("github.pull_request_base_branch", summary.BaseBranch),
			)

			continue
		}

		if !summary.AutoMergeEnabled {
			continue
		}

		if filter != nil {
			match, err := filter.Match(ctx, summary)
			if err != nil {
				logger.Warn(
					"evaluating filter query for pull request failed, skipping it",
					logfields.PullRequest(summary.Number),
					zap.Error(err),
				)

				continue
			}

			if !match {
				logger.Debug(
					"pull request excluded by filter query",
					logfields.PullRequest(summary.Number),
				)

				continue
			}
		}

		pr, err := NewPullRequestFromSummary(summary)
		if err != nil {
			logger.Warn(
				"incomplete pull request information, skipping it",
				logfields.PullRequest(summary.Number),
				zap.Error(err),
			)

			continue
		}

		result = append(result, pr)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })

	return result, nil
}

// updateBranch triggers merging the current base branch tip into the pull
// request branch and maps the result to an Outcome.
// Temporary errors are retried via the retryer, rate limits are honored via
// their reset time.
func (u *Updater) updateBranch(ctx context.Context, baseBranch *BaseBranch, pr *PullRequest) (Outcome, error) {
	logger := u.logger.With(baseBranch.Logfields...).With(pr.LogFields...)

	var result *githubclt.UpdateBranchResult

	err := u.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = u.ghClient.UpdateBranch(ctx, baseBranch.RepositoryOwner, baseBranch.Repository, pr.Number)
		return err
	}, pr.LogFields)

	switch {
	case err == nil:

	case errors.Is(err, cascaderr.ErrConflict):
		logger.Info(
			"branch can not be updated automatically, manual conflict resolution is required",
			logfields.Event("github_branch_update_conflict"),
			zap.Error(err),
		)

		u.postConflictComment(ctx, baseBranch, pr, err)

		return OutcomeConflict, err

	case errors.Is(err, cascaderr.ErrNotFound):
		logger.Info(
			"pull request disappeared during the run, skipping it",
			logfields.Event("github_pull_request_gone"),
			zap.Error(err),
		)

		return OutcomeGone, err

	case errors.Is(err, cascaderr.ErrPermissionDenied):
		return OutcomeError, err

	default:
		logger.Error(
			"updating branch with base branch failed",
			logfields.Event("github_branch_update_failed"),
			zap.Error(err),
		)

		return OutcomeError, err
	}

	if !result.Changed {
		logger.Debug(
			"pull request is uptodate with base branch",
			logfields.Event("github_branch_uptodate_with_base"),
			logfields.Commit(result.HeadCommitID),
		)

		return OutcomeUpToDate, nil
	}

	logger.Info(
		"updating branch with changes from base branch triggered",
		logfields.Event("github_branch_updated"),
		logfields.Commit(result.HeadCommitID),
		zap.Bool("github.update_scheduled", result.Scheduled),
	)

	return OutcomeUpdated, nil
}

// postConflictComment posts a comment to the pull request explaining that
// the cascade skipped it. Posting is best effort, failures are only logged.
func (u *Updater) postConflictComment(ctx context.Context, baseBranch *BaseBranch, pr *PullRequest, updateErr error) {
	err := u.retryer.Run(ctx, func(ctx context.Context) error {
		return u.ghClient.CreateIssueComment(
			ctx,
			baseBranch.RepositoryOwner,
			baseBranch.Repository,
			pr.Number,
			fmt.Sprintf("cascader: updating the branch with `%s` failed, the pull request needs manual conflict resolution:\n```%s```", baseBranch.Branch, updateErr.Error()),
		)
	}, pr.LogFields)
	if err != nil {
		u.logger.With(baseBranch.Logfields...).With(pr.LogFields...).Error(
			"posting conflict comment to pull request failed",
			logfields.Event("github_create_comment_failed"),
			zap.Error(err),
		)
	}
}

// Run executes one update run for baseBranch.
// It lists the candidate pull requests and triggers a branch update for each
// one sequentially, recording a per pull-request outcome.
// Individual failures do not abort the iteration. Run returns an error only
// when listing the candidates failed or when the credential was rejected, in
// that case the remaining candidates are not attempted since no further
// update can succeed either.
// Concurrent Run calls for the same base branch are serialized.
func (u *Updater) Run(ctx context.Context, baseBranch *BaseBranch) (*RunSummary, error) {
	logger := u.logger.With(baseBranch.Logfields...)

	mu := u.branchLock(baseBranch.BranchID)
	mu.Lock()
	defer mu.Unlock()

	summary := newRunSummary(baseBranch)

	candidates, err := u.listCandidates(ctx, baseBranch)
	if err != nil {
		metrics.RunsInc(&baseBranch.BranchID, "error")
		return nil, err
	}

	summary.Candidates = len(candidates)

	logger.Debug(
		"listed candidate pull requests",
		logfields.Event("candidates_listed"),
		zap.Int("run.candidates", len(candidates)),
	)

	for _, pr := range candidates {
		outcome, err := u.updateBranch(ctx, baseBranch, pr)
		summary.record(pr, outcome, err)
		metrics.PROutcomeInc(&baseBranch.BranchID, outcome)

		if err != nil && errors.Is(err, cascaderr.ErrPermissionDenied) {
			logger.Error(
				"aborting run, credential lacks write access",
				logfields.Event("run_aborted"),
				zap.Error(err),
			)

			metrics.RunsInc(&baseBranch.BranchID, "fatal")
			summary.setEndTime()

			return summary, fmt.Errorf("updating pull request %d failed: %w", pr.Number, err)
		}
	}

	metrics.RunsInc(&baseBranch.BranchID, "success")
	summary.setEndTime()

	logger.Info(
		"run finished",
		append([]zap.Field{logfields.Event("run_finished")}, summary.LogFields()...)...,
	)

	return summary, nil
}

var logFieldEventIgnored = logfields.Event("github_event_ignored")

// EventLoop processes github webhook events from the event channel.
// It terminates when the channel is closed.
func (u *Updater) EventLoop() {
	u.logger.Info("event loop started")

	for event := range u.ch {
		metrics.ProcessedEventsInc()

		ctx := context.Background()
		logger := u.logger.With(event.LogFields...)

		logger.Debug("event received")

		switch ev := event.Event.(type) {
		case *github.PushEvent:
			u.processPushEvent(ctx, logger, ev)

		case *github.PullRequestEvent:
			u.processPullRequestEvent(ctx, logger, ev)

		default:
			logger.Debug("event ignored", logFieldEventIgnored)
		}
	}

	u.logger.Info("event loop terminated")
}

func (u *Updater) processPushEvent(ctx context.Context, logger *zap.Logger, ev *github.PushEvent) {
	branch := branchRefToRef(ev.GetRef())
	owner := ev.GetRepo().GetOwner().GetName()
	repo := ev.GetRepo().GetName()

	logger = logger.With(
		logfields.Branch(branch),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.Commit(ev.GetAfter()),
	)

	if _, watched := u.isWatched(owner, repo, branch); !watched {
		logger.Debug(
			"event is for a branch that is not watched",
			logFieldEventIgnored,
		)

		return
	}

	bb, err := NewBaseBranch(owner, repo, branch)
	if err != nil {
		logger.Warn(
			"ignoring event, incomplete branch information",
			logFieldEventIgnored,
			zap.Error(err),
		)

		return
	}

	if _, err := u.Run(ctx, bb); err != nil {
		logger.Error(
			"update run for base branch failed",
			logfields.Event("run_failed"),
			zap.Error(err),
		)
	}
}

func (u *Updater) processPullRequestEvent(ctx context.Context, logger *zap.Logger, ev *github.PullRequestEvent) {
	owner := ev.GetRepo().GetOwner().GetLogin()
	repo := ev.GetRepo().GetName()
	baseBranch := ev.GetPullRequest().GetBase().GetRef()

	logger = logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.BaseBranch(baseBranch),
		logfields.PullRequest(ev.GetNumber()),
		zap.String("github.pull_request_event.action", ev.GetAction()),
	)

	// enabling auto-merge makes a pull request a candidate, re-level the
	// base branch so it does not have to wait for the next push
	if ev.GetAction() != "auto_merge_enabled" {
		logger.Debug("ignoring pull-request event", logFieldEventIgnored)
		return
	}

	if _, watched := u.isWatched(owner, repo, baseBranch); !watched {
		logger.Debug(
			"event is for a base branch that is not watched",
			logFieldEventIgnored,
		)

		return
	}

	bb, err := NewBaseBranch(owner, repo, baseBranch)
	if err != nil {
		logger.Warn(
			"ignoring event, incomplete base branch information",
			logFieldEventIgnored,
			zap.Error(err),
		)

		return
	}

	if _, err := u.Run(ctx, bb); err != nil {
		logger.Error(
			"update run for base branch failed",
			logfields.Event("run_failed"),
			zap.Error(err),
		)
	}
}

func (u *Updater) Start() {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.EventLoop()
	}()
}

// Stop stops the retryer and waits until the event loop terminated.
// The caller must close the event channel before calling Stop.
func (u *Updater) Stop() {
	u.logger.Debug("updater terminating")

	u.retryer.Stop()
	u.wg.Wait()

	u.logger.Debug("updater terminated")
}
