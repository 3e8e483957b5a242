package cascader

import (
	"time"

	"go.uber.org/zap"
)

// Outcome is the result of the update operation for a single candidate pull
// request.
type Outcome string

const (
	// OutcomeUpdated means merging the base branch into the pull request
	// branch was triggered.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUpToDate means the pull request already contained all
	// changes of its base branch, nothing was done.
	OutcomeUpToDate Outcome = "already-current"
	// OutcomeConflict means the branch could not be updated
	// automatically, manual conflict resolution is required.
	OutcomeConflict Outcome = "conflict"
	// OutcomeGone means the pull request disappeared while the run was in
	// progress, e.g. because it was closed concurrently.
	OutcomeGone Outcome = "gone"
	// OutcomeError means the update failed with an unexpected error.
	OutcomeError Outcome = "error"
)

// PRResult is the recorded outcome for one candidate pull request.
type PRResult struct {
	PR      *PullRequest
	Outcome Outcome
	Err     error
}

// RunSummary describes a single run of the updater for a base branch.
// A run is successful when the iteration over all candidates completed,
// independent of individual pull request outcomes.
type RunSummary struct {
	BaseBranch *BaseBranch
	StartTime  time.Time
	EndTime    time.Time
	Candidates int
	Results    []*PRResult
}

func newRunSummary(baseBranch *BaseBranch) *RunSummary {
	return &RunSummary{
		BaseBranch: baseBranch,
		StartTime:  time.Now(),
	}
}

func (s *RunSummary) setEndTime() {
	s.EndTime = time.Now()
}

func (s *RunSummary) record(pr *PullRequest, outcome Outcome, err error) {
	s.Results = append(s.Results, &PRResult{PR: pr, Outcome: outcome, Err: err})
}

func (s *RunSummary) countByOutcome(outcome Outcome) uint {
	var result uint

	for _, prResult := range s.Results {
		if prResult.Outcome == outcome {
			result++
		}
	}

	return result
}

func (s *RunSummary) LogFields() []zap.Field {
	return []zap.Field{
		zap.Duration("run_duration", s.EndTime.Sub(s.StartTime)),
		zap.Int("run.candidates", s.Candidates),
		zap.Uint("run.updated", s.countByOutcome(OutcomeUpdated)),
		zap.Uint("run.already_current", s.countByOutcome(OutcomeUpToDate)),
		zap.Uint("run.conflicts", s.countByOutcome(OutcomeConflict)),
		zap.Uint("run.gone", s.countByOutcome(OutcomeGone)),
		zap.Uint("run.errors", s.countByOutcome(OutcomeError)),
	}
}
