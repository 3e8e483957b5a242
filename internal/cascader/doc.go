// Package cascader re-levels auto-merge enabled GitHub Pull-Requests with
// their base-branch.
//
// The updater is used in combination with the GitHub Automerge feature and
// branch protection rules that:
//
// - Require >=1 status checks to pass before merging,
//
// - Require branches to be up to date before merging.
//
// With these rules, every merge into a base branch makes all other open
// Pull-Requests against it outdated again. Instead of coordinating the
// merges through a central queue, cascader treats every push to a base
// branch as a trigger to update all auto-merge enabled Pull-Requests
// targeting it with the new base branch tip. CI re-runs for the updated
// branches and the auto-merge feature merges each Pull-Request as soon as
// its checks pass. The merge itself changes the base branch again, which
// triggers the next run, until no candidate is behind anymore.
//
// A run holds no state between invocations: it is a pure function of the
// currently open Pull-Requests and the current base branch tip. Because the
// branch-update operation is idempotent, redundant runs caused by quickly
// succeeding pushes are harmless. Pull-Requests that could not be updated,
// e.g. because of a merge conflict, are reported and skipped, they are
// retried on the next trigger.
package cascader
