package cascader

import (
	"github.com/google/go-github/v59/github"

	"github.com/simplesurance/cascader/internal/githubclt"
)

const (
	repoOwner  = "simplesurance"
	repo       = "cascader"
	baseBranch = "main"
)

func strPtr(in string) *string {
	return &in
}

func newPRSummary(nr int, branch, base string, autoMergeEnabled bool) *githubclt.PRSummary {
	return &githubclt.PRSummary{
		Number:           nr,
		Branch:           branch,
		BaseBranch:       base,
		Title:            "test pr",
		Author:           "fho",
		AutoMergeEnabled: autoMergeEnabled,
	}
}

func newTestBaseBranch() *BaseBranch {
	bb, err := NewBaseBranch(repoOwner, repo, baseBranch)
	if err != nil {
		panic(err)
	}

	return bb
}

func newPushEvent(branch string) *github.PushEvent {
	ref := "refs/heads/" + branch

	return &github.PushEvent{
		Ref:   &ref,
		After: strPtr("4d5ab93cb4d19d5a1858a23c07a2b9da2c461334"),
		Repo: &github.PushEventRepository{
			Name: strPtr(repo),
			Owner: &github.User{
				Name:  strPtr(repoOwner),
				Login: strPtr(repoOwner),
			},
		},
	}
}

func defaultWatchConfigs() []*WatchConfig {
	return []*WatchConfig{
		{
			Repository:   Repository{Owner: repoOwner, RepositoryName: repo},
			BaseBranches: []string{baseBranch},
		},
	}
}
