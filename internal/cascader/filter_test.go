package cascader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/cascader/internal/cascader/mocks"
	"github.com/simplesurance/cascader/internal/githubclt"
	"github.com/simplesurance/cascader/internal/retry"
)

func TestFilterMatch(t *testing.T) {
	filter, err := NewFilter(`.author != "dependabot"`)
	require.NoError(t, err)

	match, err := filter.Match(context.Background(), newPRSummary(1, "feature-a", baseBranch, true))
	require.NoError(t, err)
	assert.True(t, match)

	pr := newPRSummary(2, "deps", baseBranch, true)
	pr.Author = "dependabot"

	match, err = filter.Match(context.Background(), pr)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestFilterMatchFailsOnNonBoolResult(t *testing.T) {
	filter, err := NewFilter(".number")
	require.NoError(t, err)

	_, err = filter.Match(context.Background(), newPRSummary(1, "feature-a", baseBranch, true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-bool")
}

func TestListCandidatesAppliesFilterQuery(t *testing.T) {
	filter, err := NewFilter(`.branch | startswith("feature-")`)
	require.NoError(t, err)

	watchConfigs := defaultWatchConfigs()
	watchConfigs[0].Filter = filter

	mockctrl := gomock.NewController(t)
	ghClient := mocks.NewMockGithubClient(mockctrl)

	ghClient.EXPECT().
		ListOpenPRs(gomock.Any(), repoOwner, repo, baseBranch).
		Return([]*githubclt.PRSummary{
			newPRSummary(1, "feature-a", baseBranch, true),
			newPRSummary(2, "dependabot/go-1.21", baseBranch, true),
			newPRSummary(3, "feature-b", baseBranch, true),
		}, nil).
		Times(1)

	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	retryer := retry.NewRetryer()
	t.Cleanup(retryer.Stop)

	u := NewUpdater(ghClient, nil, retryer, watchConfigs)

	candidates, err := u.listCandidates(context.Background(), newTestBaseBranch())
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "feature-a", candidates[0].Branch)
	assert.Equal(t, "feature-b", candidates[1].Branch)
}
