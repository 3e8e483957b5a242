package cfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleCfg = `
http_server_listen_addr = ":8085"
github_webhook_endpoint = "/listener/github"
github_webhook_secret = "hocus pocus"
github_api_token = "osiris"
log_format = "logfmt"
log_level = "info"

[updater]
dry_run = false

[[updater.repository]]
owner = "simplesurance"
repository = "cascader"
base_branches = ["main", "release-1.x"]
filter_query = '.author != "dependabot"'
`

func TestLoad(t *testing.T) {
	config, err := Load(strings.NewReader(exampleCfg))
	require.NoError(t, err)

	assert.Equal(t, ":8085", config.HTTPListenAddr)
	assert.Equal(t, "/listener/github", config.HTTPGithubWebhookEndpoint)
	assert.Equal(t, "hocus pocus", config.GithubWebHookSecret)
	assert.Equal(t, "osiris", config.GithubAPIToken)
	assert.Equal(t, "logfmt", config.LogFormat)

	require.Len(t, config.Updater.Repositories, 1)
	repo := config.Updater.Repositories[0]
	assert.Equal(t, "simplesurance", repo.Owner)
	assert.Equal(t, "cascader", repo.RepositoryName)
	assert.Equal(t, []string{"main", "release-1.x"}, repo.BaseBranches)
	assert.NotEmpty(t, repo.FilterQuery)

	assert.NoError(t, config.EnsureRepositories())
}

func TestLoadFailsOnMissingBaseBranches(t *testing.T) {
	const cfg = `
[[updater.repository]]
owner = "simplesurance"
repository = "cascader"
`

	_, err := Load(strings.NewReader(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_branches")
}

func TestLoadFailsOnInvalidFilterQuery(t *testing.T) {
	const cfg = `
[[updater.repository]]
owner = "simplesurance"
repository = "cascader"
base_branches = ["main"]
filter_query = ".author ==="
`

	_, err := Load(strings.NewReader(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter_query")
}

func TestEnsureRepositoriesFailsWithoutRepositories(t *testing.T) {
	config, err := Load(strings.NewReader("log_format = \"json\""))
	require.NoError(t, err)

	assert.ErrorIs(t, config.EnsureRepositories(), ErrNoRepositories)
}
