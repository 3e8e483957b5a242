// Package cfg loads the cascader configuration file.
package cfg

import (
	"errors"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/pelletier/go-toml"
)

type Config struct {
	HTTPListenAddr            string  `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string  `toml:"https_server_listen_addr"`
	HTTPSCertFile             string  `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string  `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string  `toml:"github_webhook_endpoint"`
	GithubWebHookSecret       string  `toml:"github_webhook_secret"`
	GithubAPIToken            string  `toml:"github_api_token"`
	LogFormat                 string  `toml:"log_format"`
	LogTimeKey                string  `toml:"log_time_key"`
	LogLevel                  string  `toml:"log_level"`
	Updater                   Updater `toml:"updater"`
}

type Updater struct {
	DryRun       bool          `toml:"dry_run"`
	Repositories []*Repository `toml:"repository"`
}

// Repository defines a repository that the updater watches and the base
// branches in it that trigger runs.
type Repository struct {
	Owner          string   `toml:"owner"`
	RepositoryName string   `toml:"repository"`
	BaseBranches   []string `toml:"base_branches"`
	// FilterQuery is an optional jq expression evaluated against each
	// candidate pull request summary. When it evaluates to false the
	// pull request is not updated.
	FilterQuery string `toml:"filter_query"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	if err := result.validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *Config) validate() error {
	for i, repo := range r.Updater.Repositories {
		if repo.Owner == "" {
			return fmt.Errorf("updater.repository %d: missing field: 'owner'", i)
		}

		if repo.RepositoryName == "" {
			return fmt.Errorf("updater.repository %d: missing field: 'repository'", i)
		}

		if len(repo.BaseBranches) == 0 {
			return fmt.Errorf("updater.repository %s/%s: missing field: 'base_branches'", repo.Owner, repo.RepositoryName)
		}

		for _, branch := range repo.BaseBranches {
			if branch == "" {
				return fmt.Errorf("updater.repository %s/%s: 'base_branches' contains an empty element", repo.Owner, repo.RepositoryName)
			}
		}

		if repo.FilterQuery != "" {
			if _, err := gojq.Parse(repo.FilterQuery); err != nil {
				return fmt.Errorf("updater.repository %s/%s: parsing 'filter_query' failed: %w", repo.Owner, repo.RepositoryName, err)
			}
		}
	}

	return nil
}

// ErrNoRepositories is returned by EnsureRepositories when the updater
// section does not define any repository.
var ErrNoRepositories = errors.New("configuration does not define any updater repository")

func (r *Config) EnsureRepositories() error {
	if len(r.Updater.Repositories) == 0 {
		return ErrNoRepositories
	}

	return nil
}
