package githubclt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/cascader/internal/cascaderr"
)

func TestWrapRetryableErrorsGraphql(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	// status line format is the same as in shurcooL/graphql do()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(503)
	}))

	t.Cleanup(srv.Close)

	clt := Client{
		logger:     zap.L(),
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL, srv.Client()),
	}

	prs, err := clt.ListOpenPRs(context.Background(), "test", "test", "main")
	require.Error(t, err)
	assert.Nil(t, prs)

	var retryableErr *cascaderr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapGraphqlPermissionDenied(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	t.Cleanup(srv.Close)

	clt := Client{
		logger:     zap.L(),
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL, srv.Client()),
	}

	_, err := clt.ListOpenPRs(context.Background(), "test", "test", "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, cascaderr.ErrPermissionDenied)
}

func TestWrapRetryableErrorsGraphqlWithNonStatusErr(t *testing.T) {
	err := errors.New("error")
	wrappedErr := (&Client{}).wrapGraphQLRetryableErrors(err)
	assert.Equal(t, err, wrappedErr)
}

func newErrResponse(statusCode int, message string) *github.ErrorResponse {
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: statusCode},
		Message:  message,
	}
}

func TestWrapRetryableErrorsClassification(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	clt := Client{logger: zap.L()}

	err := clt.wrapRetryableErrors(newErrResponse(http.StatusForbidden, "Resource not accessible by integration"))
	assert.ErrorIs(t, err, cascaderr.ErrPermissionDenied)

	err = clt.wrapRetryableErrors(newErrResponse(http.StatusNotFound, "Not Found"))
	assert.ErrorIs(t, err, cascaderr.ErrNotFound)

	err = clt.wrapRetryableErrors(newErrResponse(http.StatusBadGateway, "oops"))
	var retryableErr *cascaderr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)

	plainErr := newErrResponse(http.StatusUnprocessableEntity, "Validation Failed")
	assert.Equal(t, error(plainErr), clt.wrapRetryableErrors(plainErr))
}

func newTestRESTClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	restClt := github.NewClient(srv.Client())
	baseURL, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	restClt.BaseURL = baseURL

	return &Client{
		restClt: restClt,
		logger:  zap.L(),
	}
}

func TestUpdateBranchDoesNothingWhenPRIsUptodate(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()

	mux.HandleFunc("/repos/test/test/pulls/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"number": 1,
			"state": "open",
			"mergeable_state": "clean",
			"head": {"sha": "4d5ab93cb4d19d5a1858a23c07a2b9da2c461334", "ref": "feature-a"},
			"base": {"ref": "main"}
		}`))
	})

	mux.HandleFunc("/repos/test/test/compare/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"behind_by": 0}`))
	})

	mux.HandleFunc("/repos/test/test/pulls/1/update-branch", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("update-branch endpoint was called for an uptodate pull request")
		w.WriteHeader(http.StatusInternalServerError)
	})

	clt := newTestRESTClient(t, mux)

	result, err := clt.UpdateBranch(context.Background(), "test", "test", 1)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Changed)
	assert.Equal(t, "4d5ab93cb4d19d5a1858a23c07a2b9da2c461334", result.HeadCommitID)
}

func TestUpdateBranchTriggersUpdateWhenPRIsBehind(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mux := http.NewServeMux()

	mux.HandleFunc("/repos/test/test/pulls/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"number": 1,
			"state": "open",
			"mergeable_state": "behind",
			"head": {"sha": "4d5ab93cb4d19d5a1858a23c07a2b9da2c461334", "ref": "feature-a"},
			"base": {"ref": "main"}
		}`))
	})

	var updateCalled bool
	mux.HandleFunc("/repos/test/test/pulls/1/update-branch", func(w http.ResponseWriter, _ *http.Request) {
		updateCalled = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message": "Updating pull request branch."}`))
	})

	clt := newTestRESTClient(t, mux)

	result, err := clt.UpdateBranch(context.Background(), "test", "test", 1)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, updateCalled)
	assert.True(t, result.Changed)
	assert.True(t, result.Scheduled)
}
