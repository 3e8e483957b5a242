package cascader

import (
	"context"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/simplesurance/cascader/internal/githubclt"
)

// Filter narrows the set of candidate pull requests with a jq expression.
// The expression is evaluated against a document describing the pull request
// and must return a single boolean.
type Filter struct {
	query *gojq.Query
}

func NewFilter(jqQuery string) (*Filter, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, err
	}

	return &Filter{query: query}, nil
}

func prSummaryDoc(pr *githubclt.PRSummary) map[string]any {
	return map[string]any{
		"number":             pr.Number,
		"branch":             pr.Branch,
		"base_branch":        pr.BaseBranch,
		"title":              pr.Title,
		"author":             pr.Author,
		"auto_merge_enabled": pr.AutoMergeEnabled,
	}
}

func goJQIterToSlice(iter gojq.Iter) ([]any, []error) {
	var result []any
	var errors []error

	for {
		res, ok := iter.Next()
		if !ok {
			return result, errors
		}

		if err, isErr := res.(error); isErr {
			errors = append(errors, err)
			continue
		}

		result = append(result, res)
	}
}

func errString(errs []error) string {
	var result strings.Builder

	for i, err := range errs {
		if i > 0 {
			result.WriteString("; ")
		}

		result.WriteString(fmt.Sprintf("error %d: %s", i, err))
	}

	return result.String()
}

// Match returns true when the filter query evaluates to true for the pull
// request summary.
func (f *Filter) Match(ctx context.Context, pr *githubclt.PRSummary) (bool, error) {
	result, errors := goJQIterToSlice(f.query.RunWithContext(ctx, prSummaryDoc(pr)))
	if len(errors) != 0 {
		return false, fmt.Errorf("json query returned errors, query: %q, errors: %s", f.query.String(), errString(errors))
	}

	if len(result) != 1 {
		return false, fmt.Errorf("json query returned %d results, expected 1, query: %q", len(result), f.query.String())
	}

	val, ok := result[0].(bool)
	if !ok {
		return false, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			result[0], result[0], f.query.String(),
		)
	}

	return val, nil
}

func (f *Filter) String() string {
	return f.query.String()
}
