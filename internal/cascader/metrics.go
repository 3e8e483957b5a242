package cascader

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/cascader/internal/logfields"
)

const metricNamespace = "cascader"

const (
	githubEventsMetricName = "processed_github_events_total"
	runsMetricName         = "runs_total"
	prOutcomesMetricName   = "pull_request_outcomes_total"
)

const (
	baseBranchLabel = "base_branch"
	repositoryLabel = "repository"
	resultLabel     = "result"
	outcomeLabel    = "outcome"
)

type metricCollector struct {
	logger          *zap.Logger
	processedEvents prometheus.Counter
	runs            *prometheus.CounterVec
	prOutcomes      *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		processedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      githubEventsMetricName,
				Help:      "count of processed github webhook events",
			},
		),
		runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of update runs per base branch",
			},
			[]string{repositoryLabel, baseBranchLabel, resultLabel},
		),
		prOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      prOutcomesMetricName,
				Help:      "count of per pull-request update outcomes",
			},
			[]string{repositoryLabel, baseBranchLabel, outcomeLabel},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func branchLabels(branchID *BranchID) prometheus.Labels {
	return prometheus.Labels{
		repositoryLabel: fmt.Sprintf("%s/%s", branchID.RepositoryOwner, branchID.Repository),
		baseBranchLabel: branchID.Branch,
	}
}

func (m *metricCollector) ProcessedEventsInc() {
	m.processedEvents.Inc()
}

func (m *metricCollector) RunsInc(branchID *BranchID, result string) {
	labels := branchLabels(branchID)
	labels[resultLabel] = result

	cnt, err := m.runs.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(runsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) PROutcomeInc(branchID *BranchID, outcome Outcome) {
	labels := branchLabels(branchID)
	labels[outcomeLabel] = string(outcome)

	cnt, err := m.prOutcomes.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(prOutcomesMetricName, err)
		return
	}

	cnt.Inc()
}
