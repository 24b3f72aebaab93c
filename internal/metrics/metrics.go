// Package metrics exposes Prometheus counters for the season and
// leaderboard machinery. Collectors register on the default registry and
// are served by the API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinrush_leaderboard_refresh_total",
		Help: "Completed live ranking recomputations.",
	})

	refreshSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coinrush_leaderboard_refresh_size",
		Help: "Entry count of the most recent ranking refresh.",
	})

	snapshotTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinrush_season_snapshot_total",
		Help: "Season snapshots written.",
	})

	rolloverTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinrush_season_rollover_total",
		Help: "Completed season rollovers (close + reopen).",
	})

	jobFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinrush_scheduled_job_failure_total",
		Help: "Scheduled job runs that returned an error, by job name.",
	}, []string{"job"})
)

func RecordRefresh(entries int) {
	refreshTotal.Inc()
	refreshSize.Set(float64(entries))
}

func RecordSnapshot() { snapshotTotal.Inc() }

func RecordRollover() { rolloverTotal.Inc() }

func RecordJobFailure(job string) { jobFailureTotal.WithLabelValues(job).Inc() }
