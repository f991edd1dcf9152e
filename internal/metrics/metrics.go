package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes recorded by CycleFinished.
const (
	OutcomeUpdated  = "updated"
	OutcomeUpToDate = "up_to_date"
	OutcomeDeferred = "deferred"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics holds the collectors of one process. Every process owns one;
// only the launcher serves it over HTTP.
type Metrics struct {
	updateCycles    *prometheus.CounterVec
	packageInstalls *prometheus.CounterVec
	downloads       *prometheus.CounterVec
	rollbacks       prometheus.Counter
	healthReports   prometheus.Counter
	lastReport      *prometheus.GaugeVec
	lastCheck       prometheus.Gauge
}

// New registers the fleet collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	promFactory := promauto.With(reg)

	return &Metrics{
		updateCycles: promFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "luffy_ota_update_cycles_total",
			Help: "Update cycles run, labelled by outcome",
		},
			[]string{"outcome"},
		),
		packageInstalls: promFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "luffy_ota_package_installs_total",
			Help: "Package install attempts, labelled by result",
		},
			[]string{"result"},
		),
		downloads: promFactory.NewCounterVec(prometheus.CounterOpts{
			Name: "luffy_ota_downloads_total",
			Help: "Artifact downloads, labelled by result",
		},
			[]string{"result"},
		),
		rollbacks: promFactory.NewCounter(prometheus.CounterOpts{
			Name: "luffy_ota_rollbacks_total",
			Help: "Packages reverted to their last installed artifact",
		}),
		healthReports: promFactory.NewCounter(prometheus.CounterOpts{
			Name: "luffy_health_reports_total",
			Help: "Health reports consumed from the bus",
		}),
		lastReport: promFactory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "luffy_health_last_report_timestamp_seconds",
			Help: "Unix time of the most recent health report per service",
		},
			[]string{"service"},
		),
		lastCheck: promFactory.NewGauge(prometheus.GaugeOpts{
			Name: "luffy_ota_last_check_timestamp_seconds",
			Help: "Unix time of the most recent finished update cycle",
		}),
	}
}

// CycleFinished records one finished update cycle and refreshes the
// last-check timestamp. A skipped cycle still counts as finished.
func (m *Metrics) CycleFinished(outcome string) {
	m.updateCycles.With(prometheus.Labels{"outcome": outcome}).Inc()
	m.lastCheck.SetToCurrentTime()
}

// PackageInstalled records one install attempt.
func (m *Metrics) PackageInstalled(ok bool) {
	m.packageInstalls.With(prometheus.Labels{"result": result(ok)}).Inc()
}

// DownloadFinished records one artifact download attempt.
func (m *Metrics) DownloadFinished(ok bool) {
	m.downloads.With(prometheus.Labels{"result": result(ok)}).Inc()
}

// RollbackPerformed records one package reverted to its previous artifact.
func (m *Metrics) RollbackPerformed() {
	m.rollbacks.Inc()
}

// HealthReportReceived records one health report consumed from the bus and
// refreshes the service's last-report timestamp. Scrapers derive staleness
// from the gauge instead of the registry re-exporting its window.
func (m *Metrics) HealthReportReceived(service string) {
	m.healthReports.Inc()
	m.lastReport.With(prometheus.Labels{"service": service}).SetToCurrentTime()
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}

	return resultFailure
}
