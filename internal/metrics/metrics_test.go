package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luffy-robotics/luffy/internal/metrics"
)

func TestCountersAccumulate(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	m.PackageInstalled(true)
	m.PackageInstalled(true)
	m.PackageInstalled(false)
	m.RollbackPerformed()
	m.HealthReportReceived("gateway")
	m.HealthReportReceived("media")

	expected := `
# HELP luffy_health_reports_total Health reports consumed from the bus
# TYPE luffy_health_reports_total counter
luffy_health_reports_total 2
# HELP luffy_ota_package_installs_total Package install attempts, labelled by result
# TYPE luffy_ota_package_installs_total counter
luffy_ota_package_installs_total{result="failure"} 1
luffy_ota_package_installs_total{result="success"} 2
# HELP luffy_ota_rollbacks_total Packages reverted to their last installed artifact
# TYPE luffy_ota_rollbacks_total counter
luffy_ota_rollbacks_total 1
`

	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"luffy_health_reports_total",
		"luffy_ota_package_installs_total",
		"luffy_ota_rollbacks_total"))
}

func TestCycleFinishedRefreshesLastCheck(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	m.CycleFinished(metrics.OutcomeUpToDate)

	families, err := registry.Gather()
	require.NoError(t, err)

	found := false

	for _, family := range families {
		if family.GetName() != "luffy_ota_last_check_timestamp_seconds" {
			continue
		}

		found = true

		require.Len(t, family.GetMetric(), 1)
		require.Positive(t, family.GetMetric()[0].GetGauge().GetValue())
	}

	require.True(t, found, "last check gauge not registered")
}

func TestHealthReportRefreshesServiceTimestamp(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	m.HealthReportReceived("gateway")

	families, err := registry.Gather()
	require.NoError(t, err)

	found := false

	for _, family := range families {
		if family.GetName() != "luffy_health_last_report_timestamp_seconds" {
			continue
		}

		found = true

		require.Len(t, family.GetMetric(), 1)
		require.Equal(t, "gateway", family.GetMetric()[0].GetLabel()[0].GetValue())
		require.Positive(t, family.GetMetric()[0].GetGauge().GetValue())
	}

	require.True(t, found, "last report gauge not registered")
}
