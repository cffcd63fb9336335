package propgate

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/internal/history"
	"github.com/propgate/propgate/internal/utils/ptr"
	"github.com/propgate/propgate/pkg/config"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/logging"
	"github.com/propgate/propgate/pkg/monitor"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/release"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// testConfig returns a config over temporary stores with permissive
// deployment thresholds.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.Paths = config.Paths{
		Source:     filepath.Join(root, "items"),
		Research:   filepath.Join(root, "research"),
		Production: filepath.Join(root, "production"),
		Work:       filepath.Join(root, "work"),
	}
	cfg.Deployment.MinQualityScore = ptr.To(0.0)
	cfg.Deployment.RequiredGrade = ptr.To("critical")
	cfg.Deployment.MaxHighPriorityIssues = ptr.To(100)
	cfg.Categories = map[string]quality.CategoryRules{"metals": {}}

	writeFile(t, cfg.Paths.Source, "metals/copper.yaml", "name: copper\nproperties:\n  density: 8.96\n  melting_point: 1085\n")
	writeFile(t, cfg.Paths.Source, "metals/iron.yaml", "name: iron\nproperties:\n  density: 7.87\n  melting_point: 1538\n")
	writeFile(t, cfg.Paths.Source, "metals/tin.yaml", "name: tin\nproperties:\n  density: 7.31\n  melting_point: 232\n")
	return cfg
}

func newClient(t *testing.T, cfg *config.Config, opts ...Option) Client {
	t.Helper()
	clock := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithLogger(logging.NewNopLogger()),
		WithClock(func() time.Time { return clock }),
	}, opts...)
	pg, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	return pg
}

func TestNewRequiresDeploymentThresholds(t *testing.T) {
	_, err := New(config.Defaults())
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	_, err = New(nil)
	assert.True(t, errors.IsConfiguration(err))
}

func TestValidate(t *testing.T) {
	cfg := testConfig(t)
	pg := newClient(t, cfg, WithoutHistory(), WithoutReports())

	v, err := pg.Validate(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, v.RunID)
	assert.Equal(t, 3, v.Items)
	assert.NotEmpty(t, v.Findings)
	assert.Empty(t, v.LoadErrors)
	assert.Equal(t, 3, v.Catalog().Len())

	_, err = pg.Validate(context.Background(), "ceramics")
	assert.True(t, errors.IsMissingData(err))
}

func TestValidateReportsLoadErrors(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Paths.Source, "metals/broken.yaml", "name: [unterminated\n")
	pg := newClient(t, cfg, WithoutHistory(), WithoutReports())

	v, err := pg.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v.Items)
	require.Len(t, v.LoadErrors, 1)
	assert.Equal(t, errors.KindMissingData, v.LoadErrors[0].Kind)
	assert.Contains(t, v.LoadErrors[0].Message, "broken.yaml")
}

func TestAssessWritesReportAndHistory(t *testing.T) {
	cfg := testConfig(t)
	pg := newClient(t, cfg)

	a, err := pg.Assess(context.Background())
	require.NoError(t, err)
	assert.Len(t, a.Candidates, 3)
	assert.Len(t, a.Ready(), 3)
	assert.Equal(t, 3, a.Summary.Count)
	assert.FileExists(t, a.ReportPath)
	assert.Equal(t, cfg.ReportsDir(), filepath.Dir(a.ReportPath))
	require.NoError(t, pg.Close())

	ledger, err := history.Open(cfg.HistoryPath())
	require.NoError(t, err)
	defer ledger.Close()
	rows, err := ledger.ItemHistory(context.Background(), "metals/copper")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.RunID, rows[0].RunID)
	assert.True(t, rows[0].Ready)
}

func TestReleaseDeploysReadyItems(t *testing.T) {
	cfg := testConfig(t)
	pg := newClient(t, cfg, WithoutHistory())

	var mu sync.Mutex
	var applied []string
	var finished *release.Result
	pg.OnItemApplied(func(it release.ItemResult) {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, string(it.Item))
	})
	pg.OnReleaseFinished(func(res *release.Result) { finished = res })

	out, err := pg.Release(context.Background(), ReleaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, release.StatusSuccess, out.Result.Status)
	assert.Equal(t, 3, out.Result.Count(release.ItemApplied))
	assert.ElementsMatch(t, []string{"metals/copper", "metals/iron", "metals/tin"}, applied)
	assert.Same(t, out.Result, finished)
	assert.FileExists(t, out.ReportPath)
	assert.FileExists(t, filepath.Join(cfg.Paths.Production, "metals", "copper.yaml"))

	backups, err := pg.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, out.Result.BackupID, backups[0].ID)
}

func TestReleaseGatesUnconfiguredCategory(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Paths.Source, "ceramics/alumina.yaml", "name: alumina\nproperties:\n  density: 3.95\n")
	pg := newClient(t, cfg, WithoutHistory(), WithoutReports())

	out, err := pg.Release(context.Background(), ReleaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, release.StatusPartial, out.Result.Status)
	assert.Equal(t, 3, out.Result.Count(release.ItemApplied))
	for _, it := range out.Result.Items {
		if it.Item == "ceramics/alumina" {
			assert.Equal(t, release.ItemGateFailed, it.Status)
			require.NotNil(t, it.Error)
			assert.Equal(t, errors.KindGateFailure, it.Error.Kind)
		}
	}
	assert.NoDirExists(t, filepath.Join(cfg.Paths.Production, "ceramics"))
}

func TestHookMayRegisterHooks(t *testing.T) {
	h := newHooks()
	var calls []string
	h.OnAlert(func(monitor.Alert) {
		calls = append(calls, "outer")
		h.OnAlert(func(monitor.Alert) { calls = append(calls, "inner") })
	})

	h.triggerAlert(monitor.Alert{})
	assert.Equal(t, []string{"outer"}, calls)

	h.triggerAlert(monitor.Alert{})
	assert.Equal(t, []string{"outer", "outer", "inner"}, calls)
}

func TestReleaseDryRunLeavesProductionUntouched(t *testing.T) {
	cfg := testConfig(t)
	pg := newClient(t, cfg, WithoutHistory(), WithoutReports())

	out, err := pg.Release(context.Background(), ReleaseOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, out.Result.DryRun)
	assert.Empty(t, out.ReportPath)
	assert.NoFileExists(t, filepath.Join(cfg.Paths.Production, "metals", "copper.yaml"))

	backups, err := pg.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestRollbackRestoresBackup(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Paths.Production, "metals/copper.yaml", "name: copper\nproperties:\n  density: 8.5\n")
	pg := newClient(t, cfg)

	out, err := pg.Release(context.Background(), ReleaseOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, out.Result.BackupID)

	res, err := pg.Rollback(context.Background(), release.RollbackOptions{BackupID: out.Result.BackupID, VerifyAfter: true})
	require.NoError(t, err)
	require.NotNil(t, res)

	data, err := os.ReadFile(filepath.Join(cfg.Paths.Production, "metals", "copper.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "8.5")
}

func TestMonitoringCycleAndBaseline(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.Paths.Production, "metals/copper.yaml", "name: copper\nproperties:\n  density: 8.96\n")
	writeFile(t, cfg.Paths.Production, "metals/iron.yaml", "name: iron\nproperties:\n  density: 7.87\n")
	pg := newClient(t, cfg, WithoutHistory())

	var alerts []monitor.Alert
	pg.OnAlert(func(a monitor.Alert) { alerts = append(alerts, a) })

	_, err := pg.Baseline()
	assert.True(t, errors.IsNotFound(err))

	first, err := pg.RunCycle(context.Background(), monitor.KindFull)
	require.NoError(t, err)
	assert.True(t, first.BaselineAdopted)

	baseline, err := pg.Baseline()
	require.NoError(t, err)
	assert.Equal(t, 2, baseline.FileCount)

	require.NoError(t, os.Remove(filepath.Join(cfg.Paths.Production, "metals", "iron.yaml")))
	second, err := pg.RunCycle(context.Background(), monitor.KindQuick)
	require.NoError(t, err)
	assert.NotEmpty(t, second.Alerts)
	assert.Len(t, alerts, len(second.Alerts))

	logged, err := pg.Alerts(second.StartedAt)
	require.NoError(t, err)
	assert.Len(t, logged, len(second.Alerts))

	updated, err := pg.SetBaseline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FileCount)

	require.NoError(t, pg.ResetBaseline())
	_, err = pg.Baseline()
	assert.True(t, errors.IsNotFound(err))
}

func TestMonitoringOnOff(t *testing.T) {
	cfg := testConfig(t)
	pg := newClient(t, cfg, WithoutHistory())

	assert.False(t, pg.MonitoringActive())
	require.NoError(t, pg.MonitoringOff())

	require.NoError(t, pg.MonitoringOn(context.Background()))
	assert.True(t, pg.MonitoringActive())
	assert.Error(t, pg.MonitoringOn(context.Background()))

	require.NoError(t, pg.MonitoringOff())
	assert.False(t, pg.MonitoringActive())

	// monitoring can be restarted after it was switched off
	require.NoError(t, pg.MonitoringOn(context.Background()))
	assert.True(t, pg.MonitoringActive())
	require.NoError(t, pg.MonitoringOff())
}

func TestMonitoringStopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	pg := newClient(t, cfg, WithoutHistory())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pg.MonitoringOn(ctx))
	cancel()
	assert.Eventually(t, func() bool { return !pg.MonitoringActive() }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, pg.MonitoringOff())
}
