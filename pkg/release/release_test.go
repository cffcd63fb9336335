package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/internal/utils/ptr"
	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/gatekeeper"
)

const (
	oldCopper = "name: copper\ncategory: metals\nproperties:\n  density:\n    value: 8.5\n    unit: g/cm3\n"
	oldIron   = "name: iron\ncategory: metals\nproperties:\n  density:\n    value: 7.87\n    unit: g/cm3\n"
)

type fixture struct {
	prod string
	work string
	cat  *catalog.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{prod: filepath.Join(root, "prod"), work: filepath.Join(root, "work")}
	writeProd(t, f.prod, "metals/copper.yaml", oldCopper)
	writeProd(t, f.prod, "metals/iron.yaml", oldIron)
	f.cat = catalog.MustNew(
		metal("copper", 8.96, "g/cm3"),
		metal("tin", 7.31, "g/cm3"),
	)
	return f
}

func writeProd(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readProd(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err)
	return string(data)
}

func metal(name string, density float64, unit string) catalog.Item {
	return catalog.Item{
		Name:     name,
		Category: "metals",
		Properties: map[string]catalog.PropertyRecord{
			"density": {Value: ptr.To(density), Unit: unit},
		},
	}
}

func ready(cat *catalog.Catalog) []gatekeeper.Candidate {
	var out []gatekeeper.Candidate
	for i, item := range cat.All() {
		out = append(out, gatekeeper.Candidate{Item: item.ID(), Category: item.Category, Ready: true, Score: 0.9 - float64(i)*0.01})
	}
	return out
}

func (f *fixture) manager(t *testing.T, mutate ...func(*Options)) *Manager {
	t.Helper()
	clock := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	opts := Options{
		ProductionDir: f.prod,
		WorkDir:       f.work,
		Gates:         DefaultGateOptions(),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresDirs(t *testing.T) {
	_, err := NewManager(Options{WorkDir: "w"})
	assert.True(t, errors.IsConfiguration(err))
	_, err = NewManager(Options{ProductionDir: "p"})
	assert.True(t, errors.IsConfiguration(err))
}

func TestMachineTransitions(t *testing.T) {
	m := NewMachine(nil)
	assert.Equal(t, StateIdle, m.State())

	err := m.To(StateDeploying)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)

	for _, s := range []State{StateBackupInProgress, StateStaging, StateValidatingGates, StateDeploying, StateVerifyingIntegrity, StateComplete, StateRolledBack} {
		require.NoError(t, m.To(s), "to %s", s)
	}
	assert.ErrorIs(t, m.To(StateFailed), errors.ErrInvalidTransition)
	assert.Len(t, m.History(), 7)

	assert.True(t, Allowed(StateStaging, StateFailed))
	assert.False(t, Allowed(StateDeploying, StateRolledBack))
	assert.False(t, Allowed(StateIdle, StateRolledBack))
}

func TestRunAppliesAndBacksUp(t *testing.T) {
	f := newFixture(t)
	var applied []catalog.ItemID
	m := f.manager(t, func(o *Options) {
		o.OnItemApplied = func(it ItemResult) { applied = append(applied, it.Item) }
	})

	res, err := m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, StateComplete, res.State)
	assert.Equal(t, 2, res.Count(ItemApplied))
	assert.Equal(t, []catalog.ItemID{"metals/copper", "metals/tin"}, applied)
	require.NotEmpty(t, res.BackupID)
	assert.Equal(t, "propgate rollback "+res.BackupID, res.RollbackCommand())

	for _, it := range res.Items {
		assert.NotEqual(t, it.ChecksumBefore, it.ChecksumAfter, it.Item)
		assert.True(t, it.Changed)
	}

	copper, err := catalog.LoadFile(f.prod, "metals/copper.yaml")
	require.NoError(t, err)
	v, _ := copper.Number("density")
	assert.InDelta(t, 8.96, v, 1e-9)
	assert.True(t, fsutil.Exists(filepath.Join(f.prod, "metals/tin.yaml")))
	assert.Equal(t, oldIron, readProd(t, f.prod, "metals/iron.yaml"))

	manifest, err := m.Manifest(res.BackupID)
	require.NoError(t, err)
	require.Len(t, manifest.Files, 2)
	assert.Equal(t, "metals/copper.yaml", manifest.Files[0].OriginalPath)
	assert.Equal(t, fsutil.ChecksumBytes([]byte(oldCopper)), manifest.Files[0].Checksum)
	assert.NoError(t, manifest.Verify())

	require.NotNil(t, res.Sweep)
	assert.Equal(t, 3, res.Sweep.Files)
	assert.Empty(t, res.Sweep.Invalid)
	assert.False(t, fsutil.Exists(m.StagingDir(res.RunID)))
	assert.False(t, fsutil.Exists(filepath.Join(f.work, constants.LockFile)))
}

func TestRunIdenticalContentKeepsChecksum(t *testing.T) {
	f := newFixture(t)
	data, err := catalog.Marshal(metal("copper", 8.96, "g/cm3"))
	require.NoError(t, err)
	writeProd(t, f.prod, "metals/copper.yaml", string(data))

	res, err := f.manager(t).Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)
	require.Equal(t, catalog.ItemID("metals/copper"), res.Items[0].Item)
	assert.Equal(t, res.Items[0].ChecksumBefore, res.Items[0].ChecksumAfter)
	assert.False(t, res.Items[0].Changed)
}

func TestRunGateFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	f.cat = catalog.MustNew(metal("copper", 8.96, "g/cm3"), metal("lead", 11.34, "kg/l"))
	m := f.manager(t, func(o *Options) {
		o.Gates.Units = map[string][]string{"density": {"g/cm3"}}
	})

	res, err := m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 1, res.Count(ItemApplied))
	assert.Equal(t, 1, res.Count(ItemGateFailed))

	for _, it := range res.Items {
		if it.Status == ItemGateFailed {
			require.NotNil(t, it.Error)
			assert.Equal(t, errors.KindGateFailure, it.Error.Kind)
			assert.False(t, fsutil.Exists(filepath.Join(f.prod, it.Path)))
		}
	}
}

func TestRunSkipsNotReadyAndFiltersCategory(t *testing.T) {
	f := newFixture(t)
	f.cat = catalog.MustNew(
		metal("copper", 8.96, "g/cm3"),
		catalog.Item{Name: "granite", Category: "stones", Properties: map[string]catalog.PropertyRecord{"density": {Value: ptr.To(2.7)}}},
	)
	cands := ready(f.cat)
	cands[0].Ready = false

	res, err := f.manager(t).Run(context.Background(), Plan{Catalog: f.cat, Candidates: cands, Categories: []string{"metals"}})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.BackupID)
}

func TestRunBatching(t *testing.T) {
	f := newFixture(t)
	var items []catalog.Item
	for i := 0; i < 7; i++ {
		items = append(items, metal(fmt.Sprintf("alloy-%d", i), 5+float64(i), "g/cm3"))
	}
	f.cat = catalog.MustNew(items...)

	res, err := f.manager(t).Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)
	require.Len(t, res.Batches, 2)
	assert.Equal(t, 5, res.Batches[0].Items)
	assert.Equal(t, 2, res.Batches[1].Items)
	assert.Equal(t, catalog.ItemID("metals/alloy-0"), res.Items[0].Item)
	assert.Equal(t, 2, res.Items[6].Batch)
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t)
	res, err := f.manager(t, func(o *Options) { o.DryRun = true }).Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Count(ItemStaged))
	assert.Empty(t, res.BackupID)
	assert.Equal(t, oldCopper, readProd(t, f.prod, "metals/copper.yaml"))
	assert.False(t, fsutil.Exists(filepath.Join(f.prod, "metals/tin.yaml")))
}

func TestRunIntegrityFailureHalts(t *testing.T) {
	f := newFixture(t)
	var items []catalog.Item
	for i := 0; i < 6; i++ {
		items = append(items, metal(fmt.Sprintf("alloy-%d", i), 5+float64(i), "g/cm3"))
	}
	f.cat = catalog.MustNew(items...)

	m := f.manager(t, func(o *Options) {
		o.OnItemApplied = func(it ItemResult) {
			if it.Item == "metals/alloy-1" {
				writeProd(t, f.prod, it.Path, "corrupted: [")
			}
		}
	})
	res, err := m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StateFailed, res.State)
	assert.False(t, res.RolledBack)
	assert.Equal(t, 1, res.Count(ItemSkipped), "second batch never runs")
	assert.True(t, fsutil.Exists(filepath.Join(f.prod, "metals/alloy-0.yaml")), "applied batch stays without rollback")
}

func TestRunIntegrityFailureAutoRollback(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t, func(o *Options) {
		o.AutoRollbackOnFailure = true
		o.OnItemApplied = func(it ItemResult) {
			writeProd(t, f.prod, it.Path, "corrupted: [")
		}
	})
	res, err := m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.Error(t, err)
	assert.True(t, res.RolledBack)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, oldCopper, readProd(t, f.prod, "metals/copper.yaml"))
}

func TestRunStopOnItemFailure(t *testing.T) {
	f := newFixture(t)
	f.cat = catalog.MustNew(metal("copper", 8.96, "g/cm3"), metal("tin", 7.31, "g/cm3"))
	// a directory where the record file belongs makes the apply fail
	require.NoError(t, os.Remove(filepath.Join(f.prod, "metals", "copper.yaml")))
	require.NoError(t, os.MkdirAll(filepath.Join(f.prod, "metals", "copper.yaml"), 0o755))

	res, err := f.manager(t, func(o *Options) { o.StopOnItemFailure = true }).
		Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.Count(ItemFailed))
	assert.Equal(t, 1, res.Count(ItemSkipped))
	assert.Equal(t, StatusFailed, res.Status)
}

func TestRunLocked(t *testing.T) {
	f := newFixture(t)
	host, _ := os.Hostname()
	holder := fmt.Sprintf("pid=%d host=%s run=other", os.Getpid(), host)
	require.NoError(t, os.MkdirAll(f.work, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.work, constants.LockFile), []byte(holder), 0o644))

	res, err := f.manager(t).Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.Error(t, err)
	assert.True(t, errors.IsLocked(err))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, oldCopper, readProd(t, f.prod, "metals/copper.yaml"))
}

func TestStaleLockIsReclaimed(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t)
	res, err := m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)

	// left behind by a crashed release
	lockPath := filepath.Join(f.work, constants.LockFile)
	require.NoError(t, os.WriteFile(lockPath, []byte("pid=1073741823 run=crashed"), 0o644))

	rb, err := m.Rollback(context.Background(), RollbackOptions{BackupID: res.BackupID, VerifyAfter: true})
	require.NoError(t, err)
	assert.Equal(t, res.BackupID, rb.BackupID)
	assert.Equal(t, oldCopper, readProd(t, f.prod, "metals/copper.yaml"))
	assert.False(t, fsutil.Exists(lockPath))

	require.NoError(t, os.WriteFile(lockPath, []byte("pid=1073741823 run=crashed"), 0o644))
	_, err = m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)
}

func TestLockHeldOnAnotherHostIsKept(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.work, 0o755))
	lockPath := filepath.Join(f.work, constants.LockFile)
	require.NoError(t, os.WriteFile(lockPath, []byte("pid=1073741823 host=elsewhere.invalid run=x"), 0o644))

	_, err := f.manager(t).Rollback(context.Background(), RollbackOptions{})
	assert.True(t, errors.IsLocked(err))
	assert.True(t, fsutil.Exists(lockPath))
}

func TestParseHolder(t *testing.T) {
	h, ok := parseHolder("pid=42 host=build-1 run=abc")
	require.True(t, ok)
	assert.Equal(t, lockHolder{pid: 42, host: "build-1", run: "abc"}, h)

	_, ok = parseHolder("garbage")
	assert.False(t, ok)
	_, ok = parseHolder("pid=x")
	assert.False(t, ok)
}

func TestBackupFailureLeavesProductionUntouched(t *testing.T) {
	f := newFixture(t)
	// a file where the backups directory belongs makes the backup impossible
	require.NoError(t, os.MkdirAll(f.work, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.work, constants.BackupsDir), []byte("x"), 0o644))

	res, err := f.manager(t).Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, res.BackupID)
	assert.Zero(t, res.Count(ItemApplied))
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, errors.KindStorage, res.Errors[0].Kind)

	assert.Equal(t, oldCopper, readProd(t, f.prod, "metals/copper.yaml"))
	assert.Equal(t, oldIron, readProd(t, f.prod, "metals/iron.yaml"))
	assert.False(t, fsutil.Exists(filepath.Join(f.prod, "metals/tin.yaml")))
	assert.False(t, fsutil.Exists(filepath.Join(f.work, constants.LockFile)))
}

func TestCrossReferenceRejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)
	cat := catalog.MustNew(
		metal("copper", 8.96, "g/cm3"),
		catalog.Item{
			Name:     "alumina",
			Category: "ceramics",
			Properties: map[string]catalog.PropertyRecord{
				"density": {Value: ptr.To(3.95), Unit: "g/cm3"},
			},
		},
	)

	res, err := f.manager(t).Run(context.Background(), Plan{Catalog: cat, Candidates: ready(cat)})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)

	byItem := make(map[catalog.ItemID]ItemResult)
	for _, it := range res.Items {
		byItem[it.Item] = it
	}
	assert.Equal(t, ItemApplied, byItem["metals/copper"].Status)
	alumina := byItem["ceramics/alumina"]
	assert.Equal(t, ItemGateFailed, alumina.Status)
	failures := Failures(alumina.Gates)
	require.Len(t, failures, 1)
	assert.Equal(t, GateCrossReference, failures[0].Gate)
	assert.Contains(t, failures[0].Message, `unknown category "ceramics"`)
	assert.NoDirExists(t, filepath.Join(f.prod, "ceramics"))

	// a configured category is accepted before anything of it is deployed
	m := f.manager(t, func(o *Options) { o.Gates.Categories = []string{"ceramics"} })
	res, err = m.Run(context.Background(), Plan{Catalog: cat, Candidates: ready(cat)})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.FileExists(t, filepath.Join(f.prod, "ceramics", "alumina.yaml"))
}

func TestRollbackIdempotent(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t)
	res, err := m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)

	opts := RollbackOptions{BackupID: res.BackupID, VerifyBefore: true, VerifyAfter: true, Prune: true}
	first, err := m.Rollback(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"metals/copper.yaml"}, first.Restored)
	assert.Equal(t, []string{"metals/iron.yaml"}, first.Unchanged)
	assert.Equal(t, []string{"metals/tin.yaml"}, first.Pruned)
	assert.True(t, first.Verified)

	snapshot := func() map[string]string {
		files, err := fsutil.ListFiles(f.prod)
		require.NoError(t, err)
		out := map[string]string{}
		for _, rel := range files {
			out[rel] = readProd(t, f.prod, rel)
		}
		return out
	}
	afterFirst := snapshot()

	second, err := m.Rollback(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, second.Restored)
	assert.Empty(t, second.Pruned)
	assert.Equal(t, afterFirst, snapshot())
	assert.Equal(t, oldCopper, afterFirst["metals/copper.yaml"])
}

func TestRollbackLatestAndMissing(t *testing.T) {
	f := newFixture(t)
	m := f.manager(t)

	_, err := m.Rollback(context.Background(), RollbackOptions{})
	assert.True(t, errors.IsNotFound(err))

	_, err = m.Run(context.Background(), Plan{Catalog: f.cat, Candidates: ready(f.cat)})
	require.NoError(t, err)
	rb, err := m.Rollback(context.Background(), RollbackOptions{BackupID: LatestBackup})
	require.NoError(t, err)
	assert.Len(t, rb.Restored, 1)

	_, err = m.Manifest("../escape")
	assert.True(t, errors.IsValidationError(err))
}

func TestManifestVerifyDetectsTamper(t *testing.T) {
	f := newFixture(t)
	manifest, err := Backup(context.Background(), f.prod, filepath.Join(f.work, constants.BackupsDir), time.Now())
	require.NoError(t, err)

	path := filepath.Join(manifest.BackupDir, manifest.Files[0].BackupPath)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))
	assert.True(t, errors.IsIntegrity(manifest.Verify()))

	again, err := Backup(context.Background(), f.prod, filepath.Join(f.work, constants.BackupsDir), manifest.Timestamp)
	require.NoError(t, err)
	assert.NotEqual(t, manifest.ID, again.ID)
}

func TestGates(t *testing.T) {
	g := NewGates(GateOptions{
		SchemaCompleteness: true,
		CrossReference:     true,
		RangeValidity:      true,
		UnitPlausibility:   true,
		Required:           map[string][]string{"metals": {"density"}},
		Units:              map[string][]string{"density": {"g/cm3"}},
	}, []string{"metals"})

	good := metal("copper", 8.96, "g/cm3")
	assert.True(t, Passed(g.Check("metals/copper.yaml", good)))

	bad := catalog.Item{Name: "x", Category: "gems", Properties: map[string]catalog.PropertyRecord{
		"density":  {Value: ptr.To(5.0), Unit: "kg", Max: ptr.To(4.0)},
		"hardness": {},
	}}
	failures := Failures(g.Check("metals/x.yaml", bad))
	var gates []string
	for _, r := range failures {
		gates = append(gates, r.Gate)
	}
	assert.Equal(t, []string{GateSchemaCompleteness, GateCrossReference, GateRangeValidity, GateUnitPlausibility}, gates)

	off := NewGates(GateOptions{}, nil)
	assert.Empty(t, off.Check("metals/x.yaml", bad))
}
