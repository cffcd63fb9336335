// Package release deploys validated records into the production store.
//
// A run moves through backup, staging, gate validation, apply and integrity
// verification in fixed-size batches. Production files are only written by
// the apply step, always through an atomic rename. A verification failure
// halts the remaining batches; restoring the backup is a separate explicit
// rollback unless AutoRollbackOnFailure is set.
package release

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/logging"
)

// DefaultBatchSize bounds how many records a batch applies.
const DefaultBatchSize = 5

// Options configure a Manager.
type Options struct {
	ProductionDir string
	WorkDir       string
	BatchSize     int
	Gates         GateOptions

	AutoRollbackOnFailure bool
	StopOnItemFailure     bool
	DryRun                bool
	KeepStaging           bool

	Now           func() time.Time
	OnItemApplied func(ItemResult)
}

// Manager performs releases and rollbacks against one production store.
type Manager struct {
	opts Options
}

// NewManager validates options and creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.ProductionDir == "" {
		return nil, errors.Configuration("release.production_dir", "production directory is required", nil)
	}
	if opts.WorkDir == "" {
		return nil, errors.Configuration("release.work_dir", "work directory is required", nil)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts}, nil
}

// BackupsDir returns the directory holding backups.
func (m *Manager) BackupsDir() string {
	return filepath.Join(m.opts.WorkDir, constants.BackupsDir)
}

// StagingDir returns the staging directory of a run.
func (m *Manager) StagingDir(runID string) string {
	return filepath.Join(m.opts.WorkDir, constants.StagingDir, runID)
}

// Plan is the input of a release run.
type Plan struct {
	// Catalog holds the records to deploy.
	Catalog *catalog.Catalog
	// Candidates are the gatekeeper decisions; only ready ones are deployed.
	Candidates []gatekeeper.Candidate
	// Categories limits the run to these categories when set.
	Categories []string
}

type selected struct {
	candidate gatekeeper.Candidate
	item      catalog.Item
}

// run carries the state of one release.
type run struct {
	m        *Manager
	id       string
	machine  *Machine
	result   *Result
	gates    *Gates
	manifest *Manifest
	staging  string
}

// Run executes a release. The returned error is set for fatal outcomes:
// a held lock, a failed backup or an integrity failure. Item level failures
// are only recorded in the result.
func (m *Manager) Run(ctx context.Context, plan Plan) (*Result, error) {
	r := &run{
		m:       m,
		id:      uuid.NewString(),
		machine: NewMachine(m.opts.Now),
	}
	r.staging = m.StagingDir(r.id)
	r.result = &Result{RunID: r.id, DryRun: m.opts.DryRun, StartedAt: m.opts.Now().UTC()}
	ctx = logging.WithRun(ctx, r.id)
	logger := logging.FromContext(ctx)

	lk, err := acquireLock(m.opts.WorkDir, r.id)
	if err != nil {
		r.result.addError(err)
		r.machine.Fail()
		return r.finish(err), err
	}
	defer func() {
		if err := lk.release(); err != nil {
			logger.Warn().Err(err).Msg("failed to release lock")
		}
	}()
	if lk.reclaimed != "" {
		logger.Warn().Str("holder", lk.reclaimed).Msg("reclaimed stale release lock")
	}

	chosen := r.selectCandidates(plan)
	r.gates = NewGates(m.opts.Gates, r.knownCategories())
	logger.Info().
		Int("candidates", len(plan.Candidates)).
		Int("selected", len(chosen)).
		Bool("dry_run", m.opts.DryRun).
		Msg("release started")

	if len(chosen) == 0 {
		_ = r.machine.To(StateComplete)
		return r.finish(nil), nil
	}

	if !m.opts.DryRun {
		if err := r.machine.To(StateBackupInProgress); err != nil {
			return r.fail(ctx, err), err
		}
		manifest, err := Backup(ctx, m.opts.ProductionDir, m.BackupsDir(), m.opts.Now())
		if err != nil {
			return r.fail(ctx, err), err
		}
		r.manifest = manifest
		r.result.BackupID = manifest.ID
	}

	batches := chunk(chosen, m.opts.BatchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			r.skip(batches[i:])
			return r.fail(ctx, err), err
		}
		halted, err := r.runBatch(ctx, i+1, batch)
		if err != nil {
			r.skip(batches[i+1:])
			return r.fail(ctx, err), err
		}
		if halted {
			r.skip(batches[i+1:])
			r.result.Halted = true
			r.machine.Fail()
			logger.Warn().Int("batch", i+1).Msg("release halted after item failure")
			return r.finish(nil), nil
		}
	}

	if !m.opts.DryRun {
		if err := r.sweep(ctx); err != nil {
			return r.fail(ctx, err), err
		}
	}
	if err := r.machine.To(StateComplete); err != nil {
		return r.fail(ctx, err), err
	}
	if !m.opts.KeepStaging {
		_ = os.RemoveAll(r.staging)
	}
	res := r.finish(nil)
	logger.Info().Str("status", string(res.Status)).Msg(res.Summary())
	return res, nil
}

// selectCandidates takes the ready candidates present in the catalog, ordered
// by score descending with ties broken by item id.
func (r *run) selectCandidates(plan Plan) []selected {
	filter := make(map[string]bool, len(plan.Categories))
	for _, c := range plan.Categories {
		filter[c] = true
	}

	var out []selected
	for _, cand := range plan.Candidates {
		if !cand.Ready {
			continue
		}
		if len(filter) > 0 && !filter[cand.Item.Category()] {
			continue
		}
		item, ok := plan.Catalog.Get(cand.Item)
		if !ok {
			r.result.Items = append(r.result.Items, ItemResult{Item: cand.Item, Score: cand.Score, Status: ItemFailed})
			r.recordItemError(len(r.result.Items)-1, errors.MissingData(string(cand.Item), "candidate not found in catalog"))
			continue
		}
		out = append(out, selected{candidate: cand, item: item})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].candidate.Score != out[j].candidate.Score {
			return out[i].candidate.Score > out[j].candidate.Score
		}
		return out[i].candidate.Item < out[j].candidate.Item
	})
	return out
}

// knownCategories is the set the cross-reference gate accepts: configured
// categories and those already deployed, never the candidate catalog.
func (r *run) knownCategories() []string {
	seen := make(map[string]bool)
	for _, c := range r.m.opts.Gates.Categories {
		seen[c] = true
	}
	for c := range r.m.opts.Gates.Required {
		seen[c] = true
	}
	if entries, err := os.ReadDir(r.m.opts.ProductionDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func chunk(items []selected, size int) [][]selected {
	var out [][]selected
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// runBatch stages, gates, applies and verifies one batch. It reports whether
// the run must halt because of an item failure, or a fatal error.
func (r *run) runBatch(ctx context.Context, number int, batch []selected) (bool, error) {
	logger := logging.FromContext(ctx).With().Int("batch", number).Logger()
	br := BatchResult{Number: number, Items: len(batch)}

	if err := r.machine.To(StateStaging); err != nil {
		return false, err
	}
	type staged struct {
		index int
		data  []byte
	}
	var ready []staged
	halt := false
	for _, sel := range batch {
		idx := r.addItem(sel, number)
		if halt {
			r.result.Items[idx].Status = ItemSkipped
			continue
		}
		data, err := r.stage(sel.item)
		if err != nil {
			r.result.Items[idx].Status = ItemFailed
			r.recordItemError(idx, err)
			br.Failed++
			halt = r.m.opts.StopOnItemFailure
			continue
		}
		ready = append(ready, staged{index: idx, data: data})
	}

	if err := r.machine.To(StateValidatingGates); err != nil {
		return false, err
	}
	var passed []staged
	for _, s := range ready {
		it := &r.result.Items[s.index]
		parsed, err := catalog.ParseItem(it.Path, s.data)
		if err != nil {
			it.Status = ItemGateFailed
			r.recordItemError(s.index, errors.GateFailure(string(it.Item), GateSchemaCompleteness, err.Error()))
			continue
		}
		it.Gates = r.gates.Check(it.Path, parsed)
		if failures := Failures(it.Gates); len(failures) > 0 {
			it.Status = ItemGateFailed
			r.recordItemError(s.index, errors.GateFailure(string(it.Item), failures[0].Gate, failures[0].Message))
			continue
		}
		passed = append(passed, s)
	}

	if r.m.opts.DryRun || len(passed) == 0 {
		for _, s := range passed {
			r.result.Items[s.index].Status = ItemStaged
		}
		br.Verified = true
		r.result.Batches = append(r.result.Batches, br)
		return halt, nil
	}

	if err := r.machine.To(StateDeploying); err != nil {
		return false, err
	}
	var applied []staged
	for _, s := range passed {
		it := &r.result.Items[s.index]
		if halt {
			it.Status = ItemSkipped
			continue
		}
		if err := r.apply(it, s.data); err != nil {
			it.Status = ItemFailed
			r.recordItemError(s.index, err)
			br.Failed++
			halt = r.m.opts.StopOnItemFailure
			continue
		}
		it.Status = ItemApplied
		br.Applied++
		applied = append(applied, s)
		if r.m.opts.OnItemApplied != nil {
			r.m.opts.OnItemApplied(*it)
		}
	}

	if err := r.machine.To(StateVerifyingIntegrity); err != nil {
		return false, err
	}
	for _, s := range applied {
		it := &r.result.Items[s.index]
		if err := r.verify(it, s.data); err != nil {
			it.Status = ItemFailed
			r.recordItemError(s.index, err)
			br.Message = err.Error()
			r.result.Batches = append(r.result.Batches, br)
			ilog := logging.FromContext(logging.WithItem(ctx, string(it.Item)))
			ilog.Error().Err(err).Int("batch", number).Msg("batch verification failed")
			return false, err
		}
	}
	br.Verified = true
	r.result.Batches = append(r.result.Batches, br)
	logger.Info().Int("applied", br.Applied).Int("failed", br.Failed).Msg("batch verified")
	return halt, nil
}

func (r *run) addItem(sel selected, batch int) int {
	r.result.Items = append(r.result.Items, ItemResult{
		Item:  sel.candidate.Item,
		Path:  filepath.ToSlash(sel.item.RecordPath()),
		Batch: batch,
		Score: sel.candidate.Score,
	})
	return len(r.result.Items) - 1
}

func (r *run) recordItemError(idx int, err error) {
	rec := errors.ToRecord(err)
	r.result.Items[idx].Error = &rec
	r.result.Errors = append(r.result.Errors, rec)
}

// stage renders the record into the run's staging directory.
func (r *run) stage(item catalog.Item) ([]byte, error) {
	data, err := catalog.Marshal(item)
	if err != nil {
		return nil, errors.Storage(string(item.ID()), "encode record", err)
	}
	path := filepath.Join(r.staging, filepath.FromSlash(item.RecordPath()))
	if err := fsutil.WriteAtomic(path, data); err != nil {
		return nil, errors.Storage(string(item.ID()), "stage record", err)
	}
	return data, nil
}

// apply replaces the production file with the staged record.
func (r *run) apply(it *ItemResult, data []byte) error {
	dst := filepath.Join(r.m.opts.ProductionDir, filepath.FromSlash(it.Path))
	if fsutil.Exists(dst) {
		sum, _, err := fsutil.Checksum(dst)
		if err != nil {
			return errors.Storage(string(it.Item), "checksum production record", err)
		}
		it.ChecksumBefore = sum
	}
	if err := fsutil.WriteAtomic(dst, data); err != nil {
		return errors.Storage(string(it.Item), "apply record", err)
	}
	sum, _, err := fsutil.Checksum(dst)
	if err != nil {
		return errors.Storage(string(it.Item), "checksum applied record", err)
	}
	it.ChecksumAfter = sum
	it.Changed = it.ChecksumBefore != it.ChecksumAfter
	return nil
}

// verify reloads an applied record and re-runs the gates on it.
func (r *run) verify(it *ItemResult, data []byte) error {
	scope := string(it.Item)
	sum, _, err := fsutil.Checksum(filepath.Join(r.m.opts.ProductionDir, filepath.FromSlash(it.Path)))
	if err != nil {
		return errors.Integrity(scope, "applied record unreadable", err)
	}
	if sum != fsutil.ChecksumBytes(data) {
		return errors.Integrity(scope, "applied record differs from staged record", nil)
	}
	item, err := catalog.LoadFile(r.m.opts.ProductionDir, it.Path)
	if err != nil {
		return errors.Integrity(scope, "applied record does not parse", err)
	}
	if failures := Failures(r.gates.Check(it.Path, item)); len(failures) > 0 {
		return errors.Integrity(scope, "applied record fails gate "+failures[0].Gate+": "+failures[0].Message, nil)
	}
	return nil
}

// sweep reloads every production record. Invalid files written by this run
// are an integrity failure; pre-existing ones are reported only.
func (r *run) sweep(ctx context.Context) error {
	files, err := fsutil.ListFiles(r.m.opts.ProductionDir)
	if err != nil {
		return errors.Integrity("sweep", "list production files", err)
	}
	appliedNow := make(map[string]bool)
	for _, it := range r.result.Items {
		if it.Status == ItemApplied {
			appliedNow[it.Path] = true
		}
	}

	sr := &SweepResult{}
	var failure error
	for _, rel := range files {
		if filepath.Ext(rel) != constants.RecordExt {
			continue
		}
		sr.Files++
		item, err := catalog.LoadFile(r.m.opts.ProductionDir, rel)
		if err == nil {
			if failures := Failures(r.gates.Check(rel, item)); len(failures) > 0 {
				err = errors.GateFailure(rel, failures[0].Gate, failures[0].Message)
			}
		}
		if err != nil {
			sr.Invalid = append(sr.Invalid, rel)
			if appliedNow[rel] && failure == nil {
				failure = errors.Integrity(rel, "post-deploy sweep failed", err)
			}
			continue
		}
		sr.Valid++
	}
	r.result.Sweep = sr
	logging.FromContext(ctx).Info().
		Int("files", sr.Files).
		Int("invalid", len(sr.Invalid)).
		Msg("post-deploy sweep complete")
	return failure
}

// skip marks every item of the remaining batches as skipped.
func (r *run) skip(batches [][]selected) {
	for i, batch := range batches {
		for _, sel := range batch {
			idx := r.addItem(sel, len(r.result.Batches)+i+1)
			r.result.Items[idx].Status = ItemSkipped
		}
	}
}

// fail records a fatal error, optionally restores the backup, and finishes.
func (r *run) fail(ctx context.Context, err error) *Result {
	logger := logging.FromContext(ctx)
	r.result.addError(err)
	r.machine.Fail()
	logger.Error().Err(err).Msg("release failed")

	if r.m.opts.AutoRollbackOnFailure && r.manifest != nil && errors.IsFatal(err) {
		if _, rbErr := r.m.restore(ctx, r.manifest, RollbackOptions{VerifyAfter: true}); rbErr != nil {
			r.result.addError(rbErr)
			logger.Error().Err(rbErr).Msg("automatic rollback failed")
		} else if r.machine.To(StateRolledBack) == nil {
			r.result.RolledBack = true
			logger.Warn().Str("backup_id", r.manifest.ID).Msg("production restored from backup")
		}
	}
	return r.finish(err)
}

func (r *run) finish(fatal error) *Result {
	r.result.State = r.machine.State()
	r.result.Transitions = r.machine.History()
	r.result.FinishedAt = r.m.opts.Now().UTC()
	r.result.finalize(fatal)
	return r.result
}
