package release

import (
	"fmt"
	"strings"
	"time"

	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/errors"
)

// Status is the overall outcome of a run.
type Status string

// Run statuses.
const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ItemStatus is the outcome for one candidate.
type ItemStatus string

// Item statuses.
const (
	ItemApplied    ItemStatus = "applied"
	ItemStaged     ItemStatus = "staged"
	ItemGateFailed ItemStatus = "gate_failed"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

// ItemResult records what happened to one candidate.
type ItemResult struct {
	Item           catalog.ItemID `json:"item" yaml:"item"`
	Path           string         `json:"path" yaml:"path"`
	Batch          int            `json:"batch" yaml:"batch"`
	Score          float64        `json:"score" yaml:"score"`
	Status         ItemStatus     `json:"status" yaml:"status"`
	Gates          []GateResult   `json:"gates,omitempty" yaml:"gates,omitempty"`
	ChecksumBefore string         `json:"checksum_before,omitempty" yaml:"checksum_before,omitempty"`
	ChecksumAfter  string         `json:"checksum_after,omitempty" yaml:"checksum_after,omitempty"`
	Changed        bool           `json:"changed" yaml:"changed"`
	Error          *errors.Record `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchResult summarizes one batch.
type BatchResult struct {
	Number   int    `json:"number" yaml:"number"`
	Items    int    `json:"items" yaml:"items"`
	Applied  int    `json:"applied" yaml:"applied"`
	Failed   int    `json:"failed" yaml:"failed"`
	Verified bool   `json:"verified" yaml:"verified"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// SweepResult is the post-deploy check of every production file.
type SweepResult struct {
	Files   int      `json:"files" yaml:"files"`
	Valid   int      `json:"valid" yaml:"valid"`
	Invalid []string `json:"invalid,omitempty" yaml:"invalid,omitempty"`
}

// Result is the itemized outcome of a release run.
type Result struct {
	RunID       string          `json:"run_id" yaml:"run_id"`
	BackupID    string          `json:"backup_id,omitempty" yaml:"backup_id,omitempty"`
	DryRun      bool            `json:"dry_run" yaml:"dry_run"`
	Status      Status          `json:"status" yaml:"status"`
	State       State           `json:"state" yaml:"state"`
	StartedAt   time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time       `json:"finished_at" yaml:"finished_at"`
	Items       []ItemResult    `json:"items" yaml:"items"`
	Batches     []BatchResult   `json:"batches,omitempty" yaml:"batches,omitempty"`
	Sweep       *SweepResult    `json:"sweep,omitempty" yaml:"sweep,omitempty"`
	Errors      []errors.Record `json:"errors,omitempty" yaml:"errors,omitempty"`
	Transitions []Transition    `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	RolledBack  bool            `json:"rolled_back" yaml:"rolled_back"`
	Halted      bool            `json:"halted" yaml:"halted"`
}

// Duration returns the run duration.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Count returns the number of items with status s.
func (r *Result) Count(s ItemStatus) int {
	n := 0
	for _, it := range r.Items {
		if it.Status == s {
			n++
		}
	}
	return n
}

// RollbackCommand returns the command restoring this run's backup.
func (r *Result) RollbackCommand() string {
	if r.BackupID == "" {
		return ""
	}
	return "propgate rollback " + r.BackupID
}

// addError records a structured error.
func (r *Result) addError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, errors.ToRecord(err))
}

// finalize derives the overall status.
func (r *Result) finalize(fatal error) {
	applied := r.Count(ItemApplied)
	staged := r.Count(ItemStaged)
	problems := len(r.Items) - applied - staged

	switch {
	case fatal != nil:
		r.Status = StatusFailed
	case problems == 0:
		r.Status = StatusSuccess
	case applied+staged > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusFailed
	}
}

// Summary returns a one-line human summary.
func (r *Result) Summary() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%d items", len(r.Items)))
	for _, s := range []ItemStatus{ItemApplied, ItemStaged, ItemGateFailed, ItemFailed, ItemSkipped} {
		if n := r.Count(s); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ReplaceAll(string(s), "_", " ")))
		}
	}
	return fmt.Sprintf("release %s: %s (%s)", r.RunID, r.Status, strings.Join(parts, ", "))
}

// RollbackResult is the outcome of a rollback.
type RollbackResult struct {
	BackupID   string          `json:"backup_id" yaml:"backup_id"`
	Restored   []string        `json:"restored,omitempty" yaml:"restored,omitempty"`
	Unchanged  []string        `json:"unchanged,omitempty" yaml:"unchanged,omitempty"`
	Pruned     []string        `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	Verified   bool            `json:"verified" yaml:"verified"`
	Errors     []errors.Record `json:"errors,omitempty" yaml:"errors,omitempty"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `json:"finished_at" yaml:"finished_at"`
}

// Summary returns a one-line human summary.
func (r *RollbackResult) Summary() string {
	return fmt.Sprintf("rollback to %s: %d restored, %d unchanged, %d pruned", r.BackupID, len(r.Restored), len(r.Unchanged), len(r.Pruned))
}
