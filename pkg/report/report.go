// Package report renders QA and deployment reports.
package report

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/release"
)

// Report kinds, used as file name prefixes.
const (
	KindQA         = "qa"
	KindDeployment = "deployment"
)

// QA is the quality assessment report of one run.
type QA struct {
	RunID       string                    `json:"run_id" yaml:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at" yaml:"generated_at"`
	Items       int                       `json:"items" yaml:"items"`
	Ready       int                       `json:"ready" yaml:"ready"`
	Blocked     int                       `json:"blocked" yaml:"blocked"`
	Findings    map[crossval.Severity]int `json:"findings" yaml:"findings"`
	Summary     quality.Summary           `json:"summary" yaml:"summary"`
	Assessments []quality.Assessment      `json:"assessments" yaml:"assessments"`
	Candidates  []gatekeeper.Candidate    `json:"candidates" yaml:"candidates"`
	Errors      []errors.Record           `json:"errors,omitempty" yaml:"errors,omitempty"`
	ErrorCount  int                       `json:"error_count" yaml:"error_count"`
}

// QAInput carries the pipeline outputs a QA report is built from.
type QAInput struct {
	RunID       string
	Findings    *crossval.Result
	Assessments []quality.Assessment
	Candidates  []gatekeeper.Candidate
	Errors      []error
}

// NewQA builds a QA report.
func NewQA(in QAInput, now time.Time) *QA {
	r := &QA{
		RunID:       in.RunID,
		GeneratedAt: now.UTC(),
		Items:       len(in.Assessments),
		Summary:     quality.Summarize(in.Assessments),
		Assessments: quality.Ranked(in.Assessments),
		Candidates:  in.Candidates,
		Findings:    map[crossval.Severity]int{},
	}
	if in.Findings != nil {
		r.Findings = in.Findings.Count()
	}
	r.Ready = len(gatekeeper.Ready(in.Candidates))
	r.Blocked = len(in.Candidates) - r.Ready
	for _, err := range in.Errors {
		r.Errors = append(r.Errors, errors.Records(err)...)
	}
	r.ErrorCount = len(r.Errors)
	return r
}

// Deployment is the report of one release run.
type Deployment struct {
	RunID           string                     `json:"run_id" yaml:"run_id"`
	GeneratedAt     time.Time                  `json:"generated_at" yaml:"generated_at"`
	Status          release.Status             `json:"status" yaml:"status"`
	State           release.State              `json:"state" yaml:"state"`
	DryRun          bool                       `json:"dry_run" yaml:"dry_run"`
	Summary         string                     `json:"summary" yaml:"summary"`
	BackupID        string                     `json:"backup_id,omitempty" yaml:"backup_id,omitempty"`
	RollbackCommand string                     `json:"rollback_command,omitempty" yaml:"rollback_command,omitempty"`
	Duration        string                     `json:"duration" yaml:"duration"`
	Counts          map[release.ItemStatus]int `json:"counts" yaml:"counts"`
	Halted          bool                       `json:"halted" yaml:"halted"`
	RolledBack      bool                       `json:"rolled_back" yaml:"rolled_back"`
	Items           []release.ItemResult       `json:"items" yaml:"items"`
	Batches         []release.BatchResult      `json:"batches,omitempty" yaml:"batches,omitempty"`
	Sweep           *release.SweepResult       `json:"sweep,omitempty" yaml:"sweep,omitempty"`
	Errors          []errors.Record            `json:"errors,omitempty" yaml:"errors,omitempty"`
	ErrorCount      int                        `json:"error_count" yaml:"error_count"`
}

// NewDeployment builds a deployment report from a release result.
func NewDeployment(res *release.Result, now time.Time) *Deployment {
	r := &Deployment{
		RunID:           res.RunID,
		GeneratedAt:     now.UTC(),
		Status:          res.Status,
		State:           res.State,
		DryRun:          res.DryRun,
		Summary:         res.Summary(),
		BackupID:        res.BackupID,
		RollbackCommand: res.RollbackCommand(),
		Duration:        res.Duration().String(),
		Counts:          make(map[release.ItemStatus]int),
		Halted:          res.Halted,
		RolledBack:      res.RolledBack,
		Items:           res.Items,
		Batches:         res.Batches,
		Sweep:           res.Sweep,
		Errors:          res.Errors,
	}
	for _, it := range res.Items {
		r.Counts[it.Status]++
		if it.Error != nil {
			r.ErrorCount++
		}
	}
	r.ErrorCount += len(res.Errors)
	return r
}

// Write encodes report and stores it according to opts. It returns the path
// written, or "" when a writer was used.
func Write(kind, runID string, report any, opts ...Option) (string, error) {
	o := Defaults().Apply(opts...)
	data, err := encode(report, o.format)
	if err != nil {
		return "", errors.WrapParse(o.format.String(), kind, err)
	}
	if o.writer != nil {
		if _, err := o.writer.Write(data); err != nil {
			return "", errors.WrapIO("write", kind+" report", err)
		}
		return "", nil
	}

	path := o.path
	if path == "" {
		if o.dir == "" {
			return "", errors.Configuration("report", "no report destination", nil)
		}
		name := kind + "-" + o.now().UTC().Format(constants.TimeFormatFilename)
		if runID != "" {
			name += "-" + shortID(runID)
		}
		path = filepath.Join(o.dir, name+o.format.Ext())
	}
	if err := fsutil.WriteAtomic(path, data); err != nil {
		return "", errors.Storage("report", "write "+kind+" report", err)
	}
	return path, nil
}

func encode(v any, f Format) ([]byte, error) {
	if f == FormatJSON {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(false))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
