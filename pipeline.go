package propgate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/propgate/propgate/internal/history"
	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/gatekeeper"
	"github.com/propgate/propgate/pkg/logging"
	"github.com/propgate/propgate/pkg/peers"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/release"
	"github.com/propgate/propgate/pkg/report"
	"github.com/propgate/propgate/pkg/stats"
)

// Validation is the cross-validation of one catalog snapshot.
type Validation struct {
	RunID      string                    `json:"run_id" yaml:"run_id"`
	Items      int                       `json:"items" yaml:"items"`
	Findings   []crossval.Finding        `json:"findings" yaml:"findings"`
	Counts     map[crossval.Severity]int `json:"counts" yaml:"counts"`
	LoadErrors []errors.Record           `json:"load_errors,omitempty" yaml:"load_errors,omitempty"`

	catalog  *catalog.Catalog
	research catalog.Research
	result   *crossval.Result
	errs     []error
}

// Catalog returns the snapshot that was validated.
func (v *Validation) Catalog() *catalog.Catalog {
	return v.catalog
}

// Assessment is the scored and gated snapshot.
type Assessment struct {
	RunID       string                 `json:"run_id" yaml:"run_id"`
	Summary     quality.Summary        `json:"summary" yaml:"summary"`
	Assessments []quality.Assessment   `json:"assessments" yaml:"assessments"`
	Candidates  []gatekeeper.Candidate `json:"candidates" yaml:"candidates"`
	ReportPath  string                 `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	Validation  *Validation            `json:"-" yaml:"-"`
}

// Ready returns the candidates cleared for deployment.
func (a *Assessment) Ready() []gatekeeper.Candidate {
	return gatekeeper.Ready(a.Candidates)
}

// ReleaseOptions tune one release.
type ReleaseOptions struct {
	// DryRun stages and gates without touching production.
	DryRun bool
	// Categories limits the release to these categories.
	Categories []string
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
}

// ReleaseOutcome is the result of Release.
type ReleaseOutcome struct {
	Assessment *Assessment     `json:"assessment" yaml:"assessment"`
	Result     *release.Result `json:"result" yaml:"result"`
	ReportPath string          `json:"report_path,omitempty" yaml:"report_path,omitempty"`
}

// Validate loads the candidate records and research and cross-validates them.
// Unreadable files are reported in LoadErrors and skipped.
func (c *client) Validate(ctx context.Context, categories ...string) (*Validation, error) {
	ctx = logging.WithOperation(c.withLogger(ctx), "validate")
	v := &Validation{RunID: uuid.NewString()}
	ctx = logging.WithRun(ctx, v.RunID)
	logger := logging.FromContext(ctx)

	cat, err := catalog.LoadDir(c.cfg.Paths.Source)
	if err != nil {
		v.errs = append(v.errs, err)
		logger.Warn().Err(err).Msg("some item records could not be loaded")
	}
	research, err := catalog.LoadResearchDir(c.cfg.Paths.Research)
	if err != nil {
		v.errs = append(v.errs, err)
		logger.Warn().Err(err).Msg("some research artifacts could not be loaded")
	}
	cat = cat.Filter(categories...)
	if cat.Len() == 0 {
		return nil, errors.MissingData(c.cfg.Paths.Source, "no item records to validate")
	}

	cv := c.cfg.CrossValOptions()
	dists := stats.Build(cat, c.cfg.CrossValidation.IQRMultiplier)
	for _, name := range cat.Categories() {
		logging.FromContext(logging.WithCategory(ctx, name)).Debug().
			Int("items", len(cat.Items(name))).
			Int("properties", len(cat.Properties(name))).
			Msg("category loaded")
	}
	finder := peers.NewFinder(cat, c.cfg.PeerOptions())
	result, err := crossval.New(cat, dists, finder, cv).Run(ctx)
	if err != nil {
		return nil, err
	}

	v.Items = cat.Len()
	v.Findings = result.Findings
	v.Counts = result.Count()
	v.catalog = cat
	v.research = research
	v.result = result
	for _, e := range v.errs {
		v.LoadErrors = append(v.LoadErrors, errors.Records(e)...)
	}
	logger.Info().Int("items", v.Items).Int("findings", len(v.Findings)).Msg("validation complete")
	return v, nil
}

// Assess validates, scores and gates the candidate records and writes the QA
// report.
func (c *client) Assess(ctx context.Context, categories ...string) (*Assessment, error) {
	ctx = logging.WithOperation(c.withLogger(ctx), "assess")
	v, err := c.Validate(ctx, categories...)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithRun(ctx, v.RunID)

	assessments := c.scorer.AssessAll(v.catalog, v.result, v.research)
	a := &Assessment{
		RunID:       v.RunID,
		Summary:     quality.Summarize(assessments),
		Assessments: quality.Ranked(assessments),
		Candidates:  gatekeeper.EvaluateAll(assessments, c.criteria),
		Validation:  v,
	}

	now := c.options.now()
	if c.options.reports {
		qa := report.NewQA(report.QAInput{
			RunID:       a.RunID,
			Findings:    v.result,
			Assessments: assessments,
			Candidates:  a.Candidates,
			Errors:      v.errs,
		}, now)
		if a.ReportPath, err = report.Write(report.KindQA, a.RunID, qa, c.reportOptions(now)...); err != nil {
			return nil, err
		}
	}
	c.record(ctx, history.KindAssessment, func(s *history.Store) error {
		return s.RecordAssessments(ctx, a.RunID, now, a.Candidates)
	})

	logging.FromContext(ctx).Info().
		Int("items", len(a.Candidates)).
		Int("ready", len(a.Ready())).
		Float64("mean_score", a.Summary.MeanScore).
		Msg("assessment complete")
	return a, nil
}

// Release assesses the candidate records and deploys the ready ones. The
// returned outcome is set even when err reports a fatal failure.
func (c *client) Release(ctx context.Context, opts ReleaseOptions) (*ReleaseOutcome, error) {
	ctx = logging.WithOperation(c.withLogger(ctx), "release")
	a, err := c.Assess(ctx, opts.Categories...)
	if err != nil {
		return nil, err
	}

	mgr, err := release.NewManager(c.releaseOptions(opts.DryRun, opts.BatchSize))
	if err != nil {
		return nil, err
	}
	res, runErr := mgr.Run(ctx, release.Plan{
		Catalog:    a.Validation.catalog,
		Candidates: a.Candidates,
		Categories: opts.Categories,
	})
	out := &ReleaseOutcome{Assessment: a, Result: res}

	if c.options.reports {
		now := c.options.now()
		path, err := report.Write(report.KindDeployment, res.RunID, report.NewDeployment(res, now), c.reportOptions(now)...)
		if err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("failed to write deployment report")
		}
		out.ReportPath = path
	}
	c.record(ctx, history.KindRelease, func(s *history.Store) error {
		return s.RecordRelease(ctx, res)
	})
	c.hooks.triggerReleaseFinished(res)
	return out, runErr
}

// Rollback restores production from a backup.
func (c *client) Rollback(ctx context.Context, opts release.RollbackOptions) (*release.RollbackResult, error) {
	ctx = logging.WithOperation(c.withLogger(ctx), "rollback")
	res, err := c.releases.Rollback(ctx, opts)
	if err != nil {
		return res, err
	}
	c.record(ctx, history.KindRollback, func(s *history.Store) error {
		return s.RecordRollback(ctx, res)
	})
	return res, nil
}

// Backups returns the backup manifests, newest first.
func (c *client) Backups() ([]*release.Manifest, error) {
	ids, err := c.releases.Backups()
	if err != nil {
		return nil, err
	}
	out := make([]*release.Manifest, 0, len(ids))
	for _, id := range ids {
		m, err := c.releases.Manifest(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *client) reportOptions(now time.Time) []report.Option {
	return []report.Option{
		report.WithDir(c.cfg.ReportsDir()),
		report.WithFormat(c.cfg.ReportFormat()),
		report.WithClock(func() time.Time { return now }),
	}
}
