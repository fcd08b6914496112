package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/identity"
	"github.com/trezcool/carematrix/core/matrix"
	"github.com/trezcool/carematrix/core/training"
)

// Location statuses
const (
	StatusReconciled   LocationStatus = "reconciled"
	StatusFailed       LocationStatus = "failed"
	StatusNotProcessed LocationStatus = "not_processed"
)

type LocationStatus string

type (
	// MatrixInput is one location's export.
	MatrixInput struct {
		Location string     // location ID, code or name
		Grid     [][]string // raw cells
		Source   string     // file name or origin, for reports
	}

	RunOptions struct {
		// DryRun decides without writing records, observations or anomalies.
		DryRun bool
	}

	LocationResult struct {
		Input         string         `json:"input"`
		Source        string         `json:"source,omitempty"`
		LocationID    string         `json:"location_id,omitempty"`
		Status        LocationStatus `json:"status"`
		Cells         int            `json:"cells"`
		WritesPlanned int            `json:"writes_planned"`
		WritesApplied int            `json:"writes_applied"`
		Held          int            `json:"held"`
		Unchanged     int            `json:"unchanged"`
		Anomalies     int            `json:"anomalies"`
		Error         string         `json:"error,omitempty"`
	}

	RunResult struct {
		RunID         string             `json:"run_id"`
		DryRun        bool               `json:"dry_run"`
		StartedAt     time.Time          `json:"started_at"`
		FinishedAt    time.Time          `json:"finished_at"`
		WritesApplied int                `json:"writes_applied"`
		Held          int                `json:"held"`
		Locations     []LocationResult   `json:"locations"`
		Anomalies     []training.Anomaly `json:"anomalies"`
	}
)

// locationRun carries one input through the phases.
type locationRun struct {
	input      MatrixInput
	result     LocationResult
	resolution *Resolution
	anomalies  []training.Anomaly
}

func (lr *locationRun) fail(kind training.AnomalyKind, status LocationStatus, err error) {
	lr.result.Status = status
	lr.result.Error = err.Error()
	lr.anomalies = append(lr.anomalies, training.Anomaly{
		Kind:       kind,
		LocationID: lr.result.LocationID,
		Raw:        lr.input.Location,
		Detail:     err.Error(),
	})
}

// Pipeline runs matrix reconciliation for a batch of locations.
type Pipeline struct {
	store    training.Store
	engine   *Engine
	logger   core.Logger
	recorder Recorder
	notifier *ReviewNotifier
	conf     core.ReconcileConfig

	now   func() time.Time
	newID func() string
}

func NewPipeline(store training.Store, logger core.Logger, recorder Recorder, conf core.ReconcileConfig) *Pipeline {
	if recorder == nil {
		recorder = NopRecorder()
	}
	return &Pipeline{
		store:    store,
		engine:   NewEngine(store, logger, OptionsFromConfig(conf)),
		logger:   logger,
		recorder: recorder,
		conf:     conf,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// NotifyReviewers makes every run that leaves anomalies email a digest through n.
func (p *Pipeline) NotifyReviewers(n *ReviewNotifier) *Pipeline {
	p.notifier = n
	return p
}

// Run parses and resolves every input, compares stated validity periods across
// locations, then reconciles each location against the store. The whole run is bound
// by the configured deadline: locations not started by then are NotProcessed, while
// writes already decided are still applied.
// Run always returns a result; the error reports what kept it from being complete
// (directory unavailable, anomalies not persisted).
func (p *Pipeline) Run(ctx context.Context, inputs []MatrixInput, opts RunOptions) (*RunResult, error) {
	res := &RunResult{RunID: p.newID(), DryRun: opts.DryRun, StartedAt: p.now()}
	detached := context.WithoutCancel(ctx)

	runCtx, cancel := p.withDeadline(ctx)
	defer cancel()

	runs := make([]*locationRun, len(inputs))
	for i, in := range inputs {
		runs[i] = &locationRun{input: in, result: LocationResult{Input: in.Location, Source: in.Source}}
	}

	var (
		global []training.Anomaly
		runErr error
	)
	snap, err := training.LoadSnapshot(runCtx, p.store)
	if err != nil {
		runErr = errors.Wrap(err, "directory unavailable")
		for _, lr := range runs {
			lr.fail(training.AnomalyLocationFailed, StatusFailed, runErr)
		}
	} else {
		p.prepare(runCtx, snap, runs)

		var check ValidityCheck
		check, global, err = p.checkValidity(runCtx, snap, runs, opts)
		if err != nil {
			runErr = err
			for _, lr := range runs {
				if lr.result.Status == "" {
					lr.fail(training.AnomalyLocationFailed, StatusFailed, err)
				}
			}
		}
		p.reconcile(runCtx, detached, snap, check, runs, opts)
	}

	p.collect(res, global, runs)
	res.FinishedAt = p.now()

	if !opts.DryRun && len(res.Anomalies) > 0 {
		if err := p.store.SaveAnomalies(detached, res.Anomalies); err != nil {
			p.logger.Error("saving anomalies", errors.Wrap(err, "saving anomalies"), map[string]interface{}{"run": res.RunID})
			if runErr == nil {
				runErr = errors.Wrap(err, "saving anomalies")
			}
		}
	}

	p.recorder.RunFinished(opts.DryRun, res.FinishedAt.Sub(res.StartedAt))
	p.recorder.WritesHeld(res.Held)
	counts := make(map[training.AnomalyKind]int)
	for _, a := range res.Anomalies {
		counts[a.Kind]++
	}
	for kind, n := range counts {
		p.recorder.AnomaliesFound(kind, n)
	}

	p.logger.Info("reconciliation run finished", map[string]interface{}{
		"run":       res.RunID,
		"dryRun":    res.DryRun,
		"locations": len(res.Locations),
		"writes":    res.WritesApplied,
		"held":      res.Held,
		"anomalies": len(res.Anomalies),
		"duration":  res.FinishedAt.Sub(res.StartedAt).String(),
	})

	if err := p.notifier.Notify(res); err != nil {
		p.logger.Error("notifying reviewers", err, map[string]interface{}{"run": res.RunID})
	}
	return res, runErr
}

// prepare resolves the location, parses and resolves the matrix of every input, in parallel.
func (p *Pipeline) prepare(ctx context.Context, snap *training.Snapshot, runs []*locationRun) {
	parser := matrix.NewParser(p.conf.HeaderScanRows)

	var g errgroup.Group
	g.SetLimit(p.locationConcurrency())
	for _, lr := range runs {
		lr := lr
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				lr.fail(training.AnomalyNotProcessed, StatusNotProcessed, errors.Wrap(err, "run deadline reached before parsing"))
				return nil
			}

			loc := identity.ResolveLocation(snap, lr.input.Location)
			if !loc.OK() {
				lr.fail(training.AnomalyLocationFailed, StatusFailed, errors.Errorf("location %q: %s", lr.input.Location, loc.Outcome))
				return nil
			}
			lr.result.LocationID = loc.ID

			parsed, err := parser.Parse(lr.input.Grid)
			if err != nil {
				kind := training.AnomalyLocationFailed
				if errors.Is(err, matrix.ErrHeaderNotFound) {
					kind = training.AnomalyHeaderNotFound
				}
				lr.fail(kind, StatusFailed, err)
				return nil
			}

			lr.resolution = Resolve(parsed, identity.NewResolver(snap, loc.ID), p.now())
			lr.anomalies = append(lr.anomalies, lr.resolution.Anomalies...)
			lr.result.Cells = len(lr.resolution.Cells)
			return nil
		})
	}
	_ = g.Wait()

	// two exports of one location would race on the same keys
	seen := make(map[string]string)
	for _, lr := range runs {
		if lr.resolution == nil {
			continue
		}
		id := lr.result.LocationID
		if first, ok := seen[id]; ok {
			lr.resolution = nil
			lr.fail(training.AnomalyLocationFailed, StatusFailed, errors.Errorf("location already imported in this run from %q", first))
			continue
		}
		seen[id] = lr.input.Location
	}
}

// checkValidity runs the cross-location comparison and persists this run's observations.
func (p *Pipeline) checkValidity(ctx context.Context, snap *training.Snapshot, runs []*locationRun, opts RunOptions) (ValidityCheck, []training.Anomaly, error) {
	var current []training.ValidityObservation
	for _, lr := range runs {
		if lr.resolution != nil {
			current = append(current, lr.resolution.Observations...)
		}
	}

	stored, err := p.store.ListValidityObservations(ctx)
	if err != nil {
		return ValidityCheck{}, nil, errors.Wrap(err, "listing validity observations")
	}
	check := CheckValidity(snap, current, stored)

	if !opts.DryRun && len(current) > 0 {
		if err := p.store.SaveValidityObservations(ctx, current); err != nil {
			p.logger.Error("saving validity observations", errors.Wrap(err, "saving validity observations"))
		}
	}
	return check, check.Anomalies, nil
}

// reconcile decides and applies each location's writes, in parallel.
func (p *Pipeline) reconcile(ctx, detached context.Context, snap *training.Snapshot, check ValidityCheck, runs []*locationRun, opts RunOptions) {
	var g errgroup.Group
	g.SetLimit(p.locationConcurrency())
	for _, lr := range runs {
		if lr.resolution == nil || lr.result.Status != "" {
			continue
		}
		lr := lr
		g.Go(func() error {
			p.reconcileLocation(ctx, detached, snap, check, lr, opts)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) reconcileLocation(ctx, detached context.Context, snap *training.Snapshot, check ValidityCheck, lr *locationRun, opts RunOptions) {
	if err := ctx.Err(); err != nil {
		lr.fail(training.AnomalyNotProcessed, StatusNotProcessed, errors.Wrap(err, "run deadline reached before reconciliation"))
		return
	}

	locationID := lr.result.LocationID
	stored, err := p.store.ListRecordsByLocation(ctx, locationID)
	if err != nil {
		if ctx.Err() != nil {
			lr.fail(training.AnomalyNotProcessed, StatusNotProcessed, errors.Wrap(err, "run deadline reached before reconciliation"))
			return
		}
		lr.fail(training.AnomalyLocationFailed, StatusFailed, errors.Wrap(err, "listing training records"))
		return
	}

	plan := p.engine.Decide(locationID, lr.resolution.Cells, stored, snap, check)
	lr.anomalies = append(lr.anomalies, plan.Anomalies...)
	lr.result.WritesPlanned = len(plan.Writes)
	lr.result.Held = plan.Held
	lr.result.Unchanged = plan.Unchanged
	lr.result.Status = StatusReconciled

	if opts.DryRun {
		return
	}
	applied, failed := p.engine.Apply(detached, plan)
	lr.anomalies = append(lr.anomalies, failed...)
	lr.result.WritesApplied = applied
	p.recorder.WritesApplied(locationID, applied)
}

// collect stamps the anomalies with the run and sums up the locations, in input order.
func (p *Pipeline) collect(res *RunResult, global []training.Anomaly, runs []*locationRun) {
	add := func(a training.Anomaly) {
		a.ID = p.newID()
		a.RunID = res.RunID
		a.CreatedAt = res.StartedAt
		res.Anomalies = append(res.Anomalies, a)
	}
	for _, a := range global {
		add(a)
	}
	for _, lr := range runs {
		for _, a := range lr.anomalies {
			add(a)
		}
		lr.result.Anomalies = len(lr.anomalies)
		res.WritesApplied += lr.result.WritesApplied
		res.Held += lr.result.Held
		res.Locations = append(res.Locations, lr.result)
		p.recorder.LocationFinished(lr.result.LocationID, lr.result.Status)
	}
}

func (p *Pipeline) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.conf.Deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.conf.Deadline)
}

func (p *Pipeline) locationConcurrency() int {
	if p.conf.LocationConcurrency < 1 {
		return 1
	}
	return p.conf.LocationConcurrency
}
