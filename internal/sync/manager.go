package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/openwrt-feedsync/feedsync/internal/config"
	"github.com/openwrt-feedsync/feedsync/internal/filtering"
	"github.com/openwrt-feedsync/feedsync/internal/logger"
	"github.com/openwrt-feedsync/feedsync/internal/materialize"
	"github.com/openwrt-feedsync/feedsync/internal/merge"
	"github.com/openwrt-feedsync/feedsync/internal/recipe"
	"github.com/openwrt-feedsync/feedsync/internal/registry"
	"github.com/openwrt-feedsync/feedsync/internal/scanner"
	"github.com/openwrt-feedsync/feedsync/internal/sources"
	"github.com/openwrt-feedsync/feedsync/internal/status"
	"github.com/openwrt-feedsync/feedsync/internal/telemetry"
)

// LockFileName is created in the work directory and locked for the duration of a run
const LockFileName = ".feedsync.lock"

// outcomeFailed labels packages whose materialization failed in metrics
const outcomeFailed = "failed"

// Result contains the result of a sync run that was not aborted
type Result struct {
	RunID  string
	Policy string
	DryRun bool

	Counts    status.Counts
	Decisions []merge.Decision

	// Sources holds one entry per configured source, in configuration order
	Sources        []status.SourceState
	FailedPackages []status.PackageFailure

	// Pruned lists the keys removed from the output tree
	Pruned []string

	Duration time.Duration
}

// FailedSources returns the names of sources that could not be fetched or scanned
func (r *Result) FailedSources() []string {
	var failed []string
	for _, src := range r.Sources {
		if src.Error != "" {
			failed = append(failed, src.Name)
		}
	}
	return failed
}

// Manager runs sync passes for one configuration
type Manager struct {
	cfg           *config.Config
	factory       sources.SourceHandlerFactory
	filterService filtering.FilterService
	persistence   status.Persistence
	metrics       *telemetry.SyncMetrics
	dryRun        bool
	now           func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithSyncMetrics sets the metrics recorded during a run
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithDryRun makes the manager compute decisions without touching the output tree
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) {
		m.dryRun = dryRun
	}
}

// WithStatusPersistence replaces the status.json persistence in the work directory
func WithStatusPersistence(p status.Persistence) Option {
	return func(m *Manager) {
		m.persistence = p
	}
}

// NewManager creates a manager for cfg fetching sources through factory
func NewManager(cfg *config.Config, factory sources.SourceHandlerFactory, opts ...Option) *Manager {
	m := &Manager{
		cfg:           cfg,
		factory:       factory,
		filterService: filtering.NewDefaultFilterService(),
		persistence:   status.NewFilePersistence(cfg.WorkDir),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// fetched is the local snapshot of one source
type fetched struct {
	source *config.SourceConfig
	result *sources.FetchResult
	err    error
}

// Run performs one sync pass.
//
// Per-source fetch failures and per-package materialization failures are reported
// in the Result. An Error is returned only when the run could not proceed: invalid
// policy, lock held, unusable output tree, or cancellation.
func (m *Manager) Run(ctx context.Context) (*Result, *Error) {
	runID := uuid.NewString()
	start := m.now()
	result := &Result{RunID: runID, Policy: m.cfg.Policy, DryRun: m.dryRun}

	ctx = logr.NewContext(ctx, logger.NewLogr().WithValues("runId", runID))
	logger.Infow("Starting sync run",
		"runId", runID,
		"policy", m.cfg.Policy,
		"sources", len(m.cfg.Sources),
		"dryRun", m.dryRun)

	strategy, err := merge.NewStrategy(m.cfg.Policy)
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Invalid merge policy: %v", err),
			ConditionType:   ConditionConfigValid,
			ConditionReason: conditionReasonInvalidPolicy,
		}
	}

	lock, syncErr := m.acquireLock()
	if syncErr != nil {
		return nil, syncErr
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warnf("Failed to release lock %s: %v", lock.Path(), err)
		}
	}()

	previous := m.loadPreviousStatus(ctx)
	m.saveStatus(ctx, m.syncingStatus(runID, start, previous))

	result, syncErr = m.run(ctx, strategy, result)
	result.Duration = m.now().Sub(start)
	m.metrics.RecordSyncDuration(ctx, m.cfg.Policy, result.Duration, syncErr == nil)
	m.saveStatus(ctx, m.finalStatus(result, syncErr, start, previous))

	if syncErr != nil {
		logger.Errorw("Sync run failed", "runId", runID, "error", syncErr.Message)
		return nil, syncErr
	}

	logger.Infow("Sync run completed",
		"runId", runID,
		"new", result.Counts.New,
		"updated", result.Counts.Updated,
		"skipped", result.Counts.Skipped,
		"failed", result.Counts.Failed,
		"pruned", result.Counts.Pruned,
		"failedSources", len(result.FailedSources()),
		"duration", result.Duration.String())
	return result, nil
}

func (m *Manager) run(ctx context.Context, strategy merge.Strategy, result *Result) (*Result, *Error) {
	if !m.dryRun {
		if err := os.MkdirAll(m.cfg.OutputDir, 0750); err != nil {
			return result, &Error{
				Err:             err,
				Message:         fmt.Sprintf("Failed to create output directory %s: %v", m.cfg.OutputDir, err),
				ConditionType:   ConditionOutputReady,
				ConditionReason: conditionReasonOutputFailed,
			}
		}
	}

	reg, err := registry.Load(m.cfg.OutputDir, m.cfg.ReservedNames())
	if err != nil {
		return result, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Failed to read output tree: %v", err),
			ConditionType:   ConditionOutputReady,
			ConditionReason: conditionReasonRegistryFailed,
		}
	}

	snapshots := m.fetchAll(ctx)
	if err := ctx.Err(); err != nil {
		return result, canceledError(err)
	}

	descs := m.describeAll(ctx, snapshots, result)
	result.Decisions = merge.NewResolver(strategy).Resolve(descs, reg)

	if err := m.applyAll(ctx, reg, result); err != nil {
		return result, canceledError(err)
	}

	if m.cfg.Prune {
		if err := m.prune(ctx, reg, result); err != nil {
			return result, canceledError(err)
		}
	}

	m.metrics.RecordRegistryPackages(ctx, int64(reg.Len()))
	return result, nil
}

func (m *Manager) acquireLock() (*flock.Flock, *Error) {
	if err := os.MkdirAll(m.cfg.WorkDir, 0750); err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Failed to create work directory %s: %v", m.cfg.WorkDir, err),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: conditionReasonLockFailed,
		}
	}

	lock := flock.New(filepath.Join(m.cfg.WorkDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Failed to lock %s: %v", lock.Path(), err),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: conditionReasonLockFailed,
		}
	}
	if !locked {
		return nil, &Error{
			Err:             ErrLocked,
			Message:         fmt.Sprintf("%v: %s", ErrLocked, lock.Path()),
			ConditionType:   ConditionSyncSuccessful,
			ConditionReason: conditionReasonLockFailed,
		}
	}
	return lock, nil
}

// fetchAll fetches every source, at most FetchConcurrency at a time, and returns
// the snapshots in configuration order
func (m *Manager) fetchAll(ctx context.Context) []fetched {
	snapshots := make([]fetched, len(m.cfg.Sources))

	var g errgroup.Group
	g.SetLimit(max(m.cfg.FetchConcurrency, 1))
	for i := range m.cfg.Sources {
		source := &m.cfg.Sources[i]
		g.Go(func() error {
			res, err := m.fetch(ctx, source)
			snapshots[i] = fetched{source: source, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return snapshots
}

func (m *Manager) fetch(ctx context.Context, source *config.SourceConfig) (*sources.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handler, err := m.factory.CreateHandler(source.GetType())
	if err != nil {
		return nil, fmt.Errorf("failed to create source handler: %w", err)
	}
	if err := handler.Validate(source); err != nil {
		return nil, fmt.Errorf("source validation failed: %w", err)
	}
	res, err := handler.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Path == "" {
		return nil, fmt.Errorf("source handler returned no snapshot")
	}
	return res, nil
}

// describeAll scans the fetched sources and returns their packages in source order.
// Failed sources are recorded in result and contribute nothing.
func (m *Manager) describeAll(ctx context.Context, snapshots []fetched, result *Result) []recipe.Descriptor {
	var descs []recipe.Descriptor
	for _, snap := range snapshots {
		state := status.SourceState{Name: snap.source.Name}
		if snap.err != nil {
			logger.Errorw("Skipping source: fetch failed", "source", snap.source.Name, "error", snap.err)
			m.metrics.RecordFetchFailure(ctx, snap.source.Name)
			state.Error = snap.err.Error()
			result.Sources = append(result.Sources, state)
			continue
		}
		state.Revision = snap.result.Revision

		dirs, err := scanner.Scan(snap.result.Path)
		if err != nil {
			logger.Errorw("Skipping source: scan failed", "source", snap.source.Name, "error", err)
			m.metrics.RecordFetchFailure(ctx, snap.source.Name)
			state.Error = fmt.Sprintf("failed to scan %s: %v", snap.result.Path, err)
			result.Sources = append(result.Sources, state)
			continue
		}

		priority := snap.source.GetPriority()
		found := make([]recipe.Descriptor, 0, len(dirs))
		for _, dir := range dirs {
			found = append(found, recipe.Describe(dir, snap.source.Name, priority))
		}
		include, exclude := snap.source.NamePatterns()
		kept, excluded := m.filterService.ApplyFilters(found, include, exclude)
		descs = append(descs, kept...)

		state.Packages = len(kept)
		state.Excluded = excluded
		logger.Infof("Source '%s': found %d packages, %d excluded by filters", snap.source.Name, len(dirs), excluded)
		result.Sources = append(result.Sources, state)
	}
	return descs
}

// applyAll materializes the decisions that need it. Only cancellation is returned;
// package failures are recorded in result.
func (m *Manager) applyAll(ctx context.Context, reg *registry.Registry, result *Result) error {
	mat := materialize.New(reg)
	for _, d := range result.Decisions {
		if err := ctx.Err(); err != nil {
			return err
		}
		winner := d.Winner

		if d.Materialize && !m.dryRun {
			if err := mat.Apply(ctx, d); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Errorw("Failed to materialize package",
					"package", winner.Name.Effective,
					"source", winner.SourceID,
					"error", err)
				result.Counts.Failed++
				result.FailedPackages = append(result.FailedPackages, status.PackageFailure{
					Name:   winner.Name.Effective,
					Source: winner.SourceID,
					Error:  err.Error(),
				})
				m.metrics.RecordPackage(ctx, winner.SourceID, outcomeFailed)
				continue
			}
		}

		logger.Debugw("Resolved package",
			"package", winner.Name.Effective,
			"source", winner.SourceID,
			"version", winner.Version,
			"release", winner.Release,
			"outcome", d.Outcome.String(),
			"materialize", d.Materialize,
			"candidates", len(d.Losers)+1)
		countOutcome(&result.Counts, d.Outcome)
		m.metrics.RecordPackage(ctx, winner.SourceID, d.Outcome.String())
	}
	return nil
}

// prune removes packages no source produced this run. It does nothing when any
// source failed, since a missing source would otherwise erase its packages.
func (m *Manager) prune(ctx context.Context, reg *registry.Registry, result *Result) error {
	if failed := result.FailedSources(); len(failed) > 0 {
		logger.Warnf("Not pruning: %d source(s) failed: %v", len(failed), failed)
		return nil
	}

	produced := make(map[string]bool, len(result.Decisions))
	for _, d := range result.Decisions {
		produced[d.Key()] = true
	}

	mat := materialize.New(reg)
	for _, key := range reg.Keys() {
		if produced[key] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !m.dryRun {
			if err := mat.Prune(ctx, key); err != nil {
				logger.Errorw("Failed to prune package", "package", key, "error", err)
				continue
			}
		}
		logger.Infof("Pruned package %s", key)
		result.Counts.Pruned++
		result.Pruned = append(result.Pruned, key)
	}
	return nil
}

func countOutcome(counts *status.Counts, outcome merge.Outcome) {
	switch outcome {
	case merge.OutcomeNew:
		counts.New++
	case merge.OutcomeUpdated:
		counts.Updated++
	case merge.OutcomeSkipped:
		counts.Skipped++
	}
}

func canceledError(err error) *Error {
	return &Error{
		Err:             err,
		Message:         fmt.Sprintf("Sync run interrupted: %v", err),
		ConditionType:   ConditionSyncSuccessful,
		ConditionReason: conditionReasonCanceled,
	}
}
