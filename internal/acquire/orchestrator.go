// Package acquire implements the resource acquisition pipeline: resolve
// candidates, validate and check the preferred one, and hand the failure to
// the fallback cascade when it cannot be served. The orchestrator is the only
// component that mutates a resource's status.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/haven-project/haven/internal/backup"
	"github.com/haven-project/haven/internal/cascade"
	"github.com/haven-project/haven/internal/integrity"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/lock"
	"github.com/haven-project/haven/internal/registry"
	"github.com/haven-project/haven/internal/resolve"
	"github.com/haven-project/haven/internal/retry"
	"github.com/haven-project/haven/internal/validate"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/metrics"
	"github.com/haven-project/haven/pkg/model"
)

// Options bundles the collaborators the orchestrator drives.
type Options struct {
	Resolver    *resolve.Resolver
	Validator   *validate.Validator
	Checker     *integrity.Checker
	Classifier  *errclass.Classifier
	Store       *backup.Store
	Cascade     *cascade.Cascade
	Locks       *lock.Manager
	Registry    *registry.Manager
	Journal     *journal.Appender
	Metrics     *metrics.Metrics
	RetryPolicy retry.Policy
	Logger      zerolog.Logger
}

// Orchestrator coordinates acquisition for every resource sharing one vault.
type Orchestrator struct {
	resolver   *resolve.Resolver
	validator  *validate.Validator
	checker    *integrity.Checker
	classifier *errclass.Classifier
	store      *backup.Store
	cascade    *cascade.Cascade
	locks      *lock.Manager
	registry   *registry.Manager
	journal    *journal.Appender
	metrics    *metrics.Metrics
	log        zerolog.Logger

	general  *retry.Executor
	database *retry.Executor

	mu sync.Mutex
	// resourceMu serializes in-process acquisition per resource; the advisory
	// lock handles other processes.
	resourceMu map[string]*sync.Mutex
	// ephemeral marks resources that fell all the way to an ephemeral
	// stand-in. Terminal for this process: later acquisitions must not
	// silently migrate the caller back to persistent storage.
	ephemeral map[string]bool
	handles   map[string]*Handle
}

// New creates an orchestrator from opts.
func New(opts Options) *Orchestrator {
	if opts.Classifier == nil {
		opts.Classifier = errclass.NewClassifier()
	}
	if opts.RetryPolicy.MaxAttempts == 0 {
		opts.RetryPolicy = retry.DefaultPolicy()
	}
	return &Orchestrator{
		resolver:   opts.Resolver,
		validator:  opts.Validator,
		checker:    opts.Checker,
		classifier: opts.Classifier,
		store:      opts.Store,
		cascade:    opts.Cascade,
		locks:      opts.Locks,
		registry:   opts.Registry,
		journal:    opts.Journal,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		general:    retry.NewExecutor(opts.RetryPolicy, opts.Classifier, opts.Logger),
		database:   retry.NewExecutor(retry.DatabasePolicy(), opts.Classifier, opts.Logger),
		resourceMu: make(map[string]*sync.Mutex),
		ephemeral:  make(map[string]bool),
		handles:    make(map[string]*Handle),
	}
}

// Acquire runs the full pipeline for desc and returns an open handle plus a
// snapshot of the resulting status. The handle holds the advisory lock until
// Close.
func (o *Orchestrator) Acquire(ctx context.Context, desc model.ResourceDescriptor) (*Handle, *model.ResourceStatus, error) {
	resMu := o.resourceMutex(desc.Name)
	resMu.Lock()
	defer resMu.Unlock()

	o.mu.Lock()
	if o.ephemeral[desc.Name] {
		o.mu.Unlock()
		return nil, nil, errclass.ErrEphemeralTerminal.WithMessagef(
			"resource %s is ephemeral for this session; restart to reattach persistent storage", desc.Name)
	}
	if existing, open := o.handles[desc.Name]; open {
		o.mu.Unlock()
		return nil, nil, errclass.ErrLockConflict.WithMessagef(
			"resource %s already has an open handle (path %s)", desc.Name, existing.status.Path)
	}
	o.mu.Unlock()

	start := time.Now()
	o.appendJournal(model.EventAcquireStart, desc.Name, map[string]any{
		"kind": string(desc.Kind),
		"mode": string(desc.Mode),
	})

	lockRec, err := o.acquireLock(desc.Name)
	if err != nil {
		o.appendJournal(model.EventAcquireFailed, desc.Name, map[string]any{"error": err.Error()})
		return nil, nil, err
	}

	status, err := o.runPipeline(ctx, desc)
	if err != nil {
		o.locks.Release(desc.Name, lockRec.HolderNonce)
		o.appendJournal(model.EventAcquireFailed, desc.Name, map[string]any{"error": err.Error()})
		return nil, nil, err
	}

	if _, err := o.registry.Register(desc); err != nil {
		o.locks.Release(desc.Name, lockRec.HolderNonce)
		return nil, nil, fmt.Errorf("register resource: %w", err)
	}
	if err := o.registry.RecordAcquisition(desc.Name, status.Path, status.Mode, status.DataLossWarning); err != nil {
		o.log.Warn().Str("resource", desc.Name).Err(err).Msg("record acquisition failed")
	}

	o.appendJournal(model.EventAcquireComplete, desc.Name, map[string]any{
		"path":              status.Path,
		"mode":              string(status.Mode),
		"data_loss_warning": status.DataLossWarning,
		"retry_count":       status.RetryCount,
	})
	if o.metrics != nil {
		o.metrics.ObserveAcquisition(desc.Name, string(status.Mode), time.Since(start))
		o.metrics.ObserveRetries(status.RetryCount)
	}

	h := &Handle{
		orch:    o,
		desc:    desc,
		status:  status,
		lockRec: lockRec,
		done:    make(chan struct{}),
	}
	h.startLeaseRenewal()
	if status.Mode != model.OperatingEphemeral {
		if err := h.startWatcher(); err != nil {
			o.log.Warn().Str("resource", desc.Name).Err(err).
				Msg("filesystem watcher unavailable, tamper detection disabled")
		}
	}

	o.mu.Lock()
	o.handles[desc.Name] = h
	if status.Mode == model.OperatingEphemeral {
		o.ephemeral[desc.Name] = true
	}
	o.mu.Unlock()

	o.log.Info().Str("resource", desc.Name).Str("path", status.Path).
		Str("mode", string(status.Mode)).Bool("data_loss_warning", status.DataLossWarning).
		Msg("resource acquired")

	return h, status.Clone(), nil
}

// runPipeline resolves candidates and validates the preferred one; any
// failure there hands the remaining candidates to the cascade.
func (o *Orchestrator) runPipeline(ctx context.Context, desc model.ResourceDescriptor) (*model.ResourceStatus, error) {
	status := &model.ResourceStatus{
		Resource:   desc.Name,
		AcquiredAt: time.Now().UTC(),
	}

	candidates, err := o.resolver.Resolve(ctx, desc)
	if err != nil {
		return nil, err
	}

	executor := o.general
	if desc.Kind == model.KindDatabase {
		executor = o.database
	}

	var guards []model.BackupID
	primary := candidates[0]
	result, primaryErr := executor.Do(ctx, "acquire "+desc.Name, func(ctx context.Context) error {
		return o.tryCandidate(ctx, desc, primary, &guards)
	})
	status.RetryCount += result.Attempts
	if primaryErr == nil {
		status.Path = primary.Path
		status.Mode = model.OperatingPrimary
		o.releaseGuards(desc.Name, guards)
		return status, nil
	}
	if errors.Is(primaryErr, context.Canceled) || errors.Is(primaryErr, context.DeadlineExceeded) {
		return nil, primaryErr
	}

	analysis := result.LastAnalysis
	status.LastAnalysis = &analysis
	o.log.Warn().Str("resource", desc.Name).Str("path", primary.Path).
		Str("error_kind", string(analysis.Kind)).Err(primaryErr).
		Msg("preferred candidate unusable, entering recovery")

	outcome, err := o.cascade.Run(ctx, desc, candidates, primary.Rank)
	status.Attempts = outcome.Attempts
	if o.metrics != nil {
		for _, a := range outcome.Attempts {
			o.metrics.ObserveRecoveryAttempt(string(a.Strategy), string(a.Outcome))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resource %s unrecoverable: %w", desc.Name, err)
	}

	status.Path = outcome.Path
	status.Mode = outcome.Mode
	status.DataLossWarning = outcome.DataLossWarning
	status.LastAnalysis = nil

	// The cascade validated its product, but re-enter the validator once more
	// so the final state reported to the caller is a fresh observation.
	if isFilesystemPath(status.Path) {
		if res, err := o.validator.Validate(ctx, status.Path, desc.Mode); err != nil || !res.Satisfies(desc.Mode) {
			return nil, errclass.ErrCascadeExhausted.WithMessagef(
				"resource %s: recovered path %s failed post-recovery validation", desc.Name, status.Path)
		}
	}
	o.releaseGuards(desc.Name, append(guards, outcome.ProtectiveSnapshots...))
	return status, nil
}

// releaseGuards marks pre-recovery snapshots released once the acquisition
// they protected is confirmed, returning them to the retention pool.
func (o *Orchestrator) releaseGuards(resource string, ids []model.BackupID) {
	for _, id := range ids {
		if err := o.store.Release(resource, id); err != nil {
			o.log.Warn().Str("resource", resource).Str("backup_id", id.ShortID()).
				Err(err).Msg("release protective snapshot failed")
		}
	}
}

// tryCandidate validates one candidate end to end: parent creation, access
// probes, and a structural check with a single repair pass for databases.
// Snapshots taken to guard a repair are appended to guards; the caller
// releases them once the acquisition is confirmed.
func (o *Orchestrator) tryCandidate(ctx context.Context, desc model.ResourceDescriptor, cand model.Candidate, guards *[]model.BackupID) error {
	if err := o.resolver.EnsureParent(cand, desc.Mode); err != nil {
		return err
	}

	result, err := o.validator.Validate(ctx, cand.Path, desc.Mode)
	if err != nil {
		return err
	}
	if !result.Satisfies(desc.Mode) {
		return errclass.ErrPermissionDenied.WithMessagef(
			"path %s: %s", cand.Path, result.Detail)
	}
	if result.Level == model.AccessPathMissing {
		// Create-if-absent with a writable parent: nothing on disk to check.
		return nil
	}

	report := o.checker.Check(ctx, cand.Path, desc.Kind, desc.BundleManifest)
	if report.State == model.IntegrityRepairable && desc.Kind == model.KindDatabase && desc.Mode.AllowsWrite() {
		// Repair rewrites the file in place, so the damaged bytes must be in
		// the store before anything touches them. The raw payload is copied
		// byte-for-byte; the vacuum clone engine fails on damaged databases.
		raw := desc
		raw.Kind = model.KindFile
		guard, snapErr := o.store.Snapshot(ctx, raw, cand.Path, "repair")
		if snapErr != nil {
			o.appendJournal(model.EventRepairAttempt, desc.Name, map[string]any{
				"path":      cand.Path,
				"succeeded": false,
				"detail":    "pre-repair snapshot failed: " + snapErr.Error(),
			})
			o.log.Warn().Str("resource", desc.Name).Str("path", cand.Path).Err(snapErr).
				Msg("pre-repair snapshot failed, repair not attempted")
		} else {
			*guards = append(*guards, guard.ID)
			repaired, repairErr := o.checker.Repair(ctx, cand.Path, desc.Kind)
			o.appendJournal(model.EventRepairAttempt, desc.Name, map[string]any{
				"path":      cand.Path,
				"succeeded": repairErr == nil && repaired.Healthy(),
			})
			if repairErr == nil && repaired.Healthy() {
				return nil
			}
			report = repaired
		}
	}
	if !report.Healthy() {
		return errclass.ErrCorrupt.WithMessagef(
			"path %s failed integrity check: %s", cand.Path, report.State)
	}
	return nil
}

// acquireLock takes the advisory lock, stealing a lease only when it has
// verifiably expired.
func (o *Orchestrator) acquireLock(resource string) (*model.LockRecord, error) {
	rec, err := o.locks.Acquire(resource, "acquire")
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, errclass.ErrLockConflict) {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	state, _, stateErr := o.locks.Status(resource)
	if stateErr == nil && state == model.LockStateExpired {
		o.log.Warn().Str("resource", resource).Msg("stealing expired advisory lock")
		return o.locks.Steal(resource, "acquire")
	}
	return nil, err
}

// Status returns the live status for an open resource, or the last recorded
// serving state from the registry when no handle is open.
func (o *Orchestrator) Status(name string) (*model.ResourceStatus, error) {
	o.mu.Lock()
	h, open := o.handles[name]
	o.mu.Unlock()
	if open {
		return h.Status(), nil
	}

	entry, err := o.registry.Get(name)
	if err != nil {
		return nil, err
	}
	status := &model.ResourceStatus{
		Resource:        entry.Descriptor.Name,
		Path:            entry.ActivePath,
		Mode:            entry.Mode,
		DataLossWarning: entry.DataLossWarning,
	}
	if entry.LastAcquiredAt != nil {
		status.AcquiredAt = *entry.LastAcquiredAt
	}
	return status, nil
}

// HealthCheck re-validates every open resource and returns the statuses.
func (o *Orchestrator) HealthCheck(ctx context.Context) ([]*model.ResourceStatus, error) {
	o.mu.Lock()
	open := make([]*Handle, 0, len(o.handles))
	for _, h := range o.handles {
		open = append(open, h)
	}
	o.mu.Unlock()

	var out []*model.ResourceStatus
	for _, h := range open {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		h.HealthCheck(ctx)
		out = append(out, h.Status())
	}
	o.updateDegradedGauge()
	return out, nil
}

// Close releases every open handle.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	open := make([]*Handle, 0, len(o.handles))
	for _, h := range o.handles {
		open = append(open, h)
	}
	o.mu.Unlock()

	var firstErr error
	for _, h := range open {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (o *Orchestrator) resourceMutex(name string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.resourceMu[name]
	if !ok {
		m = &sync.Mutex{}
		o.resourceMu[name] = m
	}
	return m
}

func (o *Orchestrator) appendJournal(event model.JournalEventType, resource string, details map[string]any) {
	if err := o.journal.Append(event, resource, "", details); err != nil {
		o.log.Warn().Str("resource", resource).Err(err).Msg("journal append failed")
	}
}

func (o *Orchestrator) updateDegradedGauge() {
	if o.metrics == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	degraded := 0
	for _, h := range o.handles {
		if h.Status().Degraded {
			degraded++
		}
	}
	o.metrics.SetDegradedResources(degraded)
}

func (o *Orchestrator) dropHandle(name string) {
	o.mu.Lock()
	delete(o.handles, name)
	o.mu.Unlock()
}

// isFilesystemPath filters out in-memory database DSNs, which have no file
// to validate or watch.
func isFilesystemPath(path string) bool {
	return !strings.HasPrefix(path, "file:") || !strings.Contains(path, "mode=memory")
}

// Handle is an open resource. It owns the advisory lock lease and the
// tamper-detection watcher for the lifetime of the acquisition.
type Handle struct {
	orch    *Orchestrator
	desc    model.ResourceDescriptor
	lockRec *model.LockRecord

	statusMu sync.Mutex
	status   *model.ResourceStatus

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// Path returns the usable location; an in-memory DSN for ephemeral databases.
func (h *Handle) Path() string {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	return h.status.Path
}

// Mode returns the operating mode the acquisition settled on.
func (h *Handle) Mode() model.OperatingMode {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	return h.status.Mode
}

// Status returns a snapshot of the current status.
func (h *Handle) Status() *model.ResourceStatus {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	return h.status.Clone()
}

// HealthCheck re-probes access and structure for the open resource and
// updates the status. A failed check marks the resource degraded but does not
// close the handle; the caller decides whether to re-acquire.
func (h *Handle) HealthCheck(ctx context.Context) *model.ResourceStatus {
	path := h.Path()
	healthy := true
	detail := ""

	if isFilesystemPath(path) {
		if res, err := h.orch.validator.Validate(ctx, path, h.desc.Mode); err != nil || !res.Satisfies(h.desc.Mode) {
			healthy = false
			if err != nil {
				detail = err.Error()
			} else {
				detail = res.Detail
			}
		} else if res.Level != model.AccessPathMissing {
			report := h.orch.checker.Check(ctx, path, h.desc.Kind, h.desc.BundleManifest)
			if !report.Healthy() {
				healthy = false
				detail = fmt.Sprintf("integrity %s", report.State)
			}
		}
	}

	h.statusMu.Lock()
	h.status.LastHealthCheck = time.Now().UTC()
	h.status.Degraded = !healthy
	if healthy {
		h.status.LastAnalysis = nil
	} else {
		analysis := h.orch.classifier.Classify(
			errclass.ErrCorrupt.WithMessage(detail),
			map[string]string{"resource": h.desc.Name, "path": path})
		h.status.LastAnalysis = &analysis
	}
	snapshot := h.status.Clone()
	h.statusMu.Unlock()

	h.orch.appendJournal(model.EventHealthCheck, h.desc.Name, map[string]any{
		"path":    path,
		"healthy": healthy,
		"detail":  detail,
	})
	if h.orch.metrics != nil {
		h.orch.metrics.ObserveHealthCheck(healthy)
	}
	if !healthy {
		h.orch.log.Warn().Str("resource", h.desc.Name).Str("path", path).
			Str("detail", detail).Msg("health check failed, resource degraded")
	}
	return snapshot
}

// Close stops background work and releases the advisory lock. Idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.watcher != nil {
			h.watcher.Close()
		}
		h.wg.Wait()
		h.closeErr = h.orch.locks.Release(h.desc.Name, h.lockRec.HolderNonce)
		h.orch.dropHandle(h.desc.Name)
	})
	return h.closeErr
}

// startLeaseRenewal keeps the advisory lease alive while the handle is open.
func (h *Handle) startLeaseRenewal() {
	interval := time.Until(h.lockRec.ExpiresAt) / 3
	if interval <= 0 {
		interval = time.Second
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				rec, err := h.orch.locks.Renew(h.desc.Name, h.lockRec.HolderNonce)
				if err != nil {
					h.orch.log.Warn().Str("resource", h.desc.Name).Err(err).
						Msg("lease renewal failed")
					continue
				}
				h.lockRec.ExpiresAt = rec.ExpiresAt
			}
		}
	}()
}

// startWatcher watches the resource's parent directory and marks the status
// degraded when the open path is removed or replaced underneath the caller.
func (h *Handle) startWatcher() error {
	path := h.Path()
	if !isFilesystemPath(path) {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the parent so removal of the resource itself is still observed.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	h.watcher = w

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-h.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					h.markDegraded(fmt.Sprintf("path removed or renamed (%s)", ev.Op))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				h.orch.log.Warn().Str("resource", h.desc.Name).Err(err).
					Msg("watcher error")
			}
		}
	}()
	return nil
}

func (h *Handle) markDegraded(detail string) {
	h.statusMu.Lock()
	h.status.Degraded = true
	h.statusMu.Unlock()

	h.orch.log.Warn().Str("resource", h.desc.Name).Str("detail", detail).
		Msg("open resource changed on disk, marked degraded")
	h.orch.appendJournal(model.EventHealthCheck, h.desc.Name, map[string]any{
		"path":    h.Path(),
		"healthy": false,
		"detail":  detail,
	})
	h.orch.updateDegradedGauge()
}
