package haven

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/haven-project/haven/internal/acquire"
	"github.com/haven-project/haven/internal/backup"
	"github.com/haven-project/haven/internal/cascade"
	"github.com/haven-project/haven/internal/compression"
	"github.com/haven-project/haven/internal/diff"
	"github.com/haven-project/haven/internal/doctor"
	"github.com/haven-project/haven/internal/gc"
	"github.com/haven-project/haven/internal/integrity"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/lock"
	"github.com/haven-project/haven/internal/registry"
	"github.com/haven-project/haven/internal/resolve"
	"github.com/haven-project/haven/internal/retry"
	"github.com/haven-project/haven/internal/validate"
	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/config"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/logging"
	"github.com/haven-project/haven/pkg/metrics"
	"github.com/haven-project/haven/pkg/model"
	"github.com/haven-project/haven/pkg/webhook"
)

// Options configures client construction. The zero value opens the default
// vault with the configuration stored inside it.
type Options struct {
	// VaultDir is the state directory; empty selects the per-user default.
	VaultDir string
	// Config overrides the vault's config.yaml when non-nil.
	Config *config.Config
	// Logger overrides the logger built from the config when non-nil.
	Logger *zerolog.Logger
}

// Client is the high-level entry point for host applications: it wires the
// acquisition pipeline, backup store, and diagnostics over one vault.
type Client struct {
	vault     *vault.Vault
	cfg       *config.Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	journal   *journal.Appender
	store     *backup.Store
	registry  *registry.Manager
	locks     *lock.Manager
	orch      *acquire.Orchestrator
	differ    *diff.Differ
	webhooks  *webhook.Client
	resolver  *resolve.Resolver
	validator *validate.Validator
	checker   *integrity.Checker
}

// Open opens an existing vault. Use OpenOrInit when the vault may not exist
// yet.
func Open(opts Options) (*Client, error) {
	return build(opts, false)
}

// OpenOrInit opens the vault, initializing it first when absent. This is the
// recommended entry point for application startup.
func OpenOrInit(opts Options) (*Client, error) {
	return build(opts, true)
}

// OpenDefault opens or initializes the per-user default vault.
func OpenDefault() (*Client, error) {
	return OpenOrInit(Options{})
}

func build(opts Options, initIfAbsent bool) (*Client, error) {
	dir := opts.VaultDir
	if dir == "" {
		var err error
		dir, err = vault.DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	var v *vault.Vault
	var err error
	if initIfAbsent {
		v, err = vault.OpenOrInit(dir)
	} else {
		v, err = vault.Open(dir)
	}
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg == nil {
		cfg, err = config.Load(dir)
		if err != nil {
			return nil, err
		}
	}

	var log zerolog.Logger
	if opts.Logger != nil {
		log = *opts.Logger
	} else {
		log, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}

	level := cfg.Compression
	if level == "" {
		level = "default"
	}
	compressor, err := compression.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("configure compression: %w", err)
	}

	jrn := journal.NewAppender(v.JournalPath())
	classifier := errclass.NewClassifier(cfg.Languages...)
	store := backup.NewStore(v, jrn, model.RetentionPolicy{
		KeepLast: cfg.Retention.KeepLast,
		MaxAge:   cfg.Retention.MaxAge,
	}, compressor, logging.Component(log, "backup"))

	resolver := resolve.NewResolver(cfg.AppName, logging.Component(log, "resolve"))
	validator := validate.NewValidator(cfg.AppName, logging.Component(log, "validate"))
	checker := integrity.NewChecker(logging.Component(log, "integrity"))
	lockPolicy := model.DefaultLockPolicy()
	if cfg.Lock.LeaseTTL > 0 {
		lockPolicy.DefaultLeaseTTL = cfg.Lock.LeaseTTL
	}
	locks := lock.NewManager(v, lockPolicy)
	reg := registry.NewManager(v)
	met := metrics.New()

	orch := acquire.New(acquire.Options{
		Resolver:   resolver,
		Validator:  validator,
		Checker:    checker,
		Classifier: classifier,
		Store:      store,
		Cascade: cascade.New(resolver, validator, checker, store, jrn,
			logging.Component(log, "cascade")),
		Locks:    locks,
		Registry: reg,
		Journal:  jrn,
		Metrics:  met,
		RetryPolicy: retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			Multiplier:     cfg.Retry.Multiplier,
			JitterFraction: cfg.Retry.JitterFraction,
		},
		Logger: logging.Component(log, "acquire"),
	})

	return &Client{
		vault:     v,
		cfg:       cfg,
		log:       log,
		metrics:   met,
		journal:   jrn,
		store:     store,
		registry:  reg,
		locks:     locks,
		orch:      orch,
		differ:    diff.NewDiffer(v, logging.Component(log, "diff")),
		webhooks:  newWebhookClient(cfg, log),
		resolver:  resolver,
		validator: validator,
		checker:   checker,
	}, nil
}

func newWebhookClient(cfg *config.Config, log zerolog.Logger) *webhook.Client {
	wcfg := webhook.DefaultConfig()
	for _, h := range cfg.Webhooks {
		events := make([]webhook.EventType, len(h.Events))
		for i, e := range h.Events {
			events[i] = webhook.EventType(e)
		}
		wcfg.Hooks = append(wcfg.Hooks, webhook.HookConfig{
			URL:     h.URL,
			Secret:  h.Secret,
			Events:  events,
			Enabled: true,
		})
	}
	return webhook.NewClient(wcfg, logging.Component(log, "webhook"))
}

// Handle is an open resource returned by Acquire.
type Handle = acquire.Handle

// Acquire runs the acquisition pipeline for desc: resolve, validate, check,
// and recover through the fallback cascade when needed.
func (c *Client) Acquire(ctx context.Context, desc model.ResourceDescriptor) (*Handle, *model.ResourceStatus, error) {
	h, status, err := c.orch.Acquire(ctx, desc)
	if err != nil {
		c.webhooks.SendAcquireFailed(c.vault.VaultID, desc.Name, err.Error(), true)
		return nil, nil, err
	}

	for _, attempt := range status.Attempts {
		c.webhooks.SendRecoveryAttempt(c.vault.VaultID, desc.Name,
			string(attempt.Strategy), string(attempt.Outcome), true)
	}
	c.webhooks.SendAcquireComplete(c.vault.VaultID, desc.Name, status.Path,
		string(status.Mode), status.DataLossWarning, true)
	return h, status, nil
}

// Register stores a resource descriptor without acquiring it.
func (c *Client) Register(desc model.ResourceDescriptor) error {
	_, err := c.registry.Register(desc)
	return err
}

// Resources lists all registered resources.
func (c *Client) Resources() ([]*registry.Entry, error) {
	return c.registry.List()
}

// Resource returns the registry entry for one resource.
func (c *Client) Resource(name string) (*registry.Entry, error) {
	return c.registry.Get(name)
}

// Resolve expands desc's candidate templates into the ordered candidate list
// the acquisition pipeline would try.
func (c *Client) Resolve(ctx context.Context, desc model.ResourceDescriptor) ([]model.Candidate, error) {
	return c.resolver.Resolve(ctx, desc)
}

// Validate probes read, write, and create access for one path.
func (c *Client) Validate(ctx context.Context, path string, mode model.AccessMode) (model.AccessResult, error) {
	return c.validator.Validate(ctx, path, mode)
}

// Check runs the structural integrity check appropriate for the resource
// kind at path.
func (c *Client) Check(ctx context.Context, path string, kind model.ResourceKind, manifest []string) model.IntegrityReport {
	return c.checker.Check(ctx, path, kind, manifest)
}

// Status reports the serving state of one resource, live or last recorded.
func (c *Client) Status(name string) (*model.ResourceStatus, error) {
	return c.orch.Status(name)
}

// HealthCheck re-validates every open resource.
func (c *Client) HealthCheck(ctx context.Context) ([]*model.ResourceStatus, error) {
	statuses, err := c.orch.HealthCheck(ctx)
	for _, s := range statuses {
		if s.Degraded {
			detail := ""
			if s.LastAnalysis != nil {
				detail = s.LastAnalysis.RawCause
			}
			c.webhooks.SendResourceDegraded(c.vault.VaultID, s.Resource, s.Path, detail, true)
		}
	}
	return statuses, err
}

// Snapshot takes a verified point-in-time backup of sourcePath.
func (c *Client) Snapshot(ctx context.Context, desc model.ResourceDescriptor, sourcePath string) (*model.BackupRecord, error) {
	rec, err := c.store.Snapshot(ctx, desc, sourcePath, "")
	c.metrics.ObserveBackupOperation("create", err)
	if err != nil {
		return nil, err
	}
	c.webhooks.SendBackupCreated(c.vault.VaultID, desc.Name, string(rec.ID), rec.SizeBytes, true)
	c.updateBackupGauge()
	return rec, nil
}

// Restore materializes a backup at targetPath. An empty backupID selects the
// newest verified backup; an empty targetPath restores to the backup's
// original source location.
func (c *Client) Restore(ctx context.Context, resource string, backupID model.BackupID, targetPath string) (*model.BackupRecord, error) {
	rec, err := c.store.Restore(ctx, resource, backupID, targetPath)
	c.metrics.ObserveBackupOperation("restore", err)
	if err != nil {
		return nil, err
	}
	target := targetPath
	if target == "" {
		target = rec.SourcePath
	}
	c.webhooks.SendBackupRestored(c.vault.VaultID, resource, string(rec.ID), target, true)
	return rec, nil
}

// Backups lists backup records for one resource, newest first.
func (c *Client) Backups(resource string) ([]model.BackupRecord, error) {
	return c.store.List(resource)
}

// BackupResources lists resources that have at least one backup.
func (c *Client) BackupResources() ([]string, error) {
	return c.store.Resources()
}

// VerifyBackup re-checks one backup's record checksum and payload hash,
// persisting the verification state.
func (c *Client) VerifyBackup(ctx context.Context, resource string, backupID model.BackupID) (*model.BackupRecord, error) {
	rec, err := c.store.Verify(ctx, resource, backupID)
	c.metrics.ObserveBackupOperation("verify", err)
	return rec, err
}

// ReleaseBackup marks a protecting backup's operation as confirmed, making
// the record eligible for retention pruning.
func (c *Client) ReleaseBackup(resource string, backupID model.BackupID) error {
	return c.store.Release(resource, backupID)
}

// PrunePlan reports what a retention pass would delete, without deleting.
func (c *Client) PrunePlan(resource string) (*backup.PrunePlan, error) {
	return c.store.Plan(resource)
}

// Prune applies the retention policy to one resource.
func (c *Client) Prune(ctx context.Context, resource string) (*backup.PruneResult, error) {
	result, err := c.store.Prune(ctx, resource)
	c.metrics.ObserveBackupOperation("prune", err)
	if err != nil {
		return nil, err
	}
	c.webhooks.SendBackupPruned(c.vault.VaultID, resource, len(result.Deleted), result.BytesReclaimed, true)
	c.updateBackupGauge()
	return result, nil
}

// PruneAll applies the retention policy to every resource.
func (c *Client) PruneAll(ctx context.Context) ([]*backup.PruneResult, error) {
	results, err := c.store.PruneAll(ctx)
	for _, r := range results {
		if len(r.Deleted) > 0 {
			c.webhooks.SendBackupPruned(c.vault.VaultID, r.Resource, len(r.Deleted), r.BytesReclaimed, true)
		}
	}
	c.updateBackupGauge()
	return results, err
}

// RunPruneScheduler blocks, pruning on a jittered interval until ctx is
// cancelled. Intended to run in a background goroutine for long-lived hosts.
func (c *Client) RunPruneScheduler(ctx context.Context, interval time.Duration) {
	backup.NewScheduler(c.store, interval, logging.Component(c.log, "scheduler")).Run(ctx)
}

// BackupStats aggregates vault-wide backup accounting.
func (c *Client) BackupStats() (*model.BackupStats, error) {
	return c.store.Stats()
}

// Diff compares two backups of a resource.
func (c *Client) Diff(resource string, fromID, toID model.BackupID) (*diff.Result, error) {
	return c.differ.Diff(resource, fromID, toID)
}

// DiffLive compares a backup against the resource's current content.
func (c *Client) DiffLive(resource string, backupID model.BackupID, livePath string) (*diff.Result, error) {
	return c.differ.DiffLive(resource, backupID, livePath)
}

// Doctor runs vault health diagnostics.
func (c *Client) Doctor(strict bool) (*doctor.Result, error) {
	return doctor.NewDoctor(c.vault, logging.Component(c.log, "doctor")).Check(strict)
}

// PlanSweep computes what a vault sweep would remove, without removing it.
func (c *Client) PlanSweep() (*gc.Plan, error) {
	return c.sweeper().Plan()
}

// Sweep executes a previously planned vault sweep.
func (c *Client) Sweep(planID string) (*gc.Result, error) {
	return c.sweeper().Run(planID)
}

func (c *Client) sweeper() *gc.Sweeper {
	return gc.NewSweeper(c.vault, c.journal, logging.Component(c.log, "gc"))
}

// Journal returns the journal entries for one resource; empty resource
// returns everything.
func (c *Client) Journal(resource string) ([]model.JournalRecord, error) {
	return c.journal.Read(resource)
}

// VerifyJournal walks the journal's hash chain.
func (c *Client) VerifyJournal() error {
	return c.journal.VerifyChain()
}

// LockStatus reports the advisory lock state for one resource.
func (c *Client) LockStatus(resource string) (model.LockState, *model.LockRecord, error) {
	return c.locks.Status(resource)
}

// ForceUnlock removes a resource's advisory lock regardless of holder.
// Operator escape hatch for crashed holders.
func (c *Client) ForceUnlock(resource string) error {
	return c.locks.ForceRelease(resource)
}

// MetricsHandler serves Prometheus metrics for this client.
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// VaultDir returns the vault root directory.
func (c *Client) VaultDir() string {
	return c.vault.Root
}

// VaultID returns the vault's unique identifier.
func (c *Client) VaultID() string {
	return c.vault.VaultID
}

// Config returns the active configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Close releases all open handles and flushes queued webhook deliveries.
func (c *Client) Close() error {
	err := c.orch.Close()
	c.webhooks.Close()
	return err
}

func (c *Client) updateBackupGauge() {
	if stats, err := c.store.Stats(); err == nil {
		c.metrics.SetBackupBytes(stats.TotalBytes)
	}
}
