// Package cascade runs the four-strategy fallback sequence when a resource
// cannot be acquired at its preferred location: alternate path, backup
// restore, clean create, and finally an ephemeral stand-in. Strategies run
// strictly in order and each attempt is journaled.
package cascade

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/haven-project/haven/internal/backup"
	"github.com/haven-project/haven/internal/integrity"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/resolve"
	"github.com/haven-project/haven/internal/validate"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/model"
)

// Outcome is the result of a completed cascade run.
type Outcome struct {
	// Path is the usable location; for ephemeral databases this is the
	// in-memory DSN rather than a filesystem path.
	Path string
	Mode model.OperatingMode
	// Attempts is the append-only audit trail, one entry per strategy tried.
	Attempts []model.RecoveryAttempt
	// DataLossWarning is set when the served content may differ from what the
	// caller last wrote (stale restore, fresh create, ephemeral stand-in).
	DataLossWarning bool
	// ProtectiveSnapshots lists the backups taken of content a strategy was
	// about to destroy. The orchestrator releases them once the acquisition
	// is confirmed so retention can eventually reclaim them.
	ProtectiveSnapshots []model.BackupID
}

// Cascade coordinates the fallback strategies.
type Cascade struct {
	resolver  *resolve.Resolver
	validator *validate.Validator
	checker   *integrity.Checker
	store     *backup.Store
	journal   *journal.Appender
	log       zerolog.Logger
}

// New creates a cascade.
func New(resolver *resolve.Resolver, validator *validate.Validator, checker *integrity.Checker, store *backup.Store, jrn *journal.Appender, log zerolog.Logger) *Cascade {
	return &Cascade{
		resolver:  resolver,
		validator: validator,
		checker:   checker,
		store:     store,
		journal:   jrn,
		log:       log,
	}
}

// Run executes the cascade for desc. candidates is the full resolved list;
// failedRank is the rank of the candidate whose failure triggered recovery
// (-1 when every candidate already failed the initial pass).
func (c *Cascade) Run(ctx context.Context, desc model.ResourceDescriptor, candidates []model.Candidate, failedRank int) (*Outcome, error) {
	outcome := &Outcome{}

	for _, strategy := range model.CascadeOrder {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		var attempt model.RecoveryAttempt
		switch strategy {
		case model.StrategyAlternatePath:
			attempt = c.tryAlternatePath(ctx, desc, candidates, failedRank, outcome)
		case model.StrategyBackupRestore:
			attempt = c.tryBackupRestore(ctx, desc, candidates, outcome)
		case model.StrategyCleanCreate:
			attempt = c.tryCleanCreate(ctx, desc, candidates, outcome)
		case model.StrategyEphemeral:
			attempt = c.tryEphemeral(desc, outcome)
		}

		attempt.Seq = len(outcome.Attempts)
		attempt.Strategy = strategy
		attempt.At = time.Now().UTC()
		outcome.Attempts = append(outcome.Attempts, attempt)

		if err := c.journal.Append(model.EventRecoveryAttempt, desc.Name, "", map[string]any{
			"strategy": string(strategy),
			"outcome":  string(attempt.Outcome),
			"path":     attempt.Path,
			"detail":   attempt.Detail,
		}); err != nil {
			c.log.Warn().Err(err).Msg("journal append failed")
		}

		c.log.Info().Str("resource", desc.Name).Str("strategy", string(strategy)).
			Str("outcome", string(attempt.Outcome)).Str("path", attempt.Path).
			Msg("recovery attempt")

		if attempt.Outcome == model.OutcomeSuccess {
			outcome.Path = attempt.Path
			return outcome, nil
		}
	}

	// Unreachable in practice: the ephemeral strategy fails only when the
	// temp filesystem itself is broken.
	return outcome, errclass.ErrCascadeExhausted.WithMessagef(
		"resource %s: all recovery strategies failed", desc.Name)
}

// tryAlternatePath probes the remaining resolved candidates.
func (c *Cascade) tryAlternatePath(ctx context.Context, desc model.ResourceDescriptor, candidates []model.Candidate, failedRank int, outcome *Outcome) model.RecoveryAttempt {
	attempt := model.RecoveryAttempt{Outcome: model.OutcomeSkipped}

	tried := 0
	for _, cand := range candidates {
		if cand.Rank <= failedRank {
			continue
		}
		tried++
		attempt.Path = cand.Path

		if err := c.resolver.EnsureParent(cand, desc.Mode); err != nil {
			attempt.Detail = err.Error()
			continue
		}

		result, err := c.validator.Validate(ctx, cand.Path, desc.Mode)
		if err != nil {
			attempt.Detail = err.Error()
			continue
		}
		if !result.Satisfies(desc.Mode) {
			attempt.Detail = result.Detail
			continue
		}

		// A missing path with create permission is acceptable; an existing
		// one must also be structurally sound.
		if result.Level != model.AccessPathMissing {
			report := c.checker.Check(ctx, cand.Path, desc.Kind, desc.BundleManifest)
			if !report.Healthy() {
				attempt.Detail = fmt.Sprintf("integrity %s", report.State)
				continue
			}
		}

		attempt.Outcome = model.OutcomeSuccess
		// Resolver-order classification: a later candidate that passes the
		// same validation as the first is still primary service.
		outcome.Mode = model.OperatingPrimary
		return attempt
	}

	if tried == 0 {
		attempt.Detail = "no alternate candidates remain"
	} else if attempt.Outcome == model.OutcomeSkipped {
		attempt.Outcome = model.OutcomeFailure
	}
	return attempt
}

// tryBackupRestore restores the newest verified backup to the best writable
// candidate.
func (c *Cascade) tryBackupRestore(ctx context.Context, desc model.ResourceDescriptor, candidates []model.Candidate, outcome *Outcome) model.RecoveryAttempt {
	attempt := model.RecoveryAttempt{Outcome: model.OutcomeSkipped}

	rec, err := c.store.Latest(desc.Name)
	if err != nil {
		attempt.Detail = "no verified backup available"
		attempt.ErrorCode = errclass.Code(err)
		return attempt
	}

	target, ok := c.writableTarget(ctx, desc, candidates)
	if !ok {
		attempt.Outcome = model.OutcomeFailure
		attempt.Detail = "no writable location for restore"
		return attempt
	}
	attempt.Path = target

	// Whatever occupies the target is about to be overwritten; preserve it.
	c.snapshotDoomed(ctx, desc, target, model.StrategyBackupRestore, outcome)

	if _, err := c.store.Restore(ctx, desc.Name, rec.ID, target); err != nil {
		attempt.Outcome = model.OutcomeFailure
		attempt.Detail = err.Error()
		attempt.ErrorCode = errclass.Code(err)
		return attempt
	}

	report := c.checker.Check(ctx, target, desc.Kind, desc.BundleManifest)
	if !report.Healthy() {
		attempt.Outcome = model.OutcomeFailure
		attempt.Detail = fmt.Sprintf("restored payload failed integrity: %s", report.State)
		return attempt
	}

	attempt.Outcome = model.OutcomeSuccess
	outcome.Mode = model.OperatingFallback
	// Restored content is a point-in-time copy; writes since the backup are
	// gone.
	outcome.DataLossWarning = true
	return attempt
}

// snapshotDoomed preserves whatever currently occupies target before a
// strategy destroys it. Databases are captured byte-for-byte: the vacuum
// clone engine fails on exactly the damaged files this guard exists to
// preserve. Failure is logged and the strategy proceeds; the attempt itself
// is never silently skipped.
func (c *Cascade) snapshotDoomed(ctx context.Context, desc model.ResourceDescriptor, target string, strategy model.Strategy, outcome *Outcome) {
	if _, err := os.Lstat(target); err != nil {
		return
	}
	raw := desc
	if raw.Kind == model.KindDatabase {
		raw.Kind = model.KindFile
	}
	rec, err := c.store.Snapshot(ctx, raw, target, string(strategy))
	if err != nil {
		c.log.Warn().Str("resource", desc.Name).Str("strategy", string(strategy)).
			Err(err).Msg("pre-recovery snapshot failed, continuing")
		return
	}
	outcome.ProtectiveSnapshots = append(outcome.ProtectiveSnapshots, rec.ID)
}

// tryCleanCreate builds a fresh, empty resource. Bundles require a manifest;
// without one there is nothing sound to recreate and the strategy is skipped.
func (c *Cascade) tryCleanCreate(ctx context.Context, desc model.ResourceDescriptor, candidates []model.Candidate, outcome *Outcome) model.RecoveryAttempt {
	attempt := model.RecoveryAttempt{Outcome: model.OutcomeSkipped}

	if desc.Kind == model.KindBundle && len(desc.BundleManifest) == 0 {
		attempt.Detail = "bundle has no manifest to recreate from"
		attempt.ErrorCode = errclass.ErrRecreateNotSupported.Code
		return attempt
	}

	target, ok := c.writableTarget(ctx, desc, candidates)
	if !ok {
		attempt.Outcome = model.OutcomeFailure
		attempt.Detail = "no writable location for clean create"
		return attempt
	}
	attempt.Path = target

	// Snapshot whatever is there before destroying it.
	c.snapshotDoomed(ctx, desc, target, model.StrategyCleanCreate, outcome)
	if _, err := os.Lstat(target); err == nil {
		if err := os.RemoveAll(target); err != nil {
			attempt.Outcome = model.OutcomeFailure
			attempt.Detail = fmt.Sprintf("clear damaged resource: %v", err)
			return attempt
		}
	}

	if err := c.createFresh(ctx, desc, target); err != nil {
		attempt.Outcome = model.OutcomeFailure
		attempt.Detail = err.Error()
		attempt.ErrorCode = errclass.Code(err)
		return attempt
	}

	attempt.Outcome = model.OutcomeSuccess
	outcome.Mode = model.OperatingFallback
	outcome.DataLossWarning = true
	return attempt
}

// tryEphemeral serves the resource from non-persistent storage. Terminal:
// once ephemeral, the session never silently migrates back.
func (c *Cascade) tryEphemeral(desc model.ResourceDescriptor, outcome *Outcome) model.RecoveryAttempt {
	attempt := model.RecoveryAttempt{}

	if desc.Kind == model.KindDatabase {
		attempt.Path = "file:" + desc.Name + "?mode=memory&cache=shared"
	} else {
		dir, err := os.MkdirTemp("", "haven-ephemeral-"+desc.Name+"-")
		if err != nil {
			attempt.Outcome = model.OutcomeFailure
			attempt.Detail = err.Error()
			return attempt
		}
		if desc.Kind == model.KindBundle {
			attempt.Path = dir
		} else {
			attempt.Path = filepath.Join(dir, desc.Name+".dat")
			if err := os.WriteFile(attempt.Path, nil, 0644); err != nil {
				attempt.Outcome = model.OutcomeFailure
				attempt.Detail = err.Error()
				return attempt
			}
		}
	}

	attempt.Outcome = model.OutcomeSuccess
	outcome.Mode = model.OperatingEphemeral
	outcome.DataLossWarning = true
	return attempt
}

// writableTarget finds the highest-priority candidate whose location can be
// written, creating parent directories where the mode allows.
func (c *Cascade) writableTarget(ctx context.Context, desc model.ResourceDescriptor, candidates []model.Candidate) (string, bool) {
	for _, cand := range candidates {
		if err := c.resolver.EnsureParent(cand, model.ModeCreateIfAbsent); err != nil {
			continue
		}
		result, err := c.validator.Validate(ctx, cand.Path, model.ModeCreateIfAbsent)
		if err != nil {
			continue
		}
		if result.CanCreate || result.CanWrite {
			return cand.Path, true
		}
	}
	return "", false
}

// createFresh materializes an empty but structurally valid resource.
func (c *Cascade) createFresh(ctx context.Context, desc model.ResourceDescriptor, target string) error {
	switch desc.Kind {
	case model.KindDatabase:
		db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", url.PathEscape(target)))
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		defer db.Close()
		// VACUUM forces SQLite to materialize the file with a valid header.
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		return nil

	case model.KindBundle:
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("create bundle dir: %w", err)
		}
		for _, member := range desc.BundleManifest {
			memberPath := filepath.Join(target, filepath.FromSlash(member))
			if err := os.MkdirAll(filepath.Dir(memberPath), 0755); err != nil {
				return fmt.Errorf("create member dir: %w", err)
			}
			if err := os.WriteFile(memberPath, nil, 0644); err != nil {
				return fmt.Errorf("create member %s: %w", member, err)
			}
		}
		return nil

	default:
		if err := os.WriteFile(target, nil, 0644); err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		return nil
	}
}
