// Package gc reclaims vault debris left behind by crashes: payload
// directories no record points at, stale snapshot intents, abandoned
// atomic-write temp files, and expired lock files. Sweeping is two-phase:
// Plan lists what would be removed, Run revalidates and deletes.
package gc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/lock"
	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/fsutil"
	"github.com/haven-project/haven/pkg/model"
)

// staleIntentAge matches the doctor's threshold: intents younger than this
// may belong to a snapshot still in flight and are never swept.
const staleIntentAge = time.Hour

// Plan lists the debris one sweep would remove.
type Plan struct {
	PlanID         string    `json:"plan_id"`
	CreatedAt      time.Time `json:"created_at"`
	OrphanPayloads []string  `json:"orphan_payloads,omitempty"`
	StaleIntents   []string  `json:"stale_intents,omitempty"`
	TempFiles      []string  `json:"temp_files,omitempty"`
	ExpiredLocks   []string  `json:"expired_locks,omitempty"`
	EstimatedBytes int64     `json:"estimated_bytes"`
}

// Total returns the number of filesystem entries the plan would remove.
func (p *Plan) Total() int {
	return len(p.OrphanPayloads) + len(p.StaleIntents) + len(p.TempFiles) + len(p.ExpiredLocks)
}

// Result reports an executed sweep.
type Result struct {
	PlanID         string `json:"plan_id"`
	Removed        int    `json:"removed"`
	Skipped        int    `json:"skipped"`
	BytesReclaimed int64  `json:"bytes_reclaimed"`
}

// Sweeper plans and executes vault debris collection.
type Sweeper struct {
	vault *vault.Vault
	jrn   *journal.Appender
	log   zerolog.Logger
}

// NewSweeper creates a sweeper for one vault.
func NewSweeper(v *vault.Vault, jrn *journal.Appender, log zerolog.Logger) *Sweeper {
	return &Sweeper{vault: v, jrn: jrn, log: log}
}

// Plan computes and persists a sweep plan without deleting anything.
func (s *Sweeper) Plan() (*Plan, error) {
	plan := &Plan{
		PlanID:    uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	referenced, err := s.referencedPayloads()
	if err != nil {
		return nil, fmt.Errorf("collect referenced payloads: %w", err)
	}
	s.collectOrphanPayloads(plan, referenced)
	s.collectStaleIntents(plan)
	s.collectTempFiles(plan)
	s.collectExpiredLocks(plan)

	for _, dir := range plan.OrphanPayloads {
		plan.EstimatedBytes += dirSize(dir)
	}

	if err := s.writePlan(plan); err != nil {
		return nil, fmt.Errorf("write plan: %w", err)
	}
	return plan, nil
}

// Run executes a previously computed plan. Every target is revalidated
// before deletion: a payload that gained a record since planning, or an
// intent that is no longer stale, is skipped rather than removed.
func (s *Sweeper) Run(planID string) (*Result, error) {
	plan, err := s.loadPlan(planID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}

	referenced, err := s.referencedPayloads()
	if err != nil {
		return nil, fmt.Errorf("revalidate referenced payloads: %w", err)
	}

	result := &Result{PlanID: planID}
	for _, dir := range plan.OrphanPayloads {
		if referenced[dir] {
			result.Skipped++
			continue
		}
		size := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn().Str("path", dir).Err(err).Msg("sweep: cannot remove payload")
			result.Skipped++
			continue
		}
		result.Removed++
		result.BytesReclaimed += size
	}

	for _, path := range plan.StaleIntents {
		info, err := os.Stat(path)
		if err != nil || time.Since(info.ModTime()) <= staleIntentAge {
			result.Skipped++
			continue
		}
		if err := os.Remove(path); err == nil {
			result.Removed++
		} else {
			result.Skipped++
		}
	}

	for _, path := range plan.TempFiles {
		if err := os.Remove(path); err == nil {
			result.Removed++
		} else {
			result.Skipped++
		}
	}

	lockMgr := lock.NewManager(s.vault, model.DefaultLockPolicy())
	for _, path := range plan.ExpiredLocks {
		name, ok := strings.CutSuffix(filepath.Base(path), ".lock.json")
		if !ok {
			result.Skipped++
			continue
		}
		state, _, err := lockMgr.Status(name)
		if err != nil || state != model.LockStateExpired {
			result.Skipped++
			continue
		}
		if err := lockMgr.ForceRelease(name); err == nil {
			result.Removed++
		} else {
			result.Skipped++
		}
	}

	s.deletePlan(planID)

	if err := s.jrn.Append(model.EventVaultSweep, "", "", map[string]any{
		"plan_id":         planID,
		"removed":         result.Removed,
		"skipped":         result.Skipped,
		"bytes_reclaimed": result.BytesReclaimed,
	}); err != nil {
		s.log.Warn().Err(err).Msg("sweep: journal append failed")
	}

	s.log.Info().Str("plan_id", planID).Int("removed", result.Removed).
		Int64("bytes_reclaimed", result.BytesReclaimed).Msg("vault sweep complete")
	return result, nil
}

// referencedPayloads returns the storage paths every backup record points at.
func (s *Sweeper) referencedPayloads() (map[string]bool, error) {
	referenced := make(map[string]bool)
	resources, err := os.ReadDir(s.vault.RecordsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return referenced, nil
		}
		return nil, err
	}
	for _, res := range resources {
		if !res.IsDir() {
			continue
		}
		records, err := os.ReadDir(s.vault.BackupRecordsDir(res.Name()))
		if err != nil {
			continue
		}
		for _, recEntry := range records {
			if filepath.Ext(recEntry.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.vault.BackupRecordsDir(res.Name()), recEntry.Name()))
			if err != nil {
				continue
			}
			var rec model.BackupRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			referenced[rec.StoragePath] = true
		}
	}
	return referenced, nil
}

func (s *Sweeper) collectOrphanPayloads(plan *Plan, referenced map[string]bool) {
	backupsRoot := filepath.Join(s.vault.Root, "backups")
	resources, err := os.ReadDir(backupsRoot)
	if err != nil {
		return
	}
	for _, res := range resources {
		if !res.IsDir() {
			continue
		}
		payloads, err := os.ReadDir(filepath.Join(backupsRoot, res.Name()))
		if err != nil {
			continue
		}
		for _, p := range payloads {
			dir := filepath.Join(backupsRoot, res.Name(), p.Name())
			if !referenced[dir] {
				plan.OrphanPayloads = append(plan.OrphanPayloads, dir)
			}
		}
	}
}

func (s *Sweeper) collectStaleIntents(plan *Plan) {
	entries, err := os.ReadDir(s.vault.IntentsDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > staleIntentAge {
			plan.StaleIntents = append(plan.StaleIntents, filepath.Join(s.vault.IntentsDir(), entry.Name()))
		}
	}
}

func (s *Sweeper) collectTempFiles(plan *Plan) {
	filepath.Walk(s.vault.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".haven-tmp-") {
			plan.TempFiles = append(plan.TempFiles, path)
		}
		return nil
	})
}

func (s *Sweeper) collectExpiredLocks(plan *Plan) {
	locksDir := filepath.Join(s.vault.Root, "locks")
	entries, err := os.ReadDir(locksDir)
	if err != nil {
		return
	}
	lockMgr := lock.NewManager(s.vault, model.DefaultLockPolicy())
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".lock.json")
		if !ok {
			continue
		}
		state, _, err := lockMgr.Status(name)
		if err != nil || state != model.LockStateExpired {
			continue
		}
		plan.ExpiredLocks = append(plan.ExpiredLocks, filepath.Join(locksDir, entry.Name()))
	}
}

func (s *Sweeper) planPath(planID string) string {
	return filepath.Join(s.vault.Root, "gc", planID+".json")
}

func (s *Sweeper) writePlan(plan *Plan) error {
	dir := filepath.Join(s.vault.Root, "gc")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(s.planPath(plan.PlanID), data, 0644)
}

func (s *Sweeper) loadPlan(planID string) (*Plan, error) {
	data, err := os.ReadFile(s.planPath(planID))
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Sweeper) deletePlan(planID string) {
	os.Remove(s.planPath(planID))
}

func dirSize(dir string) int64 {
	var total int64
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
