// Package doctor diagnoses vault health: format drift, orphaned backup
// state, stale crash-recovery intents, expired locks, and journal tampering.
// All checks are read-only; the doctor reports, the operator repairs.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/haven-project/haven/internal/integrity"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/lock"
	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/model"
)

// Finding is one detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result aggregates all findings of one doctor run. Healthy is false once any
// critical finding exists.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// staleIntentAge is how long an intent record may exist before it is assumed
// to belong to a crashed snapshot rather than one in flight.
const staleIntentAge = time.Hour

// Doctor performs vault health checks.
type Doctor struct {
	vault *vault.Vault
	log   zerolog.Logger
}

// NewDoctor creates a doctor for one vault.
func NewDoctor(v *vault.Vault, log zerolog.Logger) *Doctor {
	return &Doctor{vault: v, log: log}
}

// Check runs all diagnostic checks. Strict mode additionally rehashes every
// backup payload, which can be slow on large vaults.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true}

	d.checkFormatVersion(result)
	d.checkRegistry(result)
	d.checkBackups(result, strict)
	d.checkStaleIntents(result)
	d.checkExpiredLocks(result)
	d.checkJournalChain(result)
	d.checkOrphanTmp(result)

	return result, nil
}

func (d *Doctor) add(result *Result, f Finding) {
	result.Findings = append(result.Findings, f)
	if f.Severity == "critical" {
		result.Healthy = false
	}
}

func (d *Doctor) checkFormatVersion(result *Result) {
	versionPath := filepath.Join(d.vault.Root, vault.FormatVersionFile)
	data, err := os.ReadFile(versionPath)
	if err != nil {
		d.add(result, Finding{
			Category:    "format",
			Description: "format_version file missing or unreadable",
			Severity:    "critical",
			Path:        versionPath,
		})
		return
	}

	var version int
	fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &version)
	if version > vault.FormatVersion {
		d.add(result, Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %d > supported %d", version, vault.FormatVersion),
			Severity:    "critical",
		})
	}
}

// checkRegistry flags registry entries whose last known serving path has
// vanished. An ephemeral DSN has no path to check.
func (d *Doctor) checkRegistry(result *Result) {
	entries, err := os.ReadDir(d.vault.RegistryDir())
	if err != nil {
		return
	}

	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(d.vault.RegistryDir(), dirEntry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry struct {
			Descriptor model.ResourceDescriptor `json:"descriptor"`
			ActivePath string                   `json:"active_path"`
			Mode       model.OperatingMode      `json:"mode"`
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			d.add(result, Finding{
				Category:    "registry",
				Description: fmt.Sprintf("registry entry %s is not valid JSON", dirEntry.Name()),
				Severity:    "error",
				Path:        path,
			})
			continue
		}
		if entry.ActivePath == "" || entry.Mode == model.OperatingEphemeral {
			continue
		}
		if _, err := os.Stat(entry.ActivePath); os.IsNotExist(err) {
			d.add(result, Finding{
				Category:    "registry",
				Description: fmt.Sprintf("resource '%s' last served from %s, which no longer exists", entry.Descriptor.Name, entry.ActivePath),
				Severity:    "warning",
				Path:        entry.ActivePath,
			})
		}
	}
}

// checkBackups cross-references records against payload directories in both
// directions and validates record checksums.
func (d *Doctor) checkBackups(result *Result, strict bool) {
	resources, err := os.ReadDir(d.vault.RecordsRoot())
	if err != nil {
		return
	}

	recordedPayloads := make(map[string]bool)

	for _, res := range resources {
		if !res.IsDir() {
			continue
		}
		resource := res.Name()
		records, err := os.ReadDir(d.vault.BackupRecordsDir(resource))
		if err != nil {
			continue
		}
		for _, recEntry := range records {
			if filepath.Ext(recEntry.Name()) != ".json" {
				continue
			}
			recordPath := filepath.Join(d.vault.BackupRecordsDir(resource), recEntry.Name())
			d.checkOneBackup(result, resource, recordPath, recordedPayloads, strict)
		}
	}

	d.checkOrphanPayloads(result, recordedPayloads)
}

func (d *Doctor) checkOneBackup(result *Result, resource, recordPath string, recordedPayloads map[string]bool, strict bool) {
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return
	}
	var rec model.BackupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		d.add(result, Finding{
			Category:    "backup",
			Description: fmt.Sprintf("backup record %s is not valid JSON", filepath.Base(recordPath)),
			Severity:    "critical",
			Path:        recordPath,
		})
		return
	}
	recordedPayloads[rec.StoragePath] = true

	if err := integrity.VerifyRecordChecksum(&rec); err != nil {
		d.add(result, Finding{
			Category:    "backup",
			Description: fmt.Sprintf("backup %s of '%s': record checksum mismatch", rec.ID.ShortID(), resource),
			Severity:    "critical",
			Path:        recordPath,
		})
		return
	}

	if _, err := os.Stat(rec.StoragePath); os.IsNotExist(err) {
		d.add(result, Finding{
			Category:    "backup",
			Description: fmt.Sprintf("backup %s of '%s': payload directory missing", rec.ID.ShortID(), resource),
			Severity:    "critical",
			Path:        rec.StoragePath,
		})
		return
	}

	if _, err := os.Stat(filepath.Join(rec.StoragePath, ".READY")); os.IsNotExist(err) {
		d.add(result, Finding{
			Category:    "backup",
			Description: fmt.Sprintf("backup %s of '%s': no .READY marker, snapshot incomplete", rec.ID.ShortID(), resource),
			Severity:    "warning",
			Path:        rec.StoragePath,
		})
		return
	}

	if strict {
		hash, err := integrity.ComputePayloadHash(rec.StoragePath)
		if err != nil || hash != rec.PayloadHash {
			d.add(result, Finding{
				Category:    "backup",
				Description: fmt.Sprintf("backup %s of '%s': payload hash mismatch", rec.ID.ShortID(), resource),
				Severity:    "critical",
				Path:        rec.StoragePath,
			})
		}
	}
}

// checkOrphanPayloads finds payload directories no record points at.
func (d *Doctor) checkOrphanPayloads(result *Result, recordedPayloads map[string]bool) {
	backupsRoot := filepath.Join(d.vault.Root, "backups")
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
			if !recordedPayloads[dir] {
				d.add(result, Finding{
					Category:    "backup",
					Description: fmt.Sprintf("orphan payload directory with no record: %s/%s", res.Name(), p.Name()),
					Severity:    "warning",
					Path:        dir,
				})
			}
		}
	}
}

// checkStaleIntents flags intent records old enough that their snapshot
// cannot still be in flight.
func (d *Doctor) checkStaleIntents(result *Result) {
	entries, err := os.ReadDir(d.vault.IntentsDir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		severity := "info"
		if time.Since(info.ModTime()) > staleIntentAge {
			severity = "warning"
		}
		d.add(result, Finding{
			Category:    "intent",
			Description: fmt.Sprintf("leftover snapshot intent: %s", entry.Name()),
			Severity:    severity,
			Path:        filepath.Join(d.vault.IntentsDir(), entry.Name()),
		})
	}
}

func (d *Doctor) checkExpiredLocks(result *Result) {
	locksDir := filepath.Join(d.vault.Root, "locks")
	entries, err := os.ReadDir(locksDir)
	if err != nil {
		return
	}
	lockMgr := lock.NewManager(d.vault, model.DefaultLockPolicy())
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".lock.json")
		if !ok {
			continue
		}
		state, rec, err := lockMgr.Status(name)
		if err != nil || state != model.LockStateExpired {
			continue
		}
		d.add(result, Finding{
			Category:    "lock",
			Description: fmt.Sprintf("expired lock on resource '%s' (since %s)", name, rec.ExpiresAt.Format(time.RFC3339)),
			Severity:    "info",
			Path:        filepath.Join(locksDir, entry.Name()),
		})
	}
}

func (d *Doctor) checkJournalChain(result *Result) {
	if err := journal.NewAppender(d.vault.JournalPath()).VerifyChain(); err != nil {
		d.add(result, Finding{
			Category:    "journal",
			Description: fmt.Sprintf("journal chain broken: %v", err),
			Severity:    "critical",
			Path:        d.vault.JournalPath(),
		})
	}
}

// checkOrphanTmp finds atomic-write temp files abandoned by crashes.
func (d *Doctor) checkOrphanTmp(result *Result) {
	filepath.Walk(d.vault.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".haven-tmp-") {
			d.add(result, Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", info.Name()),
				Severity:    "info",
				Path:        path,
			})
		}
		return nil
	})
}
