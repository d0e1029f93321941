// Package backup implements the snapshot-before-destruction backup store:
// point-in-time copies of resources in the vault, verified restores, and
// retention-driven pruning.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haven-project/haven/internal/compression"
	"github.com/haven-project/haven/internal/engine"
	"github.com/haven-project/haven/internal/integrity"
	"github.com/haven-project/haven/internal/journal"
	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/fsutil"
	"github.com/haven-project/haven/pkg/model"
	"github.com/haven-project/haven/pkg/pathutil"
)

// payloadName is the file name of a single-file payload inside a backup's
// storage directory. Bundles store their tree under the same name.
const payloadName = "payload"

// IntentRecord marks an in-flight snapshot for crash recovery. A payload
// directory without a .READY marker but with a live intent is incomplete, not
// corrupt.
type IntentRecord struct {
	BackupID   model.BackupID `json:"backup_id"`
	Resource   string         `json:"resource"`
	SourcePath string         `json:"source_path"`
	StartedAt  time.Time      `json:"started_at"`
}

// ReadyMarker is written into the payload directory as the final step of a
// snapshot. Its presence makes the backup eligible for restore.
type ReadyMarker struct {
	BackupID    model.BackupID  `json:"backup_id"`
	CompletedAt time.Time       `json:"completed_at"`
	PayloadHash model.HashValue `json:"payload_hash"`
}

// Store manages backups for one vault.
type Store struct {
	vault      *vault.Vault
	journal    *journal.Appender
	policy     model.RetentionPolicy
	compressor *compression.Compressor
	log        zerolog.Logger
}

// NewStore creates a backup store.
func NewStore(v *vault.Vault, jrn *journal.Appender, policy model.RetentionPolicy, compressor *compression.Compressor, log zerolog.Logger) *Store {
	if compressor == nil {
		compressor = compression.NewCompressor(compression.LevelNone)
	}
	return &Store{
		vault:      v,
		journal:    jrn,
		policy:     policy,
		compressor: compressor,
		log:        log,
	}
}

// Snapshot takes a point-in-time backup of the resource at sourcePath.
// protecting names the destructive operation the backup guards; an empty
// value means the backup is immediately released for retention.
func (s *Store) Snapshot(ctx context.Context, desc model.ResourceDescriptor, sourcePath, protecting string) (*model.BackupRecord, error) {
	// Step 1: validate inputs
	if err := pathutil.ValidateName(desc.Name); err != nil {
		return nil, err
	}
	if _, err := os.Lstat(sourcePath); err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}

	// Step 2: generate backup ID
	backupID := model.NewBackupID()

	// Step 3: write intent record for crash recovery
	intentPath := s.vault.IntentPath(string(backupID))
	if err := s.writeIntent(intentPath, &IntentRecord{
		BackupID:   backupID,
		Resource:   desc.Name,
		SourcePath: sourcePath,
		StartedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("write intent: %w", err)
	}
	defer os.Remove(intentPath) // cleanup on success and failure alike

	// Step 4: create the payload directory
	storageDir := s.vault.BackupPayloadDir(desc.Name, string(backupID))
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("create payload dir: %w", err)
	}

	rollback := func() { os.RemoveAll(storageDir) }

	// Step 5: clone the source with the kind-appropriate engine
	payloadPath := filepath.Join(storageDir, payloadName)
	eng := engine.ForKind(desc.Kind)
	cloneResult, err := eng.Clone(ctx, sourcePath, payloadPath)
	if err != nil {
		rollback()
		return nil, fmt.Errorf("clone payload: %w", err)
	}

	// Step 6: optional compression (single-file payloads only; bundle trees
	// stay browsable)
	compressed := false
	if desc.Kind != model.KindBundle && s.compressor.IsEnabled() {
		if _, err := s.compressor.CompressFile(payloadPath); err != nil {
			rollback()
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		compressed = true
	}

	// Step 7: hash the stored payload
	payloadHash, err := integrity.ComputePayloadHash(storageDir)
	if err != nil {
		rollback()
		return nil, fmt.Errorf("compute payload hash: %w", err)
	}

	// Step 8: build the record
	rec := &model.BackupRecord{
		ID:           backupID,
		Resource:     desc.Name,
		Kind:         desc.Kind,
		CreatedAt:    time.Now().UTC(),
		SourcePath:   sourcePath,
		StoragePath:  storageDir,
		SizeBytes:    cloneResult.BytesCloned,
		PayloadHash:  payloadHash,
		Verification: model.VerificationVerified,
		Protecting:   protecting,
		Released:     protecting == "",
		Compressed:   compressed,
	}

	// Step 9: record checksum
	checksum, err := integrity.ComputeRecordChecksum(rec)
	if err != nil {
		rollback()
		return nil, fmt.Errorf("compute record checksum: %w", err)
	}
	rec.RecordChecksum = checksum

	// Step 10: .READY marker makes the payload restore-eligible
	if err := s.writeReadyMarker(filepath.Join(storageDir, ".READY"), &ReadyMarker{
		BackupID:    backupID,
		CompletedAt: time.Now().UTC(),
		PayloadHash: payloadHash,
	}); err != nil {
		rollback()
		return nil, fmt.Errorf("write ready marker: %w", err)
	}

	// Step 11: write the record atomically
	if err := s.writeRecord(rec); err != nil {
		rollback()
		return nil, fmt.Errorf("write record: %w", err)
	}

	// Step 12: journal
	if err := s.journal.Append(model.EventBackupCreate, desc.Name, backupID, map[string]any{
		"engine":     eng.Name(),
		"protecting": protecting,
		"compressed": compressed,
		"size_bytes": cloneResult.BytesCloned,
	}); err != nil {
		s.log.Warn().Err(err).Msg("journal append failed")
	}

	s.log.Info().Str("resource", desc.Name).Stringer("backup_id", backupID).
		Int64("size_bytes", cloneResult.BytesCloned).Bool("compressed", compressed).
		Msg("backup created")

	return rec, nil
}

// Restore materializes a backup at targetPath using an atomic swap. An empty
// backupID selects the newest verified backup. The previous content of
// targetPath survives at a .restore-backup path until the swap succeeds.
func (s *Store) Restore(ctx context.Context, resource string, backupID model.BackupID, targetPath string) (*model.BackupRecord, error) {
	rec, err := s.resolveRecord(resource, backupID)
	if err != nil {
		return nil, err
	}

	// Verify before touching the target. A backup that cannot prove its
	// integrity must never clobber live data.
	if err := s.verifyRecord(rec); err != nil {
		return nil, err
	}

	stagingPath := targetPath + ".restore-tmp-" + uuid.NewString()[:8]
	defer os.RemoveAll(stagingPath)

	if err := s.materialize(ctx, rec, stagingPath); err != nil {
		return nil, err
	}

	// Atomic swap: current content moves aside first so a crash between the
	// two renames loses nothing.
	backupAside := targetPath + ".restore-backup-" + uuid.NewString()[:8]
	hadExisting := false
	if _, err := os.Lstat(targetPath); err == nil {
		hadExisting = true
		if err := fsutil.RenameAndSync(targetPath, backupAside); err != nil {
			return nil, fmt.Errorf("move current aside: %w", err)
		}
	}

	if err := fsutil.RenameAndSync(stagingPath, targetPath); err != nil {
		if hadExisting {
			fsutil.RenameAndSync(backupAside, targetPath) // roll back
		}
		return nil, fmt.Errorf("swap in restored payload: %w", err)
	}

	if hadExisting {
		os.RemoveAll(backupAside)
	}

	if err := s.journal.Append(model.EventBackupRestore, resource, rec.ID, map[string]any{
		"target": targetPath,
	}); err != nil {
		s.log.Warn().Err(err).Msg("journal append failed")
	}

	s.log.Info().Str("resource", resource).Stringer("backup_id", rec.ID).
		Str("target", targetPath).Msg("backup restored")

	return rec, nil
}

// Verify re-checks a backup's payload against its recorded hash and updates
// the record's verification state.
func (s *Store) Verify(ctx context.Context, resource string, backupID model.BackupID) (*model.BackupRecord, error) {
	rec, err := s.loadRecord(resource, backupID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	verifyErr := s.verifyRecord(rec)
	if verifyErr != nil {
		rec.Verification = model.VerificationFailed
	} else {
		rec.Verification = model.VerificationVerified
	}
	if err := s.writeRecord(rec); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	if err := s.journal.Append(model.EventBackupVerify, resource, rec.ID, map[string]any{
		"result": string(rec.Verification),
	}); err != nil {
		s.log.Warn().Err(err).Msg("journal append failed")
	}

	return rec, verifyErr
}

// Release marks a backup's protected operation as resolved, making the
// record eligible for retention pruning.
func (s *Store) Release(resource string, backupID model.BackupID) error {
	rec, err := s.loadRecord(resource, backupID)
	if err != nil {
		return err
	}
	if rec.Released {
		return nil
	}
	rec.Released = true

	// Released participates in the checksum; recompute.
	checksum, err := integrity.ComputeRecordChecksum(rec)
	if err != nil {
		return fmt.Errorf("compute record checksum: %w", err)
	}
	rec.RecordChecksum = checksum

	return s.writeRecord(rec)
}

// List returns all backup records for a resource, newest first.
func (s *Store) List(resource string) ([]model.BackupRecord, error) {
	entries, err := os.ReadDir(s.vault.BackupRecordsDir(resource))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read records dir: %w", err)
	}

	var records []model.BackupRecord
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := model.BackupID(entry.Name()[:len(entry.Name())-len(".json")])
		rec, err := s.loadRecord(resource, id)
		if err != nil {
			s.log.Warn().Str("resource", resource).Stringer("backup_id", id).
				Err(err).Msg("skipping unreadable backup record")
			continue
		}
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Resources returns every resource name that has at least one backup record.
func (s *Store) Resources() ([]string, error) {
	entries, err := os.ReadDir(s.vault.RecordsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read records root: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns the newest verified backup for a resource. Guards taken
// just before destructive recovery hold the dying (often damaged) bytes;
// they are kept for manual salvage and never served as a restore source.
func (s *Store) Latest(resource string) (*model.BackupRecord, error) {
	records, err := s.List(resource)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Protecting != "" {
			continue
		}
		if records[i].Verification == model.VerificationVerified {
			return &records[i], nil
		}
	}
	return nil, errclass.ErrNotFound.WithMessagef("no verified backup for resource %s", resource)
}

// Stats aggregates backup accounting across the vault.
func (s *Store) Stats() (*model.BackupStats, error) {
	resources, err := s.Resources()
	if err != nil {
		return nil, err
	}

	stats := &model.BackupStats{PerResource: make(map[string]int)}
	for _, resource := range resources {
		records, err := s.List(resource)
		if err != nil {
			return nil, err
		}
		for i := range records {
			rec := &records[i]
			stats.TotalCount++
			stats.TotalBytes += rec.SizeBytes
			stats.PerResource[resource]++
			if rec.Verification != model.VerificationVerified {
				stats.Unverified++
			}
			if !rec.Released {
				stats.Unreleased++
			}
			created := rec.CreatedAt
			if stats.OldestAt == nil || created.Before(*stats.OldestAt) {
				t := created
				stats.OldestAt = &t
			}
			if stats.NewestAt == nil || created.After(*stats.NewestAt) {
				t := created
				stats.NewestAt = &t
			}
		}
	}
	return stats, nil
}

func (s *Store) resolveRecord(resource string, backupID model.BackupID) (*model.BackupRecord, error) {
	if backupID == "" {
		return s.Latest(resource)
	}
	return s.loadRecord(resource, backupID)
}

func (s *Store) loadRecord(resource string, backupID model.BackupID) (*model.BackupRecord, error) {
	path := s.vault.BackupRecordPath(resource, string(backupID))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("backup %s not found for resource %s", backupID, resource)
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec model.BackupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("parse record %s: %v", backupID, err)
	}
	return &rec, nil
}

// verifyRecord checks checksum, .READY marker, and payload hash.
func (s *Store) verifyRecord(rec *model.BackupRecord) error {
	if err := integrity.VerifyRecordChecksum(rec); err != nil {
		return errclass.ErrRecordCorrupt.WithMessagef("backup %s: %v", rec.ID, err)
	}

	if _, err := os.Stat(filepath.Join(rec.StoragePath, ".READY")); err != nil {
		return errclass.ErrBackupNotVerified.WithMessagef(
			"backup %s has no ready marker (incomplete snapshot)", rec.ID)
	}

	payloadHash, err := integrity.ComputePayloadHash(rec.StoragePath)
	if err != nil {
		return fmt.Errorf("compute payload hash: %w", err)
	}
	if payloadHash != rec.PayloadHash {
		return errclass.ErrPayloadHashMismatch.WithMessagef(
			"backup %s: payload hash mismatch", rec.ID)
	}
	return nil
}

// materialize writes the backup's payload to stagingPath, decompressing when
// necessary.
func (s *Store) materialize(ctx context.Context, rec *model.BackupRecord, stagingPath string) error {
	storedPayload := filepath.Join(rec.StoragePath, payloadName)
	if rec.Compressed {
		storedPayload += ".gz"
	}

	eng := engine.NewCopyEngine()
	if _, err := eng.Clone(ctx, storedPayload, stagingPath+tempSuffix(rec)); err != nil {
		return fmt.Errorf("clone payload to staging: %w", err)
	}

	if rec.Compressed {
		if _, err := compression.DecompressFile(stagingPath + ".gz"); err != nil {
			return fmt.Errorf("decompress payload: %w", err)
		}
	}
	return nil
}

func tempSuffix(rec *model.BackupRecord) string {
	if rec.Compressed {
		return ".gz"
	}
	return ""
}

func (s *Store) writeIntent(path string, intent *IntentRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, data, 0644)
}

func (s *Store) writeReadyMarker(path string, marker *ReadyMarker) error {
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, data, 0644)
}

func (s *Store) writeRecord(rec *model.BackupRecord) error {
	path := s.vault.BackupRecordPath(rec.Resource, string(rec.ID))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(path, data, 0644)
}
