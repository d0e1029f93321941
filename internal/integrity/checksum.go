// Package integrity validates resources and backup payloads: structural
// checks per resource kind, payload hashing, and record checksums.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/haven-project/haven/pkg/jsonutil"
	"github.com/haven-project/haven/pkg/model"
)

// ComputeRecordChecksum computes the SHA-256 checksum of a backup record.
// Excludes: record_checksum, verification.
func ComputeRecordChecksum(rec *model.BackupRecord) (model.HashValue, error) {
	// Copy with excluded fields zeroed. Verification changes after the record
	// is written, so it cannot participate in the checksum.
	checksumRec := &model.BackupRecord{
		ID:          rec.ID,
		Resource:    rec.Resource,
		Kind:        rec.Kind,
		CreatedAt:   rec.CreatedAt,
		SourcePath:  rec.SourcePath,
		StoragePath: rec.StoragePath,
		SizeBytes:   rec.SizeBytes,
		PayloadHash: rec.PayloadHash,
		// RecordChecksum: excluded
		// Verification: excluded
		Protecting: rec.Protecting,
		Released:   rec.Released,
		Compressed: rec.Compressed,
	}

	data, err := jsonutil.CanonicalMarshal(checksumRec)
	if err != nil {
		return "", fmt.Errorf("canonical marshal record: %w", err)
	}

	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}

// VerifyRecordChecksum recomputes and compares the record checksum.
func VerifyRecordChecksum(rec *model.BackupRecord) error {
	expected, err := ComputeRecordChecksum(rec)
	if err != nil {
		return err
	}
	if expected != rec.RecordChecksum {
		return fmt.Errorf("record checksum mismatch: expected %s, got %s",
			expected, rec.RecordChecksum)
	}
	return nil
}
