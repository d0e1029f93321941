// Package journal persists the hash-chained recovery journal. Every recovery
// attempt, backup lifecycle event, repair, and acquisition outcome is
// appended here; entries are never rewritten.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/jsonutil"
	"github.com/haven-project/haven/pkg/model"
)

// Appender appends journal records to a JSONL file with a hash chain.
type Appender struct {
	path string
	mu   sync.Mutex
}

// NewAppender creates an appender for the journal at path.
func NewAppender(path string) *Appender {
	return &Appender{path: path}
}

// Append adds a new record to the journal.
func (a *Appender) Append(eventType model.JournalEventType, resource string, backupID model.BackupID, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	// Cross-process exclusion via flock; the mutex covers in-process callers.
	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock journal: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record := &model.JournalRecord{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Resource:  resource,
		BackupID:  backupID,
		Details:   details,
		PrevHash:  prevHash,
	}

	recordHash, err := computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}
	record.RecordHash = recordHash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}

	if _, err := file.Seek(0, 2); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}

	return nil
}

// Read returns all journal records, oldest first. A missing journal yields an
// empty slice. Filter by resource when resource is non-empty.
func (a *Appender) Read(resource string) ([]model.JournalRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var records []model.JournalRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip malformed lines
		}
		if resource != "" && rec.Resource != resource {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return records, nil
}

// VerifyChain walks the journal and checks every record's hash and its link
// to the previous record.
func (a *Appender) VerifyChain() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // empty journal is a valid chain
		}
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var prevHash model.HashValue
	lineNo := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		var rec model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return errclass.ErrJournalChainBroken.WithMessagef("line %d: malformed record", lineNo)
		}
		if rec.PrevHash != prevHash {
			return errclass.ErrJournalChainBroken.WithMessagef(
				"line %d: prev_hash mismatch", lineNo)
		}
		expected, err := computeRecordHash(&model.JournalRecord{
			Timestamp: rec.Timestamp,
			EventType: rec.EventType,
			Resource:  rec.Resource,
			BackupID:  rec.BackupID,
			Details:   rec.Details,
			PrevHash:  rec.PrevHash,
		})
		if err != nil {
			return fmt.Errorf("line %d: compute hash: %w", lineNo, err)
		}
		if expected != rec.RecordHash {
			return errclass.ErrJournalChainBroken.WithMessagef(
				"line %d: record_hash mismatch", lineNo)
		}
		prevHash = rec.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan journal: %w", err)
	}
	return nil
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.JournalRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // skip malformed lines
		}
		lastHash = rec.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan journal: %w", err)
	}
	return lastHash, nil
}

func computeRecordHash(record *model.JournalRecord) (model.HashValue, error) {
	// RecordHash is excluded from its own hash.
	hashRecord := &model.JournalRecord{
		Timestamp: record.Timestamp,
		EventType: record.EventType,
		Resource:  record.Resource,
		BackupID:  record.BackupID,
		Details:   record.Details,
		PrevHash:  record.PrevHash,
	}

	data, err := jsonutil.CanonicalMarshal(hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}

	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
