// Package vault manages Haven's durable state directory: backup payloads and
// records, the recovery journal, advisory locks, and the resource registry.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/fsutil"
)

const (
	FormatVersion     = 1
	FormatVersionFile = "format_version"
	VaultIDFile       = "vault_id"
)

// subdirectories created at init.
var layout = []string{
	"backups",
	"records",
	"intents",
	"journal",
	"locks",
	"registry",
}

// Vault represents an initialized Haven state directory.
type Vault struct {
	Root          string
	FormatVersion int
	VaultID       string
}

// DefaultDir returns the default vault location under the user config
// directory.
func DefaultDir() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "haven"), nil
}

// Init creates a new vault at the specified path. Re-initializing an
// existing vault is an error.
func Init(path string) (*Vault, error) {
	if _, err := os.Stat(filepath.Join(path, FormatVersionFile)); err == nil {
		return nil, errclass.ErrConfiguration.WithMessagef("vault already initialized at %s", path)
	}

	for _, sub := range layout {
		dir := filepath.Join(path, sub)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(path, FormatVersionFile), []byte("1\n"), 0644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}

	vaultID := uuid.NewString()
	if err := os.WriteFile(filepath.Join(path, VaultIDFile), []byte(vaultID+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write vault_id: %w", err)
	}

	if err := fsutil.FsyncDir(path); err != nil {
		return nil, fmt.Errorf("fsync vault root: %w", err)
	}

	return &Vault{
		Root:          path,
		FormatVersion: FormatVersion,
		VaultID:       vaultID,
	}, nil
}

// Open opens an existing vault, validating its format version.
func Open(path string) (*Vault, error) {
	version, err := readFormatVersion(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("no vault at %s", path)
		}
		return nil, err
	}
	if version > FormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef(
			"vault format version %d > supported %d", version, FormatVersion)
	}

	vaultID, _ := readVaultID(path)
	return &Vault{
		Root:          path,
		FormatVersion: version,
		VaultID:       vaultID,
	}, nil
}

// OpenOrInit opens the vault at path, initializing it first when absent.
func OpenOrInit(path string) (*Vault, error) {
	if _, err := os.Stat(filepath.Join(path, FormatVersionFile)); err == nil {
		return Open(path)
	}
	return Init(path)
}

// BackupPayloadDir returns the payload directory for one backup.
func (v *Vault) BackupPayloadDir(resource string, backupID string) string {
	return filepath.Join(v.Root, "backups", resource, backupID)
}

// BackupRecordPath returns the metadata record path for one backup.
func (v *Vault) BackupRecordPath(resource string, backupID string) string {
	return filepath.Join(v.Root, "records", resource, backupID+".json")
}

// BackupRecordsDir returns the record directory for one resource.
func (v *Vault) BackupRecordsDir(resource string) string {
	return filepath.Join(v.Root, "records", resource)
}

// BackupsDir returns the payload root for one resource.
func (v *Vault) BackupsDir(resource string) string {
	return filepath.Join(v.Root, "backups", resource)
}

// RecordsRoot returns the root of all backup records.
func (v *Vault) RecordsRoot() string {
	return filepath.Join(v.Root, "records")
}

// IntentPath returns the crash-recovery intent record for one backup.
func (v *Vault) IntentPath(backupID string) string {
	return filepath.Join(v.Root, "intents", backupID+".json")
}

// IntentsDir returns the intent record directory.
func (v *Vault) IntentsDir() string {
	return filepath.Join(v.Root, "intents")
}

// JournalPath returns the recovery journal file.
func (v *Vault) JournalPath() string {
	return filepath.Join(v.Root, "journal", "journal.jsonl")
}

// LockPath returns the advisory lock file for one resource.
func (v *Vault) LockPath(resource string) string {
	return filepath.Join(v.Root, "locks", resource+".lock.json")
}

// SessionPath returns the lock session file for one resource.
func (v *Vault) SessionPath(resource string) string {
	return filepath.Join(v.Root, "locks", resource+".session")
}

// RegistryPath returns the registry entry file for one resource.
func (v *Vault) RegistryPath(resource string) string {
	return filepath.Join(v.Root, "registry", resource+".json")
}

// RegistryDir returns the registry directory.
func (v *Vault) RegistryDir() string {
	return filepath.Join(v.Root, "registry")
}

func readFormatVersion(root string) (int, error) {
	data, err := os.ReadFile(filepath.Join(root, FormatVersionFile))
	if err != nil {
		return 0, err
	}
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &version); err != nil {
		return 0, fmt.Errorf("parse format_version: %w", err)
	}
	return version, nil
}

func readVaultID(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, VaultIDFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
