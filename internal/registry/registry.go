// Package registry persists per-resource bookkeeping: the declared
// descriptor plus the last known serving state. The registry is what lets a
// new process report on resources it has not yet acquired.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/fsutil"
	"github.com/haven-project/haven/pkg/model"
	"github.com/haven-project/haven/pkg/pathutil"
)

// Entry is the persisted registry record for one resource.
type Entry struct {
	Descriptor   model.ResourceDescriptor `json:"descriptor"`
	RegisteredAt time.Time                `json:"registered_at"`
	UpdatedAt    time.Time                `json:"updated_at"`

	// Serving state from the most recent acquisition, if any.
	ActivePath      string              `json:"active_path,omitempty"`
	Mode            model.OperatingMode `json:"mode,omitempty"`
	DataLossWarning bool                `json:"data_loss_warning,omitempty"`
	LastAcquiredAt  *time.Time          `json:"last_acquired_at,omitempty"`
	AcquireCount    int                 `json:"acquire_count"`
}

// Manager handles registry CRUD for one vault.
type Manager struct {
	vault *vault.Vault
	mu    sync.Mutex
}

// NewManager creates a registry manager.
func NewManager(v *vault.Vault) *Manager {
	return &Manager{vault: v}
}

// Register stores a descriptor, creating or replacing the resource's entry.
// Re-registering keeps the original registration time and acquisition
// counters.
func (m *Manager) Register(desc model.ResourceDescriptor) (*Entry, error) {
	if err := pathutil.ValidateName(desc.Name); err != nil {
		return nil, err
	}
	if !desc.Kind.Valid() {
		return nil, errclass.ErrConfiguration.WithMessagef("unknown resource kind %q", desc.Kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	entry := &Entry{
		Descriptor:   desc,
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	if existing, err := m.load(desc.Name); err == nil {
		entry.RegisteredAt = existing.RegisteredAt
		entry.AcquireCount = existing.AcquireCount
		entry.ActivePath = existing.ActivePath
		entry.Mode = existing.Mode
		entry.DataLossWarning = existing.DataLossWarning
		entry.LastAcquiredAt = existing.LastAcquiredAt
	}

	if err := m.write(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns the entry for one resource.
func (m *Manager) Get(name string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(name)
}

// List returns all registered entries sorted by resource name.
func (m *Manager) List() ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.vault.RegistryDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry dir: %w", err)
	}

	var out []*Entry
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || filepath.Ext(dirEntry.Name()) != ".json" {
			continue
		}
		name := dirEntry.Name()[:len(dirEntry.Name())-len(".json")]
		entry, err := m.load(name)
		if err != nil {
			continue // skip malformed entries
		}
		out = append(out, entry)
	}
	return out, nil
}

// RecordAcquisition updates the serving state after a successful acquisition.
func (m *Manager) RecordAcquisition(name, activePath string, mode model.OperatingMode, dataLossWarning bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.load(name)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry.ActivePath = activePath
	entry.Mode = mode
	entry.DataLossWarning = dataLossWarning
	entry.LastAcquiredAt = &now
	entry.AcquireCount++
	entry.UpdatedAt = now

	return m.write(entry)
}

// Remove deletes a resource's registry entry. Backups and journal entries
// for the resource are untouched.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.vault.RegistryPath(name)); err != nil {
		if os.IsNotExist(err) {
			return errclass.ErrNotFound.WithMessagef("resource %s is not registered", name)
		}
		return fmt.Errorf("remove registry entry: %w", err)
	}
	return nil
}

func (m *Manager) load(name string) (*Entry, error) {
	data, err := os.ReadFile(m.vault.RegistryPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("resource %s is not registered", name)
		}
		return nil, fmt.Errorf("read registry entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("parse registry entry %s: %v", name, err)
	}
	return &entry, nil
}

func (m *Manager) write(entry *Entry) error {
	path := m.vault.RegistryPath(entry.Descriptor.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry entry: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0644)
}
