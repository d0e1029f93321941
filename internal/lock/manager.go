// Package lock implements per-resource advisory locks with leases. The lock
// serializes recovery across processes; a stale lease can be stolen once it
// expires.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/fsutil"
	"github.com/haven-project/haven/pkg/model"
)

// Manager handles advisory lock operations for one vault.
type Manager struct {
	vault  *vault.Vault
	policy model.LockPolicy
	mu     sync.Mutex
}

// NewManager creates a lock manager.
func NewManager(v *vault.Vault, policy model.LockPolicy) *Manager {
	return &Manager{
		vault:  v,
		policy: policy,
	}
}

// Acquire attempts to acquire the advisory lock for a resource.
func (m *Manager) Acquire(resource, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(resource, purpose)
}

func (m *Manager) acquireLocked(resource, purpose string) (*model.LockRecord, error) {
	lockPath := m.vault.LockPath(resource)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	// O_CREAT|O_EXCL makes the acquire atomic across processes.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			rec, readErr := m.readLock(lockPath)
			if readErr != nil {
				return nil, fmt.Errorf("read existing lock: %w", readErr)
			}
			if rec.IsExpired(time.Now().Add(-m.policy.ClockSkewTolerance)) {
				return nil, errclass.ErrLockConflict.WithMessage("lock exists but expired, use steal")
			}
			return nil, errclass.ErrLockConflict.WithMessagef("resource %s is locked", resource)
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}
	defer file.Close()

	now := time.Now().UTC()
	rec := &model.LockRecord{
		Resource:    resource,
		HolderNonce: uuid.NewString(),
		SessionID:   uuid.NewString(),
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.policy.DefaultLeaseTTL),
		Purpose:     purpose,
	}

	if err := m.writeLock(file, rec); err != nil {
		os.Remove(lockPath)
		return nil, err
	}

	if err := m.writeSession(resource, rec); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("write session: %w", err)
	}

	return rec, nil
}

// Renew extends the lease on an existing lock.
func (m *Manager) Renew(resource, holderNonce string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.vault.LockPath(resource)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrLockNotHeld.WithMessage("no lock held")
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}

	if rec.IsExpired(time.Now()) {
		return nil, errclass.ErrLockExpired.WithMessage("lock has expired")
	}

	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrLockNotHeld.WithMessage("nonce mismatch")
	}

	rec.ExpiresAt = time.Now().UTC().Add(m.policy.DefaultLeaseTTL)

	if err := m.updateLock(lockPath, rec); err != nil {
		return nil, fmt.Errorf("update lock: %w", err)
	}

	return rec, nil
}

// Steal takes over a lock whose lease has expired.
func (m *Manager) Steal(resource, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.vault.LockPath(resource)

	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m.acquireLocked(resource, purpose)
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}

	// Clock skew tolerance keeps two hosts with drifting clocks from
	// stealing a lease that is still live on the holder's clock.
	if !rec.IsExpired(time.Now().Add(-m.policy.ClockSkewTolerance)) {
		return nil, errclass.ErrLockConflict.WithMessage("lock not expired yet")
	}

	now := time.Now().UTC()
	newRec := &model.LockRecord{
		Resource:    resource,
		HolderNonce: uuid.NewString(),
		SessionID:   uuid.NewString(),
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.policy.DefaultLeaseTTL),
		Purpose:     purpose,
	}

	if err := m.updateLock(lockPath, newRec); err != nil {
		return nil, fmt.Errorf("steal lock: %w", err)
	}

	if err := m.writeSession(resource, newRec); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}

	return newRec, nil
}

// Release frees the lock. Releasing a lock that is not held is a no-op.
func (m *Manager) Release(resource, holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockPath := m.vault.LockPath(resource)
	rec, err := m.readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // already released
		}
		return fmt.Errorf("read lock: %w", err)
	}

	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockNotHeld.WithMessage("cannot release: nonce mismatch")
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}

	os.Remove(m.vault.SessionPath(resource))

	return nil
}

// ForceRelease removes the lock regardless of holder. Operator escape hatch
// for crashed holders; normal callers use Release.
func (m *Manager) ForceRelease(resource string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.vault.LockPath(resource)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	os.Remove(m.vault.SessionPath(resource))
	return nil
}

// Status returns the current lock state for a resource.
func (m *Manager) Status(resource string) (model.LockState, *model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock(m.vault.LockPath(resource))
	if err != nil {
		if os.IsNotExist(err) {
			return model.LockStateFree, nil, nil
		}
		return model.LockStateFree, nil, fmt.Errorf("read lock: %w", err)
	}

	if rec.IsExpired(time.Now()) {
		return model.LockStateExpired, rec, nil
	}
	return model.LockStateHeld, rec, nil
}

// LoadSession loads the holder session for cross-invocation continuity.
func (m *Manager) LoadSession(resource string) (*model.LockSession, error) {
	data, err := os.ReadFile(m.vault.SessionPath(resource))
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var sess model.LockSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	return &sess, nil
}

func (m *Manager) readLock(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &rec, nil
}

func (m *Manager) writeLock(file *os.File, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return file.Sync()
}

func (m *Manager) updateLock(path string, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0644)
}

func (m *Manager) writeSession(resource string, rec *model.LockRecord) error {
	sess := &model.LockSession{
		SessionID:   rec.SessionID,
		HolderNonce: rec.HolderNonce,
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return fsutil.AtomicWrite(m.vault.SessionPath(resource), data, 0644)
}
