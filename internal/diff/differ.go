// Package diff compares backup payloads: two snapshots of a resource, or a
// snapshot against the live content it was taken from. Comparison is by
// content hash; gzip-compressed payloads are hashed through decompression so
// compression settings never show up as differences.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/model"
)

// ChangeType classifies one entry-level difference.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// Change is a single entry difference between two payloads.
type Change struct {
	Path      string     `json:"path"`
	Type      ChangeType `json:"type"`
	Size      int64      `json:"size,omitempty"`
	OldSize   int64      `json:"old_size,omitempty"`
	OldHash   string     `json:"old_hash,omitempty"`
	NewHash   string     `json:"new_hash,omitempty"`
	IsSymlink bool       `json:"is_symlink,omitempty"`
}

// Result is the outcome of one comparison. ToID is empty when the comparison
// target was live content rather than a backup.
type Result struct {
	Resource string         `json:"resource"`
	FromID   model.BackupID `json:"from_backup_id,omitempty"`
	ToID     model.BackupID `json:"to_backup_id,omitempty"`
	FromTime time.Time      `json:"from_time,omitempty"`
	ToTime   time.Time      `json:"to_time,omitempty"`
	Added    []*Change      `json:"added"`
	Removed  []*Change      `json:"removed"`
	Modified []*Change      `json:"modified"`
}

// Empty reports whether the payloads were identical.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

// Differ compares backup payloads for one vault.
type Differ struct {
	vault *vault.Vault
	log   zerolog.Logger
}

// NewDiffer creates a differ.
func NewDiffer(v *vault.Vault, log zerolog.Logger) *Differ {
	return &Differ{vault: v, log: log}
}

// Diff compares two backups of one resource. An empty fromID compares
// against nothing, reporting every entry of toID as added.
func (d *Differ) Diff(resource string, fromID, toID model.BackupID) (*Result, error) {
	result := &Result{Resource: resource, FromID: fromID, ToID: toID}

	fromTree := make(map[string]*entry)
	if fromID != "" {
		rec, err := d.loadRecord(resource, fromID)
		if err != nil {
			return nil, err
		}
		result.FromID = rec.ID
		result.FromTime = rec.CreatedAt
		if err := d.buildPayloadTree(rec, fromTree); err != nil {
			return nil, fmt.Errorf("read payload of %s: %w", fromID.ShortID(), err)
		}
	}

	rec, err := d.loadRecord(resource, toID)
	if err != nil {
		return nil, err
	}
	result.ToID = rec.ID
	result.ToTime = rec.CreatedAt
	toTree := make(map[string]*entry)
	if err := d.buildPayloadTree(rec, toTree); err != nil {
		return nil, fmt.Errorf("read payload of %s: %w", toID.ShortID(), err)
	}

	compare(fromTree, toTree, result)
	return result, nil
}

// DiffLive compares a backup against the resource's current on-disk content,
// answering "what would a restore of this backup change".
func (d *Differ) DiffLive(resource string, fromID model.BackupID, livePath string) (*Result, error) {
	rec, err := d.loadRecord(resource, fromID)
	if err != nil {
		return nil, err
	}
	result := &Result{Resource: resource, FromID: fromID, FromTime: rec.CreatedAt}

	fromTree := make(map[string]*entry)
	if err := d.buildPayloadTree(rec, fromTree); err != nil {
		return nil, fmt.Errorf("read payload of %s: %w", fromID.ShortID(), err)
	}

	toTree := make(map[string]*entry)
	if err := buildLiveTree(livePath, toTree); err != nil {
		return nil, fmt.Errorf("read live content: %w", err)
	}

	compare(fromTree, toTree, result)
	return result, nil
}

// loadRecord reads one backup record, resolving a unique ID prefix the way
// operators type short IDs.
func (d *Differ) loadRecord(resource string, id model.BackupID) (*model.BackupRecord, error) {
	if rec, err := d.readRecord(resource, id); err == nil {
		return rec, nil
	}

	entries, err := os.ReadDir(d.vault.BackupRecordsDir(resource))
	if err != nil {
		return nil, errclass.ErrNotFound.WithMessagef("resource %s has no backups", resource)
	}
	var matches []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if ok && strings.HasPrefix(name, string(id)) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errclass.ErrNotFound.WithMessagef("backup %s of resource %s not found", id, resource)
	case 1:
		return d.readRecord(resource, model.BackupID(matches[0]))
	default:
		return nil, errclass.ErrConfiguration.WithMessagef("backup ID prefix %s is ambiguous (%d matches)", id, len(matches))
	}
}

func (d *Differ) readRecord(resource string, id model.BackupID) (*model.BackupRecord, error) {
	data, err := os.ReadFile(d.vault.BackupRecordPath(resource, string(id)))
	if err != nil {
		return nil, err
	}
	var rec model.BackupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errclass.ErrRecordCorrupt.WithMessagef("parse record %s: %v", id.ShortID(), err)
	}
	return &rec, nil
}

// entry is the comparable identity of one payload member.
type entry struct {
	Size      int64
	Hash      string
	IsSymlink bool
}

func (e *entry) equals(other *entry) bool {
	return e.IsSymlink == other.IsSymlink && e.Hash == other.Hash
}

// buildPayloadTree walks a backup's storage directory. Entries are keyed by
// their logical path: the ".gz" suffix of compressed single-file payloads is
// stripped and their content hashed through decompression.
func (d *Differ) buildPayloadTree(rec *model.BackupRecord, tree map[string]*entry) error {
	return walkTree(rec.StoragePath, "", tree)
}

// buildLiveTree maps live content into the same logical namespace as a
// payload tree: a single file becomes "payload", a directory's members
// become "payload/...".
func buildLiveTree(livePath string, tree map[string]*entry) error {
	info, err := os.Lstat(livePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing live: everything in the backup is a removal
		}
		return err
	}
	if !info.IsDir() {
		e, err := hashEntry(livePath, info, false)
		if err != nil {
			return err
		}
		tree["payload"] = e
		return nil
	}
	return walkTree(livePath, "payload", tree)
}

func walkTree(root, prefix string, tree map[string]*entry) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, de := range entries {
		name := de.Name()
		if name == ".READY" {
			continue
		}

		fullPath := filepath.Join(root, name)
		logical := name
		if prefix != "" {
			logical = prefix + "/" + name
		}

		info, err := de.Info()
		if err != nil {
			return err
		}

		switch {
		case de.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(fullPath)
			if err != nil {
				return err
			}
			tree[logical] = &entry{Size: info.Size(), Hash: hashString(target), IsSymlink: true}

		case info.IsDir():
			if err := walkTree(fullPath, logical, tree); err != nil {
				return err
			}

		case info.Mode().IsRegular():
			compressed := strings.HasSuffix(name, ".gz")
			if compressed {
				logical = strings.TrimSuffix(logical, ".gz")
			}
			e, err := hashEntry(fullPath, info, compressed)
			if err != nil {
				return err
			}
			tree[logical] = e
		}
	}
	return nil
}

func hashEntry(path string, info os.FileInfo, compressed bool) (*entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader = f
	size := info.Size()
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
		size = 0
	}

	h := sha256.New()
	n, err := io.Copy(h, reader)
	if err != nil {
		return nil, err
	}
	if compressed {
		size = n
	}
	return &entry{Size: size, Hash: hex.EncodeToString(h.Sum(nil))}, nil
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func compare(fromTree, toTree map[string]*entry, result *Result) {
	for path, to := range toTree {
		from, exists := fromTree[path]
		if !exists {
			result.Added = append(result.Added, &Change{
				Path: path, Type: ChangeAdded, Size: to.Size,
				NewHash: to.Hash, IsSymlink: to.IsSymlink,
			})
		} else if !from.equals(to) {
			result.Modified = append(result.Modified, &Change{
				Path: path, Type: ChangeModified, Size: to.Size, OldSize: from.Size,
				OldHash: from.Hash, NewHash: to.Hash, IsSymlink: to.IsSymlink,
			})
		}
	}
	for path, from := range fromTree {
		if _, exists := toTree[path]; !exists {
			result.Removed = append(result.Removed, &Change{
				Path: path, Type: ChangeRemoved, Size: from.Size,
				OldHash: from.Hash, IsSymlink: from.IsSymlink,
			})
		}
	}
	sortChanges(result.Added)
	sortChanges(result.Removed)
	sortChanges(result.Modified)
}

func sortChanges(changes []*Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
}

// FormatHuman renders the result for terminal display.
func (r *Result) FormatHuman() string {
	var sb strings.Builder

	to := "live content"
	if r.ToID != "" {
		to = r.ToID.ShortID()
	}
	sb.WriteString(fmt.Sprintf("Diff %s -> %s (resource %s)\n", r.FromID.ShortID(), to, r.Resource))
	if !r.FromTime.IsZero() {
		sb.WriteString(fmt.Sprintf("From: %s\n", r.FromTime.Format("2006-01-02 15:04:05")))
	}
	if !r.ToTime.IsZero() {
		sb.WriteString(fmt.Sprintf("To:   %s\n", r.ToTime.Format("2006-01-02 15:04:05")))
	}
	sb.WriteString("\n")

	if len(r.Added) > 0 {
		sb.WriteString(fmt.Sprintf("Added (%d):\n", len(r.Added)))
		for _, c := range r.Added {
			sb.WriteString(fmt.Sprintf("  + %s\n", c.Path))
		}
		sb.WriteString("\n")
	}
	if len(r.Removed) > 0 {
		sb.WriteString(fmt.Sprintf("Removed (%d):\n", len(r.Removed)))
		for _, c := range r.Removed {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Path))
		}
		sb.WriteString("\n")
	}
	if len(r.Modified) > 0 {
		sb.WriteString(fmt.Sprintf("Modified (%d):\n", len(r.Modified)))
		for _, c := range r.Modified {
			sb.WriteString(fmt.Sprintf("  ~ %s", c.Path))
			if c.OldSize != c.Size {
				sb.WriteString(fmt.Sprintf(" (%d -> %d bytes)", c.OldSize, c.Size))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if r.Empty() {
		sb.WriteString("No changes.\n")
	}
	return sb.String()
}
