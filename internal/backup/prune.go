package backup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/haven-project/haven/pkg/model"
)

// PrunePlan lists what a retention pass would delete, and why records that
// look prunable were kept.
type PrunePlan struct {
	Resource  string           `json:"resource"`
	ToDelete  []model.BackupID `json:"to_delete"`
	Kept      int              `json:"kept"`
	Skipped   []string         `json:"skipped,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// PruneResult reports an executed retention pass.
type PruneResult struct {
	Resource       string           `json:"resource"`
	Deleted        []model.BackupID `json:"deleted"`
	BytesReclaimed int64            `json:"bytes_reclaimed"`
}

// Plan computes the retention plan for one resource without deleting
// anything. Records beyond the keep-last count and records past the maximum
// age are candidates; unverified or unreleased records are never deleted.
func (s *Store) Plan(resource string) (*PrunePlan, error) {
	if err := s.policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retention policy: %w", err)
	}

	records, err := s.List(resource) // newest first
	if err != nil {
		return nil, err
	}

	plan := &PrunePlan{Resource: resource, CreatedAt: time.Now().UTC()}
	now := time.Now()

	for i := range records {
		rec := &records[i]

		overCount := s.policy.KeepLast > 0 && i >= s.policy.KeepLast
		overAge := s.policy.MaxAge > 0 && now.Sub(rec.CreatedAt) > s.policy.MaxAge
		if !overCount && !overAge {
			plan.Kept++
			continue
		}

		if !rec.RetentionEligible() {
			plan.Kept++
			plan.Skipped = append(plan.Skipped, fmt.Sprintf(
				"%s: not retention-eligible (verification=%s released=%v)",
				rec.ID.ShortID(), rec.Verification, rec.Released))
			continue
		}

		plan.ToDelete = append(plan.ToDelete, rec.ID)
	}

	return plan, nil
}

// Prune executes a retention pass for one resource. The eligibility of every
// record is re-checked at deletion time.
func (s *Store) Prune(ctx context.Context, resource string) (*PruneResult, error) {
	plan, err := s.Plan(resource)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{Resource: resource}
	for _, id := range plan.ToDelete {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := s.loadRecord(resource, id)
		if err != nil {
			s.log.Warn().Stringer("backup_id", id).Err(err).Msg("skipping prune of unreadable record")
			continue
		}
		// Revalidate: state may have changed since planning.
		if !rec.RetentionEligible() {
			continue
		}

		if err := os.RemoveAll(rec.StoragePath); err != nil {
			s.log.Warn().Stringer("backup_id", id).Err(err).Msg("failed to delete payload")
			continue
		}
		if err := os.Remove(s.vault.BackupRecordPath(resource, string(id))); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Stringer("backup_id", id).Err(err).Msg("failed to delete record")
			continue
		}

		result.Deleted = append(result.Deleted, id)
		result.BytesReclaimed += rec.SizeBytes
	}

	if len(result.Deleted) > 0 {
		if err := s.journal.Append(model.EventBackupPrune, resource, "", map[string]any{
			"deleted_count":   len(result.Deleted),
			"bytes_reclaimed": result.BytesReclaimed,
		}); err != nil {
			s.log.Warn().Err(err).Msg("journal append failed")
		}
	}

	s.log.Info().Str("resource", resource).Int("deleted", len(result.Deleted)).
		Int64("bytes_reclaimed", result.BytesReclaimed).Msg("retention pass complete")

	return result, nil
}

// PruneAll runs a retention pass over every resource in the vault.
func (s *Store) PruneAll(ctx context.Context) ([]*PruneResult, error) {
	resources, err := s.Resources()
	if err != nil {
		return nil, err
	}
	var results []*PruneResult
	for _, resource := range resources {
		result, err := s.Prune(ctx, resource)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
