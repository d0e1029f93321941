package integrity

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/haven-project/haven/pkg/fsutil"
	"github.com/haven-project/haven/pkg/model"
)

// sqliteHeader is the 16-byte magic at the start of every SQLite database.
var sqliteHeader = []byte("SQLite format 3\x00")

// sqliteMinSize is the smallest valid database: one page of the minimum page
// size is not required, but the 100-byte header is.
const sqliteMinSize = 100

// Checker performs structural validation per resource kind.
type Checker struct {
	log zerolog.Logger
}

// NewChecker creates a checker.
func NewChecker(log zerolog.Logger) *Checker {
	return &Checker{log: log}
}

// Check validates the resource at path. The report's state is Unknown only
// when the check itself could not run (e.g. permission denied on open).
func (c *Checker) Check(ctx context.Context, path string, kind model.ResourceKind, manifest []string) model.IntegrityReport {
	report := model.IntegrityReport{
		Path:      path,
		Kind:      kind,
		CheckedAt: time.Now().UTC(),
	}

	switch kind {
	case model.KindDatabase:
		c.checkDatabase(ctx, &report)
	case model.KindBundle:
		c.checkBundle(&report, manifest)
	default:
		c.checkFile(&report)
	}

	c.log.Debug().Str("path", path).Str("kind", string(kind)).
		Str("state", string(report.State)).Strs("details", report.Details).
		Msg("integrity check")

	return report
}

func (c *Checker) checkFile(report *model.IntegrityReport) {
	info, err := os.Stat(report.Path)
	if err != nil {
		if os.IsNotExist(err) {
			report.State = model.IntegrityCorrupt
			report.Details = append(report.Details, "file does not exist")
			return
		}
		report.State = model.IntegrityUnknown
		report.Details = append(report.Details, err.Error())
		return
	}
	if info.IsDir() {
		report.State = model.IntegrityCorrupt
		report.Details = append(report.Details, "expected a regular file, found a directory")
		return
	}

	f, err := os.Open(report.Path)
	if err != nil {
		report.State = model.IntegrityUnknown
		report.Details = append(report.Details, fmt.Sprintf("open: %v", err))
		return
	}
	f.Close()

	report.State = model.IntegrityHealthy
}

func (c *Checker) checkBundle(report *model.IntegrityReport, manifest []string) {
	info, err := os.Stat(report.Path)
	if err != nil {
		if os.IsNotExist(err) {
			report.State = model.IntegrityCorrupt
			report.Details = append(report.Details, "bundle directory does not exist")
			return
		}
		report.State = model.IntegrityUnknown
		report.Details = append(report.Details, err.Error())
		return
	}
	if !info.IsDir() {
		report.State = model.IntegrityCorrupt
		report.Details = append(report.Details, "expected a directory, found a regular file")
		return
	}

	missing := 0
	for _, member := range manifest {
		memberPath := filepath.Join(report.Path, filepath.FromSlash(member))
		if info, err := os.Stat(memberPath); err != nil || info.IsDir() {
			missing++
			report.Details = append(report.Details, fmt.Sprintf("missing member %s", member))
		}
	}

	switch {
	case missing == 0:
		report.State = model.IntegrityHealthy
	case missing < len(manifest):
		// Some members survive; a restore can fill the gaps.
		report.State = model.IntegrityRepairable
	default:
		report.State = model.IntegrityCorrupt
	}
}

func (c *Checker) checkDatabase(ctx context.Context, report *model.IntegrityReport) {
	info, err := os.Stat(report.Path)
	if err != nil {
		if os.IsNotExist(err) {
			report.State = model.IntegrityCorrupt
			report.Details = append(report.Details, "database file does not exist")
			return
		}
		report.State = model.IntegrityUnknown
		report.Details = append(report.Details, err.Error())
		return
	}

	// A zero-length file is what SQLite itself creates before the first
	// write; treat it as healthy-empty rather than corrupt.
	if info.Size() == 0 {
		report.State = model.IntegrityHealthy
		report.Details = append(report.Details, "empty database file")
		return
	}

	if info.Size() < sqliteMinSize {
		report.State = model.IntegrityCorrupt
		report.Details = append(report.Details, fmt.Sprintf(
			"file too small for a database: %d bytes", info.Size()))
		return
	}

	header := make([]byte, len(sqliteHeader))
	f, err := os.Open(report.Path)
	if err != nil {
		report.State = model.IntegrityUnknown
		report.Details = append(report.Details, fmt.Sprintf("open: %v", err))
		return
	}
	_, readErr := f.Read(header)
	f.Close()
	if readErr != nil || !bytes.Equal(header, sqliteHeader) {
		report.State = model.IntegrityCorrupt
		report.Details = append(report.Details, "invalid database header")
		return
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", url.PathEscape(report.Path)))
	if err != nil {
		report.State = model.IntegrityUnknown
		report.Details = append(report.Details, fmt.Sprintf("open database: %v", err))
		return
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check(1)").Scan(&result); err != nil {
		// The header parsed but pages do not; a rebuild may still salvage it.
		report.State = model.IntegrityRepairable
		report.Details = append(report.Details, fmt.Sprintf("quick_check failed: %v", err))
		return
	}
	if result != "ok" {
		report.State = model.IntegrityRepairable
		report.Details = append(report.Details, "quick_check: "+result)

		// Full check for a precise diagnosis.
		rows, err := db.QueryContext(ctx, "PRAGMA integrity_check(5)")
		if err == nil {
			defer rows.Close()
			for rows.Next() {
				var line string
				if rows.Scan(&line) == nil && line != "ok" {
					report.Details = append(report.Details, "integrity_check: "+line)
				}
			}
		}
		return
	}

	report.State = model.IntegrityHealthy
}

// Repair attempts to rebuild a repairable database by vacuuming surviving
// pages into a fresh file, then swapping it in atomically. The original is
// preserved at <path>.pre-repair until the swap succeeds.
func (c *Checker) Repair(ctx context.Context, path string, kind model.ResourceKind) (model.IntegrityReport, error) {
	report := c.Check(ctx, path, kind, nil)
	report.RepairAttempted = true

	if kind != model.KindDatabase {
		return report, fmt.Errorf("repair is only supported for databases, got %s", kind)
	}
	if report.State == model.IntegrityHealthy {
		report.RepairSucceeded = true
		return report, nil
	}
	if report.State != model.IntegrityRepairable {
		return report, fmt.Errorf("database at %s is not repairable (state %s)", path, report.State)
	}

	tmp := path + ".repair-tmp"
	os.Remove(tmp)

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", url.PathEscape(path)))
	if err != nil {
		return report, fmt.Errorf("open damaged database: %w", err)
	}
	_, vacErr := db.ExecContext(ctx, "VACUUM INTO ?", tmp)
	db.Close()
	if vacErr != nil {
		os.Remove(tmp)
		return report, fmt.Errorf("rebuild database: %w", vacErr)
	}

	// Only swap in a rebuild that itself passes the check.
	rebuilt := c.Check(ctx, tmp, model.KindDatabase, nil)
	if rebuilt.State != model.IntegrityHealthy {
		os.Remove(tmp)
		return report, fmt.Errorf("rebuilt database failed validation: %v", rebuilt.Details)
	}

	preRepair := path + ".pre-repair"
	if err := os.Rename(path, preRepair); err != nil {
		os.Remove(tmp)
		return report, fmt.Errorf("preserve damaged database: %w", err)
	}
	if err := fsutil.RenameAndSync(tmp, path); err != nil {
		os.Rename(preRepair, path) // roll back
		return report, fmt.Errorf("swap in rebuilt database: %w", err)
	}
	os.Remove(preRepair)

	report.State = model.IntegrityHealthy
	report.RepairSucceeded = true
	c.log.Info().Str("path", path).Msg("database rebuilt")
	return report, nil
}
