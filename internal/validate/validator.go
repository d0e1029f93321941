// Package validate probes candidate locations for effective access. Probes
// test real permissions (including ACLs, mount flags, and quota) instead of
// trusting permission bits.
package validate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haven-project/haven/pkg/model"
)

// Validator checks what access the current process actually has at a path.
type Validator struct {
	appName string
	log     zerolog.Logger
}

// NewValidator creates a validator.
func NewValidator(appName string, log zerolog.Logger) *Validator {
	return &Validator{appName: appName, log: log}
}

// Validate probes path for the access level mode requires. The result is a
// point-in-time observation; access can change between validation and use.
func (v *Validator) Validate(ctx context.Context, path string, mode model.AccessMode) (model.AccessResult, error) {
	result := model.AccessResult{Path: path}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		result.Level = model.AccessPathMissing
		result.CanCreate = v.probeWrite(filepath.Dir(path))
		if mode.AllowsCreate() && result.CanCreate {
			// The caller may create the resource; post-creation access
			// follows from the writable parent.
			result.CanRead = true
			result.CanWrite = true
		}
		if !result.CanCreate {
			result.Detail = "path missing and parent directory not writable"
			result.SuggestedAlternate = v.tempAlternate(path)
		}
	case err != nil:
		result.Level = model.AccessNone
		result.Detail = err.Error()
		result.SuggestedAlternate = v.tempAlternate(path)
	case info.IsDir():
		result.CanRead = v.probeReadDir(path)
		result.CanWrite = v.probeWrite(path)
		result.CanCreate = result.CanWrite
		v.finish(&result, mode)
	default:
		result.CanRead = v.probeReadFile(path)
		result.CanWrite = v.probeWriteFile(path)
		result.CanCreate = v.probeWrite(filepath.Dir(path))
		v.finish(&result, mode)
	}

	v.log.Debug().Str("path", path).Str("mode", string(mode)).
		Str("level", string(result.Level)).
		Bool("can_read", result.CanRead).Bool("can_write", result.CanWrite).
		Msg("validated candidate access")

	return result, nil
}

func (v *Validator) finish(result *model.AccessResult, mode model.AccessMode) {
	switch {
	case result.CanRead && result.CanWrite:
		result.Level = model.AccessFull
	case result.CanRead:
		result.Level = model.AccessReadOnly
		if mode.AllowsWrite() {
			result.Detail = "location is read-only"
			result.SuggestedAlternate = v.tempAlternate(result.Path)
		}
	default:
		result.Level = model.AccessNone
		result.Detail = "location grants no read access"
		result.SuggestedAlternate = v.tempAlternate(result.Path)
	}
}

func (v *Validator) probeReadFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (v *Validator) probeReadDir(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	// An empty directory returns io.EOF, which still proves readability.
	if _, err := f.Readdirnames(1); err != nil && err != io.EOF {
		return false
	}
	return true
}

// probeWriteFile opens the file for writing without truncating it.
func (v *Validator) probeWriteFile(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// probeWrite creates and removes a uniquely named marker in dir. O_EXCL keeps
// concurrent probes from clobbering each other.
func (v *Validator) probeWrite(dir string) bool {
	probe := filepath.Join(dir, fmt.Sprintf(".haven-probe-%s", uuid.NewString()[:8]))
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

func (v *Validator) tempAlternate(path string) string {
	return filepath.Join(os.TempDir(), v.appName, filepath.Base(path))
}
