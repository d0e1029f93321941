package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/haven-project/haven/pkg/fsutil"
)

// CopyEngine performs a full copy of a file or directory tree.
type CopyEngine struct{}

// NewCopyEngine creates a new CopyEngine.
func NewCopyEngine() *CopyEngine {
	return &CopyEngine{}
}

// Name returns the engine identifier.
func (e *CopyEngine) Name() string {
	return "copy"
}

// Clone copies src to dst. Regular-file sources are copied byte for byte;
// directory sources are walked recursively.
func (e *CopyEngine) Clone(ctx context.Context, src, dst string) (*CloneResult, error) {
	info, err := os.Lstat(src)
	if err != nil {
		return nil, fmt.Errorf("stat src %s: %w", src, err)
	}

	result := &CloneResult{}

	if !info.IsDir() {
		if err := e.copyFile(src, dst, info); err != nil {
			return nil, err
		}
		result.BytesCloned = info.Size()
		if err := fsutil.FsyncDir(filepath.Dir(dst)); err != nil {
			return nil, fmt.Errorf("fsync dst dir: %w", err)
		}
		return result, nil
	}

	// Track inodes so hardlink groups that cannot be preserved are reported
	// as a degradation.
	seenInodes := make(map[uint64]string)

	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		dstPath := filepath.Join(dst, rel)

		if !info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
			if ino, ok := fileInode(info); ok {
				if seenInodes[ino] != "" {
					result.Degraded = true
					result.Degradations = append(result.Degradations, "hardlink")
				} else {
					seenInodes[ino] = path
				}
			}
		}

		switch {
		case info.IsDir():
			if err := os.MkdirAll(dstPath, info.Mode()); err != nil {
				return fmt.Errorf("mkdir %s: %w", dstPath, err)
			}
			return nil

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			return os.Symlink(target, dstPath)

		default:
			if err := e.copyFile(path, dstPath, info); err != nil {
				return err
			}
			result.BytesCloned += info.Size()
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("copy: %w", err)
	}

	if err := fsutil.FsyncDir(dst); err != nil {
		return nil, fmt.Errorf("fsync dst: %w", err)
	}

	return result, nil
}

func (e *CopyEngine) copyFile(src, dst string, info os.FileInfo) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open src %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("create dst %s: %w", dst, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	if err := dstFile.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dst, err)
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
