package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haven-project/haven/pkg/model"
)

// ComputePayloadHash computes a deterministic hash of a backup payload. A
// regular file hashes to its content digest; a directory hashes to a tree
// digest built from byte-order sorted per-entry lines.
func ComputePayloadHash(root string) (model.HashValue, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return "", fmt.Errorf("stat payload: %w", err)
	}
	if !info.IsDir() {
		h, err := computeEntryHash(root, info)
		if err != nil {
			return "", err
		}
		return model.HashValue(h), nil
	}

	var lines []string

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		// .READY markers are control-plane metadata, not payload.
		if info.Name() == ".READY" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}

		entryHash, err := computeEntryHash(path, info)
		if err != nil {
			return fmt.Errorf("hash entry %s: %w", rel, err)
		}

		// Format: <type>:<path>:<metadata>:<hash>
		// path uses forward slashes for portability
		pathPortable := filepath.ToSlash(rel)
		meta := formatMetadata(info)
		line := fmt.Sprintf("%s:%s:%s:%s", entryType(info), pathPortable, meta, entryHash)
		lines = append(lines, line)

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk payload: %w", err)
	}

	sort.Strings(lines)

	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	hash := sha256.Sum256([]byte(buf.String()))
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}

func entryType(info os.FileInfo) string {
	if info.IsDir() {
		return "dir"
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "symlink"
	}
	return "file"
}

func formatMetadata(info os.FileInfo) string {
	switch {
	case info.IsDir(), info.Mode()&os.ModeSymlink != 0:
		return fmt.Sprintf("mode=%04o", info.Mode().Perm())
	default:
		return fmt.Sprintf("mode=%04o,size=%d", info.Mode().Perm(), info.Size())
	}
}

func computeEntryHash(path string, info os.FileInfo) (string, error) {
	h := sha256.New()

	switch {
	case info.IsDir():
		h.Write([]byte(info.Name()))

	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return "", fmt.Errorf("read symlink: %w", err)
		}
		h.Write([]byte(target))

	default:
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
