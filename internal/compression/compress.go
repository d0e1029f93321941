// Package compression provides optional gzip compression for backup payloads.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Level represents the compression level.
type Level int

const (
	// LevelNone disables compression.
	LevelNone Level = 0
	// LevelFast uses fastest compression (gzip level 1).
	LevelFast Level = 1
	// LevelDefault uses default compression (gzip level 6).
	LevelDefault Level = 6
	// LevelMax uses maximum compression (gzip level 9).
	LevelMax Level = 9
)

// Compressor handles payload compression.
type Compressor struct {
	Level Level
}

// NewCompressor creates a compressor. Level 0 means no compression.
func NewCompressor(level Level) *Compressor {
	if level < LevelNone {
		level = LevelNone
	}
	return &Compressor{Level: level}
}

// ParseLevel creates a compressor from a string level.
// Valid values: "none", "fast", "default", "max"
func ParseLevel(level string) (*Compressor, error) {
	switch strings.ToLower(level) {
	case "none", "0":
		return NewCompressor(LevelNone), nil
	case "fast", "1":
		return NewCompressor(LevelFast), nil
	case "default", "6":
		return NewCompressor(LevelDefault), nil
	case "max", "9":
		return NewCompressor(LevelMax), nil
	default:
		return nil, fmt.Errorf("invalid compression level: %s (must be none, fast, default, or max)", level)
	}
}

// IsEnabled returns true if compression is enabled.
func (c *Compressor) IsEnabled() bool {
	return c.Level > LevelNone
}

// String returns the string form of the level.
func (c *Compressor) String() string {
	switch c.Level {
	case LevelNone:
		return "none"
	case LevelFast:
		return "fast"
	case LevelDefault:
		return "default"
	case LevelMax:
		return "max"
	default:
		return fmt.Sprintf("level-%d", c.Level)
	}
}

// CompressFile compresses a file in place, producing path+".gz" and removing
// the original. Returns the compressed path. With compression disabled the
// original path is returned untouched.
func (c *Compressor) CompressFile(path string) (string, error) {
	if !c.IsEnabled() {
		return path, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	compressed, err := c.compressBytes(data)
	if err != nil {
		return "", fmt.Errorf("compress: %w", err)
	}

	compressedPath := path + ".gz"
	if err := os.WriteFile(compressedPath, compressed, 0600); err != nil {
		return "", fmt.Errorf("write compressed file: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove original: %w", err)
	}

	return compressedPath, nil
}

// DecompressFile expands a .gz file next to itself, removing the compressed
// form. A path without the .gz suffix is returned unchanged.
func DecompressFile(path string) (string, error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read compressed file: %w", err)
	}

	decompressed, err := decompressBytes(data)
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}

	decompressedPath := strings.TrimSuffix(path, ".gz")
	if err := os.WriteFile(decompressedPath, decompressed, 0644); err != nil {
		return "", fmt.Errorf("write decompressed file: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove compressed: %w", err)
	}

	return decompressedPath, nil
}

// CompressDir compresses every regular file under root in place. Returns the
// number of files compressed.
func (c *Compressor) CompressDir(root string) (int, error) {
	if !c.IsEnabled() {
		return 0, nil
	}

	count := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".gz") {
			return nil
		}
		if _, err := c.CompressFile(path); err != nil {
			return fmt.Errorf("compress %s: %w", path, err)
		}
		count++
		return nil
	})

	return count, err
}

// DecompressDir expands every .gz file under root in place. Returns the
// number of files decompressed.
func DecompressDir(root string) (int, error) {
	count := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".gz") {
			return nil
		}
		if _, err := DecompressFile(path); err != nil {
			return fmt.Errorf("decompress %s: %w", path, err)
		}
		count++
		return nil
	})

	return count, err
}

func (c *Compressor) compressBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, int(c.Level))
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}

	return buf.Bytes(), nil
}

func decompressBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer r.Close()

	result, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	return result, nil
}

// IsCompressedFile reports whether path names a compressed file.
func IsCompressedFile(path string) bool {
	return strings.HasSuffix(path, ".gz")
}
