package ioutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// FallbackFileName replaces names that sanitize to nothing.
	FallbackFileName = "danmu"

	// MaxFileNameLength caps sanitized names, in characters.
	MaxFileNameLength = 120

	invalidChars = `<>:"/\|?*`
)

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// WriteFile writes data to path atomically.
//
// The data goes to a temporary file in the same directory which is then
// renamed over path, so readers never observe a partial file. Parent
// directories are created as needed. The file ends up with mode 0644.
//
// Example:
//
//	err := WriteFile("/downloads/001_show.xml", payload)
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".danmu-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as two-space indented JSON, atomically. Non-ASCII text
// and HTML characters are written as is.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return WriteFile(path, buf.Bytes())
}

// SanitizeFileName makes name safe to use as a file name on any platform,
// Windows included.
//
// The following transformations are applied, in order:
//   - Invalid characters (<>:"/\|?* and control chars 0x00-0x1f) → underscore
//   - Trailing dots and spaces → removed, then surrounding whitespace
//   - Runs of whitespace → single space
//   - Reserved device names (CON, PRN, AUX, NUL, COM1-9, LPT1-9) → "_" prefix
//   - Empty result → "danmu"
//   - Longer than 120 characters → truncated
//
// Example:
//
//	SanitizeFileName("Show: Part 1/2") // Returns "Show_ Part 1_2"
//	SanitizeFileName("con")            // Returns "_con"
//	SanitizeFileName("   ")            // Returns "danmu"
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return FallbackFileName
	}

	name = strings.Map(func(r rune) rune {
		if r < 32 || strings.ContainsRune(invalidChars, r) {
			return '_'
		}
		return r
	}, name)

	name = strings.TrimSpace(strings.TrimRight(name, ". "))
	name = strings.Join(strings.Fields(name), " ")

	if _, ok := reservedNames[strings.ToUpper(name)]; ok {
		name = "_" + name
	}
	if name == "" {
		name = FallbackFileName
	}
	if utf8.RuneCountInString(name) > MaxFileNameLength {
		name = string([]rune(name)[:MaxFileNameLength])
	}
	return name
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
//
// Example:
//
//	err := EnsureDir("/downloads/danmu")
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
