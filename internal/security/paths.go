// Package security guards the file names the export and report writers
// derive from run and channel identifiers.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a path resolves outside its base directory.
var ErrPathTraversal = errors.New("path traversal detected")

// maxFilenameLen bounds names produced by SanitizeFilename.
const maxFilenameLen = 128

// ValidatePathWithinDirectory checks that filePath stays inside baseDir once
// cleaned. When baseDir exists on disk, symlinks in the existing part of
// filePath are resolved first so a link cannot point the write elsewhere.
func ValidatePathWithinDirectory(filePath, baseDir string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	if canonicalBase, err := filepath.EvalSymlinks(absBase); err == nil {
		absBase = canonicalBase
		absPath = resolveExisting(absPath)
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s escapes %s", ErrPathTraversal, filePath, baseDir)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p and
// re-attaches the rest.
func resolveExisting(p string) string {
	for dir := p; ; {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return p
		}
		dir = parent
	}
}

// SanitizeFilename maps an identifier such as "sl1/ch135" to a safe file
// name. Characters other than ASCII letters, digits, dot, underscore and dash
// become a single underscore; leading and trailing dots and underscores are
// trimmed. An empty result yields "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// SafeJoin joins a sanitized name onto dir and validates the result.
func SafeJoin(dir, name string) (string, error) {
	p := filepath.Join(dir, SanitizeFilename(name))
	if err := ValidatePathWithinDirectory(p, dir); err != nil {
		return "", err
	}
	return p, nil
}
