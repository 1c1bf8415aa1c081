package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	require.NoError(t, os.MkdirAll(safeDir, 0755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0755))
	require.NoError(t, os.Symlink(unsafeDir, filepath.Join(safeDir, "link")))

	tests := []struct {
		name      string
		filePath  string
		baseDir   string
		wantError bool
	}{
		{"file in directory", filepath.Join(safeDir, "rows.csv"), safeDir, false},
		{"nested new file", filepath.Join(safeDir, "sl1", "ch7.csv"), safeDir, false},
		{"directory itself", safeDir, safeDir, false},
		{"dot dot", filepath.Join(safeDir, "..", "rows.csv"), safeDir, true},
		{"sibling", filepath.Join(unsafeDir, "rows.csv"), safeDir, true},
		{"symlink escape", filepath.Join(safeDir, "link", "rows.csv"), safeDir, true},
		{"missing base lexical ok", "out/plots/theta.png", "out/plots", false},
		{"missing base lexical escape", "out/plots/../theta.png", "out/plots", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.baseDir)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrPathTraversal))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sl1/ch135", "sl1_ch135"},
		{"run-2024.05.01", "run-2024.05.01"},
		{"../../etc/passwd", "etc_passwd"},
		{"a  b//c", "a_b_c"},
		{"", "unknown"},
		{"///", "unknown"},
		{"..", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}

	assert.Len(t, SanitizeFilename(strings.Repeat("x", 300)), maxFilenameLen)
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()
	p, err := SafeJoin(dir, "sl0/ch3.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sl0_ch3.csv"), p)

	p, err = SafeJoin(dir, "../escape")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape"), p)
}
