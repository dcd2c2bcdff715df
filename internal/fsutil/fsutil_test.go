package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfinePath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"plain file", "clip.ckv", false},
		{"nested file", "2026/08/clip.ckv", false},
		{"dot segments collapse inside", "a/../clip.ckv", false},
		{"parent escape", "../clip.ckv", true},
		{"deep escape", "a/../../clip.ckv", true},
		{"absolute", "/etc/passwd", true},
		{"backslash", "a\\clip.ckv", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ConfinePath(root, tc.target)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, filepath.IsAbs(got))
		})
	}
}

func TestConfinePathRejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "out")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ConfinePath(root, "out/clip.ckv")
	require.Error(t, err)
}

func TestWriteAtomic(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nested", "clip.ckv")

	require.NoError(t, WriteAtomic(path, []byte("payload"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	// Overwrite replaces the content in one step.
	require.NoError(t, WriteAtomic(path, []byte("v2"), 0o644))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}
