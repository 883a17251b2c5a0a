package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathValidator(t *testing.T) {
	_, err := NewPathValidator("")
	assert.Error(t, err)

	v, err := NewPathValidator("relative/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(v.Directory()))
}

func TestPathValidator_Resolve(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.pdf"), filepath.Join(dir, "link.pdf")))

	v, err := NewPathValidator(dir)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "relative", path: "BOL.pdf", want: filepath.Join(v.Directory(), "BOL.pdf")},
		{name: "nested", path: "sub/rows.xlsx", want: filepath.Join(v.Directory(), "sub", "rows.xlsx")},
		{name: "absolute inside", path: filepath.Join(dir, "out.zip"), want: filepath.Join(v.Directory(), "out.zip")},
		{name: "missing output dir", path: "new/out.zip", want: filepath.Join(v.Directory(), "new", "out.zip")},
		{name: "directory itself", path: dir, want: v.Directory()},
		{name: "traversal", path: "../escape.pdf", wantErr: ErrOutsideDirectory},
		{name: "absolute outside", path: filepath.Join(outside, "secret.pdf"), wantErr: ErrOutsideDirectory},
		{name: "symlink outside", path: "link.pdf", wantErr: ErrOutsideDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Resolve(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Error(t, v.ValidatePath(""))
	assert.Error(t, v.ValidatePath("   "))
}

func TestPathValidator_EnsureDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work", "bol")
	v, err := NewPathValidator(dir)
	require.NoError(t, err)

	require.NoError(t, v.EnsureDirectory())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	v, err = NewPathValidator(file)
	require.NoError(t, err)
	assert.Error(t, v.EnsureDirectory())
}
