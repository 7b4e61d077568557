package boardrun

import (
	"context"
	"sort"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newBoardFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/media/DAPLINK/old.bin", []byte("old"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/media/DAPLINK/OLDER.BIN", []byte("older"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/media/DAPLINK/DETAILS.TXT", []byte("Unique ID: 0240"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/build/tests.bin", []byte("firmware image"), 0644))
	return fs
}

func TestCopyInstaller(t *testing.T) {
	fs := newBoardFs(t)
	inst := &CopyInstaller{Fs: fs, Src: fs, Ext: ".bin"}

	require.NoError(t, inst.Install(context.Background(), "/build/tests.bin", "/media/DAPLINK"))

	assert.Equal(t, []string{"DETAILS.TXT", "tests.bin"}, listDir(t, fs, "/media/DAPLINK"))
	got, err := afero.ReadFile(fs, "/media/DAPLINK/tests.bin")
	require.NoError(t, err)
	assert.Equal(t, "firmware image", string(got))
}

func TestCopyInstallerSeparateSource(t *testing.T) {
	board := newBoardFs(t)
	src := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(src, "/out/app.bin", []byte("app"), 0644))

	inst := &CopyInstaller{Fs: board, Src: src, Ext: ".bin"}
	require.NoError(t, inst.Install(context.Background(), "/out/app.bin", "/media/DAPLINK"))
	assert.Equal(t, []string{"DETAILS.TXT", "app.bin"}, listDir(t, board, "/media/DAPLINK"))
}

func TestCopyInstallerErrors(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		fs := newBoardFs(t)
		inst := &CopyInstaller{Fs: fs, Src: fs, Ext: ".bin"}
		require.Error(t, inst.Install(context.Background(), "/build/missing.bin", "/media/DAPLINK"))
	})

	t.Run("missing mount point", func(t *testing.T) {
		fs := newBoardFs(t)
		inst := &CopyInstaller{Fs: fs, Src: fs, Ext: ".bin"}
		require.Error(t, inst.Install(context.Background(), "/build/tests.bin", "/media/NOPE"))
	})

	t.Run("cancelled", func(t *testing.T) {
		fs := newBoardFs(t)
		inst := &CopyInstaller{Fs: fs, Src: fs, Ext: ".bin"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, inst.Install(ctx, "/build/tests.bin", "/media/DAPLINK"), context.Canceled)
	})
}

func TestRemoveBinaries(t *testing.T) {
	fs := newBoardFs(t)
	require.NoError(t, fs.MkdirAll("/media/DAPLINK/dir.bin", 0755))

	removed, err := removeBinaries(fs, "/media/DAPLINK", ".bin")
	require.NoError(t, err)
	sort.Strings(removed)
	assert.Equal(t, []string{"OLDER.BIN", "old.bin"}, removed)
	assert.Equal(t, []string{"DETAILS.TXT", "dir.bin"}, listDir(t, fs, "/media/DAPLINK"))
}
