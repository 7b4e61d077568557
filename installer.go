package boardrun

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileInstaller copies a binary onto a board's mounted drive.
// Implementations must remove every existing binary at mountPoint before
// copying the new one in.
type FileInstaller interface {
	Install(ctx context.Context, source, mountPoint string) error
}

// CopyInstaller installs by plain file copy, which is all the board's
// interface firmware needs on Linux.
type CopyInstaller struct {
	Fs  afero.Fs // Filesystem the mount point lives on
	Src afero.Fs // Filesystem the source binary lives on
	Ext string
}

// NewCopyInstaller returns an installer working on the host filesystem
func NewCopyInstaller(ext string) *CopyInstaller {
	fs := afero.NewOsFs()
	return &CopyInstaller{Fs: fs, Src: fs, Ext: ext}
}

// Install replaces the binaries at mountPoint with source
func (c *CopyInstaller) Install(ctx context.Context, source, mountPoint string) error {
	if _, err := removeBinaries(c.Fs, mountPoint, c.Ext); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := c.Src.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open binary: %w", err)
	}
	defer in.Close()

	target := filepath.Join(mountPoint, filepath.Base(source))
	out, err := c.Fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", target, err)
	}
	// The interface firmware flashes once the file is complete on the drive
	if err := syncClose(out); err != nil {
		return fmt.Errorf("failed to flush %s: %w", target, err)
	}
	return nil
}

// removeBinaries deletes every file with extension ext directly under dir
// and returns the removed names.
func removeBinaries(fs afero.Fs, dir, ext string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		if err := fs.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}
