package updater

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/torctl/internal/exitcode"
)

// MaxFileSize is the default bound on a single extracted file (100MB).
const MaxFileSize = 100 * 1024 * 1024

type extractStats struct {
	files int
	dirs  int
}

// extractArchive writes every entry of the zip at archivePath below root.
// An entry with zero compressed size is a directory; anything else is a file
// that replaces whatever is already at its path.
func extractArchive(archivePath, root string, maxFileSize int64) (extractStats, error) {
	var stats extractStats

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return stats, fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target, err := entryPath(root, f.Name)
		if err != nil {
			return stats, err
		}

		if strings.HasSuffix(f.Name, "/") || f.CompressedSize64 == 0 {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, exitcode.Filesystem("creating", target, err)
			}
			stats.dirs++
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return stats, exitcode.Filesystem("creating", filepath.Dir(target), err)
		}
		if err := extractFile(f, target, maxFileSize); err != nil {
			return stats, err
		}
		stats.files++
	}
	return stats, nil
}

// entryPath maps an archive entry name to a path below root, rejecting
// names that would escape it.
func entryPath(root, name string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("archive entry %q escapes the install directory", name)
	}
	return filepath.Join(root, rel), nil
}

func extractFile(f *zip.File, target string, maxFileSize int64) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s in archive: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	// Mask mode to avoid arbitrary permissions from the archive.
	mode := f.Mode().Perm() & 0o755
	if mode == 0 {
		mode = 0o644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return exitcode.Filesystem("creating", target, err)
	}

	n, copyErr := io.Copy(out, io.LimitReader(rc, maxFileSize))
	closeErr := out.Close()

	if copyErr == nil && n == maxFileSize {
		var probe [1]byte
		if extra, _ := rc.Read(probe[:]); extra > 0 {
			return fmt.Errorf("%s exceeds maximum allowed size of %d bytes", f.Name, maxFileSize)
		}
	}
	if copyErr != nil {
		return exitcode.Filesystem("writing", target, copyErr)
	}
	if closeErr != nil {
		return exitcode.Filesystem("writing", target, closeErr)
	}

	// OpenFile keeps the mode of a file it did not create.
	if err := os.Chmod(target, mode); err != nil {
		return exitcode.Filesystem("setting mode on", target, err)
	}
	return nil
}
