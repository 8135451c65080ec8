// Package updater keeps the local daemon installation in step with the
// newest published release.
//
// Installs are not transactional: a failure part way through extraction
// leaves a partially updated directory behind. Callers that may run
// concurrently must serialize Install and Uninstall themselves.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/steveyegge/torctl/internal/exitcode"
	"github.com/steveyegge/torctl/internal/release"
	"github.com/steveyegge/torctl/internal/supervisor"
)

// Resolver finds and downloads releases.
type Resolver interface {
	ResolveLatest(ctx context.Context, platform release.Platform) (release.Release, error)
	DownloadArchive(ctx context.Context, rel release.Release, platform release.Platform) (io.ReadCloser, error)
}

// Supervisor reports the installed version and stops running daemons.
type Supervisor interface {
	InstalledVersion(ctx context.Context) (string, error)
	Terminate(ctx context.Context) supervisor.TerminateReport
}

// Options configures an Updater.
type Options struct {
	InstallDir string
	Platform   release.Platform

	// MaxFileSize bounds each extracted file; zero means MaxFileSize.
	MaxFileSize int64

	Logger *slog.Logger
}

// Updater installs, updates and removes the daemon.
type Updater struct {
	sup         Supervisor
	res         Resolver
	dir         string
	platform    release.Platform
	maxFileSize int64
	logger      *slog.Logger
}

// New creates an Updater.
func New(sup Supervisor, res Resolver, opts Options) *Updater {
	u := &Updater{
		sup:         sup,
		res:         res,
		dir:         opts.InstallDir,
		platform:    opts.Platform,
		maxFileSize: opts.MaxFileSize,
		logger:      opts.Logger,
	}
	if u.platform == "" {
		u.platform = release.DefaultPlatform()
	}
	if u.maxFileSize <= 0 {
		u.maxFileSize = MaxFileSize
	}
	if u.logger == nil {
		u.logger = slog.New(slog.DiscardHandler)
	}
	return u
}

// InstallDir returns the directory the daemon is installed into.
func (u *Updater) InstallDir() string {
	return u.dir
}

// Status compares the installed version with the newest release.
type Status struct {
	Installed string
	Latest    release.Release

	// UpdateNeeded is set when nothing is installed or the versions differ.
	UpdateNeeded bool
}

// Check reports the installed and latest versions. When nothing is
// installed it returns immediately without touching the network, leaving
// Latest empty.
func (u *Updater) Check(ctx context.Context) (Status, error) {
	installed, err := u.sup.InstalledVersion(ctx)
	if err != nil {
		// A binary that exists but cannot report its version is as good as
		// missing.
		u.logger.Warn("could not read installed version", "error", err)
		installed = ""
	}
	if installed == "" {
		return Status{UpdateNeeded: true}, nil
	}

	latest, err := u.res.ResolveLatest(ctx, u.platform)
	if err != nil {
		return Status{Installed: installed}, err
	}
	if latest.IsZero() {
		return Status{Installed: installed}, noBuild(u.platform)
	}

	return Status{
		Installed:    installed,
		Latest:       latest,
		UpdateNeeded: installed != latest.Version,
	}, nil
}

// CheckForUpdate reports whether Install would change the installation.
func (u *Updater) CheckForUpdate(ctx context.Context) (bool, error) {
	st, err := u.Check(ctx)
	if err != nil {
		return false, err
	}
	return st.UpdateNeeded, nil
}

// Result summarizes an Install.
type Result struct {
	Release    release.Release
	Files      int
	Dirs       int
	Terminated supervisor.TerminateReport
}

// Install downloads the newest release and extracts it over the install
// directory. Running daemons of this installation are stopped first.
func (u *Updater) Install(ctx context.Context) (Result, error) {
	var result Result

	if _, err := os.Stat(u.dir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(u.dir, 0o755); err != nil {
			return result, exitcode.Filesystem("creating", u.dir, err)
		}
	} else if err != nil {
		return result, exitcode.Filesystem("checking", u.dir, err)
	} else {
		result.Terminated = u.sup.Terminate(ctx)
	}

	rel, err := u.res.ResolveLatest(ctx, u.platform)
	if err != nil {
		return result, err
	}
	if rel.IsZero() {
		return result, noBuild(u.platform)
	}
	result.Release = rel

	archive, err := u.spool(ctx, rel)
	if err != nil {
		return result, err
	}
	defer func() { _ = os.Remove(archive) }()

	stats, err := extractArchive(archive, u.dir, u.maxFileSize)
	result.Files, result.Dirs = stats.files, stats.dirs
	if err != nil {
		return result, err
	}

	u.logger.Info("installed release",
		"release", rel.Name, "version", rel.Version, "dir", u.dir, "files", stats.files)
	return result, nil
}

// spool streams the release archive into a temporary file.
func (u *Updater) spool(ctx context.Context, rel release.Release) (string, error) {
	body, err := u.res.DownloadArchive(ctx, rel, u.platform)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp("", "torctl-download-*.zip")
	if err != nil {
		return "", exitcode.Filesystem("creating", "download file", err)
	}

	src := &trackingReader{r: body}
	_, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil && src.err != nil:
		_ = os.Remove(tmp.Name())
		return "", exitcode.Network("downloading archive", copyErr)
	case copyErr != nil:
		_ = os.Remove(tmp.Name())
		return "", exitcode.Filesystem("writing", tmp.Name(), copyErr)
	case closeErr != nil:
		_ = os.Remove(tmp.Name())
		return "", exitcode.Filesystem("writing", tmp.Name(), closeErr)
	}
	return tmp.Name(), nil
}

// Uninstall stops running daemons and removes the install directory. It is
// a no-op when nothing is installed.
func (u *Updater) Uninstall(ctx context.Context) error {
	if _, err := os.Stat(u.dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	u.sup.Terminate(ctx)
	if err := os.RemoveAll(u.dir); err != nil {
		return exitcode.Filesystem("removing", u.dir, err)
	}
	u.logger.Info("uninstalled", "dir", u.dir)
	return nil
}

func noBuild(p release.Platform) error {
	return exitcode.Wrap(exitcode.ErrNotFound, fmt.Sprintf("resolving %s build", p), release.ErrNoMatchingBuild)
}

// trackingReader remembers read failures so they can be told apart from
// write failures after io.Copy.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}
