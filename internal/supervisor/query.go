package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var versionOutputRegex = regexp.MustCompile(`Tor version (\S+)`)

// Installed reports whether the daemon binary exists.
func (s *Supervisor) Installed() bool {
	info, err := os.Stat(s.cfg.Binary)
	return err == nil && !info.IsDir()
}

// InstalledVersion runs the binary with --version and extracts the version
// token. It returns "" when the binary is absent or prints no version.
func (s *Supervisor) InstalledVersion(ctx context.Context) (string, error) {
	if _, err := os.Stat(s.cfg.Binary); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("checking %s: %w", s.cfg.Binary, err)
	}

	out, err := s.query(ctx, "--version")
	if err != nil {
		return "", err
	}

	m := versionOutputRegex.FindSubmatch(out)
	if m == nil {
		s.logger.Debug("no version in daemon output", "binary", s.cfg.Binary)
		return "", nil
	}
	return strings.TrimSuffix(string(m[1]), "."), nil
}

// HashSecret asks the daemon binary for the salted hash of secret, in the
// "16:..." form HashedControlPassword expects.
//
// The secret is passed on the command line and is briefly visible to other
// local users through the process table.
func (s *Supervisor) HashSecret(ctx context.Context, secret string) (string, error) {
	out, err := s.query(ctx, "--hash-password", secret, "--quiet")
	if err != nil {
		return "", err
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "16:") {
			return line, nil
		}
	}
	return "", fmt.Errorf("no hashed password in %s output", s.cfg.Binary)
}

// query runs the binary synchronously and returns its standard output.
func (s *Supervisor) query(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...)
	cmd.SysProcAttr = querySysProcAttr()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("running %s %s: %w (%s)", s.cfg.Binary, args[0], err, msg)
		}
		return nil, fmt.Errorf("running %s %s: %w", s.cfg.Binary, args[0], err)
	}
	return out, nil
}
