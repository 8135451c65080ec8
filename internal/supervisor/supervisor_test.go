package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	pid    int32
	name   string
	exe    string
	exeErr error

	ignoreTerm bool
	termErr    error
	killErr    error

	// killDelay postpones the exit after Kill; ignoreKill never exits.
	killDelay  time.Duration
	ignoreKill bool

	mu         sync.Mutex
	running    bool
	terminated bool
	killed     bool
}

func (p *fakeProcess) Pid() int32 { return p.pid }

func (p *fakeProcess) Name(context.Context) (string, error) { return p.name, nil }

func (p *fakeProcess) Exe(context.Context) (string, error) { return p.exe, p.exeErr }

func (p *fakeProcess) Terminate(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
	if p.termErr != nil {
		return p.termErr
	}
	if !p.ignoreTerm {
		p.running = false
	}
	return nil
}

func (p *fakeProcess) Kill(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	if p.killErr != nil {
		return p.killErr
	}
	switch {
	case p.ignoreKill:
	case p.killDelay > 0:
		time.AfterFunc(p.killDelay, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.running = false
		})
	default:
		p.running = false
	}
	return nil
}

func (p *fakeProcess) IsRunning(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, nil
}

type fakeLister struct {
	procs []Process
	err   error
}

func (l fakeLister) Processes(context.Context) ([]Process, error) {
	return l.procs, l.err
}

// installBinary creates an empty daemon binary and returns its path.
func installBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "Tor", "tor")
	require.NoError(t, os.MkdirAll(filepath.Dir(bin), 0o755))
	require.NoError(t, os.WriteFile(bin, nil, 0o755))
	return bin
}

func TestScan_ClassifiesCandidates(t *testing.T) {
	bin := installBinary(t)
	procs := []Process{
		&fakeProcess{pid: 1, name: "tor", exe: bin, running: true},
		&fakeProcess{pid: 2, name: "tor", exe: "/usr/bin/tor", running: true},
		&fakeProcess{pid: 3, name: "tor.exe", exeErr: fmt.Errorf("open process: %w", os.ErrPermission)},
		&fakeProcess{pid: 4, name: "TOR", exeErr: errors.New("process vanished")},
		&fakeProcess{pid: 5, name: "bash", exe: "/bin/bash"},
	}
	s := New(Config{Binary: bin, Lister: fakeLister{procs: procs}})

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 4)

	outcomes := map[int32]Outcome{}
	for _, r := range report.Results {
		outcomes[r.PID] = r.Outcome
	}
	assert.Equal(t, map[int32]Outcome{
		1: Matched,
		2: NotMatched,
		3: InspectionDenied,
		4: InspectionFailed,
	}, outcomes)

	assert.Len(t, report.Matches(), 1)
	assert.Equal(t, 1, report.Count(InspectionDenied))
	assert.True(t, s.IsRunning(context.Background()))
}

func TestIsRunning_DeniedAndNameOnlyDoNotCount(t *testing.T) {
	bin := installBinary(t)
	procs := []Process{
		&fakeProcess{pid: 2, name: "tor", exe: "/opt/other/tor"},
		&fakeProcess{pid: 3, name: "tor", exeErr: os.ErrPermission},
	}
	s := New(Config{Binary: bin, Lister: fakeLister{procs: procs}})

	assert.False(t, s.IsRunning(context.Background()))
}

func TestIsRunning_EnumerationFailure(t *testing.T) {
	s := New(Config{Binary: "/opt/tor/tor", Lister: fakeLister{err: errors.New("no /proc")}})

	_, err := s.Scan(context.Background())
	assert.Error(t, err)
	assert.False(t, s.IsRunning(context.Background()))
}

func TestScan_SymlinkedBinary(t *testing.T) {
	bin := installBinary(t)
	link := filepath.Join(t.TempDir(), "tor")
	if err := os.Symlink(bin, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	s := New(Config{Binary: link, Lister: fakeLister{procs: []Process{
		&fakeProcess{pid: 9, name: "tor", exe: bin},
	}}})

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Matches(), 1)
}

func TestTerminate(t *testing.T) {
	bin := installBinary(t)
	polite := &fakeProcess{pid: 1, name: "tor", exe: bin, running: true}
	stubborn := &fakeProcess{pid: 2, name: "tor", exe: bin, running: true, ignoreTerm: true}
	immortal := &fakeProcess{pid: 3, name: "tor", exe: bin, running: true,
		termErr: errors.New("denied"), killErr: errors.New("denied")}
	stranger := &fakeProcess{pid: 4, name: "tor", exe: "/usr/bin/tor", running: true}

	s := New(Config{
		Binary:           bin,
		TerminateTimeout: 150 * time.Millisecond,
		Lister:           fakeLister{procs: []Process{polite, stubborn, immortal, stranger}},
	})

	report := s.Terminate(context.Background())
	require.NoError(t, report.Err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, 1, report.Failed())

	byPID := map[int32]TerminateResult{}
	for _, r := range report.Results {
		byPID[r.PID] = r
	}
	assert.False(t, byPID[1].Killed)
	assert.NoError(t, byPID[1].Err)
	assert.True(t, byPID[2].Killed)
	assert.NoError(t, byPID[2].Err)
	assert.Error(t, byPID[3].Err)

	assert.False(t, stranger.terminated, "processes of other installations are left alone")
	assert.True(t, stranger.running)
}

func TestTerminate_WaitsForKilledProcessToExit(t *testing.T) {
	bin := installBinary(t)
	slow := &fakeProcess{pid: 77, name: "tor", exe: bin, running: true,
		ignoreTerm: true, killDelay: 200 * time.Millisecond}

	s := New(Config{
		Binary:           bin,
		TerminateTimeout: 500 * time.Millisecond,
		Lister:           fakeLister{procs: []Process{slow}},
	})

	report := s.Terminate(context.Background())
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Killed)
	assert.NoError(t, report.Results[0].Err)

	running, _ := slow.IsRunning(context.Background())
	assert.False(t, running, "Terminate returned before the process exited")
}

func TestTerminate_KilledProcessThatNeverExits(t *testing.T) {
	bin := installBinary(t)
	zombie := &fakeProcess{pid: 78, name: "tor", exe: bin, running: true,
		ignoreTerm: true, ignoreKill: true}

	s := New(Config{
		Binary:           bin,
		TerminateTimeout: 50 * time.Millisecond,
		Lister:           fakeLister{procs: []Process{zombie}},
	})

	report := s.Terminate(context.Background())
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Killed)
	assert.ErrorContains(t, report.Results[0].Err, "still running")
	assert.Equal(t, 1, report.Failed())
}

func TestTerminate_EnumerationFailureIsSwallowed(t *testing.T) {
	s := New(Config{Binary: "/opt/tor/tor", Lister: fakeLister{err: errors.New("boom")}})

	report := s.Terminate(context.Background())
	assert.Error(t, report.Err)
	assert.Empty(t, report.Results)
}

func TestNameMatches(t *testing.T) {
	assert.True(t, nameMatches("tor", "tor"))
	assert.True(t, nameMatches("Tor.EXE", "tor"))
	assert.False(t, nameMatches("torsocks", "tor"))
	assert.False(t, nameMatches("", "tor"))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "denied", InspectionDenied.String())
}
