// Package terminal runs one shell per session on a pseudo-terminal and
// streams its output to the session's terminal topic.
package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

type State int

const (
	Absent State = iota
	Starting
	Running
	Exited
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	readBufferSize = 4096
	inputQueue     = 64
	drainGrace     = 200 * time.Millisecond
	killGrace      = 2 * time.Second
)

// Publisher is the subset of the broker the terminal needs.
type Publisher interface {
	Publish(sessionID string, ev types.Event) int
}

type Config struct {
	Shell   string
	WorkDir string
	Cols    uint16
	Rows    uint16
}

// process is one spawned shell. Only its reader goroutine reads master and
// only its writer goroutine writes it.
type process struct {
	master *os.File
	cmd    *exec.Cmd
	input  chan []byte
	exited chan struct{}
}

type Terminal struct {
	sessionID string
	cfg       Config
	pub       Publisher

	mu     sync.Mutex
	state  State
	proc   *process
	closed bool // set by Close; a closed terminal never starts again
}

func New(sessionID string, cfg Config, pub Publisher) *Terminal {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "codesync", sessionID)
	}
	return &Terminal{sessionID: sessionID, cfg: cfg, pub: pub}
}

func (t *Terminal) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// WorkDir is where executed files are written and the shell starts.
func (t *Terminal) WorkDir() string {
	return t.cfg.WorkDir
}

// Start spawns the shell unless one is already running. A spawn failure is
// reported once on the terminal topic and leaves the terminal Absent.
func (t *Terminal) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.errClosed()
	}
	if t.state == Starting || t.state == Running {
		return nil
	}
	t.state = Starting

	p, err := t.spawn()
	if err != nil {
		t.state = Absent
		tool.DefaultLogger.Errorf("[Terminal] session %s: %v", t.sessionID, err)
		t.output(fmt.Sprintf("failed to start terminal: %v\r\n", err))
		return fmt.Errorf("%v: %w", err, types.ErrProcessSpawn)
	}
	t.proc = p
	t.state = Running
	metrics.TerminalStarted()
	tool.DefaultLogger.Infof("[Terminal] session %s: started %s (pid %d)", t.sessionID, t.cfg.Shell, p.cmd.Process.Pid)

	reader := make(chan struct{})
	go t.readLoop(p, reader)
	go t.writeLoop(p)
	go t.waitLoop(p, reader)
	return nil
}

func (t *Terminal) spawn() (*process, error) {
	if err := os.MkdirAll(t.cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	master, slavePath, err := openPTY()
	if err != nil {
		return nil, fmt.Errorf("allocate PTY: %w", err)
	}
	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}
	if t.cfg.Cols > 0 && t.cfg.Rows > 0 {
		if err := setWindowSize(master, t.cfg.Cols, t.cfg.Rows); err != nil {
			tool.DefaultLogger.Debugf("[Terminal] session %s: set window size: %v", t.sessionID, err)
		}
	}

	cmd := exec.Command(t.cfg.Shell)
	cmd.Dir = t.cfg.WorkDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("start %s: %w", t.cfg.Shell, err)
	}
	// the child holds its own copies on fds 0-2
	slave.Close()

	return &process{
		master: master,
		cmd:    cmd,
		input:  make(chan []byte, inputQueue),
		exited: make(chan struct{}),
	}, nil
}

func (t *Terminal) readLoop(p *process, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, readBufferSize)
	var carry []byte
	for {
		n, err := p.master.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			var complete []byte
			complete, carry = splitUTF8(chunk)
			carry = append([]byte(nil), carry...)
			if len(complete) > 0 {
				t.output(string(complete))
			}
		}
		if err != nil {
			// EIO once every holder of the slave has gone
			if len(carry) > 0 {
				t.output(string(carry))
			}
			return
		}
	}
}

func (t *Terminal) writeLoop(p *process) {
	for {
		select {
		case b := <-p.input:
			if _, err := p.master.Write(b); err != nil {
				tool.DefaultLogger.Debugf("[Terminal] session %s: write: %v", t.sessionID, err)
				return
			}
		case <-p.exited:
			return
		}
	}
}

func (t *Terminal) waitLoop(p *process, reader <-chan struct{}) {
	err := p.cmd.Wait()
	select {
	case <-reader:
	case <-time.After(drainGrace):
	}
	p.master.Close()
	<-reader
	close(p.exited)
	metrics.TerminalStopped()

	t.mu.Lock()
	current := t.proc == p
	if current {
		t.proc = nil
		t.state = Exited
	}
	t.mu.Unlock()

	if current {
		tool.DefaultLogger.Infof("[Terminal] session %s: shell exited: %v", t.sessionID, exitDescription(err))
	}
}

func exitDescription(err error) string {
	if err == nil {
		return "status 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return "signal " + status.Signal().String()
		}
		return fmt.Sprintf("status %d", exitErr.ExitCode())
	}
	return err.Error()
}

// Write queues raw input for the shell. It reports false, dropping the input,
// when no shell is running.
func (t *Terminal) Write(b []byte) bool {
	t.mu.Lock()
	p := t.proc
	running := t.state == Running
	t.mu.Unlock()
	if !running || p == nil || len(b) == 0 {
		return false
	}
	select {
	case p.input <- append([]byte(nil), b...):
		return true
	case <-p.exited:
		return false
	}
}

// Resize updates the pty window size of the running shell.
func (t *Terminal) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("window size %dx%d: %w", cols, rows, types.ErrBadRequest)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg.Cols, t.cfg.Rows = cols, rows
	if t.state != Running || t.proc == nil {
		return nil
	}
	return setWindowSize(t.proc.master, cols, rows)
}

// Execute writes content to fileName in the working directory and types the
// matching run command into the shell, starting it if needed. Unsupported
// extensions are reported on the terminal topic and never reach the shell.
func (t *Terminal) Execute(fileName, content string) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return t.errClosed()
	}
	command, err := CommandFor(fileName)
	if err != nil {
		t.output(fmt.Sprintf("unsupported file type: %s\r\n", filepath.Base(fileName)))
		return err
	}
	if err := os.MkdirAll(t.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	target := filepath.Join(t.cfg.WorkDir, filepath.Base(fileName))
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := t.Start(); err != nil {
		return err
	}
	if !t.Write([]byte(command + "\n")) {
		return fmt.Errorf("terminal not running: %w", types.ErrInvalidOperation)
	}
	return nil
}

// Close kills the shell, releases the pty and removes the working directory.
// The terminal is Absent afterwards and refuses to start again.
func (t *Terminal) Close() {
	t.mu.Lock()
	p := t.proc
	t.proc = nil
	t.state = Absent
	t.closed = true
	t.mu.Unlock()

	if p != nil {
		pid := p.cmd.Process.Pid
		if err := signalGroup(pid, syscall.SIGTERM); err != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}
		p.master.Close()
		select {
		case <-p.exited:
		case <-time.After(killGrace):
			_ = signalGroup(pid, syscall.SIGKILL)
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
		tool.DefaultLogger.Infof("[Terminal] session %s: terminated", t.sessionID)
	}
	if err := os.RemoveAll(t.cfg.WorkDir); err != nil {
		tool.DefaultLogger.Warnf("[Terminal] session %s: remove %s: %v", t.sessionID, t.cfg.WorkDir, err)
	}
}

func (t *Terminal) errClosed() error {
	return fmt.Errorf("terminal of session %s is closed: %w", t.sessionID, types.ErrNotFound)
}

func (t *Terminal) output(s string) {
	t.pub.Publish(t.sessionID, types.TerminalOutput{Output: s})
}

// splitUTF8 holds back a trailing incomplete rune so chunks stay valid text.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i], b[i:]
			}
			break
		}
	}
	return b, nil
}
