package terminal

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/codesync-go/types"
)

type outputs struct {
	mu  sync.Mutex
	buf strings.Builder
	n   int
}

func (o *outputs) Publish(_ string, ev types.Event) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.WriteString(ev.(types.TerminalOutput).Output)
	o.n++
	return 1
}

func (o *outputs) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *outputs) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

func requirePTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no /dev/ptmx on this host")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh on this host")
	}
}

func newTestTerminal(t *testing.T, pub Publisher) *Terminal {
	t.Helper()
	term := New("s1", Config{Shell: "/bin/sh", WorkDir: t.TempDir(), Cols: 80, Rows: 24}, pub)
	t.Cleanup(term.Close)
	return term
}

func TestStartThenEchoPublishesOutput(t *testing.T) {
	requirePTY(t)
	out := &outputs{}
	term := newTestTerminal(t, out)
	assert.Equal(t, Absent, term.State())

	require.NoError(t, term.Start())
	assert.Equal(t, Running, term.State())
	require.True(t, term.Write([]byte("echo hi\n")))

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "hi\r\n")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	requirePTY(t)
	term := newTestTerminal(t, &outputs{})
	require.NoError(t, term.Start())
	pid := term.proc.cmd.Process.Pid
	require.NoError(t, term.Start())
	assert.Equal(t, pid, term.proc.cmd.Process.Pid)
}

func TestExitThenRestart(t *testing.T) {
	requirePTY(t)
	out := &outputs{}
	term := newTestTerminal(t, out)
	require.NoError(t, term.Start())
	require.True(t, term.Write([]byte("exit\n")))

	assert.Eventually(t, func() bool { return term.State() == Exited }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, term.Write([]byte("echo ignored\n")))

	require.NoError(t, term.Start())
	assert.Equal(t, Running, term.State())
	require.True(t, term.Write([]byte("echo again\n")))
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "again\r\n")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSpawnFailureIsReportedOnce(t *testing.T) {
	requirePTY(t)
	out := &outputs{}
	term := New("s1", Config{Shell: "/nonexistent/shell", WorkDir: t.TempDir()}, out)

	err := term.Start()
	assert.ErrorIs(t, err, types.ErrProcessSpawn)
	assert.Equal(t, Absent, term.State())
	assert.Equal(t, 1, out.count())
	assert.Contains(t, out.String(), "failed to start terminal")
}

func TestExecuteWritesFileAndRunsCommand(t *testing.T) {
	requirePTY(t)
	out := &outputs{}
	term := newTestTerminal(t, out)

	require.NoError(t, term.Execute("scripts/run.sh", "echo executed-$((1+1))\n"))
	data, err := os.ReadFile(term.WorkDir() + "/run.sh")
	require.NoError(t, err)
	assert.Equal(t, "echo executed-$((1+1))\n", string(data))

	if _, err := os.Stat("/bin/bash"); err == nil {
		assert.Eventually(t, func() bool {
			return strings.Contains(out.String(), "executed-2")
		}, 5*time.Second, 20*time.Millisecond)
	}
}

func TestExecuteUnsupportedExtension(t *testing.T) {
	out := &outputs{}
	term := New("s1", Config{WorkDir: t.TempDir()}, out)

	err := term.Execute("notes.txt", "hello")
	assert.ErrorIs(t, err, types.ErrUnsupportedFileType)
	assert.Equal(t, Absent, term.State())
	assert.Contains(t, out.String(), "unsupported file type")
}

func TestCloseResetsToAbsent(t *testing.T) {
	requirePTY(t)
	dir := t.TempDir() + "/work"
	term := New("s1", Config{Shell: "/bin/sh", WorkDir: dir}, &outputs{})
	require.NoError(t, term.Start())

	term.Close()
	assert.Equal(t, Absent, term.State())
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, term.Start(), types.ErrNotFound)
	assert.Equal(t, Absent, term.State())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestStartAfterCloseWithoutProcess(t *testing.T) {
	term := New("s1", Config{Shell: "/bin/sh", WorkDir: t.TempDir()}, &outputs{})
	term.Close()
	assert.ErrorIs(t, term.Start(), types.ErrNotFound)
	assert.Equal(t, Absent, term.State())
}

func TestSplitUTF8(t *testing.T) {
	b := []byte("héllo")
	complete, rest := splitUTF8(b[:2]) // "h" + first byte of é
	assert.Equal(t, "h", string(complete))
	assert.Len(t, rest, 1)

	complete, rest = splitUTF8(b)
	assert.Equal(t, "héllo", string(complete))
	assert.Empty(t, rest)
}

func TestResizeValidation(t *testing.T) {
	term := New("s1", Config{WorkDir: t.TempDir()}, &outputs{})
	assert.ErrorIs(t, term.Resize(0, 10), types.ErrBadRequest)
	assert.NoError(t, term.Resize(100, 40))
}
