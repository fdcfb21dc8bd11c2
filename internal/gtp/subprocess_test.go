package gtp

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shellEngine is a minimal GTP engine. "die" makes it exit without
// answering; quit exits with $QUIT_STATUS.
const shellEngine = `
while read cmd rest; do
  case "$cmd" in
    protocol_version) printf '= 2\n\n' ;;
    name) printf '= shell\n\n' ;;
    level) printf '= %s\n\n' "$ENGINE_LEVEL" ;;
    cwd) printf '= %s\n\n' "$(pwd)" ;;
    complain) echo "engine trouble" >&2; printf '= \n\n' ;;
    die) exit 0 ;;
    quit) printf '= \n\n'; exit ${QUIT_STATUS:-0} ;;
    *) printf '? unknown command\n\n' ;;
  esac
done
`

func launchShell(t *testing.T, cfg LaunchConfig) Channel {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	cfg.Command = []string{"sh", "-c", shellEngine}
	ch, err := SubprocessLauncher{}.Launch(cfg)
	require.NoError(t, err)
	return ch
}

func TestSubprocessSession(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	ch := launchShell(t, LaunchConfig{
		Dir:    dir,
		Env:    MergeEnv(map[string]string{"ENGINE_LEVEL": "3"}),
		Stderr: &stderr,
	})

	resp, err := ch.Send("protocol_version")
	require.NoError(t, err)
	assert.Equal(t, "2", resp)

	resp, err = ch.Send("level")
	require.NoError(t, err)
	assert.Equal(t, "3", resp)

	resp, err = ch.Send("cwd")
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(resp)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ch.Send("complain")
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	assert.Contains(t, stderr.String(), "engine trouble")
	require.NoError(t, ch.Close(), "Close is idempotent")

	_, err = ch.Send("name")
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestSubprocessLaunchFailure(t *testing.T) {
	_, err := SubprocessLauncher{}.Launch(LaunchConfig{Command: []string{"/nonexistent/engine"}})
	var le *LaunchError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, []string{"/nonexistent/engine"}, le.Command)
	assert.Contains(t, err.Error(), "/nonexistent/engine")

	_, err = SubprocessLauncher{}.Launch(LaunchConfig{})
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "empty command", err.Error())
}

func TestSubprocessFailureResponse(t *testing.T) {
	ch := launchShell(t, LaunchConfig{})
	defer ch.Close()

	_, err := ch.Send("boardsize", "9")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "unknown command", pe.Message)
	assert.Equal(t, "failure response from 'boardsize 9': unknown command", err.Error())

	// The channel is still usable after a failure response.
	resp, err := ch.Send("name")
	require.NoError(t, err)
	assert.Equal(t, "shell", resp)
}

func TestSubprocessDeadEngine(t *testing.T) {
	ch := launchShell(t, LaunchConfig{})

	_, err := ch.Send("die")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "engine has closed the response channel", err.Error())

	_, err = ch.Send("name")
	assert.ErrorAs(t, err, &te)

	assert.NoError(t, ch.Close(), "the engine exited cleanly")
}

func TestSubprocessCloseExitStatus(t *testing.T) {
	ch := launchShell(t, LaunchConfig{Env: MergeEnv(map[string]string{"QUIT_STATUS": "3"})})

	_, err := ch.Send("protocol_version")
	require.NoError(t, err)

	err = ch.Close()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "engine exited with status 3", err.Error())
}
