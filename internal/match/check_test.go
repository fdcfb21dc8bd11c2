package match

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/ringmaster/internal/gtp"
)

func newCheck() (PlayerCheck, *gtp.EngineLauncher) {
	return PlayerCheck{
		Player:    Player{Code: "test", Command: []string{"test", "id=test"}},
		BoardSize: 9,
		Komi:      7.0,
	}, gtp.NewEngineLauncher()
}

func requireCheckFailed(t *testing.T, err error, msg string) {
	t.Helper()
	var cf *CheckFailed
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, msg, cf.Error())
}

func TestCheckPlayer(t *testing.T) {
	ck, l := newCheck()
	require.NoError(t, Check(l, ck, CheckOptions{}))

	ch := l.Channel("test")
	require.NotNil(t, ch)
	assert.Nil(t, ch.Config.Stderr)
	assert.Empty(t, ch.Config.Dir)
	assert.Nil(t, ch.Config.Env)
	assert.True(t, ch.Closed())
	assert.Equal(t, []string{"protocol_version", "boardsize 9", "clear_board", "komi 7"}, ch.History())
}

func TestCheckPlayerDiscardStderr(t *testing.T) {
	ck, l := newCheck()
	require.NoError(t, Check(l, ck, CheckOptions{DiscardStderr: true}))

	f, ok := l.Channel("test").Config.Stderr.(*os.File)
	require.True(t, ok)
	assert.Equal(t, os.DevNull, f.Name())
}

func TestCheckPlayerBoardsizeFails(t *testing.T) {
	ck, l := newCheck()
	l.RegisterEngine("no_boardsize", func(id string) *gtp.Engine {
		e := gtp.NewTestPlayer(gtp.TestPlayerConfig{Name: id})
		e.Remove("boardsize")
		return e
	})
	ck.Player.Command = append(ck.Player.Command, "engine=no_boardsize")

	err := Check(l, ck, CheckOptions{})
	requireCheckFailed(t, err, "failure response from 'boardsize 9' to test: unknown command")
	var pe *gtp.ProtocolError
	assert.ErrorAs(t, err, &pe)
	assert.True(t, l.Channel("test").Closed())
}

func TestCheckPlayerStartupCommands(t *testing.T) {
	ck, l := newCheck()
	ck.Player.StartupCommands = []Command{
		{Name: "list_commands"},
		{Name: "nonexistent", Args: []string{"command"}},
	}
	err := Check(l, ck, CheckOptions{})
	requireCheckFailed(t, err, "failure response from 'nonexistent command' to test: unknown command")
}

func TestCheckPlayerNonexistentCwd(t *testing.T) {
	ck, l := newCheck()
	ck.Player.Dir = "/nonexistent/directory"
	err := Check(l, ck, CheckOptions{})
	requireCheckFailed(t, err, "bad working directory: /nonexistent/directory")
	assert.Nil(t, l.Channel("test"), "nothing launched")
}

func TestCheckPlayerCwdIsFile(t *testing.T) {
	ck, l := newCheck()
	f, err := os.CreateTemp(t.TempDir(), "notadir")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	ck.Player.Dir = f.Name()
	requireCheckFailed(t, Check(l, ck, CheckOptions{}), "bad working directory: "+f.Name())
}

func TestCheckPlayerCwd(t *testing.T) {
	ck, l := newCheck()
	ck.Player.Dir = "/"
	require.NoError(t, Check(l, ck, CheckOptions{}))
	assert.Equal(t, "/", l.Channel("test").Config.Dir)
}

func TestCheckPlayerEnv(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")
	ck, l := newCheck()
	ck.Player.Env = map[string]string{"RINGMASTER_TEST": "ringmaster"}
	require.NoError(t, Check(l, ck, CheckOptions{}))

	env := l.Channel("test").Config.Env
	v, ok := gtp.LookupEnv(env, "RINGMASTER_TEST")
	assert.True(t, ok)
	assert.Equal(t, "ringmaster", v)
	// Merged, not replaced.
	_, ok = gtp.LookupEnv(env, "PATH")
	assert.True(t, ok)
}

func TestCheckPlayerExecFailure(t *testing.T) {
	ck, l := newCheck()
	ck.Player.Command = append(ck.Player.Command, "fail=startup")
	requireCheckFailed(t, Check(l, ck, CheckOptions{}), "error starting subprocess for test: exec forced to fail")
}

func TestCheckPlayerChannelError(t *testing.T) {
	ck, l := newCheck()
	ck.Player.Command = append(ck.Player.Command, "init=fail_first_command")
	err := Check(l, ck, CheckOptions{})
	requireCheckFailed(t, err,
		"transport error sending first command (protocol_version) to test: forced failure for send_command_line")
	var te *gtp.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestCheckPlayerChannelErrorOnClose(t *testing.T) {
	ck, l := newCheck()
	ck.Player.Command = append(ck.Player.Command, "init=fail_close")
	requireCheckFailed(t, Check(l, ck, CheckOptions{}), "error closing test: forced failure for close")
}

func TestCheckPlayerWrongProtocolVersion(t *testing.T) {
	ck, l := newCheck()
	l.RegisterHook("gtp1", func(c *gtp.EngineChannel) {
		c.Engine.Add("protocol_version", func([]string) (string, error) { return "1", nil })
	})
	ck.Player.Command = append(ck.Player.Command, "init=gtp1")
	requireCheckFailed(t, Check(l, ck, CheckOptions{}), "test reports GTP protocol version 1")
}
