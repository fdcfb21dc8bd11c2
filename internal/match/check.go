package match

import (
	"errors"
	"os"
	"strconv"

	"github.com/ChuLiYu/ringmaster/internal/gtp"
)

// PlayerCheck asks whether a player can start a game of the given shape.
type PlayerCheck struct {
	Player    Player
	BoardSize int
	Komi      float64
}

// CheckOptions tunes Check.
type CheckOptions struct {
	// DiscardStderr sends the engine's stderr to the null device.
	DiscardStderr bool
}

// Check launches the player, runs the opening handshake and closes it
// again. Any abnormality, including a failed close, is a *CheckFailed.
func Check(l gtp.Launcher, c PlayerCheck, opts CheckOptions) error {
	p := c.Player
	if p.Dir != "" {
		if fi, err := os.Stat(p.Dir); err != nil || !fi.IsDir() {
			return &CheckFailed{Msg: "bad working directory: " + p.Dir, Err: err}
		}
	}

	stderr, closeStderr, err := p.openStderr(opts.DiscardStderr)
	if err != nil {
		return &CheckFailed{Msg: err.Error(), Err: err}
	}
	defer closeStderr()

	ch, err := l.Launch(p.launchConfig(stderr))
	if err != nil {
		return &CheckFailed{Msg: "error starting subprocess for " + p.Code + ": " + err.Error(), Err: err}
	}

	if err := handshakeCheck(ch, c); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Close(); err != nil {
		return &CheckFailed{Msg: "error closing " + p.Code + ": " + err.Error(), Err: err}
	}
	return nil
}

func handshakeCheck(ch gtp.Channel, c PlayerCheck) error {
	code := c.Player.Code

	version, err := ch.Send("protocol_version")
	if err != nil {
		if isProtocolError(err) {
			return failCheck(describeSendError(err, "protocol_version", code))
		}
		return failCheck(causef(err, "transport error sending first command (protocol_version) to %s: %v", code, err))
	}
	if version != gtp.ProtocolVersion {
		return &CheckFailed{Msg: code + " reports GTP protocol version " + version}
	}

	for _, cmd := range setupCommands(c.BoardSize, c.Komi, c.Player.StartupCommands) {
		if _, err := ch.Send(cmd.Name, cmd.Args...); err != nil {
			return failCheck(describeSendError(err, cmd.String(), code))
		}
	}
	return nil
}

// setupCommands lists the commands sent after protocol_version.
func setupCommands(size int, komi float64, startup []Command) []Command {
	cmds := []Command{
		{Name: "boardsize", Args: []string{strconv.Itoa(size)}},
		{Name: "clear_board"},
		{Name: "komi", Args: []string{FormatKomi(komi)}},
	}
	return append(cmds, startup...)
}

func failCheck(err error) error {
	var ce *causeError
	if errors.As(err, &ce) {
		return &CheckFailed{Msg: ce.msg, Err: ce.err}
	}
	return &CheckFailed{Msg: err.Error(), Err: err}
}

// FormatKomi renders komi without trailing zeros ("7.5", "7", "-0.5").
func FormatKomi(k float64) string {
	return strconv.FormatFloat(k, 'f', -1, 64)
}
