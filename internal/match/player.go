package match

import (
	"fmt"
	"io"
	"os"

	"github.com/ChuLiYu/ringmaster/internal/gtp"
)

// Command is a GTP command with its arguments.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return gtp.FormatCommand(c.Name, c.Args...)
}

// Player describes how to run one engine.
type Player struct {
	Code    string
	Command []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env is merged over the inherited environment.
	Env map[string]string
	// StderrPath receives the engine's standard error; empty means inherit.
	StderrPath string
	// StartupCommands are sent once, after board size and komi.
	StartupCommands []Command
	// AllowClaim lets the engine end the game early with a claim.
	AllowClaim bool
}

// openStderr opens the file the player's stderr goes to. The returned
// close function is always safe to call.
func (p Player) openStderr(discard bool) (io.Writer, func(), error) {
	path := p.StderrPath
	if discard {
		path = os.DevNull
	}
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, func() {}, fmt.Errorf("can't open stderr file for %s: %w", p.Code, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func (p Player) launchConfig(stderr io.Writer) gtp.LaunchConfig {
	return gtp.LaunchConfig{
		Command: p.Command,
		Dir:     p.Dir,
		Env:     gtp.MergeEnv(p.Env),
		Stderr:  stderr,
	}
}
