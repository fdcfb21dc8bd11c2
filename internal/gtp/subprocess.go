package gtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// SubprocessLauncher runs engines as child processes speaking GTP on
// stdin/stdout.
type SubprocessLauncher struct{}

// Launch starts the engine described by cfg.
func (SubprocessLauncher) Launch(cfg LaunchConfig) (Channel, error) {
	if len(cfg.Command) == 0 {
		return nil, &LaunchError{Err: errors.New("empty command")}
	}
	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env
	cmd.Stderr = cfg.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LaunchError{Command: cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Command: cfg.Command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: cfg.Command, Err: err}
	}
	return &subprocessChannel{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

type subprocessChannel struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	closed bool
}

func (c *subprocessChannel) Send(command string, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", &TransportError{Msg: "channel is closed"}
	}
	line := FormatCommand(command, args...)
	if _, err := io.WriteString(c.stdin, line+"\n"); err != nil {
		return "", &TransportError{Msg: "error sending to engine", Err: err}
	}
	ok, text, err := readResponse(c.stdout)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &ProtocolError{Command: line, Message: text}
	}
	return text, nil
}

func (c *subprocessChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	// The engine may already be gone; quit is best effort.
	if _, err := io.WriteString(c.stdin, "quit\n"); err == nil {
		_, _, _ = readResponse(c.stdout)
	}
	_ = c.stdin.Close()

	if err := c.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &TransportError{Msg: fmt.Sprintf("engine exited with status %d", exitErr.ExitCode())}
		}
		return &TransportError{Msg: "error waiting for engine", Err: err}
	}
	return nil
}

// readResponse reads one framed response: a line starting '=' or '?',
// an optional numeric id, further lines, then an empty line.
func readResponse(r *bufio.Reader) (ok bool, text string, err error) {
	var lines []string
	started := false
	for {
		line, rerr := r.ReadString('\n')
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return false, "", &TransportError{Msg: "engine has closed the response channel"}
			}
			return false, "", &TransportError{Msg: "error reading from engine", Err: rerr}
		}
		line = strings.TrimRight(line, "\r\n")
		if !started {
			if line == "" {
				continue
			}
			switch line[0] {
			case '=':
				ok = true
			case '?':
				ok = false
			default:
				return false, "", &TransportError{Msg: fmt.Sprintf("malformed response: %q", line)}
			}
			started = true
			line = strings.TrimLeft(line[1:], "0123456789")
			line = strings.TrimPrefix(line, " ")
			lines = append(lines, line)
			continue
		}
		if line == "" {
			return ok, strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
}
