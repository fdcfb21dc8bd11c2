package gtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// ProtocolVersion is the GTP version this package speaks.
const ProtocolVersion = "2"

// Handler implements one GTP command. Returning an error produces a failure
// response carrying the error text.
type Handler func(args []string) (string, error)

// Engine is an in-process GTP engine: a table of named handlers.
type Engine struct {
	mu       sync.Mutex
	handlers map[string]Handler
	quit     bool
}

// NewEngine returns an engine supporting the protocol commands
// (protocol_version, list_commands, known_command, quit).
func NewEngine() *Engine {
	e := &Engine{handlers: make(map[string]Handler)}
	e.Add("protocol_version", func([]string) (string, error) { return ProtocolVersion, nil })
	e.Add("list_commands", func([]string) (string, error) {
		return strings.Join(e.Commands(), "\n"), nil
	})
	e.Add("known_command", func(args []string) (string, error) {
		if len(args) != 1 {
			return "", Failf("wrong number of arguments")
		}
		return strconv.FormatBool(e.Known(args[0])), nil
	})
	e.Add("quit", func([]string) (string, error) {
		e.mu.Lock()
		e.quit = true
		e.mu.Unlock()
		return "", nil
	})
	return e
}

// Add registers (or replaces) a command handler.
func (e *Engine) Add(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

// Remove unregisters a command.
func (e *Engine) Remove(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, name)
}

// Known reports whether a command is registered.
func (e *Engine) Known(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handlers[name]
	return ok
}

// Commands lists the registered commands in sorted order.
func (e *Engine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Quit reports whether the engine has processed quit.
func (e *Engine) Quit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quit
}

// Run executes one command. Unknown commands fail with "unknown command".
// After quit every call returns ErrQuit.
func (e *Engine) Run(command string, args ...string) (string, error) {
	e.mu.Lock()
	if e.quit {
		e.mu.Unlock()
		return "", ErrQuit
	}
	h, ok := e.handlers[command]
	e.mu.Unlock()
	if !ok {
		return "", Failf("unknown command")
	}
	return h(args)
}

// Serve runs an interactive GTP session, reading commands from r and
// writing responses to w, until quit or end of input.
func (e *Engine) Serve(r io.Reader, w io.Writer) error {
	in := bufio.NewScanner(r)
	out := bufio.NewWriter(w)
	for in.Scan() {
		id, command, args := parseCommandLine(in.Text())
		if command == "" {
			continue
		}
		resp, err := e.Run(command, args...)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "?%s %s\n\n", id, err.Error())
		} else {
			fmt.Fprintf(out, "=%s %s\n\n", id, resp)
		}
		if err := out.Flush(); err != nil {
			return err
		}
		if command == "quit" {
			return nil
		}
	}
	return in.Err()
}

// parseCommandLine strips comments and control characters and splits off
// an optional numeric id.
func parseCommandLine(line string) (id, command string, args []string) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r < 32 || r == 127:
			return -1
		}
		return r
	}, line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", nil
	}
	if _, err := strconv.Atoi(fields[0]); err == nil {
		id = fields[0]
		fields = fields[1:]
		if len(fields) == 0 {
			return "", "", nil
		}
	}
	return id, fields[0], fields[1:]
}
