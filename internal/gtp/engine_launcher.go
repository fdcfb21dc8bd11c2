package gtp

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// EngineFactory builds a fresh engine for one launch.
type EngineFactory func(id string) *Engine

// EngineLauncher launches in-process engines instead of subprocesses.
//
// The command vector selects what gets launched. The first element is a
// label; the rest are key=value options:
//
//	id=<name>        channel id (default: the label); also the engine name
//	engine=<name>    factory from Engines (default: the test player)
//	init=<name>      hook from Hooks, run on the new channel
//	fail=startup     launch fails with "exec forced to fail"
//
// Every launch is recorded so callers can inspect what was requested.
type EngineLauncher struct {
	mu       sync.Mutex
	engines  map[string]EngineFactory
	hooks    map[string]func(*EngineChannel)
	channels map[string]*EngineChannel
}

// NewEngineLauncher returns a launcher whose default engine is the test
// player, with the built-in failure hooks registered.
func NewEngineLauncher() *EngineLauncher {
	l := &EngineLauncher{
		engines:  make(map[string]EngineFactory),
		hooks:    make(map[string]func(*EngineChannel)),
		channels: make(map[string]*EngineChannel),
	}
	l.RegisterEngine("", func(id string) *Engine {
		return NewTestPlayer(TestPlayerConfig{Name: id})
	})
	l.RegisterHook("fail_close", func(c *EngineChannel) { c.FailClose = true })
	l.RegisterHook("fail_first_command", func(c *EngineChannel) { c.FailNextCommand = true })
	l.RegisterHook("fail_first_genmove", func(c *EngineChannel) { c.FailCommand = "genmove" })
	return l
}

// RegisterEngine makes a factory available as engine=<name>.
func (l *EngineLauncher) RegisterEngine(name string, f EngineFactory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engines[name] = f
}

// RegisterHook makes a channel hook available as init=<name>.
func (l *EngineLauncher) RegisterHook(name string, f func(*EngineChannel)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks[name] = f
}

// Channel returns the most recent channel launched with the given id.
func (l *EngineLauncher) Channel(id string) *EngineChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channels[id]
}

// Launch implements Launcher.
func (l *EngineLauncher) Launch(cfg LaunchConfig) (Channel, error) {
	if len(cfg.Command) == 0 {
		return nil, &LaunchError{Err: errors.New("empty command")}
	}
	id := cfg.Command[0]
	var engineName string
	var inits []string
	for _, opt := range cfg.Command[1:] {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("bad engine option %q", opt)}
		}
		switch key {
		case "id":
			id = value
		case "engine":
			engineName = value
		case "init":
			inits = append(inits, value)
		case "fail":
			if value == "startup" {
				return nil, &LaunchError{Command: cfg.Command, Err: errors.New("exec forced to fail")}
			}
		default:
			return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("unknown engine option %q", key)}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	factory, ok := l.engines[engineName]
	if !ok {
		return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("unknown engine %q", engineName)}
	}
	ch := &EngineChannel{ID: id, Config: cfg, Engine: factory(id)}
	for _, name := range inits {
		hook, ok := l.hooks[name]
		if !ok {
			return nil, &LaunchError{Command: cfg.Command, Err: fmt.Errorf("unknown init hook %q", name)}
		}
		hook(ch)
	}
	l.channels[id] = ch
	return ch, nil
}

// EngineChannel is a Channel to an in-process engine, with switches for
// simulating transport failures.
type EngineChannel struct {
	ID     string
	Config LaunchConfig
	Engine *Engine

	// FailCommand makes every send of the named command fail.
	FailCommand string
	// FailNextCommand makes the next send fail, whatever it is.
	FailNextCommand bool
	// FailClose makes Close fail.
	FailClose bool

	mu      sync.Mutex
	history []string
	closed  bool
}

// Send implements Channel.
func (c *EngineChannel) Send(command string, args ...string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := FormatCommand(command, args...)
	c.history = append(c.history, line)
	if c.closed {
		return "", &TransportError{Msg: "channel is closed"}
	}
	if c.FailNextCommand || command == c.FailCommand {
		c.FailNextCommand = false
		return "", &TransportError{Msg: "forced failure for send_command_line"}
	}
	resp, err := c.Engine.Run(command, args...)
	if errors.Is(err, ErrQuit) {
		return "", &TransportError{Msg: "engine has closed the command channel"}
	}
	if err != nil {
		return "", &ProtocolError{Command: line, Message: err.Error()}
	}
	return resp, nil
}

// Close implements Channel.
func (c *EngineChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if !c.Engine.Quit() {
		_, _ = c.Engine.Run("quit")
	}
	if c.FailClose {
		return &TransportError{Msg: "forced failure for close"}
	}
	return nil
}

// History returns every command line sent, in order.
func (c *EngineChannel) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

// Closed reports whether Close has been called.
func (c *EngineChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
