// ============================================================================
// Ringmaster GTP - controller side of the Go Text Protocol
// ============================================================================
//
// Package: internal/gtp
// File: channel.go
//
// A Launcher starts an engine and hands back a Channel. The Channel sends
// one command at a time and waits for the response; there is no pipelining.
//
// Error classes:
//   - *LaunchError     the engine never started
//   - *ProtocolError   the engine answered '?' (well-formed, negative)
//   - *TransportError  pipe/process failure or malformed framing
//
// ============================================================================

package gtp

import (
	"io"
	"os"
	"slices"
	"strings"
)

// Channel is a connection to one running engine.
type Channel interface {
	// Send issues a command and returns the success response text.
	Send(command string, args ...string) (string, error)
	// Close asks the engine to quit and releases its resources.
	Close() error
}

// Launcher starts engines.
type Launcher interface {
	Launch(cfg LaunchConfig) (Channel, error)
}

// LaunchConfig describes how to start an engine.
type LaunchConfig struct {
	Command []string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env is the complete environment; nil means inherit. Use MergeEnv to
	// build it from an overlay.
	Env []string
	// Stderr receives the engine's standard error; nil means inherit.
	Stderr io.Writer
}

// MergeEnv returns the current process environment with overlay applied.
// It returns nil for an empty overlay so that the engine inherits unchanged.
func MergeEnv(overlay map[string]string) []string {
	if len(overlay) == 0 {
		return nil
	}
	env := make([]string, 0, len(os.Environ())+len(overlay))
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if _, replaced := overlay[name]; replaced {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

// LookupEnv finds name in an environment list built by MergeEnv.
func LookupEnv(env []string, name string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == name {
			return v, true
		}
	}
	return "", false
}
