// Package sandbox talks to the container runtime. The runtime itself is a
// black box reached through its command-line interface; this package owns
// the invocation flags that make an execution an isolation unit.
package sandbox

import "context"

// Engine abstracts the container runtime the host executor drives.
type Engine interface {
	// Ping probes that the runtime daemon is reachable.
	Ping(ctx context.Context) error
	// ImageExists probes that the execution image is present locally.
	ImageExists(ctx context.Context, image string) error
	// Run spawns one disposable container, feeds Stdin to it, and blocks
	// until it exits or ctx expires.
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
	// Kill force-terminates the named container. Best effort; used when a
	// timed-out CLI process may have left its container behind.
	Kill(ctx context.Context, name string) error
}

// RunSpec describes one isolation unit. Every field is mandatory: isolation
// parameters are fixed at construction and never vary per request.
type RunSpec struct {
	Image     string
	Name      string // unique handle, the only thing Kill ever targets
	Memory    string // runtime string form, e.g. "512m"
	CPUs      string
	User      string
	TmpfsSize string
	Stdin     []byte
	Command   []string // positional args selecting the runner entry point
}

// RunResult is the raw outcome of one container run.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}
