// Package executor turns an execution request into a verdict while shielding
// callers from every failure mode of the isolation layer. Its one public
// call never returns an error: all failures are classified and mapped into
// the Result shape.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mlcraft/sandboxd/internal/sandbox"
)

const (
	probeTimeout = 5 * time.Second
	killTimeout  = 5 * time.Second

	runnerEntryPoint = "/usr/local/bin/sandbox-runner"
)

// Config fixes the isolation parameters for every execution. It is passed
// in explicitly; nothing here is read from the environment at call time.
type Config struct {
	Image     string
	Timeout   time.Duration
	Memory    string
	CPUs      string
	User      string
	TmpfsSize string
}

// DefaultConfig returns the standard isolation envelope.
func DefaultConfig() Config {
	return Config{
		Image:     "mlcraft-sandbox:latest",
		Timeout:   30 * time.Second,
		Memory:    "512m",
		CPUs:      "1",
		User:      "nobody",
		TmpfsSize: "64m",
	}
}

type Executor struct {
	engine sandbox.Engine
	conf   Config
	logger *zerolog.Logger
}

func New(engine sandbox.Engine, conf Config, logger *zerolog.Logger) *Executor {
	return &Executor{engine: engine, conf: conf, logger: logger}
}

// Execute runs code against test cases in a disposable isolation unit.
// Preconditions are probed first, the payload goes over the container's
// stdin, and the whole call is bounded by the configured wall clock.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	start := time.Now()

	timeout := e.conf.Timeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	fail := func(msg string) *Result {
		return &Result{
			Success:       false,
			Results:       []TestResult{},
			Error:         &msg,
			ExecutionTime: time.Since(start).Seconds(),
		}
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, probeTimeout)
	defer cancelPing()
	if err := e.engine.Ping(pingCtx); err != nil {
		e.logger.Error().Err(err).Msg("docker daemon probe failed")
		return fail("Docker is not running")
	}

	imageCtx, cancelImage := context.WithTimeout(ctx, probeTimeout)
	defer cancelImage()
	if err := e.engine.ImageExists(imageCtx, e.conf.Image); err != nil {
		e.logger.Error().Err(err).Str("image", e.conf.Image).Msg("sandbox image missing")
		return fail(fmt.Sprintf(
			"Sandbox image '%s' not found. Run: docker build -t %s -f sandbox/Dockerfile .",
			e.conf.Image, e.conf.Image))
	}

	stdin, err := json.Marshal(payload{Code: req.Code, TestCases: req.TestCases})
	if err != nil {
		return fail(fmt.Sprintf("encoding payload: %v", err))
	}

	// Named handle so a timed-out container can be killed precisely,
	// without touching sibling executions.
	name := "sandbox-" + uuid.NewString()

	runCtx, cancelRun := context.WithTimeout(ctx, timeout)
	defer cancelRun()

	out, runErr := e.engine.Run(runCtx, sandbox.RunSpec{
		Image:     e.conf.Image,
		Name:      name,
		Memory:    e.conf.Memory,
		CPUs:      e.conf.CPUs,
		User:      e.conf.User,
		TmpfsSize: e.conf.TmpfsSize,
		Stdin:     stdin,
		Command:   []string{runnerEntryPoint},
	})

	if ctxErr := runCtx.Err(); ctxErr != nil {
		// Deadline or caller cancellation: either way only the CLI process
		// got the signal, not the container, so remove it by handle.
		e.killLeftover(name)
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			msg := fmt.Sprintf("Execution timed out after %d seconds", int(timeout.Seconds()))
			// True elapsed time inside the killed container is unknown;
			// report the bound itself.
			return &Result{
				Success:       false,
				Results:       []TestResult{},
				Error:         &msg,
				ExecutionTime: timeout.Seconds(),
			}
		}
		return fail("Execution cancelled")
	}
	if runErr != nil {
		e.logger.Error().Err(runErr).Str("container", name).Msg("sandbox spawn failed")
		return fail(fmt.Sprintf("sandbox spawn failed: %v", runErr))
	}

	rep, decErr := decodeReport(out.Stdout)
	if decErr != nil {
		if out.ExitCode != 0 {
			return fail(exitMessage(out))
		}
		return fail(decErr.Error())
	}

	if rep.Status != statusSuccess {
		msg := "Unknown error"
		if rep.Error != nil {
			msg = *rep.Error
		}
		return fail(msg)
	}

	results := rep.Results
	if results == nil {
		results = []TestResult{}
	}
	success := true
	for _, r := range results {
		if !r.Passed {
			success = false
			break
		}
	}

	return &Result{
		Success:       success,
		Results:       results,
		ExecutionTime: time.Since(start).Seconds(),
		Warning:       rep.Warning,
	}
}

// killLeftover targets only the container this call created. Best effort:
// the result is already decided, so a failure here is only logged.
func (e *Executor) killLeftover(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if err := e.engine.Kill(ctx, name); err != nil {
		e.logger.Warn().Err(err).Str("container", name).Msg("leftover container kill failed")
	}
}

// exitMessage reports a non-zero exit with no parsable JSON: stderr first,
// then stdout, then the bare exit code.
func exitMessage(out *sandbox.RunResult) string {
	if msg := strings.TrimSpace(out.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(out.Stdout); msg != "" {
		return msg
	}
	return fmt.Sprintf("Exit code: %d", out.ExitCode)
}
