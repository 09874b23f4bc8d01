package executor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mlcraft/sandboxd/internal/sandbox"
)

type fakeEngine struct {
	pingErr  error
	imageErr error
	runFn    func(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error)

	mu     sync.Mutex
	killed []string
}

func (f *fakeEngine) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeEngine) ImageExists(ctx context.Context, image string) error { return f.imageErr }

func (f *fakeEngine) Run(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
	return f.runFn(ctx, spec)
}

func (f *fakeEngine) Kill(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, name)
	return nil
}

func newTestExecutor(engine sandbox.Engine) *Executor {
	logger := zerolog.Nop()
	return New(engine, DefaultConfig(), &logger)
}

func staticRun(out *sandbox.RunResult) func(context.Context, sandbox.RunSpec) (*sandbox.RunResult, error) {
	return func(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
		return out, nil
	}
}

func sampleRequest() Request {
	return Request{
		Code:      "function add(a, b) { return a + b; }",
		TestCases: []TestCase{{Expr: "add(2, 3)", Expected: "5"}},
	}
}

func TestExecuteAllPassing(t *testing.T) {
	engine := &fakeEngine{runFn: staticRun(&sandbox.RunResult{Stdout: cleanReport})}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if !res.Success {
		t.Errorf("success = false, want true (error: %v)", res.Error)
	}
	if res.Error != nil {
		t.Errorf("error = %v, want nil", *res.Error)
	}
	if len(res.Results) != 1 || res.Results[0].TestNumber != 1 {
		t.Errorf("results = %+v, want the runner's single result", res.Results)
	}
	if res.ExecutionTime < 0 {
		t.Errorf("execution_time = %v, want >= 0", res.ExecutionTime)
	}
}

func TestExecuteFailedTest(t *testing.T) {
	report := `{"status": "success", "results": [
		{"test_number": 1, "passed": true, "input": "a", "expected": "1", "actual": "1", "error": null},
		{"test_number": 2, "passed": false, "input": "b", "expected": "2", "actual": "3", "error": null}
	], "error": null}`
	engine := &fakeEngine{runFn: staticRun(&sandbox.RunResult{Stdout: report})}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if res.Success {
		t.Error("success = true, want false when any test fails")
	}
	if res.Error != nil {
		t.Errorf("error = %v, want nil: a failed test is not an infra error", *res.Error)
	}
	if len(res.Results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(res.Results))
	}
}

func TestExecuteDaemonDown(t *testing.T) {
	engine := &fakeEngine{pingErr: errors.New("connection refused")}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if res.Success {
		t.Error("success = true, want false")
	}
	if res.Error == nil || *res.Error != "Docker is not running" {
		t.Errorf("error = %v, want the daemon-down message", res.Error)
	}
	if res.Results == nil || len(res.Results) != 0 {
		t.Errorf("results = %v, want empty slice", res.Results)
	}
}

func TestExecuteImageMissing(t *testing.T) {
	engine := &fakeEngine{imageErr: errors.New("no such image")}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if res.Error == nil {
		t.Fatal("error = nil, want image-missing message")
	}
	if !strings.Contains(*res.Error, DefaultConfig().Image) {
		t.Errorf("error = %q, want it to name the image", *res.Error)
	}
	if !strings.Contains(*res.Error, "docker build") {
		t.Errorf("error = %q, want it to suggest the build command", *res.Error)
	}
}

func TestExecuteFatalCodeError(t *testing.T) {
	report := `{"status": "error", "results": [], "error": "Code execution error: SyntaxError"}`
	engine := &fakeEngine{runFn: staticRun(&sandbox.RunResult{Stdout: report})}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if res.Success {
		t.Error("success = true, want false")
	}
	if res.Error == nil || !strings.Contains(*res.Error, "SyntaxError") {
		t.Errorf("error = %v, want the runner's error propagated", res.Error)
	}
	if len(res.Results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(res.Results))
	}
}

func TestExecuteNonZeroExitFallbacks(t *testing.T) {
	tests := []struct {
		name string
		out  sandbox.RunResult
		want string
	}{
		{"stderr wins", sandbox.RunResult{Stdout: "garbage", Stderr: "boom", ExitCode: 1}, "boom"},
		{"stdout next", sandbox.RunResult{Stdout: "garbage", ExitCode: 1}, "garbage"},
		{"exit code last", sandbox.RunResult{ExitCode: 137}, "Exit code: 137"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{runFn: staticRun(&tt.out)}
			res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())
			if res.Error == nil {
				t.Fatal("error = nil, want failure message")
			}
			if !strings.Contains(*res.Error, tt.want) {
				t.Errorf("error = %q, want %q", *res.Error, tt.want)
			}
		})
	}
}

func TestExecuteNonZeroExitWithParsableJSON(t *testing.T) {
	// The runner managed to emit its document before dying; trust it.
	engine := &fakeEngine{runFn: staticRun(&sandbox.RunResult{Stdout: cleanReport, Stderr: "ignored", ExitCode: 1})}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if !res.Success {
		t.Errorf("success = false, want the decoded report to win (error: %v)", res.Error)
	}
}

func TestExecuteTimeout(t *testing.T) {
	engine := &fakeEngine{
		runFn: func(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	req := sampleRequest()
	req.TimeoutSeconds = 1

	res := newTestExecutor(engine).Execute(context.Background(), req)

	if res.Success {
		t.Error("success = true, want false")
	}
	if res.Error == nil || !strings.Contains(*res.Error, "Execution timed out after 1 seconds") {
		t.Errorf("error = %v, want the timeout message", res.Error)
	}
	if res.ExecutionTime != 1 {
		t.Errorf("execution_time = %v, want the timeout value itself", res.ExecutionTime)
	}
	if len(res.Results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(res.Results))
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.killed) != 1 || !strings.HasPrefix(engine.killed[0], "sandbox-") {
		t.Errorf("killed = %v, want exactly the spawned container's handle", engine.killed)
	}
}

func TestExecuteCancelledCallerStillKillsContainer(t *testing.T) {
	// The caller going away kills only the CLI process; the container must
	// still be removed by handle.
	ctx, cancel := context.WithCancel(context.Background())
	engine := &fakeEngine{
		runFn: func(runCtx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
			cancel()
			<-runCtx.Done()
			return nil, runCtx.Err()
		},
	}

	res := newTestExecutor(engine).Execute(ctx, sampleRequest())

	if res.Success {
		t.Error("success = true, want false")
	}
	if res.Error == nil || !strings.Contains(*res.Error, "cancelled") {
		t.Errorf("error = %v, want cancellation surfaced, not a timeout", res.Error)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.killed) != 1 || !strings.HasPrefix(engine.killed[0], "sandbox-") {
		t.Errorf("killed = %v, want exactly the spawned container's handle", engine.killed)
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	engine := &fakeEngine{
		runFn: func(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
			return nil, errors.New("executable file not found")
		},
	}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if res.Error == nil || !strings.Contains(*res.Error, "sandbox spawn failed") {
		t.Errorf("error = %v, want spawn failure surfaced", res.Error)
	}
}

func TestExecutePayloadShape(t *testing.T) {
	var captured sandbox.RunSpec
	engine := &fakeEngine{
		runFn: func(ctx context.Context, spec sandbox.RunSpec) (*sandbox.RunResult, error) {
			captured = spec
			return &sandbox.RunResult{Stdout: cleanReport}, nil
		},
	}
	newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	var payload struct {
		Code      string `json:"code"`
		TestCases []struct {
			Test           string `json:"test"`
			ExpectedOutput string `json:"expected_output"`
		} `json:"test_cases"`
	}
	if err := json.Unmarshal(captured.Stdin, &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if payload.Code == "" || len(payload.TestCases) != 1 {
		t.Fatalf("payload = %+v, want code and one test case", payload)
	}
	if payload.TestCases[0].Test != "add(2, 3)" || payload.TestCases[0].ExpectedOutput != "5" {
		t.Errorf("test case = %+v, want canonical keys", payload.TestCases[0])
	}

	conf := DefaultConfig()
	if captured.Image != conf.Image || captured.Memory != conf.Memory || captured.User != conf.User {
		t.Errorf("spec = %+v, want configured isolation parameters", captured)
	}
	if !strings.HasPrefix(captured.Name, "sandbox-") {
		t.Errorf("name = %q, want a unique sandbox handle", captured.Name)
	}
}

func TestExecuteWarningPropagated(t *testing.T) {
	engine := &fakeEngine{runFn: staticRun(&sandbox.RunResult{Stdout: "stray print\n" + cleanReport})}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if !res.Success {
		t.Fatalf("success = false, want recovery to be non-fatal (error: %v)", res.Error)
	}
	if !strings.Contains(res.Warning, "stray print") {
		t.Errorf("warning = %q, want the discarded prefix", res.Warning)
	}
}

func TestExecuteUndecodableStdout(t *testing.T) {
	engine := &fakeEngine{runFn: staticRun(&sandbox.RunResult{Stdout: "total nonsense"})}
	res := newTestExecutor(engine).Execute(context.Background(), sampleRequest())

	if res.Error == nil || !strings.Contains(*res.Error, "Invalid output from sandbox") {
		t.Errorf("error = %v, want invalid-output classification", res.Error)
	}
}

func TestTestCaseKeyAliases(t *testing.T) {
	var req Request
	doc := `{"code": "x", "test_cases": [
		{"test": "a()", "expected_output": "1"},
		{"input": "b()", "expected": "2"}
	]}`
	if err := json.Unmarshal([]byte(doc), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []TestCase{{Expr: "a()", Expected: "1"}, {Expr: "b()", Expected: "2"}}
	for i, tc := range req.TestCases {
		if tc != want[i] {
			t.Errorf("test_cases[%d] = %+v, want %+v", i, tc, want[i])
		}
	}
}
