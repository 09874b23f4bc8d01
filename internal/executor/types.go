package executor

import "encoding/json"

// TestCase is one expression/expected pair. Two call sites historically used
// different field names, so both key pairs decode: "test"/"expected_output"
// and "input"/"expected". Encoding always emits the canonical pair.
type TestCase struct {
	Expr     string
	Expected string
}

func (tc TestCase) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Test           string `json:"test"`
		ExpectedOutput string `json:"expected_output"`
	}{Test: tc.Expr, ExpectedOutput: tc.Expected})
}

func (tc *TestCase) UnmarshalJSON(data []byte) error {
	var raw struct {
		Test           string `json:"test"`
		Input          string `json:"input"`
		ExpectedOutput string `json:"expected_output"`
		Expected       string `json:"expected"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tc.Expr = raw.Test
	if tc.Expr == "" {
		tc.Expr = raw.Input
	}
	tc.Expected = raw.ExpectedOutput
	if tc.Expected == "" {
		tc.Expected = raw.Expected
	}
	return nil
}

// Request is one execution call: user code plus the ordered test cases to
// judge it with. Immutable once built.
type Request struct {
	Code      string     `json:"code"`
	TestCases []TestCase `json:"test_cases"`
	// TimeoutSeconds overrides the configured wall-clock bound when > 0.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// TestResult mirrors the runner's per-test verdict on the wire.
type TestResult struct {
	TestNumber int     `json:"test_number"`
	Passed     bool    `json:"passed"`
	Input      string  `json:"input"`
	Expected   string  `json:"expected"`
	Actual     *string `json:"actual"`
	Error      *string `json:"error"`
}

// Result is the caller-facing outcome. Error is set only for infra-level
// failures; per-test failures live inside Results. Success is true iff no
// infra error occurred and every test passed.
type Result struct {
	Success       bool         `json:"success"`
	Results       []TestResult `json:"results"`
	Error         *string      `json:"error"`
	ExecutionTime float64      `json:"execution_time"`
	Warning       string       `json:"warning,omitempty"`
}

// report is the sandbox runner's stdout envelope.
type report struct {
	Status  string       `json:"status"`
	Results []TestResult `json:"results"`
	Error   *string      `json:"error"`
	Warning string       `json:"warning,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// payload is the single JSON document fed to the runner's stdin.
type payload struct {
	Code      string     `json:"code"`
	TestCases []TestCase `json:"test_cases"`
}
