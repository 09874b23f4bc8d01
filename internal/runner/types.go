package runner

import "encoding/json"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Payload is the single JSON document the runner reads on stdin.
type Payload struct {
	Code      string     `json:"code"`
	TestCases []TestCase `json:"test_cases"`
}

// TestCase accepts both historically-used key pairs: "test"/"expected_output"
// and "input"/"expected".
type TestCase struct {
	Expr     string
	Expected string
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

// TestResult is the verdict for one test case.
type TestResult struct {
	TestNumber int     `json:"test_number"`
	Passed     bool    `json:"passed"`
	Input      string  `json:"input"`
	Expected   string  `json:"expected"`
	Actual     *string `json:"actual"`
	Error      *string `json:"error"`
}

// Report is the single JSON document the runner writes on stdout.
type Report struct {
	Status  string       `json:"status"`
	Results []TestResult `json:"results"`
	Error   *string      `json:"error"`
}
