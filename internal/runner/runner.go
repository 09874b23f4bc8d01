// Package runner executes one code+tests payload inside the isolation unit
// and emits exactly one result document. It holds no state across
// invocations: the process runs once and exits.
package runner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Run decodes the stdin payload and produces the report. Every failure mode
// ends in a well-formed report; nothing escapes as a panic or bare error.
func Run(input []byte) *Report {
	var p Payload
	if err := json.Unmarshal(input, &p); err != nil {
		return Fail(fmt.Sprintf("Invalid JSON input: %v", err))
	}
	return runTests(p.Code, p.TestCases)
}

// Fail builds an error report with no per-test results.
func Fail(msg string) *Report {
	return &Report{Status: StatusError, Results: []TestResult{}, Error: &msg}
}

func runTests(code string, cases []TestCase) *Report {
	ns := newNamespace()

	// A definition error invalidates every test case, so the whole run
	// aborts rather than reporting misleading partial results.
	if err := ns.define(code); err != nil {
		return Fail(fmt.Sprintf("Code execution error: %s", err))
	}

	results := make([]TestResult, 0, len(cases))
	for i, tc := range cases {
		results = append(results, ns.runCase(i+1, tc))
	}
	return &Report{Status: StatusSuccess, Results: results}
}

// runCase evaluates one expression against the namespace. An error here is
// confined to this result; later cases still run.
func (ns *namespace) runCase(n int, tc TestCase) TestResult {
	res := TestResult{
		TestNumber: n,
		Input:      tc.Expr,
		Expected:   strings.TrimSpace(tc.Expected),
	}

	value, captured, err := ns.eval(tc.Expr)
	if err != nil {
		msg := evalErrorMessage(err)
		res.Error = &msg
		return res
	}

	// Anything printed during evaluation wins over the expression's value.
	actual := captured
	if actual == "" {
		actual = formatValue(value)
	}
	res.Actual = &actual
	res.Passed, res.Expected = ns.compare(actual, res.Expected)
	return res
}

// compare applies one of two policies: expected values written as numeric
// array expressions get tolerance-based comparison, everything else trimmed
// literal equality. Returns the verdict and the expected string to echo,
// re-rendered when the array expression evaluated cleanly.
func (ns *namespace) compare(actual, expected string) (bool, string) {
	if !strings.HasPrefix(expected, numericPrefix) {
		return strings.TrimSpace(actual) == expected, expected
	}

	expValue, _, err := ns.eval(expected)
	if err != nil {
		// Unevaluable expected expression: all that is left is the literal.
		return strings.TrimSpace(actual) == expected, expected
	}
	rendered := formatValue(expValue)

	if expArr, err := fromNested(expValue.Export()); err == nil {
		if actArr, err := parseArrayText(actual); err == nil {
			return allclose(actArr, expArr, defaultRTol, defaultATol), rendered
		}
	}

	// Reconstruction failed; fall back to whitespace-normalized text.
	return normalizeSpace(actual) == normalizeSpace(rendered), rendered
}
