package executor

import (
	"strings"
	"testing"
	"unicode/utf8"
)

const cleanReport = `{"status": "success", "results": [{"test_number": 1, "passed": true, "input": "add(2, 3)", "expected": "5", "actual": "5", "error": null}], "error": null}`

func TestDecodeDirect(t *testing.T) {
	rep, err := decodeReport(cleanReport)
	if err != nil {
		t.Fatalf("decodeReport: %v", err)
	}
	if rep.Status != statusSuccess {
		t.Errorf("status = %q, want success", rep.Status)
	}
	if rep.Warning != "" {
		t.Errorf("warning = %q, want none for a clean document", rep.Warning)
	}
	if len(rep.Results) != 1 || !rep.Results[0].Passed {
		t.Errorf("results = %+v, want one passing result", rep.Results)
	}
}

func TestDecodeWithPrintedPrefix(t *testing.T) {
	polluted := "side effect output\nmore noise\n" + cleanReport
	rep, err := decodeReport(polluted)
	if err != nil {
		t.Fatalf("decodeReport: %v", err)
	}
	if rep.Status != statusSuccess {
		t.Errorf("status = %q, want success", rep.Status)
	}
	if !strings.Contains(rep.Warning, "side effect output") {
		t.Errorf("warning = %q, want the discarded prefix attached", rep.Warning)
	}
}

func TestDecodePicksRightmostStatusToken(t *testing.T) {
	// The submitted code printed something that looks like the token; the
	// real document is the rightmost occurrence.
	polluted := `fake {"status": junk` + "\n" + cleanReport
	rep, err := decodeReport(polluted)
	if err != nil {
		t.Fatalf("decodeReport: %v", err)
	}
	if rep.Status != statusSuccess {
		t.Errorf("status = %q, want the real document", rep.Status)
	}
}

func TestDecodeFallsBackToFirstBrace(t *testing.T) {
	// A document with a space after the brace misses the status token, so
	// only the first-brace strategy recovers it.
	spaced := `x { "status": "success", "results": [], "error": null }`
	rep, err := decodeReport(spaced)
	if err != nil {
		t.Fatalf("decodeReport: %v", err)
	}
	if rep.Status != statusSuccess {
		t.Errorf("status = %q, want success", rep.Status)
	}
}

func TestDecodeUndecodableOutput(t *testing.T) {
	_, err := decodeReport("no json here at all")
	if err == nil {
		t.Fatal("decodeReport = nil error, want failure")
	}
	if !strings.Contains(err.Error(), "Invalid output from sandbox") {
		t.Errorf("err = %v, want the invalid-output message", err)
	}
}

func TestDecodeErrorExcerptClamped(t *testing.T) {
	_, err := decodeReport(strings.Repeat("x", 2*maxErrorExcerpt))
	if err == nil {
		t.Fatal("decodeReport = nil error, want failure")
	}
	want := "Invalid output from sandbox: " + strings.Repeat("x", maxErrorExcerpt)
	if err.Error() != want {
		t.Errorf("err length = %d, want excerpt clamped to %d chars", len(err.Error()), maxErrorExcerpt)
	}
}

func TestDecodeErrorExcerptKeepsRunesIntact(t *testing.T) {
	// Three-byte runes: the byte limit lands mid-rune and must back off.
	_, err := decodeReport(strings.Repeat("€", maxErrorExcerpt))
	if err == nil {
		t.Fatal("decodeReport = nil error, want failure")
	}
	if !utf8.ValidString(err.Error()) {
		t.Errorf("err = %q, want valid UTF-8 after clamping", err.Error())
	}
	want := maxErrorExcerpt - maxErrorExcerpt%3
	if got := len(err.Error()) - len("Invalid output from sandbox: "); got != want {
		t.Errorf("excerpt length = %d bytes, want %d (clamped on a rune boundary)", got, want)
	}
}

func TestDecodeNoWarningWithoutResults(t *testing.T) {
	polluted := `noise {"status": "error", "error": "boom"}`
	rep, err := decodeReport(polluted)
	if err != nil {
		t.Fatalf("decodeReport: %v", err)
	}
	if rep.Warning != "" {
		t.Errorf("warning = %q, want none when the document carries no results", rep.Warning)
	}
}
