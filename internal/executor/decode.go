package executor

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	statusToken     = `{"status":`
	maxErrorExcerpt = 500
	maxWarnExcerpt  = 200
)

// decodeReport recovers the runner's JSON document from stdout that may be
// polluted by text the submitted code printed before it. Strategies run in
// order: direct parse, re-slice from the rightmost status token, re-slice
// from the first opening brace. When a later strategy succeeds, the
// discarded prefix is attached as a non-fatal warning.
func decodeReport(stdout string) (*report, error) {
	s := strings.TrimSpace(stdout)

	if rep, ok := parseDirect(s); ok {
		return rep, nil
	}
	if rep, ok := parseFromStatusToken(s); ok {
		return rep, nil
	}
	if rep, ok := parseFromFirstBrace(s); ok {
		return rep, nil
	}
	return nil, fmt.Errorf("Invalid output from sandbox: %s", excerpt(s, maxErrorExcerpt))
}

// parseDirect expects the whole of stdout to be the document.
func parseDirect(s string) (*report, bool) {
	var rep report
	if err := json.Unmarshal([]byte(s), &rep); err != nil {
		return nil, false
	}
	return &rep, true
}

// parseFromStatusToken re-slices from the rightmost occurrence of the status
// object's opening token. Rightmost, because the submitted code may itself
// print something that looks like the token.
func parseFromStatusToken(s string) (*report, bool) {
	idx := strings.LastIndex(s, statusToken)
	if idx < 0 {
		return nil, false
	}
	return parseSlice(s, idx)
}

// parseFromFirstBrace is the broadest recovery: re-slice from the first '{'.
func parseFromFirstBrace(s string) (*report, bool) {
	idx := strings.Index(s, "{")
	if idx < 0 {
		return nil, false
	}
	return parseSlice(s, idx)
}

func parseSlice(s string, idx int) (*report, bool) {
	var rep report
	if err := json.Unmarshal([]byte(s[idx:]), &rep); err != nil {
		return nil, false
	}
	if prefix := strings.TrimSpace(s[:idx]); prefix != "" && rep.Results != nil {
		rep.Warning = fmt.Sprintf("Code produced extra output: %s", excerpt(prefix, maxWarnExcerpt))
	}
	return &rep, true
}

// excerpt clamps s to at most n bytes without splitting a multi-byte rune.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
