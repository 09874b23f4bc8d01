// The sandbox-side runner: reads one JSON payload on stdin, executes it in
// the embedded namespace, and writes exactly one JSON report on stdout. It
// runs as pid 1 of a disposable container and never outlives a single call.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mlcraft/sandboxd/internal/runner"
)

func main() {
	var rep *runner.Report

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		rep = runner.Fail(fmt.Sprintf("Runner error: reading stdin: %v", err))
	} else {
		rep = runner.Run(input)
	}

	out, err := json.Marshal(rep)
	if err != nil {
		// Last-ditch envelope; the report itself failed to serialize.
		out = []byte(`{"status":"error","results":[],"error":"Runner error: result not serializable"}`)
	}
	fmt.Fprintln(os.Stdout, string(out))
}
