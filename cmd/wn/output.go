package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// parseID reports whether ref looks like a positive numeric id, along
// with its parsed value. Used to let CLI args accept either a numeric id
// or a human name interchangeably.
func parseID(ref string) (int64, bool) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// printResult renders v as JSON when --json is set, otherwise delegates to
// human, which the caller supplies for a friendlier default rendering.
func printResult(v any, human func()) {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	human()
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
