// Package main provides the metarelay command-line entry point.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dsifry/metarelay/internal/logging"
)

// Exit codes: 0 success, 1 config/validation error, 2 fatal runtime error.
const (
	exitOK      = 0
	exitConfig  = 1
	exitRuntime = 2
)

// errConfig tags errors from the configuration phase so main can pick the
// right exit code.
var errConfig = errors.New("configuration error")

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "metarelay:", logging.Redact(err.Error(), loadedSecrets...))
		if errors.Is(err, errConfig) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

// loadedSecrets collects secret values seen during config load so the
// terminal error line gets the same redaction as the logger.
var loadedSecrets []string
