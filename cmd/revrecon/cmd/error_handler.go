package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"revenue-reconciliation-service/pkg/errors"
)

// handleError prints a taxonomy error with its context and suggestion and
// returns the category exit code. Plain errors exit 1.
func handleError(err error) int {
	if err == nil {
		return 0
	}

	e, ok := errors.As(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "Error: %s\n", e.Message)
	if len(e.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range e.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}
	if e.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", e.Suggestion)
	}
	if viper.GetBool("verbose") && e.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", e.Cause)
	}
	return e.ExitCode()
}
