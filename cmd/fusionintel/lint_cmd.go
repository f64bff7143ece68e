package main

import (
	"fmt"
	"io"

	"github.com/pnku766-alt/fusionintel-core/pkg/placement"
)

// runLintCmd checks the placement of the given paths; 1 on any violation.
func runLintCmd(args []string, stdout, stderr io.Writer) int {
	violations, err := placement.Check(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(violations) == 0 {
		return 0
	}
	placement.Sort(violations)
	_, _ = fmt.Fprintln(stdout, "validate_placements failed:")
	for _, v := range violations {
		_, _ = fmt.Fprintf(stdout, " - %s\n", v)
	}
	return 1
}
