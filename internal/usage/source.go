package usage

import (
	"context"
	"strings"
)

// Runner executes an external command and captures its output.
type Runner interface {
	Run(ctx context.Context, argv []string) (CommandOutput, error)
}

type CommandOutput struct {
	Stdout string
	Stderr string
}

// SplitCommand tokenizes the configured base command on whitespace.
// Quoting is not supported, so arguments containing spaces cannot be expressed.
func SplitCommand(command string) []string {
	return strings.Fields(command)
}

// ReportArgs returns the argv for the structured JSON blocks report.
func ReportArgs(command string) []string {
	return append(SplitCommand(command), "blocks", "--json")
}

// TableArgs returns the argv for the plain-text blocks table.
func TableArgs(command string) []string {
	return append(SplitCommand(command), "blocks")
}
