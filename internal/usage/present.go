package usage

import (
	"errors"
	"fmt"
)

const (
	LabelLoading    = "Loading..."
	StatusLoading   = "Checking usage..."
	LabelRefreshing = "Refreshing..."

	LabelNoSession  = "No session"
	StatusNoSession = "No active Claude Code session"
	LabelUnknown    = "Unknown"
	StatusUnknown   = "Unable to calculate remaining time"
	LabelEnded      = "Ended"
	StatusEnded     = "Current session has ended"
	LabelError      = "Error"
)

// Error categories shown after "Error" in the status line.
const (
	CategoryStart         = "Start error"
	CategoryCommandFailed = "Command failed"
	CategoryExecution     = "Execution error"
	CategoryTimeout       = "Command timed out"
	CategoryParse         = "Parse error"
	CategoryInvalidData   = "Invalid data"
)

// Text is the label/status pair written to a display in one update.
type Text struct {
	Label  string `json:"label"`
	Status string `json:"status"`
}

// FormatRemaining renders minutes as "Hh Mm", "Mm", or "Ended". The detailed
// flag is accepted for show-detailed-time but does not change the output.
func FormatRemaining(minutes int, detailed bool) string {
	_ = detailed
	if minutes <= 0 {
		return LabelEnded
	}
	hours := minutes / 60
	mins := minutes % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// ComposeStatus appends the percentage to the label when known; the status
// line never carries it.
func ComposeStatus(formatted string, percentage *int) Text {
	label := formatted
	if percentage != nil {
		label = fmt.Sprintf("%s (%d%%)", formatted, *percentage)
	}
	return Text{
		Label:  label,
		Status: formatted + " remaining in current session",
	}
}

// ErrorText renders any pipeline error as the "Error" label with a category hint.
func ErrorText(err error) Text {
	return Text{
		Label:  LabelError,
		Status: ErrorCategory(err) + " - Check if ccusage is installed and working",
	}
}

func ErrorCategory(err error) string {
	switch {
	case errors.Is(err, ErrSpawn):
		return CategoryStart
	case errors.Is(err, ErrExit):
		return CategoryCommandFailed
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout
	case errors.Is(err, ErrInvalidStructure):
		return CategoryInvalidData
	case errors.Is(err, ErrParse):
		return CategoryParse
	default:
		return CategoryExecution
	}
}
