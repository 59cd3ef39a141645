package usage

import (
	"context"
	"fmt"
	"os/exec"
)

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details"`
}

type DoctorReport struct {
	Checks []DoctorCheck `json:"checks"`
}

var lookPath = exec.LookPath

func RunDoctor(ctx context.Context, runner Runner, opts Options) DoctorReport {
	var checks []DoctorCheck

	checks = append(checks, checkCommandBinary(opts.Command))
	checks = append(checks, checkReportFetch(ctx, runner, opts))
	if opts.TokenLimitLookup {
		checks = append(checks, checkTokenLimit(ctx, runner, opts))
	}

	return DoctorReport{Checks: checks}
}

// Healthy reports whether the JSON report can be fetched and parsed; the
// token limit is optional.
func (r DoctorReport) Healthy() bool {
	for _, c := range r.Checks {
		if c.Name == "report fetch" {
			return c.OK
		}
	}
	return false
}

func checkCommandBinary(command string) DoctorCheck {
	argv := SplitCommand(command)
	if len(argv) == 0 {
		return DoctorCheck{
			Name:    "command binary",
			OK:      false,
			Details: "ccusage-command is empty",
		}
	}
	path, err := lookPath(argv[0])
	if err != nil {
		return DoctorCheck{
			Name:    "command binary",
			OK:      false,
			Details: fmt.Sprintf("%s not found on PATH: %v", argv[0], err),
		}
	}
	return DoctorCheck{
		Name:    "command binary",
		OK:      true,
		Details: path,
	}
}

func checkReportFetch(ctx context.Context, runner Runner, opts Options) DoctorCheck {
	out, err := runner.Run(ctx, ReportArgs(opts.Command))
	if err != nil {
		return DoctorCheck{
			Name:    "report fetch",
			OK:      false,
			Details: fmt.Sprintf("%s: %v", ErrorCategory(err), err),
		}
	}
	report, err := ParseUsageReport([]byte(out.Stdout))
	if err != nil {
		return DoctorCheck{
			Name:    "report fetch",
			OK:      false,
			Details: fmt.Sprintf("%s: %v", ErrorCategory(err), err),
		}
	}
	active := "no"
	if _, ok := report.ActiveBlock(); ok {
		active = "yes"
	}
	return DoctorCheck{
		Name:    "report fetch",
		OK:      true,
		Details: fmt.Sprintf("blocks=%d active=%s", len(report.Blocks), active),
	}
}

func checkTokenLimit(ctx context.Context, runner Runner, opts Options) DoctorCheck {
	out, err := runner.Run(ctx, TableArgs(opts.Command))
	if err != nil {
		return DoctorCheck{
			Name:    "token limit",
			OK:      false,
			Details: fmt.Sprintf("%s: %v", ErrorCategory(err), err),
		}
	}
	limit, ok := ParseTokenLimit(out.Stdout)
	if !ok {
		return DoctorCheck{
			Name:    "token limit",
			OK:      false,
			Details: "no \"assuming N token limit\" line in blocks table; percentage falls back to projection",
		}
	}
	return DoctorCheck{
		Name:    "token limit",
		OK:      true,
		Details: fmt.Sprintf("limit=%d", limit),
	}
}
