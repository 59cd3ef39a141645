package usage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lordvcs/ccusage_indicator/internal/logger"
)

type fakeRunner struct {
	outputs map[string]CommandOutput
	errs    map[string]error
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, argv []string) (CommandOutput, error) {
	f.calls = append(f.calls, append([]string(nil), argv...))
	key := strings.Join(argv, " ")
	if err, ok := f.errs[key]; ok {
		return CommandOutput{}, err
	}
	return f.outputs[key], nil
}

const scenarioJSON = `{"blocks":[{"isActive":true,"totalTokens":5000,"projection":{"remainingMinutes":135,"totalTokens":10000}}]}`

func newTestFetcher(r Runner, lookup bool) *Fetcher {
	f := NewFetcher(r, Options{Command: "ccusage", TokenLimitLookup: lookup})
	f.now = func() time.Time { return time.Date(2026, 2, 26, 15, 0, 0, 0, time.UTC) }
	return f
}

func TestFetchUsesProjectionPercentageWithoutTokenLimit(t *testing.T) {
	r := &fakeRunner{outputs: map[string]CommandOutput{
		"ccusage blocks --json": {Stdout: scenarioJSON},
	}}
	snap := newTestFetcher(r, false).Fetch(context.Background())
	if snap.Outcome != OutcomeActive {
		t.Fatalf("expected active outcome, got %s (%s)", snap.Outcome, snap.Error)
	}
	if snap.Label != "2h 15m (50%)" {
		t.Fatalf("expected label 2h 15m (50%%), got %q", snap.Label)
	}
	if snap.Status != "2h 15m remaining in current session" {
		t.Fatalf("unexpected status %q", snap.Status)
	}
	if len(r.calls) != 1 {
		t.Fatalf("expected only the JSON command to run, got %d calls", len(r.calls))
	}
}

func TestFetchPrefersTokenLimitFromTable(t *testing.T) {
	r := &fakeRunner{outputs: map[string]CommandOutput{
		"ccusage blocks --json": {Stdout: scenarioJSON},
		"ccusage blocks":        {Stdout: "│ Active │ ... │\n(assuming 20,000 token limit)\n"},
	}}
	snap := newTestFetcher(r, true).Fetch(context.Background())
	if snap.Label != "2h 15m (25%)" {
		t.Fatalf("expected token-limit percentage, got %q", snap.Label)
	}
	if snap.TokenLimit == nil || *snap.TokenLimit != 20000 {
		t.Fatalf("expected token limit 20000, got %v", snap.TokenLimit)
	}
}

func TestFetchContinuesWhenTableCommandFails(t *testing.T) {
	r := &fakeRunner{
		outputs: map[string]CommandOutput{"ccusage blocks --json": {Stdout: scenarioJSON}},
		errs: map[string]error{
			"ccusage blocks": &CommandError{Kind: KindExit, Argv: []string{"ccusage", "blocks"}, ExitCode: 1},
		},
	}
	snap := newTestFetcher(r, true).Fetch(context.Background())
	if snap.Outcome != OutcomeActive || snap.Label != "2h 15m (50%)" {
		t.Fatalf("expected projection fallback, got %s %q", snap.Outcome, snap.Label)
	}
	if len(snap.Warnings) == 0 || !strings.Contains(snap.Warnings[0], "token limit unavailable") {
		t.Fatalf("expected token limit warning, got %v", snap.Warnings)
	}
}

func TestFetchSkipsTableWhenJSONCommandFails(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{
		"ccusage blocks --json": &CommandError{Kind: KindExit, Argv: []string{"ccusage"}, ExitCode: 2, Stderr: "boom"},
	}}
	snap := newTestFetcher(r, true).Fetch(context.Background())
	if snap.Outcome != OutcomeError {
		t.Fatalf("expected error outcome, got %s", snap.Outcome)
	}
	if snap.Label != "Error" {
		t.Fatalf("expected Error label, got %q", snap.Label)
	}
	if !strings.HasPrefix(snap.Status, "Command failed - ") {
		t.Fatalf("expected command failed category, got %q", snap.Status)
	}
	if len(r.calls) != 1 {
		t.Fatalf("expected table command to be skipped, got %d calls", len(r.calls))
	}
}

func TestFetchErrorCategories(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		stdout   string
		category string
	}{
		{name: "spawn", err: &CommandError{Kind: KindSpawn, Err: errors.New("not found")}, category: CategoryStart},
		{name: "exit", err: &CommandError{Kind: KindExit, ExitCode: 1}, category: CategoryCommandFailed},
		{name: "exec", err: &CommandError{Kind: KindExec, Err: errors.New("broken pipe")}, category: CategoryExecution},
		{name: "timeout", err: &CommandError{Kind: KindTimeout, Timeout: time.Second}, category: CategoryTimeout},
		{name: "malformed", stdout: "{not json", category: CategoryParse},
		{name: "missing blocks", stdout: `{"data":[]}`, category: CategoryInvalidData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRunner{outputs: map[string]CommandOutput{"ccusage blocks --json": {Stdout: tc.stdout}}}
			if tc.err != nil {
				r.errs = map[string]error{"ccusage blocks --json": tc.err}
			}
			snap := newTestFetcher(r, false).Fetch(context.Background())
			if snap.Outcome != OutcomeError {
				t.Fatalf("expected error outcome, got %s", snap.Outcome)
			}
			if snap.ErrorCategory != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, snap.ErrorCategory)
			}
			if !strings.HasPrefix(snap.Status, tc.category+" - Check if ccusage is installed") {
				t.Fatalf("unexpected status %q", snap.Status)
			}
		})
	}
}

func TestEvaluateOutcomes(t *testing.T) {
	now := time.Date(2026, 2, 26, 15, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		json    string
		outcome Outcome
		label   string
		status  string
	}{
		{
			name:    "no active block",
			json:    `{"blocks":[{"isActive":false}]}`,
			outcome: OutcomeNoSession,
			label:   "No session",
			status:  "No active Claude Code session",
		},
		{
			name:    "empty blocks",
			json:    `{"blocks":[]}`,
			outcome: OutcomeNoSession,
			label:   "No session",
		},
		{
			name:    "stale end time",
			json:    `{"blocks":[{"isActive":true,"totalTokens":10,"endTime":"2026-02-26T14:50:00Z"}]}`,
			outcome: OutcomeEnded,
			label:   "Ended",
			status:  "Current session has ended",
		},
		{
			name:    "no timing fields",
			json:    `{"blocks":[{"isActive":true,"totalTokens":10}]}`,
			outcome: OutcomeUnknown,
			label:   "Unknown",
			status:  "Unable to calculate remaining time",
		},
		{
			name:    "malformed end time",
			json:    `{"blocks":[{"isActive":true,"endTime":"soon"}]}`,
			outcome: OutcomeUnknown,
			label:   "Unknown",
		},
		{
			name:    "end time without percentage",
			json:    `{"blocks":[{"isActive":true,"endTime":"2026-02-26T15:42:00Z"}]}`,
			outcome: OutcomeActive,
			label:   "42m",
			status:  "42m remaining in current session",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := ParseUsageReport([]byte(tc.json))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			snap := Evaluate(report, 0, now, false)
			if snap.Outcome != tc.outcome {
				t.Fatalf("expected outcome %s, got %s", tc.outcome, snap.Outcome)
			}
			if snap.Label != tc.label {
				t.Fatalf("expected label %q, got %q", tc.label, snap.Label)
			}
			if tc.status != "" && snap.Status != tc.status {
				t.Fatalf("expected status %q, got %q", tc.status, snap.Status)
			}
		})
	}
}

func TestCommandArgsAppendReportSubcommands(t *testing.T) {
	got := strings.Join(ReportArgs("npx  ccusage@latest"), "|")
	if got != "npx|ccusage@latest|blocks|--json" {
		t.Fatalf("unexpected report args: %s", got)
	}
	got = strings.Join(TableArgs("ccusage"), "|")
	if got != "ccusage|blocks" {
		t.Fatalf("unexpected table args: %s", got)
	}
}

func TestFetchLogsFailuresThroughContextLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := logger.ContextWithLogger(context.Background(), zap.New(core))

	r := &fakeRunner{errs: map[string]error{
		"ccusage blocks --json": &CommandError{Kind: KindExit, Argv: []string{"ccusage"}, ExitCode: 1, Stderr: "npm ERR! 404"},
	}}
	newTestFetcher(r, false).Fetch(ctx)

	entries := logs.FilterMessage("ccusage JSON command failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["category"] != CategoryCommandFailed {
		t.Fatalf("unexpected category field %v", fields["category"])
	}
	if fields["stderr"] != "npm ERR! 404" {
		t.Fatalf("unexpected stderr field %v", fields["stderr"])
	}
	if fields["command"] != "ccusage" {
		t.Fatalf("unexpected command field %v", fields["command"])
	}
}
