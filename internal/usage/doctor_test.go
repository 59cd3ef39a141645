package usage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func stubLookPath(t *testing.T, fn func(string) (string, error)) {
	t.Helper()
	prev := lookPath
	lookPath = fn
	t.Cleanup(func() { lookPath = prev })
}

func TestRunDoctorHealthy(t *testing.T) {
	stubLookPath(t, func(name string) (string, error) { return "/usr/local/bin/" + name, nil })
	r := &fakeRunner{outputs: map[string]CommandOutput{
		"ccusage blocks --json": {Stdout: scenarioJSON},
		"ccusage blocks":        {Stdout: "(assuming 880,000 token limit)"},
	}}

	report := RunDoctor(context.Background(), r, Options{Command: "ccusage", TokenLimitLookup: true})
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(report.Checks))
	}
	for _, c := range report.Checks {
		if !c.OK {
			t.Fatalf("expected %s to pass: %s", c.Name, c.Details)
		}
	}
	if report.Checks[1].Details != "blocks=1 active=yes" {
		t.Fatalf("unexpected fetch details %q", report.Checks[1].Details)
	}
	if report.Checks[2].Details != "limit=880000" {
		t.Fatalf("unexpected limit details %q", report.Checks[2].Details)
	}
	if !report.Healthy() {
		t.Fatalf("expected healthy report")
	}
}

func TestRunDoctorMissingTokenLimitStaysHealthy(t *testing.T) {
	stubLookPath(t, func(name string) (string, error) { return "/bin/" + name, nil })
	r := &fakeRunner{outputs: map[string]CommandOutput{
		"ccusage blocks --json": {Stdout: `{"blocks":[]}`},
		"ccusage blocks":        {Stdout: "No active block"},
	}}

	report := RunDoctor(context.Background(), r, Options{Command: "ccusage", TokenLimitLookup: true})
	if report.Checks[2].OK {
		t.Fatalf("expected token limit check to fail")
	}
	if !report.Healthy() {
		t.Fatalf("token limit is optional; report should stay healthy")
	}
}

func TestRunDoctorReportsFetchFailure(t *testing.T) {
	stubLookPath(t, func(string) (string, error) { return "", errors.New("executable file not found in $PATH") })
	r := &fakeRunner{errs: map[string]error{
		"npx ccusage blocks --json": &CommandError{Kind: KindSpawn, Argv: []string{"npx"}, Err: errors.New("not found")},
	}}

	report := RunDoctor(context.Background(), r, Options{Command: "npx ccusage"})
	if len(report.Checks) != 2 {
		t.Fatalf("expected token limit check to be skipped, got %d checks", len(report.Checks))
	}
	if report.Checks[0].OK || !strings.Contains(report.Checks[0].Details, "npx not found") {
		t.Fatalf("unexpected binary check %+v", report.Checks[0])
	}
	if !strings.HasPrefix(report.Checks[1].Details, CategoryStart) {
		t.Fatalf("expected start error category, got %q", report.Checks[1].Details)
	}
	if report.Healthy() {
		t.Fatalf("expected unhealthy report")
	}
}

func TestRunDoctorEmptyCommand(t *testing.T) {
	check := checkCommandBinary("   ")
	if check.OK || check.Details != "ccusage-command is empty" {
		t.Fatalf("unexpected check %+v", check)
	}
}
