package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lordvcs/ccusage_indicator/internal/logger"
)

const defaultCommand = "npx ccusage"

type Options struct {
	// Command is the base ccusage invocation, e.g. "npx ccusage".
	Command string
	// DetailedTime mirrors the show-detailed-time setting.
	DetailedTime bool
	// TokenLimitLookup runs the plain-text blocks table to recover the
	// configured token limit before falling back to the projection.
	TokenLimitLookup bool
}

// Fetcher runs the report pipeline: command, parse, compute, format. It logs
// through the logger carried by the context passed to Fetch.
type Fetcher struct {
	runner Runner
	opts   Options
	now    func() time.Time
}

func NewFetcher(runner Runner, opts Options) *Fetcher {
	if strings.TrimSpace(opts.Command) == "" {
		opts.Command = defaultCommand
	}
	return &Fetcher{
		runner: runner,
		opts:   opts,
		now:    time.Now,
	}
}

// Fetch never returns an error: every failure is rendered into the snapshot.
func (f *Fetcher) Fetch(ctx context.Context) Snapshot {
	log := logger.FromContext(ctx).With(zap.String("command", f.opts.Command))

	argv := ReportArgs(f.opts.Command)
	out, err := f.runner.Run(ctx, argv)
	if err != nil {
		logFailure(log, "ccusage JSON command failed", err)
		return errorSnapshot(err, f.now())
	}

	var warnings []string
	var tokenLimit int64
	if f.opts.TokenLimitLookup {
		limit, warning := f.lookupTokenLimit(ctx, log)
		tokenLimit = limit
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	report, err := ParseUsageReport([]byte(out.Stdout))
	if err != nil {
		logFailure(log, "ccusage JSON output could not be parsed", err)
		snap := errorSnapshot(err, f.now())
		snap.Warnings = warnings
		return snap
	}

	snap := Evaluate(report, tokenLimit, f.now(), f.opts.DetailedTime)
	snap.Warnings = append(snap.Warnings, warnings...)
	log.Debug("usage refreshed",
		zap.String("outcome", string(snap.Outcome)),
		zap.String("label", snap.Label),
		zap.Int64("token_limit", tokenLimit),
	)
	return snap
}

// lookupTokenLimit is best effort: failures only produce a warning.
func (f *Fetcher) lookupTokenLimit(ctx context.Context, log *zap.Logger) (int64, string) {
	out, err := f.runner.Run(ctx, TableArgs(f.opts.Command))
	if err != nil {
		log.Warn("ccusage table command failed; continuing without token limit", zap.Error(err))
		return 0, fmt.Sprintf("token limit unavailable: %v", err)
	}
	limit, ok := ParseTokenLimit(out.Stdout)
	if !ok {
		return 0, ""
	}
	return limit, ""
}

func logFailure(log *zap.Logger, msg string, err error) {
	fields := []zap.Field{
		zap.String("category", ErrorCategory(err)),
		zap.Error(err),
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Stderr != "" {
		fields = append(fields, zap.String("stderr", summarizeBody([]byte(cmdErr.Stderr))))
	}
	log.Warn(msg, fields...)
}

// Evaluate turns a parsed report into a snapshot. tokenLimit <= 0 means no
// limit is known.
func Evaluate(report *Report, tokenLimit int64, now time.Time, detailed bool) Snapshot {
	snap := Snapshot{FetchedAt: now}
	if tokenLimit > 0 {
		limit := tokenLimit
		snap.TokenLimit = &limit
	}

	block, ok := report.ActiveBlock()
	if !ok {
		snap.Outcome = OutcomeNoSession
		snap.Label, snap.Status = LabelNoSession, StatusNoSession
		return snap
	}

	snap.Metrics = ComputeMetrics(*block, tokenLimit, now)
	if snap.Metrics.RemainingMinutes == nil {
		snap.Outcome = OutcomeUnknown
		snap.Label, snap.Status = LabelUnknown, StatusUnknown
		return snap
	}

	minutes := *snap.Metrics.RemainingMinutes
	if minutes <= 0 {
		snap.Outcome = OutcomeEnded
		snap.Label, snap.Status = LabelEnded, StatusEnded
		return snap
	}

	text := ComposeStatus(FormatRemaining(minutes, detailed), snap.Metrics.PercentageConsumed)
	snap.Outcome = OutcomeActive
	snap.Label, snap.Status = text.Label, text.Status
	return snap
}

func errorSnapshot(err error, now time.Time) Snapshot {
	text := ErrorText(err)
	return Snapshot{
		Outcome:       OutcomeError,
		Label:         text.Label,
		Status:        text.Status,
		ErrorCategory: ErrorCategory(err),
		Error:         err.Error(),
		FetchedAt:     now,
		Err:           err,
	}
}
