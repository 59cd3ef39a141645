package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lordvcs/ccusage_indicator/internal/config"
	"github.com/lordvcs/ccusage_indicator/internal/indicator"
	"github.com/lordvcs/ccusage_indicator/internal/logger"
	"github.com/lordvcs/ccusage_indicator/internal/notify"
	"github.com/lordvcs/ccusage_indicator/internal/tui"
	"github.com/lordvcs/ccusage_indicator/internal/usage"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		return runTUI(nil)
	}

	switch args[0] {
	case "tui":
		return runTUI(args[1:])
	case "once":
		return runOnce(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "completion":
		return runCompletion(args[1:])
	case "-h", "--help", "help":
		printRootUsage()
		return 0
	default:
		// Treat bare flags as TUI flags for better UX.
		if strings.HasPrefix(args[0], "-") {
			return runTUI(args)
		}
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printRootUsage()
		return 2
	}
}

// commonFlags are accepted by every command that runs the pipeline.
type commonFlags struct {
	configPath string
	logFile    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/ccusage-indicator/config.yaml)")
	fs.StringVar(&c.logFile, "log-file", "", "append logs to this file")
}

// setup loads config and builds the logger. defaultOutput is used when
// --log-file is not given.
func (c commonFlags) setup(defaultOutput string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	output := defaultOutput
	if strings.TrimSpace(c.logFile) != "" {
		output = c.logFile
	}
	log, err := logger.New(cfg.LogLevel, output)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func pipelineOptions(cfg config.Config) usage.Options {
	return usage.Options{
		Command:          cfg.CcusageCommand,
		DetailedTime:     cfg.ShowDetailedTime,
		TokenLimitLookup: cfg.TokenLimitLookup,
	}
}

func newFetcher(cfg config.Config) *usage.Fetcher {
	runner := usage.ExecRunner{Timeout: cfg.Timeout()}
	return usage.NewFetcher(runner, pipelineOptions(cfg))
}

func settingsFor(cfg config.Config) indicator.Settings {
	return indicator.Settings{
		Interval:      cfg.Interval(),
		Pipeline:      newFetcher(cfg),
		Notifications: cfg.Notifications,
	}
}

// watchConfig reconfigures ctrl whenever the config file changes. A missing
// config directory disables watching.
func watchConfig(ctx context.Context, flagPath string, ctrl *indicator.Controller, log *zap.Logger) {
	path, err := config.ResolvePath(flagPath)
	if err != nil {
		log.Debug("config watching disabled", zap.Error(err))
		return
	}
	w, err := config.NewWatcher(path, log)
	if err != nil {
		log.Debug("config watching disabled", zap.Error(err))
		return
	}
	go func() {
		defer w.Close()
		w.Run(ctx, func(next config.Config) {
			if err := ctrl.Reconfigure(settingsFor(next)); err != nil {
				log.Warn("failed to apply reloaded config", zap.Error(err))
			}
		})
	}()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCompletion(args []string) int {
	if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "error: completion accepts zero or one shell argument (bash or zsh)")
		return 2
	}
	shell := "bash"
	if len(args) == 1 {
		shell = strings.TrimSpace(args[0])
	}
	script, err := completionScript(shell)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	fmt.Print(script)
	return 0
}

func runOnce(args []string) int {
	fs := flag.NewFlagSet("once", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs)
	jsonOutput := fs.Bool("json", false, "output the snapshot as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, log, err := common.setup("stderr")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()
	ctx = logger.ContextWithLogger(ctx, log)

	snap := newFetcher(cfg).Fetch(ctx)

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		fmt.Println(snap.Label)
		fmt.Println(snap.Status)
	}

	if snap.Outcome == usage.OutcomeError {
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, log, err := common.setup("stderr")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	ctrl := indicator.New(settingsFor(cfg), notify.NewDesktop(log), log)
	if err := ctrl.Start(indicator.NewLineDisplay(os.Stdout, log)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	watchConfig(ctx, common.configPath, ctrl, log)
	log.Info("watching ccusage",
		zap.String("command", cfg.CcusageCommand),
		zap.Duration("interval", cfg.Interval()),
	)

	<-ctx.Done()
	ctrl.Stop()
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs)
	jsonOutput := fs.Bool("json", false, "output doctor report as JSON")
	timeout := fs.Duration("timeout", 5*time.Minute, "doctor timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *timeout <= 0 {
		fmt.Fprintln(os.Stderr, "error: --timeout must be > 0")
		return 2
	}

	cfg, log, err := common.setup("stderr")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report := usage.RunDoctor(ctx, usage.ExecRunner{Timeout: cfg.Timeout()}, pipelineOptions(cfg))

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "error: failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		printDoctorHuman(cfg, report)
	}

	if !report.Healthy() {
		return 1
	}
	return 0
}

func runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs)
	noColor := fs.Bool("no-color", false, "disable color styling")
	noAltScreen := fs.Bool("no-alt-screen", false, "disable alternate screen mode")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// stderr is the terminal, so logs are off unless --log-file is set.
	cfg, log, err := common.setup("discard")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "error: interactive TUI requires a TTY (use `ccusage-indicator watch` for status bars)")
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	ctrl := indicator.New(settingsFor(cfg), notify.NewDesktop(log), log)
	watchConfig(ctx, common.configPath, ctrl, log)

	err = tui.Run(tui.Options{
		Controller: ctrl,
		Command:    cfg.CcusageCommand,
		NoColor:    *noColor,
		AltScreen:  !*noAltScreen,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printDoctorHuman(cfg config.Config, report usage.DoctorReport) {
	fmt.Println("ccusage indicator doctor")
	fmt.Println()
	source := "defaults (no config file)"
	if cfg.Path != "" {
		source = cfg.Path
	}
	fmt.Printf("config: %s\n", source)
	fmt.Printf("command: %s (timeout %s)\n", cfg.CcusageCommand, cfg.Timeout())
	fmt.Println()
	for _, c := range report.Checks {
		state := "FAIL"
		if c.OK {
			state = "PASS"
		}
		fmt.Printf("[%s] %s\n", state, c.Name)
		fmt.Printf("  %s\n", c.Details)
	}
}

func printRootUsage() {
	fmt.Println("ccusage indicator")
	fmt.Println()
	fmt.Println("Show the time left in the current Claude Code session and how much of it is used,")
	fmt.Println("as reported by ccusage, in a terminal user interface (TUI) or a status bar.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ccusage-indicator                       Run terminal user interface (default)")
	fmt.Println("  ccusage-indicator tui [flags]           Run terminal user interface explicitly")
	fmt.Println("  ccusage-indicator once [flags]          Refresh once and print label and status")
	fmt.Println("  ccusage-indicator watch [flags]         Print one JSON line per update for status bars")
	fmt.Println("  ccusage-indicator doctor [flags]        Check that ccusage runs and parses")
	fmt.Println("  ccusage-indicator completion [shell]    Print shell completion script")
	fmt.Println()
	fmt.Println("Completion:")
	fmt.Println("  ccusage-indicator completion bash > ~/.local/share/bash-completion/completions/ccusage-indicator")
	fmt.Println("  ccusage-indicator completion zsh > ~/.zsh/completions/_ccusage-indicator")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  --config PATH     Config file (also $CCUSAGE_INDICATOR_CONFIG)")
	fmt.Println("  --log-file PATH   Append logs to PATH")
	fmt.Println()
	fmt.Println("Once/doctor flags:")
	fmt.Println("  --json            Output as JSON")
	fmt.Println("  --timeout 5m      Doctor timeout")
	fmt.Println()
	fmt.Println("Terminal user interface flags:")
	fmt.Println("  --no-color        Disable color styling")
	fmt.Println("  --no-alt-screen   Disable alternate screen mode")
	fmt.Println()
	fmt.Println("Keys: r refresh now, q quit.")
}

func completionScript(shell string) (string, error) {
	switch shell {
	case "bash":
		return `# bash completion for ccusage-indicator
_ccusage_indicator_completion() {
  local cur prev words cword
  _init_completion || return
  local commands="tui once watch doctor completion help"
  if [[ ${cword} -eq 1 ]]; then
    COMPREPLY=( $(compgen -W "${commands}" -- "${cur}") )
    return
  fi
  case "${words[1]}" in
    completion)
      COMPREPLY=( $(compgen -W "bash zsh" -- "${cur}") )
      ;;
    once)
      COMPREPLY=( $(compgen -W "--config --log-file --json" -- "${cur}") )
      ;;
    watch)
      COMPREPLY=( $(compgen -W "--config --log-file" -- "${cur}") )
      ;;
    doctor)
      COMPREPLY=( $(compgen -W "--config --log-file --json --timeout" -- "${cur}") )
      ;;
    tui)
      COMPREPLY=( $(compgen -W "--config --log-file --no-color --no-alt-screen" -- "${cur}") )
      ;;
    *)
      COMPREPLY=( $(compgen -W "${commands}" -- "${cur}") )
      ;;
  esac
}
complete -F _ccusage_indicator_completion ccusage-indicator
`, nil
	case "zsh":
		return `#compdef ccusage-indicator
_ccusage_indicator() {
  local -a commands
  commands=(
    'tui:run terminal user interface'
    'once:refresh once and print the result'
    'watch:print JSON lines for status bars'
    'doctor:check that ccusage runs and parses'
    'completion:print shell completion script'
    'help:show help text'
  )
  if (( CURRENT == 2 )); then
    _describe 'command' commands
    return
  fi
  case "${words[2]}" in
    completion)
      _values 'shell' bash zsh
      ;;
    once)
      _values 'flag' --config --log-file --json
      ;;
    watch)
      _values 'flag' --config --log-file
      ;;
    doctor)
      _values 'flag' --config --log-file --json --timeout
      ;;
    tui)
      _values 'flag' --config --log-file --no-color --no-alt-screen
      ;;
  esac
}
_ccusage_indicator "$@"
`, nil
	default:
		return "", fmt.Errorf("unsupported shell %q (expected bash or zsh)", shell)
	}
}
