// OHLCV Snapshot CLI
// Retrieves a long historical OHLCV series from the Coinbase (formerly GDAX)
// candles endpoint and writes it as one chronologically ordered artifact.
//
// Usage:
//
//	snapshot run --start 2017-01-01 --end 2017-02-01 --symbol ETH-USD --output eth.csv
//	snapshot plan --start 2017-01-01 --end 2017-02-01
//	snapshot check --symbol ETH-USD
//
// For detailed help on any command, use: snapshot <command> --help
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/johnayoung/ohlcv-snapshot/internal/config"
	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/exchange"
	"github.com/johnayoung/ohlcv-snapshot/internal/logger"
	"github.com/johnayoung/ohlcv-snapshot/internal/output"
	"github.com/johnayoung/ohlcv-snapshot/internal/snapshot"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "snapshot"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
	ExitInterrupt     = 130
)

// CLI holds the components shared by all commands
type CLI struct {
	config  *config.AppConfig
	loggers *logger.LoggerManager
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return ExitUsageError
	}

	command, rest := args[0], args[1:]
	switch command {
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "%s version %s\n", AppName, Version)
		return ExitSuccess
	case "--help", "-h", "help":
		if len(rest) > 0 {
			printCommandHelp(stdout, rest[0])
		} else {
			printUsage(stdout)
		}
		return ExitSuccess
	case "run", "plan", "check":
	default:
		fmt.Fprintf(stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage(stderr)
		return ExitUsageError
	}

	flags, err := parseFlags(command, rest)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printCommandHelp(stderr, command)
		return ExitUsageError
	}
	if flags.Help {
		printCommandHelp(stdout, command)
		return ExitSuccess
	}

	cli, err := newCLI(ctx, flags, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	defer cli.loggers.Close()

	switch command {
	case "run":
		err = cli.handleRun(ctx, flags)
	case "plan":
		err = cli.handlePlan(flags)
	case "check":
		err = cli.handleCheck(ctx)
	}
	if err != nil {
		cli.logger.Error("command failed", "command", command, "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

// newCLI loads configuration, applies flag overrides and sets up logging.
func newCLI(ctx context.Context, flags *Flags, stdout, stderr io.Writer) (*CLI, error) {
	configPath := flags.ConfigPath
	if configPath == "" {
		configPath = os.Getenv("SNAPSHOT_CONFIG")
	}

	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cm := config.NewConfigManager(configPath, bootstrap)
	cfg, err := cm.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	flags.apply(cfg)
	if err := cm.Validate(cfg); err != nil {
		return nil, err
	}

	loggers, err := logger.NewLoggerManager(cfg.Logging)
	if err != nil {
		return nil, snaperrors.NewConfigurationError("logging", "%v", err)
	}

	return &CLI{
		config:  cfg,
		loggers: loggers,
		logger:  loggers.GetComponentLogger(logger.ComponentCLI).Logger,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

func (cli *CLI) newRunner(source exchange.DataSource, writer output.Writer) *snapshot.Runner {
	return snapshot.NewRunner(source, writer,
		snapshot.OptionsFromConfig(cli.config.Snapshot),
		cli.loggers.GetComponentLogger(logger.ComponentSnapshot).Logger)
}

func (cli *CLI) newExchange() *exchange.CoinbaseAdapter {
	return exchange.NewCoinbaseAdapter(exchange.ConfigFromApp(cli.config.Exchange),
		cli.loggers.GetComponentLogger(logger.ComponentExchange).Logger)
}

// handleRun executes a snapshot and prints its report
func (cli *CLI) handleRun(ctx context.Context, flags *Flags) error {
	start, end, err := flags.timeRange()
	if err != nil {
		return err
	}

	// Reject bad input before the artifact is truncated.
	runner := cli.newRunner(nil, nil)
	if _, err := runner.Plan(start, end); err != nil {
		return err
	}

	writer, err := output.Open(cli.config.Output, cli.loggers.GetComponentLogger(logger.ComponentOutput).Logger)
	if err != nil {
		return err
	}

	var report *snapshot.Report
	opErr := cli.loggers.GetComponentLogger(logger.ComponentCLI).LogOperation(ctx, "snapshot", func() error {
		var runErr error
		report, runErr = cli.newRunner(cli.newExchange(), writer).Run(ctx, start, end)
		return runErr
	})
	if closeErr := writer.Close(); closeErr != nil && opErr == nil {
		opErr = closeErr
	}
	if opErr != nil {
		return opErr
	}

	summary := cli.stdout
	if cli.config.Output.Path == output.StdoutPath {
		summary = cli.stderr
	}
	if flags.JSON {
		return writeJSON(summary, report)
	}

	fmt.Fprintf(summary, "Snapshot %s %s\n", report.Symbol, report.RunID)
	fmt.Fprintf(summary, "  range:     [%s, %s)\n", report.Start.Format(timeFormat), report.End.Format(timeFormat))
	fmt.Fprintf(summary, "  frames:    %d in %d waves\n", report.Frames, report.Waves)
	fmt.Fprintf(summary, "  rows:      %d/%d (%.1f%%)\n", report.Rows, report.ExpectedSamples, report.Coverage()*100)
	if report.TruncatedFrames > 0 {
		fmt.Fprintf(summary, "  truncated: %d frames hit a rate-limit marker\n", report.TruncatedFrames)
	}
	fmt.Fprintf(summary, "  output:    %s (%s)\n", cli.config.Output.Path, cli.config.Output.Format)
	fmt.Fprintf(summary, "  duration:  %s\n", report.Duration.Round(1e6))
	return nil
}

// handlePlan prints the frames and waves of a run without fetching
func (cli *CLI) handlePlan(flags *Flags) error {
	start, end, err := flags.timeRange()
	if err != nil {
		return err
	}

	plan, err := cli.newRunner(nil, nil).Plan(start, end)
	if err != nil {
		return err
	}
	if flags.JSON {
		return writeJSON(cli.stdout, plan)
	}

	fmt.Fprintf(cli.stdout, "%s %s, granularity %ds, %d samples per call, wave size %d\n",
		cli.config.Snapshot.Symbol, plan.Range, cli.config.Snapshot.GranularitySeconds,
		cli.config.Snapshot.MaxSamplesPerCall, cli.config.Snapshot.WaveSize)
	fmt.Fprintf(cli.stdout, "%d frames, %d waves, %d expected samples\n",
		len(plan.Frames), len(plan.Waves), plan.ExpectedSamples)
	for _, w := range plan.Waves {
		first, last := w.Frames[0], w.Frames[len(w.Frames)-1]
		fmt.Fprintf(cli.stdout, "  wave %3d: frames %4d-%-4d %s .. %s\n",
			w.Index, first.Index, last.Index,
			first.Range.Start.Format(timeFormat), last.Range.End.Format(timeFormat))
	}
	return nil
}

// handleCheck verifies the product endpoint is reachable
func (cli *CLI) handleCheck(ctx context.Context) error {
	symbol := cli.config.Snapshot.Symbol
	if err := cli.newExchange().Ping(ctx, symbol); err != nil {
		return &connectionError{err: err}
	}
	fmt.Fprintf(cli.stdout, "%s reachable at %s\n", symbol, cli.config.Exchange.BaseURL)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// connectionError marks failures of the check command
type connectionError struct {
	err error
}

func (e *connectionError) Error() string { return "endpoint unreachable: " + e.err.Error() }
func (e *connectionError) Unwrap() error { return e.err }

// exitCodeFor maps an error to the process exit code
func exitCodeFor(err error) int {
	var usage *usageError
	var conn *connectionError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, context.Canceled):
		return ExitInterrupt
	case errors.As(err, &usage):
		return ExitUsageError
	case snaperrors.IsConfiguration(err):
		return ExitConfigError
	case errors.As(err, &conn):
		return ExitConnectionErr
	}

	switch snaperrors.Classify(err) {
	case snaperrors.ErrorTypeNetwork, snaperrors.ErrorTypeTimeout:
		return ExitConnectionErr
	default:
		return ExitDataError
	}
}
