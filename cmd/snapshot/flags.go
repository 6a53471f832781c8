package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/johnayoung/ohlcv-snapshot/internal/config"
)

const timeFormat = "2006-01-02 15:04:05"

// accepted layouts for --start and --end, all read as UTC
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	timeFormat,
	"2006-01-02",
}

// Flags holds the parsed options of a command
type Flags struct {
	Start       string
	End         string
	Symbol      string
	Output      string
	Format      string
	ConfigPath  string
	Granularity int
	MaxSamples  int
	WaveSize    int
	JSON        bool
	Help        bool
}

// usageError reports bad command-line input
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// rangeFlags are only accepted by commands that take a time range
var rangeFlags = map[string]bool{
	"--start": true, "-s": true,
	"--end": true, "-e": true,
	"--granularity": true, "-g": true,
	"--max-samples": true,
	"--wave-size":   true, "-w": true,
	"--json": true,
}

func parseFlags(command string, args []string) (*Flags, error) {
	flags := &Flags{}

	value := func(i int) (string, error) {
		if i+1 >= len(args) {
			return "", usageErrorf("%s requires a value", args[i])
		}
		return args[i+1], nil
	}
	intValue := func(i int, name string) (int, error) {
		v, err := value(i)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, usageErrorf("invalid %s value: %q", name, v)
		}
		return n, nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if command == "check" && rangeFlags[arg] {
			return nil, usageErrorf("unknown flag: %s", arg)
		}
		if command != "run" && (arg == "--output" || arg == "-o" || arg == "--format" || arg == "-f") {
			return nil, usageErrorf("unknown flag: %s", arg)
		}

		var err error
		switch arg {
		case "--start", "-s":
			flags.Start, err = value(i)
			i++
		case "--end", "-e":
			flags.End, err = value(i)
			i++
		case "--symbol", "-p":
			flags.Symbol, err = value(i)
			i++
		case "--output", "-o":
			flags.Output, err = value(i)
			i++
		case "--format", "-f":
			flags.Format, err = value(i)
			i++
		case "--config", "-c":
			flags.ConfigPath, err = value(i)
			i++
		case "--granularity", "-g":
			flags.Granularity, err = intValue(i, "granularity")
			i++
		case "--max-samples":
			flags.MaxSamples, err = intValue(i, "max-samples")
			i++
		case "--wave-size", "-w":
			flags.WaveSize, err = intValue(i, "wave-size")
			i++
		case "--json":
			flags.JSON = true
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, usageErrorf("unknown flag: %s", arg)
		}
		if err != nil {
			return nil, err
		}
	}

	return flags, nil
}

// apply overrides configuration values with the flags that were set
func (f *Flags) apply(cfg *config.AppConfig) {
	if f.Symbol != "" {
		cfg.Snapshot.Symbol = f.Symbol
	}
	if f.Granularity > 0 {
		cfg.Snapshot.GranularitySeconds = f.Granularity
	}
	if f.MaxSamples > 0 {
		cfg.Snapshot.MaxSamplesPerCall = f.MaxSamples
	}
	if f.WaveSize > 0 {
		cfg.Snapshot.WaveSize = f.WaveSize
	}
	if f.Output != "" {
		cfg.Output.Path = f.Output
	}
	if f.Format != "" {
		cfg.Output.Format = f.Format
	}
}

func (f *Flags) timeRange() (time.Time, time.Time, error) {
	if f.Start == "" {
		return time.Time{}, time.Time{}, usageErrorf("--start is required")
	}
	if f.End == "" {
		return time.Time{}, time.Time{}, usageErrorf("--end is required")
	}
	start, err := parseTime(f.Start)
	if err != nil {
		return time.Time{}, time.Time{}, usageErrorf("invalid start date: %v", err)
	}
	end, err := parseTime(f.End)
	if err != nil {
		return time.Time{}, time.Time{}, usageErrorf("invalid end date: %v", err)
	}
	return start, end, nil
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339 or YYYY-MM-DD", value)
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - OHLCV Snapshot CLI v%s

USAGE:
    %s <command> [options]

COMMANDS:
    run         Fetch a historical range and write it as one ordered artifact
    plan        Show the frames and waves of a range without fetching
    check       Verify the exchange product endpoint is reachable

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

EXAMPLES:
    # One month of ETH-USD minute candles to CSV
    %s run --start 2017-01-01 --end 2017-02-01 --symbol ETH-USD --output eth.csv

    # Hourly BTC-USD candles into DuckDB
    %s run --start 2020-01-01 --end 2021-01-01 --symbol BTC-USD --granularity 3600 --format duckdb --output btc.db

    # How many requests would a year of minute data take?
    %s plan --start 2017-01-01 --end 2018-01-01

CONFIGURATION:
    Configuration can be provided via:
    - Config file: --config <path> or SNAPSHOT_CONFIG (JSON or YAML)
    - Environment variables: SNAPSHOT_* (e.g., SNAPSHOT_WAVE_SIZE)
    Flags override both.

For detailed help on any command, use: %s <command> --help
`, AppName, Version, AppName, AppName, AppName, AppName, AppName)
}

func printCommandHelp(w io.Writer, command string) {
	switch command {
	case "run":
		fmt.Fprintf(w, `%s run - Fetch a historical OHLCV range

USAGE:
    %s run --start <time> --end <time> [options]

OPTIONS:
    --start, -s <time>        Range start, inclusive (RFC3339 or YYYY-MM-DD, UTC)
    --end, -e <time>          Range end, exclusive (RFC3339 or YYYY-MM-DD, UTC)
    --symbol, -p <symbol>     Product to fetch (default: ETH-USD)
    --granularity, -g <secs>  Candle size in seconds (default: 60)
    --max-samples <n>         Samples per request (default: 200)
    --wave-size, -w <n>       Concurrent requests per wave (default: 7)
    --output, -o <path>       Output path, "-" for stdout (default: snapshot.csv)
    --format, -f <format>     csv or duckdb (default: csv)
    --config, -c <path>       Config file (JSON or YAML)
    --json                    Print the run report as JSON
    --help, -h                Show this help message

NOTES:
    - Rows are written oldest first with the header time,low,high,open,close,volume
    - A failed request aborts the run after its wave; earlier waves stay on disk
    - A rate-limit message inside a response truncates that frame only
`, AppName, AppName)

	case "plan":
		fmt.Fprintf(w, `%s plan - Show how a range would be fetched

USAGE:
    %s plan --start <time> --end <time> [options]

OPTIONS:
    --start, -s <time>        Range start, inclusive
    --end, -e <time>          Range end, exclusive
    --symbol, -p <symbol>     Product (default: ETH-USD)
    --granularity, -g <secs>  Candle size in seconds (default: 60)
    --max-samples <n>         Samples per request (default: 200)
    --wave-size, -w <n>       Concurrent requests per wave (default: 7)
    --config, -c <path>       Config file (JSON or YAML)
    --json                    Print the plan as JSON
    --help, -h                Show this help message
`, AppName, AppName)

	case "check":
		fmt.Fprintf(w, `%s check - Verify the exchange is reachable

USAGE:
    %s check [options]

OPTIONS:
    --symbol, -p <symbol>     Product to look up (default: ETH-USD)
    --config, -c <path>       Config file (JSON or YAML)
    --help, -h                Show this help message
`, AppName, AppName)

	default:
		fmt.Fprintf(w, "Unknown command: %s\n\n", command)
		printUsage(w)
	}
}
