// Command mktconc computes concentration indices for a share table and writes
// the text report to stdout and to an output file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vinodismyname/mcpconc/config"
	"github.com/vinodismyname/mcpconc/internal/concentration"
	"github.com/vinodismyname/mcpconc/internal/ingest"
	"github.com/vinodismyname/mcpconc/internal/render"
	"github.com/vinodismyname/mcpconc/internal/telemetry"
	"github.com/vinodismyname/mcpconc/pkg/version"
)

var errUsage = errors.New("usage")

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "mktconc: %v\n", err)
		}
		os.Exit(1)
	}
}

type cliFlags struct {
	in, out, cfg, sheet, rng string
	windows, scale, profile  string
	logLevel                 string
	top, workers             int
	tolerance                float64
	hi, noWrite, version     bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var f cliFlags
	fs := flag.NewFlagSet("mktconc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.in, "in", "", "Input table (.csv, .txt, .xlsx); default input.csv or input.txt in the working directory")
	fs.StringVar(&f.out, "out", config.DefaultOutputTXT, "Report file; replaced atomically")
	fs.BoolVar(&f.noWrite, "no-write", false, "Print the report without writing -out")
	fs.StringVar(&f.cfg, "config", os.Getenv(config.FileEnv), "YAML settings file (env "+config.FileEnv+")")
	fs.IntVar(&f.top, "top", 0, "CR window (default 4)")
	fs.StringVar(&f.windows, "windows", "", "Comma-separated CR windows, e.g. 3,4,8; overrides -top")
	fs.StringVar(&f.scale, "scale", "", "Share unit: auto, percentage or fraction")
	fs.Float64Var(&f.tolerance, "tolerance", -1, "Allowed share-sum deviation in percentage points")
	fs.StringVar(&f.profile, "profile", "", "Threshold profile: antitrust, media or a configured name")
	fs.BoolVar(&f.hi, "hi", false, "Include the Hirschman index")
	fs.StringVar(&f.sheet, "sheet", "", "Worksheet (workbooks only)")
	fs.StringVar(&f.rng, "range", "", "A1 range or defined name (workbooks only)")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent group workers")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if f.version {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	settings, err := config.Load(f.cfg)
	if err != nil {
		return err
	}
	if err := f.apply(settings); err != nil {
		return err
	}

	logger := telemetry.NewLogger(telemetry.LogConfig{
		Level:   settings.LogLevel,
		Pretty:  settings.LogPretty,
		Output:  stderr,
		Service: version.Name,
	})
	ctx = logger.WithContext(ctx)

	in := f.in
	if in == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		if in, err = ingest.Locate(wd); err != nil {
			return err
		}
	}

	table, err := ingest.ReadFile(ctx, in, ingest.ReadOptions{
		Sheet:   f.sheet,
		Range:   f.rng,
		MaxRows: settings.Limits.MaxRowsPerOp,
	})
	if err != nil {
		return err
	}
	if table.Truncated {
		logger.Warn().Int("max_rows_per_op", settings.Limits.MaxRowsPerOp).Msg("input truncated")
	}

	rep, err := concentration.Analyze(ctx, table.Rows, settings.Options())
	if err != nil {
		return err
	}
	if err := render.Text(stdout, rep); err != nil {
		return err
	}
	if f.noWrite {
		return nil
	}
	if err := render.WriteFile(f.out, rep); err != nil {
		return err
	}
	logger.Info().
		Str("input", in).
		Str("output", f.out).
		Str("scale", string(rep.Scale)).
		Int("groups", len(rep.Groups)).
		Int("warnings", len(rep.Warnings)).
		Msg("report written")
	return nil
}

// apply overlays explicitly set flags on the loaded settings and revalidates.
func (f cliFlags) apply(s *config.Settings) error {
	if f.top > 0 {
		s.TopN = f.top
		s.Windows = nil
	}
	if f.windows != "" {
		ws, err := parseWindows(f.windows)
		if err != nil {
			return err
		}
		s.Windows = ws
	}
	if f.scale != "" {
		s.Scale = f.scale
	}
	if f.tolerance >= 0 {
		s.TolerancePP = f.tolerance
	}
	if f.profile != "" {
		s.Profile = f.profile
	}
	if f.hi {
		s.IncludeHI = true
	}
	if f.workers > 0 {
		s.Workers = f.workers
	}
	if f.logLevel != "" {
		s.LogLevel = f.logLevel
	}
	return s.Validate()
}

func parseWindows(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(part), "CR"))
		if err != nil {
			return nil, fmt.Errorf("%w: bad window %q", config.ErrInvalid, part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no windows in %q", config.ErrInvalid, v)
	}
	return out, nil
}
