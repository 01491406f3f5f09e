/*
main.go - flowcalc command-line entry point

PURPOSE:
  Runs the regional water-energy flow calculation from CSV inputs, regroups
  existing output tables, and serves stored runs over HTTP.

COMMANDS:
  run     Compute flows and write a long-form table or a run store
  group   Regroup a long-form table to a coarser level
  serve   HTTP API over a SQLite run store

CONFIGURATION:
  Every input can come from a YAML file (-config) or from flags; flags
  override the file. See config/config.go for the file format.

EXIT CODES:
  0  success
  1  calculation or I/O failure
  2  usage error

EXAMPLES:
  flowcalc run -baseline baseline.csv -regions 3 \
      -collect collect.csv -intensity withdrawal.csv,energy.csv \
      -split split.csv -update update.csv -level 2 -out flows.csv

  flowcalc run -config run.yaml -out runs.db -progress
  flowcalc group -level 1 -in flows.csv
  flowcalc serve -db runs.db -config run.yaml -every 6h

SEE ALSO:
  - calc/calculator.go: The calculation
  - api/server.go: HTTP routes
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gosuri/uiprogress"

	"github.com/warp/flow-engine/api"
	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/config"
	"github.com/warp/flow-engine/generic"
	"github.com/warp/flow-engine/report"
	"github.com/warp/flow-engine/store/sqlite"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "run",
		short: "Compute flows from a baseline and parameter tables",
		usage: "flowcalc run [-config file] [-baseline file] [flags]",
		long: `Compute every region of the baseline (or one, with -region) and write the
flows at the requested level.

Output goes to -out: a .csv path writes a long-form table, a .db path
stores the run in a SQLite run store, and no -out writes CSV to stdout.
Diagnostics are logged to stderr.

Flags:
  -config     YAML run configuration
  -baseline   baseline CSV
  -regions    number of region key columns in the baseline
  -collect    comma-separated collection tables
  -intensity  comma-separated intensity tables
  -split      comma-separated split tables
  -update     comma-separated update tables
  -level      output level, 1-5
  -region     compute a single region
  -out        output path (.csv or .db)
  -workers    regions computed concurrently
  -progress   show a progress bar
  -v          debug logging
`,
		run: runRun,
	},
	{
		name:  "group",
		short: "Regroup a long-form table to a coarser level",
		usage: "flowcalc group -level k [-in file] [-out file]",
		long: `Read a long-form table written by 'flowcalc run' and sum it down to level k.
Reads stdin and writes stdout unless -in and -out are given.
`,
		run: runGroup,
	},
	{
		name:  "serve",
		short: "Serve stored runs over HTTP",
		usage: "flowcalc serve [-port n] [-db file] [-config file] [-every duration]",
		long: `Start the HTTP API over a SQLite run store.

When inputs are configured (-config or -baseline and table flags), POST
/api/runs computes new runs. With -every, inputs are reloaded and a new run
is stored on that interval.
`,
		run: runServe,
	},
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "flowcalc: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks errors caused by the command line rather than the inputs.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "flowcalc - regional water-energy flow accounting\n\n")
	fmt.Fprintf(w, "Usage:\n  flowcalc <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'flowcalc help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "flowcalc: unknown command %q\n\nRun 'flowcalc help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return usagef("unknown command %q\n\nRun 'flowcalc help' for usage.", args[0])
}

// parseFlags treats -h as success and any other flag error as a usage error.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		return &usageError{err: err}
	}
	return nil
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// ---------------------------------------------------------------------------
// input flags shared by run and serve
// ---------------------------------------------------------------------------

type inputFlags struct {
	config    string
	baseline  string
	regions   int
	collect   string
	intensity string
	split     string
	update    string
	level     int
	region    string
	workers   int
}

func (f *inputFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "YAML run configuration")
	fs.StringVar(&f.baseline, "baseline", "", "baseline CSV")
	fs.IntVar(&f.regions, "regions", 0, "number of region key columns")
	fs.StringVar(&f.collect, "collect", "", "comma-separated collection tables")
	fs.StringVar(&f.intensity, "intensity", "", "comma-separated intensity tables")
	fs.StringVar(&f.split, "split", "", "comma-separated split tables")
	fs.StringVar(&f.update, "update", "", "comma-separated update tables")
	fs.IntVar(&f.level, "level", 0, "output level, 1-5")
	fs.StringVar(&f.region, "region", "", "compute a single region")
	fs.IntVar(&f.workers, "workers", 0, "regions computed concurrently")
}

// resolve merges the config file (if any) with the flags that were set.
func (f *inputFlags) resolve(fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		loaded, err := config.Load(f.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "baseline":
			cfg.Baseline = f.baseline
		case "regions":
			cfg.RegionColumns = f.regions
		case "collect":
			cfg.Tables.Collect = splitList(f.collect)
		case "intensity":
			cfg.Tables.Intensity = splitList(f.intensity)
		case "split":
			cfg.Tables.Split = splitList(f.split)
		case "update":
			cfg.Tables.Update = splitList(f.update)
		case "level":
			cfg.Level = f.level
		case "region":
			cfg.Region = f.region
		case "workers":
			cfg.Workers = f.workers
		}
	})
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var in inputFlags
	in.bind(fs)
	out := fs.String("out", "", "output path (.csv or .db), stdout when empty")
	progress := fs.Bool("progress", false, "show a progress bar")
	verbose := fs.Bool("v", false, "debug logging")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := in.resolve(fs)
	if err != nil {
		return err
	}
	if *out != "" {
		cfg.Output = *out
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err: err}
	}

	params, baseline, err := cfg.Inputs()
	if err != nil {
		return err
	}

	opts := []calc.Option{calc.WithWorkers(cfg.Workers)}
	if *progress {
		rows, err := baseline.Select(cfg.Region)
		if err != nil {
			return err
		}
		uiprogress.Start()
		bar := uiprogress.AddBar(len(rows)).AppendCompleted().PrependElapsed()
		opts = append(opts, calc.WithProgress(func(generic.Region) { bar.Incr() }))
		defer uiprogress.Stop()
	}

	calculator, err := calc.NewCalculator(params, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := calculator.Run(ctx, baseline, calc.RunOptions{Region: cfg.Region})
	if err != nil {
		return err
	}
	for _, d := range result.Diagnostics {
		slog.Warn("diagnostic", slog.String("kind", string(d.Kind())), slog.String("message", d.String()))
	}

	return writeResult(ctx, result, cfg)
}

func writeResult(ctx context.Context, result *calc.Result, cfg *config.Config) error {
	switch strings.ToLower(filepath.Ext(cfg.Output)) {
	case ".db":
		store, err := sqlite.New(cfg.Output)
		if err != nil {
			return err
		}
		defer store.Close()

		created := time.Now().UTC()
		id := generic.RunID("run-" + created.Format("20060102T150405.000000000"))
		run, flows, diags, err := report.Record(result, id, cfg.Region, created)
		if err != nil {
			return err
		}
		if err := store.SaveRun(ctx, run, flows, diags); err != nil {
			return err
		}
		fmt.Println(run.ID)
		return nil

	case "":
		rows, err := report.Long(result, cfg.Level)
		if err != nil {
			return err
		}
		return report.WriteCSV(os.Stdout, rows, cfg.Level)

	default:
		rows, err := report.Long(result, cfg.Level)
		if err != nil {
			return err
		}
		f, err := os.Create(cfg.Output)
		if err != nil {
			return err
		}
		if err := report.WriteCSV(f, rows, cfg.Level); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
}

// ---------------------------------------------------------------------------
// group
// ---------------------------------------------------------------------------

func runGroup(args []string) error {
	fs := flag.NewFlagSet("group", flag.ContinueOnError)
	level := fs.Int("level", 0, "target level, 1-5")
	inPath := fs.String("in", "", "input long-form CSV (stdin when empty)")
	outPath := fs.String("out", "", "output CSV (stdout when empty)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := generic.ValidateLevel(*level); err != nil {
		return &usageError{err: err}
	}

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	rows, _, err := report.ReadCSV(r)
	if err != nil {
		return err
	}
	grouped, err := report.Group(rows, *level)
	if err != nil {
		return err
	}

	if *outPath == "" {
		return report.WriteCSV(os.Stdout, grouped, *level)
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(f, grouped, *level); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var in inputFlags
	in.bind(fs)
	port := fs.Int("port", 8080, "HTTP server port")
	dbPath := fs.String("db", "flows.db", "SQLite run store path")
	every := fs.Duration("every", 0, "reload inputs and store a new run on this interval")
	origins := fs.String("origins", "", "comma-separated CORS origins")
	verbose := fs.Bool("v", false, "debug logging")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := in.resolve(fs)
	if err != nil {
		return err
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	load := func() (*api.Inputs, error) {
		params, baseline, err := cfg.Inputs()
		if err != nil {
			return nil, err
		}
		c, err := calc.NewCalculator(params, calc.WithWorkers(cfg.Workers))
		if err != nil {
			return nil, err
		}
		return &api.Inputs{Calculator: c, Baseline: baseline}, nil
	}

	handler := api.NewHandler(store, nil)
	if cfg.Baseline != "" {
		if err := cfg.Validate(); err != nil {
			return &usageError{err: err}
		}
		inputs, err := load()
		if err != nil {
			return err
		}
		handler.SetInputs(inputs)
	}

	if *every > 0 {
		if cfg.Baseline == "" {
			return usagef("-every needs configured inputs")
		}
		scheduler := api.NewRunScheduler(handler, load)
		scheduler.Interval = *every
		scheduler.Region = cfg.Region
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler, splitList(*origins)...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", server.Addr), slog.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
