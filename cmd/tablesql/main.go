// Command tablesql extracts tables from HTML pages, CSV and XLSX files,
// describes them and answers natural-language questions with SQL.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tablesql/internal/config"
	"tablesql/internal/extracthtml"
	"tablesql/internal/model"
	"tablesql/internal/model/ollama"
	"tablesql/internal/session"
	"tablesql/internal/source"

	// register all backends with the storage factory.
	_ "tablesql/internal/storage/all"
)

const version = "1.0.0"

// appDeps are the process-level seams replaced by tests.
type appDeps struct {
	// newClient builds the model client for a non-offline configuration.
	newClient func(cfg config.Model, log *slog.Logger) model.Client
	// initMetrics installs the metrics backend and returns its cleanup.
	initMetrics func(ctx context.Context, cfg config.Metrics, log *slog.Logger) (func(), error)
	stdin       io.Reader
}

func defaultDeps() appDeps {
	return appDeps{
		newClient: func(cfg config.Model, log *slog.Logger) model.Client {
			return ollama.New(ollama.Options{
				BaseURL: cfg.URL,
				Model:   cfg.Name,
				Timeout: time.Duration(cfg.Timeout),
				Logger:  log,
			})
		},
		initMetrics: initMetrics,
		stdin:       os.Stdin,
	}
}

// app holds the global flags and what PersistentPreRunE derived from them.
type app struct {
	deps appDeps

	cfgPath   string
	offline   bool
	verbose   bool
	url       string
	tableIdx  int
	sheet     string
	storeKind string
	storeDSN  string

	cfg     config.Config
	log     *slog.Logger
	cleanup func()
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultDeps()); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) error {
	handler := slog.NewJSONHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))

	a := &app{deps: deps}
	defer a.teardown()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(deps.stdin)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tablesql",
		Short: "Query tables from web pages and spreadsheets in plain language",
		Long: `tablesql extracts a table from an HTML page (file, URL or stdin), a CSV file or an
XLSX workbook, infers column types, asks a local language model to describe the
table, loads it into a SQL store and answers questions by generating read-only SQL.

Without a reachable model (or with --offline) every step that has a heuristic
falls back to it.`,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		Version:           version,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "configuration JSON path")
	pf.BoolVar(&a.offline, "offline", false, "do not use the model; rely on heuristics")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")
	pf.StringVar(&a.url, "url", "", "read the HTML page at this URL instead of a file")
	pf.IntVar(&a.tableIdx, "table", 0, "index of the HTML table to use")
	pf.StringVar(&a.sheet, "sheet", "", "XLSX worksheet name (default: first sheet)")
	pf.StringVar(&a.storeKind, "storage", "", "storage backend (overrides config)")
	pf.StringVar(&a.storeDSN, "dsn", "", "storage DSN (overrides config)")

	root.AddCommand(
		newInferCmd(a),
		newMetadataCmd(a),
		newAskCmd(a),
		newChartCmd(a),
		newVisionCmd(a),
		newExportCmd(a),
		newTablesCmd(a),
		newStatusCmd(a),
		newMCPCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup installs the logger, resolves the configuration and starts metrics.
// Flags win over the environment, which wins over the file.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	// Arguments are valid by now; later failures are not usage errors.
	cmd.SilenceUsage = true

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.log)

	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.offline {
		cfg.Model.Offline = true
	}
	if a.storeKind != "" {
		cfg.Storage.Kind = a.storeKind
	}
	if a.storeDSN != "" {
		cfg.Storage.DSN = a.storeDSN
	}
	a.cfg = cfg

	cleanup, err := a.deps.initMetrics(cmd.Context(), cfg.Metrics, a.log)
	if err != nil {
		a.log.Warn("metrics: init failed; metrics disabled", "backend", cfg.Metrics.Backend, "error", err)
		cleanup = nil
	}
	a.cleanup = cleanup
	return nil
}

func (a *app) teardown() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// validate reports every issue and fails on error-severity ones.
func (a *app) validate(w io.Writer) error {
	issues := config.Validate(a.cfg)
	for _, iss := range issues {
		fmt.Fprintln(w, iss.String())
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %d issue(s)", len(issues))
	}
	return nil
}

func (a *app) client() model.Client {
	if a.cfg.Model.Offline {
		a.log.Info("model: offline, using heuristics")
		return model.NewFake(nil)
	}
	return a.deps.newClient(a.cfg.Model, a.log)
}

// openSession validates the configuration and opens a session. The caller
// closes it.
func (a *app) openSession(cmd *cobra.Command) (*session.Session, error) {
	if err := a.validate(cmd.ErrOrStderr()); err != nil {
		return nil, err
	}
	return session.Open(cmd.Context(), session.Options{
		Store:  storageConfig(a.cfg),
		Client: a.client(),
		Table:  a.cfg.Table,
		Logger: a.log,
	})
}

func (a *app) reader() *source.Reader {
	r := source.New(extracthtml.NewLoader(nil, time.Duration(a.cfg.FetchTimeout)))
	r.Stdin = a.deps.stdin
	return r
}

// location is the input named by --url or the first argument.
func (a *app) location(args []string) string {
	if a.url != "" {
		return a.url
	}
	return args[0]
}

// rest returns the arguments after the input location.
func (a *app) rest(args []string) []string {
	if a.url != "" {
		return args
	}
	return args[1:]
}

// inputArgs accepts the input location (unless --url is set) followed by
// exactly n more arguments.
func (a *app) inputArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		want := n + 1
		if a.url != "" {
			want = n
		}
		return cobra.ExactArgs(want)(cmd, args)
	}
}
