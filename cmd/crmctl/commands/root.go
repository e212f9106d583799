// Package commands implements the crmctl command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crm/internal/company"
	"github.com/JonMunkholm/crm/internal/config"
	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
	"github.com/JonMunkholm/crm/internal/store/postgres"
)

// storeOpener returns a store and a function that releases it.
type storeOpener func(ctx context.Context, cfg *config.Config) (company.Store, func(), error)

// app is the state shared by all commands of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	envFile  string
	logLevel string

	getenv    func(string) string
	openStore storeOpener

	service *core.Service
	release func()
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		getenv:    os.Getenv,
		openStore: openPostgres,
	}
}

// Execute runs crmctl against the process environment. SIGINT cancels the
// running command; an import stops between rows.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	defer a.close()
	err := newRootCmd(a).ExecuteContext(ctx)
	if err != nil {
		reportError(a.stderr, err)
	}
	return err
}

// reportError prints err to w. Errors with a known code are shown as the
// user message and action, followed by the underlying detail.
func reportError(w io.Writer, err error) {
	if !core.IsUserFacing(err) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", core.FormatUserError(err))
	fmt.Fprintf(w, "  detail: %v\n", err)
}

// close releases the store opened by setup.
func (a *app) close() {
	if a.release != nil {
		a.release()
		a.release = nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "Bulk import and export of CRM companies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load if present")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		importCmd(a),
		exportCmd(a),
		milestonesCmd(a),
		statsCmd(a),
	)

	return root
}

// setup loads configuration, configures logging and opens the store.
func (a *app) setup(ctx context.Context) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.LoadFrom(a.getenv)
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	logging.Setup(a.stderr, level, cfg.Logging.Format)

	store, release, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	a.release = release
	a.service = core.NewService(store, core.Options{
		MaxConcurrentImports: cfg.Import.MaxConcurrent,
		ImportWait:           cfg.Import.MaxWaitTime,
		ImportTimeout:        cfg.Import.Timeout,
	})
	return nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (company.Store, func(), error) {
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.New(pool)
	if cfg.Database.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return store, pool.Close, nil
}
