package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/config"
	"github.com/MrCodeEU/facelive/pkg/logging"
)

const version = "0.2.0"

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// usageError marks err as an argument error (exit code 2).
func usageError(err error) error {
	return &exitError{code: 2, err: err}
}

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// app holds the state shared by all commands of one invocation.
type app struct {
	configFile string
	debug      bool
	logFormat  string
	dbURL      string

	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	var progress bool
	root := &cobra.Command{
		Use:   "facelive [video]",
		Short: "Video face liveness detection",
		Long: `facelive decides whether a short video shows a live person and captures
a face embedding from a frame where liveness was demonstrated.

The result is printed as one JSON document on stdout; logs go to stderr.`,
		Version:           version,
		Args:              maxArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
				return usageError(errors.New("video path required"))
			}
			return a.runCheck(cmd, args[0], progress)
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "Path to configuration file")
	pf.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format (text or json)")
	pf.StringVar(&a.dbURL, "db", "", "PostgreSQL connection string (overrides storage.database_url)")
	root.Flags().BoolVar(&progress, "progress", false, "Show frame reading progress on stderr")

	root.AddCommand(
		newCheckCmd(a),
		newBatchCmd(a),
		newExtractCmd(a),
		newEnrollCmd(a),
		newVerifyCmd(a),
		newSubjectsCmd(a),
		newMigrateCmd(a),
		newModelsCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root, a
}

// setup loads the configuration and initializes logging before any command.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var err error
	if a.configFile != "" {
		a.cfg, err = config.Load(a.configFile)
	} else {
		a.cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not load config: %v\n", err)
	}
	if a.cfg == nil {
		a.cfg = config.DefaultConfig()
	}

	if a.dbURL != "" {
		a.cfg.Storage.DatabaseURL = a.dbURL
	}
	if a.debug {
		a.cfg.Logging.Level = "debug"
	}
	if a.logFormat != "" {
		a.cfg.Logging.Format = a.logFormat
	}

	a.cfg.ExpandPaths()
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.logCloser, err = logging.Init(a.cfg.Logging)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Could not initialize file logging: %v\n", err)
	}

	logging.Debugf("facelive v%s starting", version)
	return nil
}

func (a *app) close() {
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// run executes the command line and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, a := newRootCmd()
	defer a.close()

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

func minArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.MinimumNArgs(n))
}

func maxArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.MaximumNArgs(n))
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
