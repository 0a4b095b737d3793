package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/elgrid/internal/app"
)

// Commands understood by Parse.
const (
	CommandRun      = "run"
	CommandValidate = "validate"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Invocation is a parsed command line.
type Invocation struct {
	Command string
	Config  *app.AppConfig
	// EnvFile is a .env file to load into the environment before the app
	// reads its variables.
	EnvFile string
}

type flags struct {
	grid            string
	modulesPath     string
	varsFile        string
	envFile         string
	logFormat       string
	logLevel        string
	healthcheckPort int
	workers         int
	failFast        bool
}

// Parse processes command-line arguments. It returns the invocation, a
// boolean indicating if the program should exit cleanly (help was shown),
// or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	var f flags
	var inv *Invocation

	root := &cobra.Command{
		Use:   "elgrid",
		Short: "Runs declarative extract/load grids with integrity and quality checks.",
		Long: `elgrid runs a grid: HCL files declaring steps (uploads, loads, checks)
and resources (S3 clients, warehouse connections) wired into a dependency graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	pf := root.PersistentFlags()
	pf.StringVarP(&f.grid, "grid", "g", "", "Path to the grid file or directory.")
	pf.StringVar(&f.modulesPath, "modules-path", "", "Extra directory of module manifests.")
	pf.StringVar(&f.varsFile, "vars-file", "", "Variables file (YAML, JSON or TOML).")
	pf.StringVar(&f.envFile, "env-file", ".env", "A .env file loaded into the environment if present.")
	pf.StringVar(&f.logFormat, "log-format", "json", "Log output format. Options: 'text' or 'json'.")
	pf.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.IntVar(&f.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	pf.IntVar(&f.workers, "workers", 10, "Number of concurrent workers for the executor.")
	pf.BoolVar(&f.failFast, "fail-fast", false, "Cancel the whole run on the first failed step.")

	newCommand := func(name, short string) *cobra.Command {
		return &cobra.Command{
			Use:   name + " [GRID_PATH]",
			Short: short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := f.appConfig(args)
				if err != nil {
					return err
				}
				inv = &Invocation{Command: name, Config: cfg, EnvFile: f.envFile}
				return nil
			},
		}
	}
	root.AddCommand(
		newCommand(CommandRun, "Run a grid."),
		newCommand(CommandValidate, "Load a grid and build its graph without running it."),
	)

	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if inv == nil {
		// Help or bare invocation.
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "command", inv.Command, "grid", inv.Config.GridPath)
	return inv, false, nil
}

func (f *flags) appConfig(args []string) (*app.AppConfig, error) {
	path := f.grid
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return nil, &ExitError{Code: 2, Message: "a grid path is required: pass GRID_PATH or --grid"}
	}

	cfg := &app.AppConfig{
		GridPath:        path,
		ModulesPath:     f.modulesPath,
		VarsFile:        f.varsFile,
		HealthcheckPort: f.healthcheckPort,
		LogFormat:       strings.ToLower(f.logFormat),
		LogLevel:        strings.ToLower(f.logLevel),
		WorkerCount:     f.workers,
		FailFast:        f.failFast,
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ExitError{Code: 2, Message: fmt.Sprintf("invalid configuration: %v", err)}
	}
	return cfg, nil
}
