package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dshills/cargorun/internal/app"
)

type buildInfo struct {
	version string
	commit  string
	date    string
}

// exitError carries a process exit code out of a command. err may be nil
// when the code alone says enough, e.g. a failed task.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// globalFlags are shared by every command.
type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
	logFile   string
}

type targetFlags struct {
	line   int
	column int
}

func (t *targetFlags) register(fs *pflag.FlagSet) {
	fs.IntVarP(&t.line, "line", "l", 0, "cursor line (1-based); 0 lists every runnable in the file")
	fs.IntVarP(&t.column, "column", "c", 1, "cursor column (1-based)")
}

func (t *targetFlags) target(file string) app.Target {
	return app.Target{File: file, Line: t.line, Column: t.column}
}

func newRootCommand(info buildInfo) *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "cargorun",
		Short:         "Pick a rust-analyzer runnable and run or debug it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "configuration file (default: user config dir/cargorun/config.toml)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: console or json")
	pf.StringVar(&g.logFile, "log-file", "", "also write logs to this rotating file")

	newApp := func(cmd *cobra.Command, overrides map[string]any) *app.Application {
		if overrides == nil {
			overrides = make(map[string]any)
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			overrides["logging.level"] = g.logLevel
		}
		if flags.Changed("log-format") {
			overrides["logging.format"] = g.logFormat
		}
		if flags.Changed("log-file") {
			overrides["logging.file"] = g.logFile
		}
		return app.New(app.Options{
			ConfigPath: g.config,
			Overrides:  overrides,
			Stdin:      cmd.InOrStdin(),
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		})
	}

	root.AddCommand(
		newRunCommand(newApp),
		newDebugCommand(newApp),
		newListCommand(newApp),
		newVersionCommand(info),
	)
	return root
}

type appFactory func(cmd *cobra.Command, overrides map[string]any) *app.Application

func newRunCommand(newApp appFactory) *cobra.Command {
	var (
		t         targetFlags
		watch     bool
		noButtons bool
	)
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Select a runnable and run it as a cargo task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := newApp(cmd, nil).Run(cmd.Context(), t.target(args[0]), app.RunOptions{
				Watch:     watch,
				NoButtons: noButtons,
			})
			if err != nil || code != 0 {
				return &exitError{code: max(code, 1), err: err}
			}
			return nil
		},
	}
	t.register(cmd.Flags())
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run the task when sources change")
	cmd.Flags().BoolVar(&noButtons, "no-buttons", false, "hide the save-as-launch-configuration button")
	return cmd
}

func newDebugCommand(newApp appFactory) *cobra.Command {
	var (
		t         targetFlags
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "debug <file>",
		Short: "Select a debuggable runnable and save it as an lldb launch configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]any{}
			if cmd.Flags().Changed("overwrite") {
				overrides["debug.overwrite"] = overwrite
			}
			return newApp(cmd, overrides).Debug(cmd.Context(), t.target(args[0]))
		},
	}
	t.register(cmd.Flags())
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing configuration with the same name")
	return cmd
}

func newListCommand(newApp appFactory) *cobra.Command {
	var (
		t      targetFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "list <file>",
		Short: "Print the runnables of a file as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newApp(cmd, nil).List(cmd.Context(), t.target(args[0]), format)
		},
	}
	t.register(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "o", app.FormatJSON, "output format: json or yaml")
	return cmd
}

func newVersionCommand(info buildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cargorun %s (commit %s, built %s)\n", info.version, info.commit, info.date)
		},
	}
}
