// Package cmd implements the regionseed command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/agentic-research/regionseed/internal/config"
	"github.com/spf13/cobra"
)

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitStore      = 4
	exitInsert     = 5
	exitReadBack   = 6
)

// cliError carries the process exit code of a failed command.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

func (e *cliError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{envFiles: config.DefaultEnvFiles}
	cmd := &cobra.Command{
		Use:           "regionseed",
		Short:         "Seed a province/city/county region hierarchy into a document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to an HCL or JSON config file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Directory holding the level datasets")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: silent, error, warn, info or debug")

	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	return cmd
}

// loadConfig resolves the configuration and applies the shared flags on top.
// Subcommands overlay their own flags, then validate.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load(o.configPath, o.envFiles)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	if cmd.Flags().Changed("data-dir") {
		c.DataDir = o.dataDir
	}
	if cmd.Flags().Changed("log-level") {
		c.LogLevel = o.logLevel
	}
	return c, nil
}

// Execute runs the root command and exits with its exit code.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		if code == 1 {
			code = exitUsage
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
