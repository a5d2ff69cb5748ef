package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ngAnzar/rpc/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// errMissingInput is reported as the bare message and exit code 1.
var errMissingInput = errors.New("Missing input file")

// cli is the state shared by every subcommand.
type cli struct {
	cfgFile string
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpcgen",
		Short: "Generate Go clients from rpc interface definitions",
		Long: `rpcgen compiles entity and method definitions written in JSON or YAML
into a Go package: entity structs with decoders, typed method clients,
data sources and module registration.

Quick start:
  rpcgen compile -o internal/api -i 'schema/**/*.json'
  rpcgen watch   -o internal/api -i 'schema/**/*.json'

Other commands:
  rpcgen validate -i 'schema/**/*.json'
  rpcgen serve --addr :8080
  rpcgen runs --limit 5`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(c.stdout)
	rootCmd.SetErr(c.stderr)

	rootCmd.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "rpcgen.yaml", "config file path")

	rootCmd.AddCommand(
		newCompileCmd(c),
		newWatchCmd(c),
		newValidateCmd(c),
		newServeCmd(c),
		newRunsCmd(c),
		newVersionCmd(c),
	)
	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr}
	rootCmd := newRootCmd(c)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errMissingInput) {
			fmt.Fprintln(stderr, errMissingInput.Error())
		} else {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// loadConfig loads the config file when it exists and the environment
// otherwise.
func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(c.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// logger builds the logger from the logging section. RPCGEN_LOG_LEVEL and
// RPCGEN_LOG_FORMAT already override the file through the config package.
func (c *cli) logger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "json" {
		return zerolog.New(c.stderr).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: c.stderr, TimeFormat: time.RFC3339, NoColor: !isTerminal(c.stderr)}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
