package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/focusrelay/pkg/config"
)

type rootFlags struct {
	logLevel  string
	logFormat string
}

func newRootCommand() (*cobra.Command, error) {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "focusrelay",
		Short:         "Streaming chat relay with pluggable focus-mode backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "info", "Global log level (trace, debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "console", "Log output format (console, json)")
	pf.String("config", "", "Path to a YAML config file keyed by section")
	pf.String("env-file", ".env", "Path to a .env file (ignored when missing)")

	serveCmd, err := NewServeCommand()
	if err != nil {
		return nil, err
	}
	modelsCmd, err := NewModelsCommand()
	if err != nil {
		return nil, err
	}
	for _, c := range []cmds.Command{serveCmd, modelsCmd} {
		cobraCmd, err := cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(getMiddlewares))
		if err != nil {
			return nil, errors.Wrap(err, "build cobra command")
		}
		root.AddCommand(cobraCmd)
	}
	return root, nil
}

// getMiddlewares exports the --env-file variables, then resolves flags over
// FOCUSRELAY_* env over the --config file over defaults.
func getMiddlewares(
	_ *values.Values,
	cmd *cobra.Command,
	args []string,
) ([]sources.Middleware, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString("config")
	return config.Middlewares(path,
		sources.FromCobra(cmd, fields.WithSource("cobra")),
		sources.FromArgs(args, fields.WithSource("arguments")),
	)
}

func initLogger(w io.Writer, level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return errors.Wrapf(err, "invalid --log-level %q", level)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	switch format {
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	case "console", "":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	default:
		return errors.Errorf("invalid --log-format %q", format)
	}
	return nil
}

func main() {
	root, err := newRootCommand()
	cobra.CheckErr(err)
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("focusrelay failed")
		os.Exit(1)
	}
}
