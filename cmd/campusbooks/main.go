package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ahinestrog/campusbooks/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "campusbooks",
		Short:         "campusbooks tracks scanned library stock and professors' requests against it",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment (ignored when absent)")

	load := func() (config.Config, error) {
		return config.Load(envFile)
	}
	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newMigrateCommand(load))
	cmd.AddCommand(newRolesCommand(load))
	cmd.AddCommand(newTokenCommand(load))
	return cmd
}

type loader func() (config.Config, error)

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}

func printf(cmd *cobra.Command, format string, args ...any) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	return err
}
