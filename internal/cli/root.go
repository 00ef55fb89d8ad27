package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mentalhealth-ai.bd/companion/internal/apperr"
)

// NewRootCommand builds the client's command tree reading from in and writing
// to out.
func NewRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "companion",
		Short:         "Mental health companion client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.EnvEndpoint, "env-endpoint", os.Getenv("COMPANION_ENV_ENDPOINT"), "URL of the server's environment endpoint")
	root.PersistentFlags().StringVar(&opts.DataDir, "data-dir", os.Getenv("COMPANION_DATA_DIR"), "Directory for local storage and logs")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "INFO", "DEBUG, INFO, WARN or ERROR")

	run := func(page string, fn func(ctx context.Context, app *App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			app, err := newApp(ctx, *opts, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer app.Close()
			app.At(page)
			if err := app.Sessions.Initialize(ctx); err != nil {
				return &runError{err}
			}
			if err := fn(ctx, app, args); err != nil {
				app.logger.Warn("command failed", slog.String("command", cmd.CommandPath()), slog.Any("error", err))
				return &runError{err}
			}
			return nil
		}
	}

	root.AddCommand(authCommands(run)...)
	root.AddCommand(configCommand(run))
	root.AddCommand(dashboardCommands(run)...)
	root.AddCommand(chatCommand(run))
	root.AddCommand(adminCommand(run))
	return root
}

// runner builds a RunE that runs fn on page with a ready App.
type runner func(page string, fn func(ctx context.Context, app *App, args []string) error) func(*cobra.Command, []string) error

// runError marks a failure of the command itself, as opposed to bad usage.
type runError struct{ err error }

func (e *runError) Error() string { return e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

// Message is the line shown for err: localized for command failures, cobra's
// own text for usage mistakes.
func Message(err error) string {
	var re *runError
	if errors.As(err, &re) {
		return apperr.UserMessage(err)
	}
	return err.Error()
}

// Execute runs the client. Every failure ends as one localized line.
func Execute() (code int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("unexpected failure", slog.Any("panic", r))
			fmt.Fprintln(os.Stderr, apperr.MsgGeneric)
			code = 1
		}
	}()

	root := NewRootCommand(os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, Message(err))
		return 1
	}
	return 0
}
