package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pasteflow/internal/app"
	"pasteflow/internal/pipeline"
	"pasteflow/internal/settings"
)

func newRootCmd() *cobra.Command {
	var (
		settingsPath string
		debug        bool
	)

	root := &cobra.Command{
		Use:           "pasteflowd",
		Short:         "Clipboard transformation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			_ = godotenv.Load()
			level := zerolog.InfoLevel
			if debug {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()
			if settingsPath == "" {
				settingsPath = settings.DefaultPath()
			}
		},
	}
	root.PersistentFlags().StringVar(&settingsPath, "settings", "", "path to settings.yaml")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCmd(&settingsPath), newRunCmd(&settingsPath))
	return root
}

func newServeCmd(settingsPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := app.New(*settingsPath, addr)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- a.Start() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			log.Info().Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8123", "listen address")
	return cmd
}

func newRunCmd(settingsPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run and print the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := app.RunOnce(cmd.Context(), *settingsPath, nil)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printResults(out io.Writer, res *pipeline.RunResult) {
	for i, item := range res.Results {
		header := fmt.Sprintf("%d. %s [%s]", i+1, item.Candidate.Title, strings.ToUpper(item.Candidate.Confidence))
		body := item.Output
		if body == "" && item.Err != "" {
			body = "error: " + item.Err
		}
		fmt.Fprintf(out, "%s\n%s\n%s\n\n", header, item.Candidate.Description, body)
	}
	fmt.Fprintf(out, "timings: clipboard=%s context=%s stage1=%s stage2=%s\n",
		res.Timings.Clipboard.Round(time.Millisecond),
		res.Timings.Context.Round(time.Millisecond),
		res.Timings.Stage1.Round(time.Millisecond),
		res.Timings.Stage2Total.Round(time.Millisecond),
	)
}
