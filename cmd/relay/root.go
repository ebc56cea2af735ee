package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Realtime speech-to-speech relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", os.Getenv("RELAY_CONFIG"), "YAML config file")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error (default $LOG_LEVEL or info)")

	root.AddCommand(newServeCmd(), newProbeCmd(), newLoadtestCmd())
	return root
}

// setupLogging installs the JSON slog handler at the requested level.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
