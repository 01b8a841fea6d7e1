// Command aetherd is the broadcast-bus daemon: it owns the topic
// registry, accepts control-plane connections, and optionally serves
// Prometheus metrics. Data traffic never passes through this process —
// once a client has subscribed, it reads and writes the shared segment
// directly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aether/internal/daemon"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "aetherd",
		Short:         "aetherd is the control-plane daemon for the aether broadcast bus",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(viper.GetString("log-level"))

			cfg := daemon.Config{
				SocketPath:      viper.GetString("socket"),
				MetricsListen:   viper.GetString("metrics-listen"),
				DefaultCapacity: uint32(viper.GetUint("default-capacity")),
			}

			d := daemon.New(cfg, logger)
			ctx := daemon.WithSignalCancel(context.Background())
			return d.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("socket", defaultSocketPath(), "control-plane Unix domain socket path")
	flags.String("metrics-listen", "", "Prometheus metrics listen address (empty disables)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Uint("default-capacity", uint(daemon.DefaultTopicCapacity), "slot capacity for every newly created topic segment")

	for _, name := range []string{"socket", "metrics-listen", "log-level", "default-capacity"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("AETHERD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}

func defaultSocketPath() string {
	return "/tmp/aether.sock"
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("app", "aetherd", "pid", os.Getpid())
}
