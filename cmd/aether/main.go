// Command aether is the publish/subscribe CLI client: it subscribes to a
// topic through the daemon's control socket, then either publishes one
// message or streams every message it sees until interrupted. Both
// subcommands exercise exactly the same subscribe path — publishing is
// not a separate control-plane operation.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aether/internal/bus"
	"aether/internal/clientlib"
	"aether/internal/ring"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:           "aether",
		Short:         "aether publishes and subscribes to topics on a local aether bus",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/aether.sock", "control-plane Unix domain socket path")

	cmd.AddCommand(newPubCommand(&socketPath))
	cmd.AddCommand(newSubCommand(&socketPath))
	return cmd
}

func newPubCommand(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pub <topic> <message>",
		Short: "publish a single message to a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, message := args[0], args[1]
			sub, err := clientlib.Subscribe(*socketPath, topic)
			if err != nil {
				return err
			}
			defer clientlib.Unsubscribe(sub)

			if err := bus.Publish(sub.Segment().View(), []byte(message)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published to %s (%s)\n", topic, sub.ShmName)
			return nil
		},
	}
}

func newSubCommand(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sub <topic>",
		Short: "subscribe to a topic and print every message received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := args[0]
			sub, err := clientlib.Subscribe(*socketPath, topic)
			if err != nil {
				return err
			}
			defer clientlib.Unsubscribe(sub)

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			logger.Info("subscribed", "topic", topic, "segment", sub.ShmName, "capacity", sub.Capacity)

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()

			readSeq := sub.Segment().View().WriteSeq()
			buf := make([]byte, ring.SlotDataSize)
			for {
				select {
				case <-interrupt:
					return nil
				default:
				}

				result, n := bus.Consume(sub.Segment().View(), buf, &readSeq)
				switch result {
				case bus.Ok:
					fmt.Fprintf(out, "%s\n", buf[:n])
					out.Flush()
				case bus.Lapped:
					logger.Warn("lapped by producers, resuming at new read_seq", "read_seq", readSeq)
				case bus.Empty:
					// Nothing new yet; spin. The ring is lock-free and has no
					// blocking wait primitive, matching spec.md's consume contract.
				}
			}
		},
	}
}
