package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/skyfeed/internal/client"
	"github.com/alfredjeanlab/skyfeed/internal/events"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow ingest events as they happen",
	Long: `Follow flush, eviction and filter-change events.

By default events are read from the server's /v1/events stream. With --nats
they are read straight from the NATS bus the server publishes to.`,
	GroupID: "feed",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetStringSlice("topics")
		natsURL, _ := cmd.Flags().GetString("nats")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var err error
		if natsURL != "" {
			err = tailNATS(ctx, os.Stdout, natsURL, topics)
		} else {
			err = skyfeedClient.Events(ctx, topics, func(evt client.Event) error {
				printEvent(os.Stdout, evt.Topic, evt.Data)
				return nil
			})
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// tailNATS prints messages from one subscription per subject pattern until
// ctx ends. Each line is labelled with the subject the event was published
// on, not the pattern that matched it.
func tailNATS(ctx context.Context, w io.Writer, url string, patterns []string) error {
	if len(patterns) == 0 {
		patterns = []string{events.TopicPrefix}
	}
	sub, err := events.NewNATSSubscriber(url,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return err
	}
	defer sub.Close()

	out := make(chan events.Message)
	for _, pattern := range patterns {
		ch, cancel, err := sub.Subscribe(pattern)
		if err != nil {
			return err
		}
		defer cancel()
		go func() {
			for msg := range ch {
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	fmt.Fprintf(os.Stderr, "Listening on %s for %v\n", url, patterns)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-out:
			printEvent(w, msg.Subject, msg.Data)
		}
	}
}

func init() {
	tailCmd.Flags().StringSlice("topics", nil, "topic patterns to follow (* and > wildcards)")
	tailCmd.Flags().String("nats", os.Getenv("SKYFEED_NATS_URL"), "read events from this NATS URL instead of the server")
}
