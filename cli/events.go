package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/pkg/events"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewEventsCmd follows the coordinator's lifecycle events over MQTT.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow training events",
		Long:  "Subscribes to the coordinator's MQTT event topics and prints every event until interrupted.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			url, _ := cmd.Flags().GetString("mqtt-url")
			topic, _ := cmd.Flags().GetString("topic")

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			ps, err := mqtt.NewPubSub(mqtt.Config{
				URL:     url,
				ID:      "fedcoord-cli-" + uuid.NewString()[:8],
				QoS:     1,
				Timeout: 10 * time.Second,
			}, logger)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			ctx := cmd.Context()
			defer func() {
				_ = ps.Disconnect(context.WithoutCancel(ctx))
			}()

			topics := events.NewTopicBuilder(topic)
			if err := ps.Subscribe(ctx, topics.AllTopics(), func(topic string, msg map[string]any) error {
				msg["topic"] = topic
				logJSONCmd(*cmd, msg)

				return nil
			}); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd, "listening on "+topics.AllTopics())

			<-ctx.Done()
		},
	}

	cmd.Flags().String("mqtt-url", "tcp://localhost:1883", "MQTT broker URL")
	cmd.Flags().StringP("topic", "t", "fedcoord", "Base event topic")

	return cmd
}
