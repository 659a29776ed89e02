package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/taskhive/flowengine/pkg/channels/gochannel"
	"github.com/taskhive/flowengine/pkg/channels/kafka"
	"github.com/taskhive/flowengine/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. The
// in-process channel serves single-node deployments; kafka fans events out
// to external consumers such as the real-time gateway. kafkaBrokers is the
// comma-separated broker list, only consulted for the kafka provider.
func NewEventBus(provider, serviceName, kafkaBrokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName, kafka.ParseBrokers(kafkaBrokers))
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
