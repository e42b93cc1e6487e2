// Package eventsvc publishes domain events on an in-process watermill bus and handles them in the background.
package eventsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
)

const TopicLevelUp = "gamification.level_up"

// Bus is the in-process event bus. It implements gamification.Notifier.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger core.Logger
}

var _ gamification.Notifier = (*Bus)(nil)

// NewBus creates the bus and its router. Router metrics are registered on registry when it is not nil.
func NewBus(conf *core.Config, logger core.Logger, registry *prometheus.Registry) (*Bus, error) {
	wmLogger := newLoggerAdapter(logger, conf.Debug)

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: conf.Server.ShutdownTimeout}, wmLogger)
	if err != nil {
		return nil, errors.Wrap(err, "creating router")
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Logger:          wmLogger,
		}.Middleware,
	)
	if registry != nil {
		metrics.NewPrometheusMetricsBuilder(registry, "pelangi", "events").AddPrometheusRouterMetrics(router)
	}

	return &Bus{pubsub: pubsub, router: router, logger: logger}, nil
}

func (b *Bus) publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err = b.pubsub.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}
	return nil
}

func (b *Bus) NotifyLevelUp(_ context.Context, evt gamification.LevelUp) error {
	return b.publish(TopicLevelUp, evt)
}

// HandleLevelUp congratulates students by email when they reach a new level.
func (b *Bus) HandleLevelUp(mailer core.EmailService) {
	b.router.AddNoPublisherHandler("level_up_email", TopicLevelUp, b.pubsub, func(msg *message.Message) error {
		var evt gamification.LevelUp
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			// malformed payloads are dropped, retrying would not help
			b.logger.Error(fmt.Sprintf("decoding level up: %v", err), err, map[string]interface{}{"message_id": msg.UUID})
			return nil
		}
		if evt.Email == "" {
			return nil
		}
		mailer.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: evt.FullName, Address: evt.Email}},
			Subject:      fmt.Sprintf("Level %d: %s", evt.Level, evt.LevelName),
			TemplateName: "level_up",
			TemplateData: evt,
		})
		return nil
	})
}

// Run runs the router until ctx is canceled or Close is called.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return errors.Wrap(err, "closing router")
	}
	return b.pubsub.Close()
}
