package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/reflow/pkg/helpers"
)

// TopicCompletion is the topic completion events are published on.
const TopicCompletion = "completion"

// EventRouter wires an in-process pubsub to a watermill router. Publishing
// blocks until every handler acked, so printers see events in order.
type EventRouter struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	logger watermill.LoggerAdapter
	router *message.Router
}

type EventRouterOption func(*EventRouter)

// WithVerbose routes watermill's own logging into zerolog.
func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = helpers.NewWatermill(log.Logger)
		}
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	r := &EventRouter{logger: watermill.NopLogger{}}
	for _, o := range options {
		o(r)
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, r.logger)
	r.Publisher = helpers.CorrelationPublisherDecorator{Publisher: pubSub}
	r.Subscriber = pubSub

	router, err := message.NewRouter(message.RouterConfig{}, r.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create event router")
	}
	r.router = router
	return r, nil
}

// Close shuts down the pubsub first so pending publishes fail fast, then the
// router. Both errors are reported.
func (r *EventRouter) Close() error {
	var result error
	if err := r.Publisher.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "pubsub"))
	}
	if err := r.router.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "router"))
	}
	return result
}

func (r *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	r.router.AddNoPublisherHandler(name, topic, r.Subscriber, f)
}

// Running is closed once all handlers are subscribed.
func (r *EventRouter) Running() chan struct{} {
	return r.router.Running()
}

func (r *EventRouter) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}
