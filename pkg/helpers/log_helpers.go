package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-resty/resty/v2"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
)

// WatermillZerologAdapter sends watermill's logging to zerolog. Watermill
// logs routine router activity at info, so info is lowered to debug.
type WatermillZerologAdapter struct {
	logger zerolog.Logger
}

var _ watermill.LoggerAdapter = (*WatermillZerologAdapter)(nil)

func NewWatermill(logger zerolog.Logger) *WatermillZerologAdapter {
	return &WatermillZerologAdapter{logger: logger}
}

func (w *WatermillZerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(map[string]interface{}(fields)).Err(err).Msg(msg)
}

func (w *WatermillZerologAdapter) Info(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillZerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillZerologAdapter{
		logger: w.logger.With().Fields(map[string]interface{}(fields)).Logger(),
	}
}

const correlationIDMessageMetadataKey = "correlation_id"

type correlationIDKeyType string

const correlationIDKey correlationIDKeyType = "correlation_id"

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// NewCorrelationID returns a short id used to tie together the events of one run.
func NewCorrelationID() string {
	return shortuuid.New()
}

// CorrelationIDFromContext falls back to a fresh id with a "gen_" prefix, so
// events that lost their context are easy to spot.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if v, ok := ctx.Value(correlationIDKey).(string); ok {
			return v
		}
	}
	return "gen_" + shortuuid.New()
}

// CorrelationPublisherDecorator stamps the correlation id of each message's
// context into its metadata unless one is set already.
type CorrelationPublisherDecorator struct {
	message.Publisher
}

func (c CorrelationPublisherDecorator) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if msg.Metadata.Get(correlationIDMessageMetadataKey) == "" {
			msg.Metadata.Set(correlationIDMessageMetadataKey, CorrelationIDFromContext(msg.Context()))
		}
	}
	return c.Publisher.Publish(topic, messages...)
}

// RestyZerologAdapter sends resty's request logging to zerolog.
type RestyZerologAdapter struct {
	logger zerolog.Logger
}

var _ resty.Logger = (*RestyZerologAdapter)(nil)

func NewRestyLogger(logger zerolog.Logger) *RestyZerologAdapter {
	return &RestyZerologAdapter{logger: logger}
}

func (r *RestyZerologAdapter) Errorf(format string, v ...interface{}) {
	r.logger.Error().Msgf(format, v...)
}

func (r *RestyZerologAdapter) Warnf(format string, v ...interface{}) {
	r.logger.Warn().Msgf(format, v...)
}

func (r *RestyZerologAdapter) Debugf(format string, v ...interface{}) {
	r.logger.Debug().Msgf(format, v...)
}
