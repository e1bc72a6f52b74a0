package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

// CompletionPrinterFunc returns a handler that streams completion text to w.
// With showIndex set, each completion is prefixed with the position of the
// message it regenerates.
func CompletionPrinterFunc(w io.Writer, showIndex bool) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("could not parse completion event")
			return nil
		}

		switch p_ := e.(type) {
		case *EventPartialCompletionStart:
			if showIndex {
				_, err = fmt.Fprintf(w, "\n[%d] assistant:\n", p_.Metadata().Index)
			}

		case *EventPartialCompletion:
			_, err = fmt.Fprintf(w, "%s", p_.Delta)

		case *EventFinal:
			if !strings.HasSuffix(p_.Text, "\n") {
				_, err = fmt.Fprintf(w, "\n")
			}

		case *EventInterrupt:
			_, err = color.New(color.Faint).Fprintf(w, "\n[interrupted]\n")

		case *EventError:
			_, err = color.New(color.FgRed).Fprintf(w, "\nerror: %s\n", p_.ErrorString)
		}

		return err
	}
}
