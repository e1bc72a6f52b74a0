package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// DoneMarker is the data payload that ends a completion stream.
const DoneMarker = "[DONE]"

// leadingFragments is how many emitted fragments are subject to newline suppression.
const leadingFragments = 2

// DecodeError is returned when an event payload is not a valid completion chunk.
type DecodeError struct {
	Data string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode stream chunk %q: %v", e.Data, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder turns a completion event stream into text fragments. It is not
// restartable: once Next returned an error, it keeps returning it.
type Decoder struct {
	events  *EventReader
	body    io.Reader
	emitted int
	err     error
}

func NewDecoder(body io.Reader) *Decoder {
	return &Decoder{
		events: NewEventReader(body),
		body:   body,
	}
}

// Next returns the next fragment, or io.EOF once the stream is done.
// Newline-only fragments are dropped while fewer than two fragments have
// been emitted. Empty fragments are emitted and counted.
func (d *Decoder) Next() (string, error) {
	for {
		if d.err != nil {
			return "", d.err
		}

		ev, err := d.events.Next()
		if err != nil {
			if err == io.EOF {
				d.err = io.EOF
			} else {
				d.err = errors.Wrap(err, "could not read completion stream")
			}
			return "", d.err
		}

		if string(ev.Data) == DoneMarker {
			d.err = io.EOF
			return "", d.err
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal(ev.Data, &chunk); err != nil {
			d.err = &DecodeError{Data: string(ev.Data), Err: err}
			return "", d.err
		}

		text := ""
		if len(chunk.Choices) > 0 {
			text = chunk.Choices[0].Delta.Content
		}

		if d.emitted < leadingFragments && isNewlineOnly(text) {
			continue
		}
		d.emitted++
		return text, nil
	}
}

// Close closes the underlying body when it is closable.
func (d *Decoder) Close() error {
	if c, ok := d.body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ReadAll drains the decoder and returns the concatenated text. On error the
// text decoded so far is returned along with the error.
func (d *Decoder) ReadAll() (string, error) {
	var sb strings.Builder
	for {
		frag, err := d.Next()
		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(frag)
	}
}

func isNewlineOnly(s string) bool {
	return s != "" && strings.Trim(s, "\r\n") == ""
}
