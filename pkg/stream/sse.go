package stream

import (
	"bufio"
	"bytes"
	"io"
)

// Event is one server-sent event. Data holds the joined data lines.
type Event struct {
	Type string
	ID   string
	Data []byte
}

// EventReader splits a text/event-stream body into events.
type EventReader struct {
	reader *bufio.Reader
}

func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{reader: bufio.NewReader(r)}
}

// Next returns the next event carrying data. Events without data lines are
// skipped. A trailing event that is not followed by a blank line is still
// returned before io.EOF.
func (r *EventReader) Next() (Event, error) {
	var ev Event
	var dataLines [][]byte
	hasData := false

	flush := func() Event {
		ev.Data = bytes.Join(dataLines, []byte("\n"))
		return ev
	}

	for {
		line, err := r.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return Event{}, err
		}
		atEOF := err == io.EOF

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if hasData {
				return flush(), nil
			}
			if atEOF {
				return Event{}, io.EOF
			}
			ev = Event{}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			ev.Type = string(value)
		case "id":
			ev.ID = string(value)
		}
		// comments and retry: are ignored

		if atEOF {
			if hasData {
				return flush(), nil
			}
			return Event{}, io.EOF
		}
	}
}

func splitField(line []byte) (string, []byte) {
	if line[0] == ':' {
		return "", nil
	}
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}
