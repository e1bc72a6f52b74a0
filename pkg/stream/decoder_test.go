package stream

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(t *testing.T, content string) string {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{"delta": map[string]interface{}{"content": content}},
		},
	})
	require.NoError(t, err)
	return "data: " + string(b) + "\n\n"
}

func sseBody(t *testing.T, contents ...string) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range contents {
		sb.WriteString(chunk(t, c))
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func collect(t *testing.T, d *Decoder) ([]string, error) {
	t.Helper()
	var frags []string
	for {
		f, err := d.Next()
		if err == io.EOF {
			return frags, nil
		}
		if err != nil {
			return frags, err
		}
		frags = append(frags, f)
	}
}

func TestDecoderConcatenatesFragments(t *testing.T) {
	d := NewDecoder(strings.NewReader(sseBody(t, "Hel", "lo", " world")))
	text, err := d.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
}

func TestDecoderStopsAtDone(t *testing.T) {
	body := sseBody(t, "a") + chunk(t, "after done")
	frags, err := collect(t, NewDecoder(strings.NewReader(body)))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, frags)
}

func TestDecoderSuppressesLeadingNewlines(t *testing.T) {
	d := NewDecoder(strings.NewReader(sseBody(t, "\n", "\n\n", "A", "\n", "B", "\n")))
	frags, err := collect(t, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "\n"}, frags)
}

func TestDecoderNewlineAfterTwoEmittedPassesThrough(t *testing.T) {
	d := NewDecoder(strings.NewReader(sseBody(t, "A", "B", "\n", "C")))
	text, err := d.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "AB\nC", text)
}

func TestDecoderMixedNewlineFragmentIsKept(t *testing.T) {
	d := NewDecoder(strings.NewReader(sseBody(t, "\nHi")))
	text, err := d.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "\nHi", text)
}

func TestDecoderAbsentContentIsEmptyFragment(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[]}\n\n" +
		sseBody(t, "\n", "x")
	frags, err := collect(t, NewDecoder(strings.NewReader(body)))
	require.NoError(t, err)
	// the two empty fragments use up the suppression window
	assert.Equal(t, []string{"", "", "\n", "x"}, frags)
}

func TestDecoderMalformedJSON(t *testing.T) {
	body := chunk(t, "ok") + "data: {not json\n\n" + chunk(t, "never")
	d := NewDecoder(strings.NewReader(body))

	text, err := d.ReadAll()
	require.Error(t, err)
	assert.Equal(t, "ok", text)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "{not json", decodeErr.Data)

	_, err = d.Next()
	assert.Equal(t, decodeErr, err, "decoder is not restartable")
}

func TestDecoderEndsWithoutDone(t *testing.T) {
	body := chunk(t, "a") + strings.TrimSuffix(chunk(t, "b"), "\n\n")
	text, err := NewDecoder(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestEventReaderFields(t *testing.T) {
	body := ": keep-alive\n" +
		"event: message\n" +
		"id: 7\n" +
		"retry: 100\n" +
		"data: line one\r\n" +
		"data:line two\n" +
		"\n" +
		"event: ping\n\n" +
		"data: last\n"

	r := NewEventReader(strings.NewReader(body))
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", ev.Type)
	assert.Equal(t, "7", ev.ID)
	assert.Equal(t, "line one\nline two", string(ev.Data))

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "", ev.Type)
	assert.Equal(t, "last", string(ev.Data))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestDecoderClose(t *testing.T) {
	body := &closeRecorder{Reader: strings.NewReader(sseBody(t))}
	d := NewDecoder(body)
	require.NoError(t, d.Close())
	assert.True(t, body.closed)
}
