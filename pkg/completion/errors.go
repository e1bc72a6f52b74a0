package completion

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// ErrCompletionInFlight is returned when a completion is requested while
// another one has not finished yet.
var ErrCompletionInFlight = errors.New("a completion is already in flight")

// FallbackErrorMessage is used when a failed response carries no readable error message.
const FallbackErrorMessage = "Failed to fetch response, check your API key and try again."

// maxErrorBody bounds how much of a failed response body is read.
const maxErrorBody = 64 * 1024

// CompletionError is a non-2xx answer from the completion service.
type CompletionError struct {
	StatusCode int
	Message    string
}

func (e *CompletionError) Error() string {
	return e.Message
}

// NetworkError is a transport failure before any response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("could not reach completion service: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func newCompletionError(statusCode int, body io.Reader) *CompletionError {
	ret := &CompletionError{StatusCode: statusCode, Message: FallbackErrorMessage}
	if body == nil {
		return ret
	}

	b, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ret
	}

	var resp openai.ErrorResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return ret
	}
	if resp.Error != nil && resp.Error.Message != "" {
		ret.Message = resp.Error.Message
	}
	return ret
}
