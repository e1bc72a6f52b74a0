package completion

import (
	"context"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/reflow/pkg/auth"
	"github.com/go-go-golems/reflow/pkg/helpers"
)

const DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Streamer opens a streamed completion. The returned body is an event stream
// the caller must close.
type Streamer interface {
	Stream(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// Client posts completion requests over HTTP.
type Client struct {
	rc       *resty.Client
	endpoint string
	tokens   auth.TokenProvider
}

var _ Streamer = (*Client)(nil)

type ClientOption func(*Client)

func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.rc = resty.NewWithClient(hc)
	}
}

func NewClient(tokens auth.TokenProvider, options ...ClientOption) *Client {
	c := &Client{
		rc:       resty.New(),
		endpoint: DefaultEndpoint,
		tokens:   tokens,
	}
	for _, o := range options {
		o(c)
	}
	c.rc.SetLogger(helpers.NewRestyLogger(log.Logger))
	return c
}

func (c *Client) Stream(ctx context.Context, req *Request) (io.ReadCloser, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(c.endpoint)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			_ = resp.RawBody().Close()
		}
		return nil, &NetworkError{Err: err}
	}

	body := resp.RawBody()
	if !resp.IsSuccess() {
		if body != nil {
			defer body.Close()
		}
		log.Debug().Int("status", resp.StatusCode()).Str("endpoint", c.endpoint).Msg("completion request failed")
		return nil, newCompletionError(resp.StatusCode(), body)
	}

	return body, nil
}
