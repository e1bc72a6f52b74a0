package auth

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tcnksm/go-input"
)

var ErrNoToken = errors.New("no API token available")

// TokenProvider hands out the bearer token used for completion requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token known up front, from a flag or the environment.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// PromptTokenProvider asks for the token on first use and remembers it for
// the lifetime of the process.
type PromptTokenProvider struct {
	ui     *input.UI
	hidden bool

	mu    sync.Mutex
	token string
}

type PromptOption func(*PromptTokenProvider)

// WithVisibleInput echoes the typed token, for readers that are not terminals.
func WithVisibleInput() PromptOption {
	return func(p *PromptTokenProvider) {
		p.hidden = false
	}
}

func NewPromptTokenProvider(r io.Reader, w io.Writer, options ...PromptOption) *PromptTokenProvider {
	p := &PromptTokenProvider{
		ui: &input.UI{
			Reader: r,
			Writer: w,
		},
		hidden: true,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

func (p *PromptTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" {
		return p.token, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	answer, err := p.ui.Ask("Enter your API token", &input.Options{
		Required:  true,
		Loop:      false,
		Hide:      p.hidden,
		HideOrder: true,
		ValidateFunc: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return ErrNoToken
			}
			return nil
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "could not read API token")
	}

	p.token = strings.TrimSpace(answer)
	return p.token, nil
}

// Chain returns the first token any of the providers can supply.
type Chain []TokenProvider

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		t, err := p.Token(ctx)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}
