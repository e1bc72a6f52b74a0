package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/reflow/pkg/completion"
	"github.com/go-go-golems/reflow/pkg/conversation"
)

// Completer is the part of the orchestrator the engine drives.
type Completer interface {
	CompleteOne(ctx context.Context, prefix conversation.Messages, insertIndex int) (completion.Result, error)
}

// Progress is reported after every regenerated message.
type Progress struct {
	Index  int
	Total  int
	Result completion.Result
}

type ProgressFunc func(Progress)

// Engine regenerates the assistant messages of a conversation, oldest first.
type Engine struct {
	store     *conversation.Store
	completer Completer
	progress  ProgressFunc
}

type EngineOption func(*Engine)

func WithProgress(f ProgressFunc) EngineOption {
	return func(e *Engine) {
		e.progress = f
	}
}

func NewEngine(store *conversation.Store, completer Completer, options ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		completer: completer,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Submit walks messages, or the store contents when messages is empty, and
// regenerates every assistant message from the messages before it. Each
// completion is awaited before the next one starts, and later prefixes see
// the regenerated text.
//
// A failed completion does not stop the run; the failures are returned
// together as a *ReplayError. Being rejected because another completion is
// in flight, or a cancelled ctx, stops the run immediately.
func (e *Engine) Submit(ctx context.Context, messages conversation.Messages) error {
	working := messages.Clone()
	if len(working) == 0 {
		working = e.store.Snapshot()
	}

	total := working.CountRole(conversation.RoleAssistant)
	var failures []IndexError

	for i := range working {
		if working[i].Role != conversation.RoleAssistant {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		log.Debug().Int("index", i).Int("total", len(working)).Msg("replaying assistant message")
		res, err := e.completer.CompleteOne(ctx, working[:i+1].Clone(), i)
		if errors.Is(err, completion.ErrCompletionInFlight) {
			return err
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			failures = append(failures, IndexError{Index: i, Err: err})
		} else {
			working[i] = conversation.Message{
				ID:      res.ID,
				Role:    conversation.RoleAssistant,
				Content: res.Content,
			}
			e.store.UpdateContent(res.ID, res.Content)
		}

		if e.progress != nil {
			e.progress(Progress{Index: i, Total: total, Result: res})
		}
	}

	if len(failures) > 0 {
		return &ReplayError{Failures: failures}
	}
	return nil
}

type IndexError struct {
	Index int
	Err   error
}

// ReplayError lists the messages that could not be regenerated.
type ReplayError struct {
	Failures []IndexError
}

func (e *ReplayError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("message %d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%d of the replayed messages failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *ReplayError) Unwrap() []error {
	ret := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		ret = append(ret, f.Err)
	}
	return ret
}
