package history

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrValidation           = errors.New("validation error")
	ErrStoreClosed          = errors.New("history store closed")
)

// ValidationError reports a conversation that cannot be stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError carries the id that could not be found.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conversation %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrConversationNotFound }
