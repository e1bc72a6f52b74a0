package conversation

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrIndexOutOfRange = errors.New("message index out of range")
	ErrStoreNil        = errors.New("message store is nil")
)

type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("message index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
