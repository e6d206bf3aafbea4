package interpret

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBadRequest means the input was rejected before any model call.
	ErrBadRequest = errors.New("bad request")

	// ErrMalformedResponse means the model output could not be parsed.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrIncompleteData means the model output parsed but lacks required fields.
	ErrIncompleteData = errors.New("incomplete receipt data")
)

// MalformedResponseError carries the raw completion and the parser diagnostic.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// IncompleteDataError carries the partially interpreted receipt.
type IncompleteDataError struct {
	Missing   []string
	Candidate *InterpretedReceipt
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("incomplete receipt data: missing %s", strings.Join(e.Missing, ", "))
}

func (e *IncompleteDataError) Is(target error) bool {
	return target == ErrIncompleteData
}
