package nlp

import (
	"errors"
	"fmt"
)

// ErrBadResponse marks a model server reply that could not be used.
var ErrBadResponse = errors.New("bad nlp response")

// StatusError is returned when the model server answers with a non-2xx status.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nlp %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (*StatusError) Unwrap() error {
	return ErrBadResponse
}
