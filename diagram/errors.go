package diagram

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented  = errors.New("not implemented")
	ErrInvalidArgument = errors.New("invalid argument")
)

// NotImplementedError is returned for operations the diagram server does not offer.
type NotImplementedError struct {
	Operation string
	Server    string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s is not supported by %s", e.Operation, e.Server)
}

func (e *NotImplementedError) Is(target error) bool { return target == ErrNotImplemented }
