package documents

import (
	"errors"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrNotReady             = errors.New("document not completed")
	ErrInvalidState         = errors.New("invalid document state")
	ErrUpstream             = errors.New("upstream failure")
	ErrStoreTimeout         = errors.New("object store timeout")

	// ErrConflict is returned by Repo.Update when the stored status differs from the expected one.
	ErrConflict = errors.New("status conflict")
)

// MissingFieldsError lists required fields that have no value.
type MissingFieldsError struct {
	Labels []string
}

func (e *MissingFieldsError) Error() string {
	return "required fields missing: " + strings.Join(e.Labels, ", ")
}

func (e *MissingFieldsError) Unwrap() error { return ErrInvalidInput }
