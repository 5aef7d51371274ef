package model

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// HTTPError is an error that knows its HTTP status
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors, use with errors.Is()
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// NotFoundError indicates a resource was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string   { return e.Resource + " " + e.ID + " not found" }
func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError indicates invalid input
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string   { return e.Message }
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ContractNotFound builds the not-found error for a contract id
func ContractNotFound(id string) error {
	return &NotFoundError{Resource: "contract", ID: id}
}

// ValidationFailed flattens ozzo field errors into one message, fields in
// name order. Other errors keep their own text.
func ValidationFailed(err error) *ValidationError {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &ValidationError{Message: err.Error()}
	}
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, errs[field].Error())
	}
	return &ValidationError{Message: strings.Join(msgs, "; ")}
}
