package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
	ErrNotFound           = errors.New("not_found")
	ErrDuplicate          = errors.New("duplicate")
	ErrTooLarge           = errors.New("too_large")
)

// ValidationError reports per-field problems with a request.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// err returns nil when no field failed.
func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// DuplicateInRequestError is returned when a bulk upload repeats an address.
// Nothing is stored.
type DuplicateInRequestError struct {
	Emails []string
}

func (e *DuplicateInRequestError) Error() string {
	return "duplicate emails in request: " + strings.Join(e.Emails, ", ")
}
