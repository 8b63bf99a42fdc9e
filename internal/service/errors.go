package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized means the caller has no valid session
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller's role does not allow the action
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means a referenced order, product or account does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition means the requested order status cannot follow the current one
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict means the request lost a race or collides with existing data
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError carries field level messages for a rejected request
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InsufficientStockError reports the product that could not cover an order line
type InsufficientStockError struct {
	ProductID   string
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = "a product"
	}
	return fmt.Sprintf("Insufficient stock for %s.", name)
}
