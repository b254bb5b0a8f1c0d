package auctionapi

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNetwork  = errors.New("network error")
)

// DomainError is a business-rule rejection returned by the backend.
type DomainError struct {
	StatusCode int
	Message    string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request rejected with status %d", e.StatusCode)
	}
	return e.Message
}

// errorBody is the backend's error payload.
type errorBody struct {
	Message string `json:"message"`
}
