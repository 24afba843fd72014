package client

import (
	"errors"
	"fmt"
)

// One fixed error per status class. Callers branch with errors.Is; the
// wrapped message carries the offending endpoint.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrBackend          = errors.New("backend failure")
)

func errorForStatus(code int, endpoint string) error {
	switch code {
	case 400:
		return fmt.Errorf("%s: %w", endpoint, ErrMalformedRequest)
	case 403:
		return fmt.Errorf("%s: %w", endpoint, ErrUnauthorized)
	case 404:
		return fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	default:
		return fmt.Errorf("%s: status %d: %w", endpoint, code, ErrBackend)
	}
}
