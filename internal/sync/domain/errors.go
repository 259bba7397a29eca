package domain

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

// AuthError means the provider rejected our credentials. The owning account
// moves to action_needed and the tenant tick continues with its siblings.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("provider auth failed: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// TransientError covers rate limits, timeouts and provider 5xx. The account
// stays connected and is retried on the next tick.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("provider transient error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// MalformedResponseError means the provider (or a model) returned a payload
// we refused to parse. Nothing derived from it is persisted.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string { return fmt.Sprintf("malformed response: %v", e.Err) }
func (e *MalformedResponseError) Unwrap() error { return e.Err }

// CursorExpiredError means the stored cursor is too old for an incremental
// sync (Gmail 404 on History.List, Graph/Calendar 410 GONE). The caller
// should clear the cursor and fall back to a full sync; message dedup makes
// the re-read safe.
type CursorExpiredError struct {
	Err error
}

func (e *CursorExpiredError) Error() string { return fmt.Sprintf("sync cursor expired: %v", e.Err) }
func (e *CursorExpiredError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsTransientError(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsCursorExpired(err error) bool {
	var ce *CursorExpiredError
	return errors.As(err, &ce)
}

// ClassifyProviderError maps a raw provider client error onto the sync error
// taxonomy. Status codes are checked first; the string sniffing mirrors how
// provider SDKs surface wrapped transport errors.
func ClassifyProviderError(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return &AuthError{Err: err}
		case gerr.Code == 429 || gerr.Code >= 500:
			return &TransientError{Err: err}
		}
	}

	msg := strings.ToLower(err.Error())
	authIndicators := []string{
		"invalid_grant",
		"invalid credentials",
		"token has been expired or revoked",
		"unauthorized",
		"insufficient authentication scopes",
	}
	for _, indicator := range authIndicators {
		if strings.Contains(msg, indicator) {
			return &AuthError{Err: err}
		}
	}

	transientIndicators := []string{
		"rate limit",
		"quota",
		"too many requests",
		"timeout",
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no such host",
		"dial tcp",
	}
	for _, indicator := range transientIndicators {
		if strings.Contains(msg, indicator) {
			return &TransientError{Err: err}
		}
	}

	return err
}
