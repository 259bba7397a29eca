package ai

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
)

// FallbackClient routes completions to a primary model and falls back to a
// secondary model on quota or availability errors. Each completion hits at
// most two models. Safe for concurrent use.
type FallbackClient struct {
	primary   Completer
	secondary Completer

	// mu guards lastModel; completions run concurrently.
	mu        sync.Mutex
	lastModel string
}

func NewFallbackClient(primary, secondary Completer) *FallbackClient {
	return &FallbackClient{
		primary:   primary,
		secondary: secondary,
	}
}

func (f *FallbackClient) Model() string {
	f.mu.Lock()
	last := f.lastModel
	f.mu.Unlock()
	if last != "" {
		return last
	}
	if f.primary != nil {
		return f.primary.Model()
	}
	return ""
}

func (f *FallbackClient) setLastModel(model string) {
	f.mu.Lock()
	f.lastModel = model
	f.mu.Unlock()
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := err.Error()
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"EOF",
	}

	for _, indicator := range connectionIndicators {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(indicator)) {
			return true
		}
	}

	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
		"RESOURCE_EXHAUSTED",
	}

	for _, indicator := range quotaIndicators {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(indicator)) {
			return true
		}
	}

	return false
}

// isUnavailableError covers 503s and model overload responses.
func isUnavailableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{"503", "unavailable", "overloaded"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// Complete tries the primary model, falling back to the secondary on quota,
// availability, or connection errors. Other primary errors (bad request,
// auth) are returned as-is since retrying a different model won't help.
func (f *FallbackClient) Complete(ctx context.Context, prompt string) (string, error) {
	if f.primary == nil && f.secondary == nil {
		return "", fmt.Errorf("no AI model configured")
	}

	if f.primary != nil {
		result, err := f.primary.Complete(ctx, prompt)
		if err == nil {
			f.setLastModel(f.primary.Model())
			return result, nil
		}

		if f.secondary == nil || !(isQuotaError(err) || isUnavailableError(err) || isConnectionError(err)) {
			return "", err
		}
		log.Printf("[AI] Primary model %s failed: %v, falling back to %s", f.primary.Model(), err, f.secondary.Model())
	}

	result, err := f.secondary.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("fallback model %s failed: %w", f.secondary.Model(), err)
	}
	f.setLastModel(f.secondary.Model())
	return result, nil
}
