// Package gateway provides the LLM gateway: a small interface over a
// text-generation capability that returns structured results or
// classified errors.
package gateway

import (
	"context"
	"errors"
	"strings"
)

// Gateway turns a prompt (plus an expected JSON schema) into a
// structured result or a classified error.
type Gateway interface {
	// Complete sends a prompt with a system message and returns the
	// raw completion text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// CompleteWithSchema sends a prompt and enforces a JSON schema in
	// the response.
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
}

// Sentinel errors used for classification.
var (
	// ErrNotConfigured - the gateway has no API key.
	ErrNotConfigured = errors.New("API key not configured")
	// ErrRateLimited - the provider returned 429 after retries.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrTimeout - the request deadline expired.
	ErrTimeout = errors.New("request timed out")
	// ErrUnavailable - the provider returned a 5xx after retries.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrSchemaInvalid - the response did not satisfy the expected schema.
	ErrSchemaInvalid = errors.New("response did not match expected schema")
	// ErrEmptyResponse - the provider returned no completion.
	ErrEmptyResponse = errors.New("no completion returned")
)

// IsTransient reports whether err is worth retrying: provider timeouts,
// rate limits, and 5xx availability errors. Schema violations and
// validation faults are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ErrorClass partitions gateway errors for retry decisions.
type ErrorClass int

const (
	// ClassPermanent - retrying will not help.
	ClassPermanent ErrorClass = iota
	// ClassTransient - a retry may succeed.
	ClassTransient
)

// ClassifyError maps an error to its retry class.
func ClassifyError(err error) ErrorClass {
	if IsTransient(err) {
		return ClassTransient
	}
	return ClassPermanent
}

// StripCodeFence removes a surrounding markdown code fence from a model
// response, if present. Models occasionally wrap JSON output in
// ```json ... ``` despite instructions.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	// Drop the opening fence line and a trailing fence line.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
