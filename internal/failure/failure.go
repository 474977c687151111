// Package failure classifies completion errors into the kinds shown to the user.
package failure

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Kind is the user-facing category of a failed turn.
type Kind string

const (
	KindInvalidCredential Kind = "invalid-credential"
	KindQuotaExceeded     Kind = "quota-exceeded"
	KindRateLimited       Kind = "rate-limited"
	KindNetwork           Kind = "network"
	KindMessageLimit      Kind = "message-limit-reached"
	KindCancelled         Kind = "cancelled"
	KindTimeout           Kind = "timeout"
	KindModelUnavailable  Kind = "model-unavailable"
	KindEmptyCompletion   Kind = "empty-completion"
	KindUnknown           Kind = "unknown"
)

var messages = map[Kind]string{
	KindInvalidCredential: "Invalid or missing API key. Check your provider configuration.",
	KindQuotaExceeded:     "API quota exceeded. Check your plan and billing details.",
	KindRateLimited:       "Too many requests. Wait a moment, then send your message again.",
	KindNetwork:           "Network error. Check your connection and try again.",
	KindMessageLimit:      "Message limit reached. Clear the chat to start a new conversation.",
	KindCancelled:         "Message cancelled, you may send a new one.",
	KindTimeout:           "The request timed out. Please try again.",
	KindModelUnavailable:  "The configured model is unavailable. Check the model name.",
	KindEmptyCompletion:   "The model returned an empty response. Please try again.",
}

// Error is a classified failure. Err is the underlying cause and may be nil
// for failures raised locally (message limit, empty completion).
type Error struct {
	Kind Kind
	Err  error
}

// New returns an Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the text shown in the transcript. Unknown failures keep
// the original error text verbatim.
func (e *Error) Message() string {
	if msg, ok := messages[e.Kind]; ok {
		return msg
	}
	if e.Err != nil {
		return "Error: " + e.Err.Error()
	}
	return "Error: unknown failure"
}

// Is matches another *Error by kind, so errors.Is(err, failure.New(KindTimeout, nil)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err, classifying it if needed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// Classify maps an arbitrary error to a classified *Error. An error that is
// already classified is returned as is.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case errors.Is(err, context.Canceled):
		return New(KindCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return New(KindTimeout, err)
	}

	if kind, ok := classifyStatus(err); ok {
		return New(kind, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(KindTimeout, err)
		}
		return New(KindNetwork, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return New(KindNetwork, err)
	}

	if kind, ok := classifyText(err.Error()); ok {
		return New(kind, err)
	}
	return New(KindUnknown, err)
}

// classifyStatus inspects the HTTP status carried by the SDK error types.
func classifyStatus(err error) (Kind, bool) {
	var status int
	var body string

	var oaErr *openai.Error
	var anErr *anthropic.Error
	switch {
	case errors.As(err, &oaErr):
		status = oaErr.StatusCode
		body = oaErr.Error()
	case errors.As(err, &anErr):
		status = anErr.StatusCode
		body = anErr.Error()
	default:
		return "", false
	}

	switch status {
	case 401, 403:
		return KindInvalidCredential, true
	case 402:
		return KindQuotaExceeded, true
	case 404:
		return KindModelUnavailable, true
	case 408, 504:
		return KindTimeout, true
	case 429:
		if mentionsQuota(strings.ToLower(body)) {
			return KindQuotaExceeded, true
		}
		return KindRateLimited, true
	}
	if status >= 500 {
		// The body of a server error says nothing reliable about the cause.
		return KindUnknown, true
	}
	return "", false
}

func mentionsQuota(s string) bool {
	return strings.Contains(s, "quota") || strings.Contains(s, "billing") ||
		strings.Contains(s, "credit balance")
}

// textPatterns are checked in order; the first match wins. Bare status
// codes are not keywords: they also occur in addresses, ports and bodies.
var textPatterns = []struct {
	kind     Kind
	keywords []string
}{
	{KindInvalidCredential, []string{"api key", "api_key", "apikey", "unauthorized", "authentication", "forbidden"}},
	{KindQuotaExceeded, []string{"insufficient_quota", "quota", "billing", "credit balance"}},
	{KindRateLimited, []string{"rate limit", "rate_limit", "too many requests"}},
	{KindModelUnavailable, []string{"model_not_found", "model not found", "does not exist", "no such model", "unknown model"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindNetwork, []string{"connection refused", "connection reset", "no such host", "network is unreachable", "failed to fetch", "broken pipe", "eof"}},
}

func classifyText(msg string) (Kind, bool) {
	lower := strings.ToLower(msg)
	for _, p := range textPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return p.kind, true
			}
		}
	}
	return "", false
}
