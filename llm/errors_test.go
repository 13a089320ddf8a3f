package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{400, func(err error) bool { var e *InvalidRequestError; return errors.As(err, &e) }},
		{401, func(err error) bool { var e *AuthenticationError; return errors.As(err, &e) }},
		{403, func(err error) bool { var e *AccessDeniedError; return errors.As(err, &e) }},
		{404, func(err error) bool { var e *NotFoundError; return errors.As(err, &e) }},
		{408, func(err error) bool { var e *RequestTimeoutError; return errors.As(err, &e) }},
		{413, func(err error) bool { var e *ContextLengthError; return errors.As(err, &e) }},
		{422, func(err error) bool { var e *InvalidRequestError; return errors.As(err, &e) }},
		{429, func(err error) bool { var e *RateLimitError; return errors.As(err, &e) }},
		{500, func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
		{503, func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
		{418, func(err error) bool { var e *ProviderError; return errors.As(err, &e) }},
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "test error", "openai", nil)
		if !tt.check(err) {
			t.Errorf("status %d: unexpected error type %T", tt.status, err)
		}
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := ErrorFromStatusCode(429, "slow down", "anthropic", nil)
	if got := err.Error(); got != "[anthropic] slow down (status=429)" {
		t.Errorf("unexpected message %q", got)
	}

	pe := &ProviderError{SDKError: SDKError{Message: "odd"}, Provider: "openai"}
	if got := pe.Error(); got != "[openai] odd" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrorFromStatusCode(502, "bad gateway", "openai", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable with errors.Is")
	}

	sdk := &SDKError{Message: "outer", Cause: cause}
	if !strings.Contains(sdk.Error(), "connection reset") {
		t.Errorf("expected cause in message, got %q", sdk.Error())
	}
}
