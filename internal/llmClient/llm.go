package llmclient

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrInvalidJSON = errors.New("invalid json from LLM")

// LLMClient is the transport behind every generation request. Implementations
// only perform the provider call; retries, limits and logging are middleware.
type LLMClient interface {
	Name() string
	Close() error
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pErr *PermanentError
	return errors.As(err, &pErr)
}

// ResponseSpec describes the structured response a request expects.
type ResponseSpec struct {
	// Name labels the schema for providers that require one (a-z, 0-9, _ and -).
	Name   string
	Schema map[string]any
	// Temperature is left to the provider default when nil.
	Temperature *float32
}

type ctxKeyResponseSpec struct{}

// WithResponseSpec attaches the expected response shape to ctx.
func WithResponseSpec(ctx context.Context, spec ResponseSpec) context.Context {
	return context.WithValue(ctx, ctxKeyResponseSpec{}, spec)
}

// ResponseSpecFrom returns the spec stored in ctx, if any.
func ResponseSpecFrom(ctx context.Context) (ResponseSpec, bool) {
	if ctx == nil {
		return ResponseSpec{}, false
	}
	spec, ok := ctx.Value(ctxKeyResponseSpec{}).(ResponseSpec)
	return spec, ok
}

func composePrompt(prompt string, input any) string {
	if input == nil {
		return prompt
	}
	in, _ := json.MarshalIndent(input, "", "  ")
	return prompt + "\n\n[INPUT JSON]\n" + string(in)
}
