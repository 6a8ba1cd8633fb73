package llm

import (
	"context"
	"encoding/json"
)

// PromptHook observes generation requests, e.g. to record prompts for replay.
type PromptHook interface {
	Before(ctx context.Context, phase, prompt string, input any)
	After(ctx context.Context, phase string, raw json.RawMessage, err error)
}

const phaseUnknown = "unknown"

type (
	hookKey  struct{}
	phaseKey struct{}
)

func WithHook(ctx context.Context, hook PromptHook) context.Context {
	return context.WithValue(ctx, hookKey{}, hook)
}

// WithPhase tags ctx with the generation phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

// HookFrom returns the hook attached to ctx, or nil.
func HookFrom(ctx context.Context) PromptHook {
	h, _ := ctx.Value(hookKey{}).(PromptHook)
	return h
}

// PhaseFrom returns the phase tag of ctx, "unknown" when untagged.
func PhaseFrom(ctx context.Context) string {
	if p, ok := ctx.Value(phaseKey{}).(string); ok && p != "" {
		return p
	}
	return phaseUnknown
}
