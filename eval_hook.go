package ldbridge

import "github.com/launchdarkly/go-sdk-common/v3/ldreason"

// EvalHook represents a hook that runs around every *Variation and *VariationDetail call
type EvalHook struct {
	// Before is called before the flag is evaluated
	Before func(context *HookContext) error
	// After is called after evaluation (only if Before didn't error)
	After func(context *HookContext, detail *ldreason.EvaluationDetail) error
	// OnFinally is called after evaluation regardless of errors
	OnFinally func(context *HookContext, detail *ldreason.EvaluationDetail) error
	// Error is called when a hook or the evaluation failed
	Error func(context *HookContext, evalError error) error
}

// NewEvalHook creates a new EvalHook with the provided functions
func NewEvalHook(before func(context *HookContext) error, after func(context *HookContext, detail *ldreason.EvaluationDetail) error, onFinally func(context *HookContext, detail *ldreason.EvaluationDetail) error, error func(context *HookContext, evalError error) error) *EvalHook {
	return &EvalHook{
		Before:    before,
		After:     after,
		OnFinally: onFinally,
		Error:     error,
	}
}
