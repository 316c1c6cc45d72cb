package ldbridge

import (
	"fmt"

	"github.com/launchdarkly/go-sdk-common/v3/ldreason"

	"github.com/launchdarkly/flutter-client-bridge/util"
)

// BeforeHookError represents an error that occurred during a before hook
type BeforeHookError struct {
	HookIndex int
	Err       error
}

func (e *BeforeHookError) Error() string {
	return fmt.Sprintf("before hook %d failed: %v", e.HookIndex, e.Err)
}

func (e *BeforeHookError) Unwrap() error {
	return e.Err
}

// AfterHookError represents an error that occurred during an after hook
type AfterHookError struct {
	HookIndex int
	Err       error
}

func (e *AfterHookError) Error() string {
	return fmt.Sprintf("after hook %d failed: %v", e.HookIndex, e.Err)
}

func (e *AfterHookError) Unwrap() error {
	return e.Err
}

// EvalHookRunner manages and executes evaluation hooks
type EvalHookRunner struct {
	hooks []*EvalHook
}

// NewEvalHookRunner creates a new EvalHookRunner with the provided hooks
func NewEvalHookRunner(hooks []*EvalHook) *EvalHookRunner {
	return &EvalHookRunner{
		hooks: hooks,
	}
}

// Evaluate runs evaluate wrapped in the hooks. A failing before or after hook is reported
// to the error hooks but never changes the detail returned to the application.
func (r *EvalHookRunner) Evaluate(context *HookContext, evaluate func() ldreason.EvaluationDetail) ldreason.EvaluationDetail {
	if len(r.hooks) == 0 {
		return evaluate()
	}
	beforeErr := r.RunBeforeHooks(context)
	detail := evaluate()
	if beforeErr != nil {
		r.RunErrorHooks(context, beforeErr)
	} else if err := r.RunAfterHooks(context, detail); err != nil {
		r.RunErrorHooks(context, err)
	} else if detail.Reason.GetKind() == ldreason.EvalReasonError {
		r.RunErrorHooks(context, fmt.Errorf("evaluation of %s failed: %s", context.Key, detail.Reason.GetErrorKind()))
	}
	r.RunOnFinallyHooks(context, detail)
	return detail
}

// RunBeforeHooks runs all before hooks in order
func (r *EvalHookRunner) RunBeforeHooks(context *HookContext) error {
	if context == nil {
		return nil
	}
	for i, hook := range r.hooks {
		if hook.Before != nil {
			if err := hook.Before(context); err != nil {
				util.Warnf("Before hook %d failed: %v", i, err)
				return &BeforeHookError{HookIndex: i, Err: err}
			}
		}
	}
	return nil
}

// RunAfterHooks runs all after hooks in reverse order
func (r *EvalHookRunner) RunAfterHooks(context *HookContext, detail ldreason.EvaluationDetail) error {
	if context == nil {
		return nil
	}
	for i := len(r.hooks) - 1; i >= 0; i-- {
		hook := r.hooks[i]
		if hook.After != nil {
			if err := hook.After(context, &detail); err != nil {
				util.Warnf("After hook %d failed: %v", i, err)
				return &AfterHookError{HookIndex: i, Err: err}
			}
		}
	}
	return nil
}

// RunOnFinallyHooks runs all onFinally hooks in reverse order
func (r *EvalHookRunner) RunOnFinallyHooks(context *HookContext, detail ldreason.EvaluationDetail) {
	if context == nil {
		return
	}
	for i := len(r.hooks) - 1; i >= 0; i-- {
		hook := r.hooks[i]
		if hook.OnFinally != nil {
			if err := hook.OnFinally(context, &detail); err != nil {
				util.Warnf("OnFinally hook %d failed: %v", i, err)
			}
		}
	}
}

// RunErrorHooks runs all error hooks in reverse order
func (r *EvalHookRunner) RunErrorHooks(context *HookContext, evalError error) {
	if context == nil {
		return
	}
	for i := len(r.hooks) - 1; i >= 0; i-- {
		hook := r.hooks[i]
		if hook.Error != nil {
			if err := hook.Error(context, evalError); err != nil {
				util.Warnf("Error hook %d failed: %v", i, err)
			}
		}
	}
}

func (r *EvalHookRunner) AddHook(hook *EvalHook) {
	r.hooks = append(r.hooks, hook)
}

func (r *EvalHookRunner) ClearHooks() {
	r.hooks = []*EvalHook{}
}
