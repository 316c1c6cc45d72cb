package ldbridge

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// HookContext stores the information passed to hooks during a flag evaluation
type HookContext struct {
	// Context is the evaluation context the client was last started or identified with
	Context ldcontext.Context
	// Method is the channel method that triggered the evaluation, e.g. "boolVariationDetail"
	Method string
	// Key is the flag key being evaluated
	Key string
	// DefaultValue is the decoded default value provided by the application
	DefaultValue ldvalue.Value
}
