package ldbridge

import (
	"context"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/launchdarkly/flutter-client-bridge/api"
)

// NativeClient is the wrapped feature-flag SDK. Evaluation, caching, streaming and event
// delivery all happen behind it; the bridge only marshals values in and out.
type NativeClient interface {
	Identify(ctx context.Context, c ldcontext.Context) error
	Track(eventName string, data ldvalue.Value, metricValue *float64)

	BoolVariationDetail(flagKey string, defaultValue bool) ldreason.EvaluationDetail
	IntVariationDetail(flagKey string, defaultValue int) ldreason.EvaluationDetail
	DoubleVariationDetail(flagKey string, defaultValue float64) ldreason.EvaluationDetail
	StringVariationDetail(flagKey string, defaultValue string) ldreason.EvaluationDetail
	JSONVariationDetail(flagKey string, defaultValue ldvalue.Value) ldreason.EvaluationDetail
	AllFlags() map[string]ldvalue.Value

	SetOnline(online bool)
	IsOnline() bool
	IsOffline() bool
	// ConnectionInformation returns nil when the SDK has nothing to report yet.
	ConnectionInformation() *api.ConnectionInformation

	// RegisterFlagListener calls listener whenever flagKey changes until cancel is called.
	RegisterFlagListener(flagKey string, listener func(flagKey string)) (cancel func())
	// RegisterAllFlagsListener calls listener with the changed keys on every flag update.
	RegisterAllFlagsListener(listener func(flagKeys []string)) (cancel func())

	Flush()
	Close() error
}

// ClientStarter creates and initializes a NativeClient. Start blocks until the SDK is
// initialized or ctx is done; a client returned alongside an error is still usable and
// serves cached or default values until it connects.
type ClientStarter interface {
	Start(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error)
}

// ClientStarterFunc adapts a function to ClientStarter.
type ClientStarterFunc func(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error)

func (f ClientStarterFunc) Start(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error) {
	return f(ctx, config, c)
}
