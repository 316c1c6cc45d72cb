package ldbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/flutter-client-bridge/api"
)

var test_config = map[string]interface{}{
	"mobileKey": "mob-test-key",
	"stream":    false,
}

var test_context = []interface{}{
	map[string]interface{}{"kind": "user", "key": "user-key", "name": "Test User"},
}

type immediateExecutor struct{}

func (immediateExecutor) Post(task func()) { task() }

type invocation struct {
	method    string
	arguments interface{}
}

type recordingInvoker struct {
	mutex       sync.Mutex
	invocations []invocation
}

func (r *recordingInvoker) InvokeMethod(method string, arguments interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.invocations = append(r.invocations, invocation{method: method, arguments: arguments})
}

func (r *recordingInvoker) calls() []invocation {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]invocation(nil), r.invocations...)
}

type trackedEvent struct {
	name        string
	data        ldvalue.Value
	metricValue *float64
}

// fakeClient serves flag values from a map with a fallthrough reason.
type fakeClient struct {
	mutex             sync.Mutex
	flags             map[string]ldvalue.Value
	identified        []ldcontext.Context
	identifyErr       error
	tracked           []trackedEvent
	online            bool
	connection        *api.ConnectionInformation
	flagListeners     map[string]func(string)
	allFlagsListeners []func([]string)
	flushes           int
	closed            bool
}

func newFakeClient(flags map[string]ldvalue.Value) *fakeClient {
	return &fakeClient{flags: flags, online: true, flagListeners: map[string]func(string){}}
}

func (f *fakeClient) Identify(_ context.Context, c ldcontext.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.identified = append(f.identified, c)
	return f.identifyErr
}

func (f *fakeClient) Track(eventName string, data ldvalue.Value, metricValue *float64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.tracked = append(f.tracked, trackedEvent{name: eventName, data: data, metricValue: metricValue})
}

func (f *fakeClient) detail(flagKey string, defaultValue ldvalue.Value) ldreason.EvaluationDetail {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	value, ok := f.flags[flagKey]
	if !ok {
		return ldreason.NewEvaluationDetailForError(ldreason.EvalErrorFlagNotFound, defaultValue)
	}
	if value.Type() != defaultValue.Type() {
		return ldreason.NewEvaluationDetailForError(ldreason.EvalErrorWrongType, defaultValue)
	}
	return ldreason.NewEvaluationDetail(value, 1, ldreason.NewEvalReasonFallthrough())
}

func (f *fakeClient) BoolVariationDetail(flagKey string, defaultValue bool) ldreason.EvaluationDetail {
	return f.detail(flagKey, ldvalue.Bool(defaultValue))
}

func (f *fakeClient) IntVariationDetail(flagKey string, defaultValue int) ldreason.EvaluationDetail {
	return f.detail(flagKey, ldvalue.Int(defaultValue))
}

func (f *fakeClient) DoubleVariationDetail(flagKey string, defaultValue float64) ldreason.EvaluationDetail {
	return f.detail(flagKey, ldvalue.Float64(defaultValue))
}

func (f *fakeClient) StringVariationDetail(flagKey string, defaultValue string) ldreason.EvaluationDetail {
	return f.detail(flagKey, ldvalue.String(defaultValue))
}

func (f *fakeClient) JSONVariationDetail(flagKey string, defaultValue ldvalue.Value) ldreason.EvaluationDetail {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	value, ok := f.flags[flagKey]
	if !ok {
		return ldreason.NewEvaluationDetailForError(ldreason.EvalErrorFlagNotFound, defaultValue)
	}
	return ldreason.NewEvaluationDetail(value, 1, ldreason.NewEvalReasonFallthrough())
}

func (f *fakeClient) AllFlags() map[string]ldvalue.Value {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make(map[string]ldvalue.Value, len(f.flags))
	for k, v := range f.flags {
		out[k] = v
	}
	return out
}

func (f *fakeClient) SetOnline(online bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.online = online
}

func (f *fakeClient) IsOnline() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.online
}

func (f *fakeClient) IsOffline() bool {
	return !f.IsOnline()
}

func (f *fakeClient) ConnectionInformation() *api.ConnectionInformation {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.connection
}

func (f *fakeClient) RegisterFlagListener(flagKey string, listener func(string)) func() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.flagListeners[flagKey] = listener
	return func() {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		delete(f.flagListeners, flagKey)
	}
}

func (f *fakeClient) RegisterAllFlagsListener(listener func([]string)) func() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.allFlagsListeners = append(f.allFlagsListeners, listener)
	index := len(f.allFlagsListeners) - 1
	return func() {
		f.mutex.Lock()
		defer f.mutex.Unlock()
		f.allFlagsListeners[index] = nil
	}
}

// update changes a flag and notifies listeners the way a streaming update would.
func (f *fakeClient) update(flagKey string, value ldvalue.Value) {
	f.mutex.Lock()
	f.flags[flagKey] = value
	listener := f.flagListeners[flagKey]
	all := make([]func([]string), len(f.allFlagsListeners))
	copy(all, f.allFlagsListeners)
	f.mutex.Unlock()

	if listener != nil {
		listener(flagKey)
	}
	for _, l := range all {
		if l != nil {
			l([]string{flagKey})
		}
	}
}

func (f *fakeClient) listenerCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.flagListeners)
}

func (f *fakeClient) Flush() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.flushes++
}

func (f *fakeClient) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) isClosed() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.closed
}

func fakeStarter(client NativeClient, err error) ClientStarter {
	return ClientStarterFunc(func(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error) {
		return client, err
	})
}

func call(t *testing.T, plugin *Plugin, method string, arguments interface{}) api.MethodResponse {
	t.Helper()
	future := api.NewResultFuture()
	plugin.HandleMethodCall(api.MethodCall{Method: method, Arguments: arguments}, future)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()
	response, err := future.Wait(ctx)
	require.NoError(t, err, "%s did not complete", method)
	return response
}

// startedPlugin returns a plugin whose start call has completed against client.
func startedPlugin(t *testing.T, client NativeClient, options *Options) (*Plugin, *recordingInvoker) {
	t.Helper()
	if options == nil {
		options = &Options{}
	}
	if options.Executor == nil {
		options.Executor = immediateExecutor{}
	}
	invoker := &recordingInvoker{}
	plugin, err := NewPlugin(fakeStarter(client, nil), invoker, options)
	require.NoError(t, err)

	response := call(t, plugin, "start", map[string]interface{}{"config": test_config, "context": test_context})
	require.Equal(t, api.ResultStatus_Success, response.Status, response.Message)
	return plugin, invoker
}
