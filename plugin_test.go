package ldbridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/flutter-client-bridge/api"
)

func testFlags() map[string]ldvalue.Value {
	return map[string]ldvalue.Value{
		"bool-flag":   ldvalue.Bool(true),
		"int-flag":    ldvalue.Int(42),
		"double-flag": ldvalue.Float64(2.5),
		"string-flag": ldvalue.String("hello"),
		"json-flag":   ldvalue.ObjectBuild().Set("a", ldvalue.ArrayOf(ldvalue.Int(1), ldvalue.Bool(false))).Build(),
	}
}

func TestNewPlugin_RequiresStarter(t *testing.T) {
	_, err := NewPlugin(nil, nil, nil)
	assert.Error(t, err)
}

func TestPlugin_NotInitialized(t *testing.T) {
	plugin, err := NewPlugin(fakeStarter(newFakeClient(testFlags()), nil), nil, &Options{Executor: immediateExecutor{}})
	require.NoError(t, err)

	for _, method := range []string{"boolVariation", "identify", "allFlags", "flush", "close", "startFlagListening"} {
		response := call(t, plugin, method, map[string]interface{}{"flagKey": "bool-flag", "defaultValue": false})
		assert.Equal(t, api.ResultStatus_Error, response.Status, method)
		assert.Equal(t, api.ErrorCode_ClientNotInitialized, response.Code, method)
	}
}

func TestPlugin_NotImplemented(t *testing.T) {
	plugin, err := NewPlugin(fakeStarter(newFakeClient(nil), nil), nil, &Options{Executor: immediateExecutor{}})
	require.NoError(t, err)

	response := call(t, plugin, "doesNotExist", nil)
	assert.Equal(t, api.ResultStatus_NotImplemented, response.Status)
	assert.ErrorIs(t, response.Err(), api.ErrNotImplemented)
}

func TestPlugin_Start(t *testing.T) {
	events := make(chan api.ClientEvent, 10)
	var startedWith ldcontext.Context
	var startedConfig *Config
	client := newFakeClient(testFlags())
	starter := ClientStarterFunc(func(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error) {
		startedWith = c
		startedConfig = config
		return client, nil
	})
	plugin, err := NewPlugin(starter, nil, &Options{Executor: immediateExecutor{}, ClientEventHandler: events})
	require.NoError(t, err)

	response := call(t, plugin, "start", map[string]interface{}{"config": test_config, "context": test_context})
	require.Equal(t, api.ResultStatus_Success, response.Status)
	assert.Nil(t, response.Result)

	assert.Equal(t, "user-key", startedWith.Key())
	assert.Equal(t, "mob-test-key", startedConfig.MobileKey)
	assert.False(t, startedConfig.Stream)
	assert.Equal(t, DefaultWrapperName, startedConfig.WrapperName)

	event := <-events
	assert.Equal(t, api.ClientEventType_Initialized, event.EventType)
}

func TestPlugin_StartWithLegacyUser(t *testing.T) {
	var startedWith ldcontext.Context
	starter := ClientStarterFunc(func(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error) {
		startedWith = c
		return newFakeClient(nil), nil
	})
	plugin, err := NewPlugin(starter, nil, &Options{Executor: immediateExecutor{}})
	require.NoError(t, err)

	response := call(t, plugin, "start", map[string]interface{}{
		"config": test_config,
		"user":   map[string]interface{}{"key": "legacy-key", "email": "a@example.com"},
	})
	require.Equal(t, api.ResultStatus_Success, response.Status)
	assert.Equal(t, "legacy-key", startedWith.Key())
	assert.Equal(t, "a@example.com", startedWith.GetValue("email").StringValue())
}

func TestPlugin_StartErrors(t *testing.T) {
	plugin, err := NewPlugin(fakeStarter(newFakeClient(nil), nil), nil, &Options{Executor: immediateExecutor{}})
	require.NoError(t, err)

	response := call(t, plugin, "start", map[string]interface{}{"config": map[string]interface{}{}, "context": test_context})
	assert.Equal(t, api.ErrorCode_InvalidConfig, response.Code)

	response = call(t, plugin, "start", map[string]interface{}{"context": test_context})
	assert.Equal(t, api.ErrorCode_InvalidConfig, response.Code)

	response = call(t, plugin, "start", map[string]interface{}{"config": test_config, "context": []interface{}{}})
	assert.Equal(t, api.ErrorCode_InvalidContext, response.Code)

	response = call(t, plugin, "start", map[string]interface{}{"config": test_config})
	assert.Equal(t, api.ErrorCode_InvalidContext, response.Code)
}

func TestPlugin_StartFailed(t *testing.T) {
	events := make(chan api.ClientEvent, 10)
	plugin, err := NewPlugin(fakeStarter(nil, errors.New("no network")), nil, &Options{Executor: immediateExecutor{}, ClientEventHandler: events})
	require.NoError(t, err)

	response := call(t, plugin, "start", map[string]interface{}{"config": test_config, "context": test_context})
	assert.Equal(t, api.ErrorCode_StartFailed, response.Code)
	assert.Contains(t, response.Message, "no network")
	assert.Equal(t, api.ClientEventType_Error, (<-events).EventType)

	response = call(t, plugin, "boolVariation", map[string]interface{}{"flagKey": "f", "defaultValue": true})
	assert.Equal(t, api.ErrorCode_ClientNotInitialized, response.Code)
}

func TestPlugin_StartTimeoutStillSucceeds(t *testing.T) {
	client := newFakeClient(testFlags())
	plugin, err := NewPlugin(fakeStarter(client, context.DeadlineExceeded), nil, &Options{Executor: immediateExecutor{}})
	require.NoError(t, err)

	response := call(t, plugin, "start", map[string]interface{}{"config": test_config, "context": test_context})
	require.Equal(t, api.ResultStatus_Success, response.Status)

	response = call(t, plugin, "boolVariation", map[string]interface{}{"flagKey": "bool-flag", "defaultValue": false})
	assert.Equal(t, true, response.Result)
}

func TestPlugin_RestartClosesPreviousClient(t *testing.T) {
	first := newFakeClient(testFlags())
	plugin, _ := startedPlugin(t, first, nil)
	call(t, plugin, "startFlagListening", "bool-flag")

	second := newFakeClient(testFlags())
	plugin.starter = fakeStarter(second, nil)
	response := call(t, plugin, "start", map[string]interface{}{"config": test_config, "context": test_context})
	require.Equal(t, api.ResultStatus_Success, response.Status)

	assert.True(t, first.isClosed())
	assert.Equal(t, 0, first.listenerCount())
	assert.False(t, second.isClosed())
}

func TestPlugin_TypedVariations(t *testing.T) {
	plugin, _ := startedPlugin(t, newFakeClient(testFlags()), nil)

	tests := []struct {
		method       string
		flagKey      string
		defaultValue interface{}
		expected     interface{}
	}{
		{"boolVariation", "bool-flag", false, true},
		{"intVariation", "int-flag", 0, 42},
		{"intVariation", "int-flag", float64(7), 42},
		{"doubleVariation", "double-flag", 0.5, 2.5},
		{"doubleVariation", "double-flag", 1, 2.5},
		{"stringVariation", "string-flag", "", "hello"},
		{"jsonVariation", "json-flag", nil, map[string]interface{}{"a": []interface{}{float64(1), false}}},
		{"boolVariation", "missing-flag", true, true},
		{"stringVariation", "missing-flag", "fallback", "fallback"},
		{"jsonVariation", "missing-flag", []interface{}{"x"}, []interface{}{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.method+"/"+tt.flagKey, func(t *testing.T) {
			response := call(t, plugin, tt.method, map[string]interface{}{"flagKey": tt.flagKey, "defaultValue": tt.defaultValue})
			require.Equal(t, api.ResultStatus_Success, response.Status, response.Message)
			assert.Equal(t, tt.expected, response.Result)
		})
	}
}

func TestPlugin_LegacyFallbackArgument(t *testing.T) {
	plugin, _ := startedPlugin(t, newFakeClient(testFlags()), nil)

	response := call(t, plugin, "stringVariation", map[string]interface{}{"flagKey": "missing", "fallback": "old"})
	assert.Equal(t, "old", response.Result)
}

func TestPlugin_DefaultTypeIsNotCoerced(t *testing.T) {
	plugin, _ := startedPlugin(t, newFakeClient(testFlags()), nil)

	tests := []struct {
		method       string
		defaultValue interface{}
		code         string
	}{
		{"boolVariation", 1, api.ErrorCode_InvalidArgument},
		{"boolVariation", "true", api.ErrorCode_InvalidArgument},
		{"intVariation", 1.5, api.ErrorCode_InvalidArgument},
		{"intVariation", true, api.ErrorCode_InvalidArgument},
		{"doubleVariation", false, api.ErrorCode_InvalidArgument},
		{"stringVariation", 3, api.ErrorCode_InvalidArgument},
		{"stringVariationDetail", nil, api.ErrorCode_InvalidArgument},
		{"jsonVariation", map[string]interface{}{"bad": make(chan int)}, api.ErrorCode_UnsupportedValueType},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			response := call(t, plugin, tt.method, map[string]interface{}{"flagKey": "bool-flag", "defaultValue": tt.defaultValue})
			assert.Equal(t, api.ResultStatus_Error, response.Status)
			assert.Equal(t, tt.code, response.Code)
		})
	}

	response := call(t, plugin, "jsonVariation", map[string]interface{}{"flagKey": "f", "defaultValue": []interface{}{1, struct{}{}}})
	assert.Equal(t, map[string]interface{}{"path": "1"}, response.Details)

	response = call(t, plugin, "boolVariation", map[string]interface{}{"flagKey": 12, "defaultValue": true})
	assert.Equal(t, api.ErrorCode_InvalidArgument, response.Code)
}

func TestPlugin_VariationDetail(t *testing.T) {
	plugin, _ := startedPlugin(t, newFakeClient(testFlags()), nil)

	response := call(t, plugin, "boolVariationDetail", map[string]interface{}{"flagKey": "bool-flag", "defaultValue": false})
	require.Equal(t, api.ResultStatus_Success, response.Status)
	assert.Equal(t, map[string]interface{}{
		"value":          true,
		"variationIndex": 1,
		"reason":         map[string]interface{}{"kind": "FALLTHROUGH", "inExperiment": false},
	}, response.Result)

	response = call(t, plugin, "intVariationDetail", map[string]interface{}{"flagKey": "missing", "defaultValue": 3})
	require.Equal(t, api.ResultStatus_Success, response.Status)
	assert.Equal(t, map[string]interface{}{
		"value":          float64(3),
		"variationIndex": nil,
		"reason":         map[string]interface{}{"kind": "ERROR", "errorKind": "FLAG_NOT_FOUND"},
	}, response.Result)
}

func TestPlugin_EvalHooks(t *testing.T) {
	var seen []*HookContext
	var details []ldreason.EvaluationDetail
	hook := NewEvalHook(
		func(context *HookContext) error {
			seen = append(seen, context)
			return nil
		},
		func(context *HookContext, detail *ldreason.EvaluationDetail) error {
			details = append(details, *detail)
			return nil
		},
		nil, nil,
	)
	plugin, _ := startedPlugin(t, newFakeClient(testFlags()), &Options{EvalHooks: []*EvalHook{hook}})

	call(t, plugin, "stringVariation", map[string]interface{}{"flagKey": "string-flag", "defaultValue": "d"})

	require.Len(t, seen, 1)
	assert.Equal(t, "stringVariation", seen[0].Method)
	assert.Equal(t, "string-flag", seen[0].Key)
	assert.Equal(t, "d", seen[0].DefaultValue.StringValue())
	assert.Equal(t, "user-key", seen[0].Context.Key())
	require.Len(t, details, 1)
	assert.Equal(t, "hello", details[0].Value.StringValue())
}

func TestPlugin_Identify(t *testing.T) {
	events := make(chan api.ClientEvent, 10)
	client := newFakeClient(testFlags())
	plugin, _ := startedPlugin(t, client, &Options{ClientEventHandler: events})
	<-events

	response := call(t, plugin, "identify", map[string]interface{}{
		"context": []interface{}{map[string]interface{}{"kind": "org", "key": "org-key"}},
	})
	require.Equal(t, api.ResultStatus_Success, response.Status)
	require.Len(t, client.identified, 1)
	assert.Equal(t, ldcontext.Kind("org"), client.identified[0].Kind())

	event := <-events
	assert.Equal(t, api.ClientEventType_Identified, event.EventType)
	assert.Equal(t, "org-key", event.EventData)

	response = call(t, plugin, "identify", map[string]interface{}{"context": "nope"})
	assert.Equal(t, api.ErrorCode_InvalidContext, response.Code)

	client.identifyErr = errors.New("identify rejected")
	response = call(t, plugin, "identify", map[string]interface{}{"context": test_context})
	assert.Equal(t, api.ErrorCode_Internal, response.Code)
}

func TestPlugin_Track(t *testing.T) {
	client := newFakeClient(nil)
	plugin, _ := startedPlugin(t, client, nil)

	response := call(t, plugin, "track", map[string]interface{}{
		"eventName":   "purchase",
		"data":        map[string]interface{}{"sku": "abc"},
		"metricValue": 9.5,
	})
	require.Equal(t, api.ResultStatus_Success, response.Status)
	response = call(t, plugin, "track", map[string]interface{}{"eventName": "view"})
	require.Equal(t, api.ResultStatus_Success, response.Status)

	require.Len(t, client.tracked, 2)
	assert.Equal(t, "purchase", client.tracked[0].name)
	assert.Equal(t, "abc", client.tracked[0].data.GetByKey("sku").StringValue())
	require.NotNil(t, client.tracked[0].metricValue)
	assert.Equal(t, 9.5, *client.tracked[0].metricValue)
	assert.True(t, client.tracked[1].data.IsNull())
	assert.Nil(t, client.tracked[1].metricValue)

	response = call(t, plugin, "track", map[string]interface{}{"eventName": "x", "metricValue": "1"})
	assert.Equal(t, api.ErrorCode_InvalidArgument, response.Code)
	response = call(t, plugin, "track", map[string]interface{}{})
	assert.Equal(t, api.ErrorCode_InvalidArgument, response.Code)
}

func TestPlugin_AllFlags(t *testing.T) {
	plugin, _ := startedPlugin(t, newFakeClient(testFlags()), nil)

	response := call(t, plugin, "allFlags", nil)
	require.Equal(t, api.ResultStatus_Success, response.Status)
	flags := response.Result.(map[string]interface{})
	assert.Len(t, flags, 5)
	assert.Equal(t, true, flags["bool-flag"])
	assert.Equal(t, float64(42), flags["int-flag"])
	assert.Equal(t, "hello", flags["string-flag"])
}

func TestPlugin_OnlineState(t *testing.T) {
	client := newFakeClient(nil)
	plugin, _ := startedPlugin(t, client, nil)

	assert.Equal(t, true, call(t, plugin, "isOnline", nil).Result)
	require.Equal(t, api.ResultStatus_Success, call(t, plugin, "setOnline", map[string]interface{}{"online": false}).Status)
	assert.Equal(t, false, call(t, plugin, "isOnline", nil).Result)
	assert.Equal(t, true, call(t, plugin, "isOffline", nil).Result)

	response := call(t, plugin, "setOnline", map[string]interface{}{"online": "yes"})
	assert.Equal(t, api.ErrorCode_InvalidArgument, response.Code)
}

func TestPlugin_ConnectionInformation(t *testing.T) {
	client := newFakeClient(nil)
	plugin, _ := startedPlugin(t, client, nil)

	response := call(t, plugin, "getConnectionInformation", nil)
	require.Equal(t, api.ResultStatus_Success, response.Status)
	assert.Nil(t, response.Result)

	client.connection = &api.ConnectionInformation{
		State:                    api.ConnectionState_Streaming,
		LastSuccessfulConnection: time.UnixMilli(1700000000000),
	}
	response = call(t, plugin, "getConnectionInformation", nil)
	assert.Equal(t, map[string]interface{}{
		"connectionState":          "STREAMING",
		"lastFailure":              nil,
		"lastSuccessfulConnection": int64(1700000000000),
	}, response.Result)
}

func TestPlugin_FlagListening(t *testing.T) {
	events := make(chan api.ClientEvent, 10)
	client := newFakeClient(testFlags())
	plugin, invoker := startedPlugin(t, client, &Options{ClientEventHandler: events})
	<-events

	require.Equal(t, api.ResultStatus_Success, call(t, plugin, "startFlagListening", "bool-flag").Status)
	require.Equal(t, api.ResultStatus_Success, call(t, plugin, "startFlagListening", map[string]interface{}{"flagKey": "bool-flag"}).Status)
	assert.Equal(t, 1, client.listenerCount())

	client.update("bool-flag", ldvalue.Bool(false))

	calls := invoker.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, invocation{method: MethodHandleFlagUpdate, arguments: "bool-flag"}, calls[0])
	assert.Equal(t, invocation{method: MethodHandleFlagsReceived, arguments: []interface{}{"bool-flag"}}, calls[1])
	assert.Equal(t, api.ClientEventType_FlagUpdated, (<-events).EventType)
	assert.Equal(t, api.ClientEventType_FlagsReceived, (<-events).EventType)

	require.Equal(t, api.ResultStatus_Success, call(t, plugin, "stopFlagListening", "bool-flag").Status)
	assert.Equal(t, 0, client.listenerCount())
	require.Equal(t, api.ResultStatus_Success, call(t, plugin, "stopFlagListening", "bool-flag").Status)

	response := call(t, plugin, "startFlagListening", 5)
	assert.Equal(t, api.ErrorCode_InvalidArgument, response.Code)
}

func TestPlugin_FlushAndClose(t *testing.T) {
	client := newFakeClient(testFlags())
	plugin, invoker := startedPlugin(t, client, nil)
	call(t, plugin, "startFlagListening", "bool-flag")

	require.Equal(t, api.ResultStatus_Success, call(t, plugin, "flush", nil).Status)
	assert.Equal(t, 1, client.flushes)

	require.Equal(t, api.ResultStatus_Success, call(t, plugin, "close", nil).Status)
	assert.True(t, client.isClosed())
	assert.Equal(t, 0, client.listenerCount())

	client.update("bool-flag", ldvalue.Bool(false))
	assert.Empty(t, invoker.calls())

	response := call(t, plugin, "boolVariation", map[string]interface{}{"flagKey": "bool-flag", "defaultValue": true})
	assert.Equal(t, api.ErrorCode_ClientNotInitialized, response.Code)
	assert.NoError(t, plugin.Close())
}

func TestPlugin_CloseOnlyStopsOwnedExecutor(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	plugin, err := NewPlugin(fakeStarter(newFakeClient(nil), nil), nil, &Options{Executor: loop})
	require.NoError(t, err)
	require.NoError(t, plugin.Close())

	ran := make(chan struct{})
	loop.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("caller's event loop was closed with the plugin")
	}

	owned, err := NewPlugin(fakeStarter(newFakeClient(nil), nil), nil, nil)
	require.NoError(t, err)
	require.NoError(t, owned.Close())
	defaulted := owned.options.Executor.(*EventLoop)
	defaulted.mutex.Lock()
	defer defaulted.mutex.Unlock()
	assert.True(t, defaulted.closed)
}

func TestPlugin_ResultsArriveOnExecutor(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	onLoop := make(chan bool, 1)
	starter := ClientStarterFunc(func(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error) {
		return newFakeClient(nil), nil
	})
	plugin, err := NewPlugin(starter, nil, &Options{Executor: loop})
	require.NoError(t, err)

	marker := make(chan struct{})
	future := api.NewResultFuture()
	loop.Post(func() { <-marker })
	plugin.HandleMethodCall(api.MethodCall{Method: "start", Arguments: map[string]interface{}{"config": test_config, "context": test_context}}, future)

	select {
	case <-future.Done():
		onLoop <- false
	case <-time.After(time.Millisecond * 50):
		onLoop <- true
	}
	close(marker)

	assert.True(t, <-onLoop, "start completed while the executor was busy")
	response, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, api.ResultStatus_Success, response.Status)
}
