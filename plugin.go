package ldbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/launchdarkly/flutter-client-bridge/api"
	"github.com/launchdarkly/flutter-client-bridge/util"
	variable_utils "github.com/launchdarkly/flutter-client-bridge/variable-utils"
)

// Methods pushed to the application through the MethodInvoker.
const (
	MethodHandleFlagUpdate    = "handleFlagUpdate"
	MethodHandleFlagsReceived = "handleFlagsReceived"
)

// Plugin dispatches method calls from the application to a NativeClient and pushes flag
// notifications back. Results of start and identify are delivered on the Executor.
type Plugin struct {
	starter    ClientStarter
	invoker    api.MethodInvoker
	options    *Options
	hookRunner *EvalHookRunner
	listeners  *flagListeners

	methods map[string]methodHandler

	mutex                  sync.RWMutex
	client                 NativeClient
	context                ldcontext.Context
	cancelAllFlagsListener func()
}

func NewPlugin(starter ClientStarter, invoker api.MethodInvoker, options *Options) (*Plugin, error) {
	if starter == nil {
		return nil, errors.New("a ClientStarter is required")
	}
	if options == nil {
		options = &Options{}
	}
	if options.Logger != nil {
		util.SetLogger(options.Logger)
	}
	options.CheckDefaults()

	p := &Plugin{
		starter:    starter,
		invoker:    invoker,
		options:    options,
		hookRunner: NewEvalHookRunner(options.EvalHooks),
		listeners:  newFlagListeners(),
	}
	p.methods = p.handlers()
	return p, nil
}

// HandleMethodCall runs call and reports its outcome on result exactly once.
func (p *Plugin) HandleMethodCall(call api.MethodCall, result api.Result) {
	if call.Method == "start" {
		p.start(call, result)
		return
	}
	handler, ok := p.methods[call.Method]
	if !ok {
		util.Debugf("Method %s is not implemented", call.Method)
		result.NotImplemented()
		return
	}
	client := p.nativeClient()
	if client == nil {
		p.fail(result, fmt.Errorf("%w: cannot call %s", ErrClientNotInitialized, call.Method))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			result.Error(api.ErrorCode_Internal, fmt.Sprintf("%s panicked: %v", call.Method, r), nil)
		}
	}()
	handler(client, call, result)
}

type methodHandler func(client NativeClient, call api.MethodCall, result api.Result)

func (p *Plugin) handlers() map[string]methodHandler {
	return map[string]methodHandler{
		"identify":                 p.identify,
		"track":                    p.track,
		"boolVariation":            p.variation(boolDefault, func(d ldreason.EvaluationDetail) any { return d.Value.BoolValue() }),
		"boolVariationDetail":      p.variation(boolDefault, detailResult),
		"intVariation":             p.variation(intDefault, func(d ldreason.EvaluationDetail) any { return d.Value.IntValue() }),
		"intVariationDetail":       p.variation(intDefault, detailResult),
		"doubleVariation":          p.variation(doubleDefault, func(d ldreason.EvaluationDetail) any { return d.Value.Float64Value() }),
		"doubleVariationDetail":    p.variation(doubleDefault, detailResult),
		"stringVariation":          p.variation(stringDefault, func(d ldreason.EvaluationDetail) any { return d.Value.StringValue() }),
		"stringVariationDetail":    p.variation(stringDefault, detailResult),
		"jsonVariation":            p.variation(jsonDefault, func(d ldreason.EvaluationDetail) any { return EncodeValue(d.Value) }),
		"jsonVariationDetail":      p.variation(jsonDefault, detailResult),
		"allFlags":                 p.allFlags,
		"setOnline":                p.setOnline,
		"isOnline":                 func(client NativeClient, _ api.MethodCall, result api.Result) { result.Success(client.IsOnline()) },
		"isOffline":                func(client NativeClient, _ api.MethodCall, result api.Result) { result.Success(client.IsOffline()) },
		"getConnectionInformation": p.connectionInformation,
		"startFlagListening":       p.startFlagListening,
		"stopFlagListening":        p.stopFlagListening,
		"flush":                    func(client NativeClient, _ api.MethodCall, result api.Result) { client.Flush(); result.Success(nil) },
		"close":                    p.close,
	}
}

func (p *Plugin) nativeClient() NativeClient {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.client
}

func (p *Plugin) start(call api.MethodCall, result api.Result) {
	rawConfig, _ := call.Argument("config")
	configMap, ok := rawConfig.(map[string]interface{})
	if !ok {
		p.fail(result, fmt.Errorf("%w: config must be a map, got %T", ErrInvalidConfig, rawConfig))
		return
	}
	config, err := ConfigFromBridge(configMap)
	if err != nil {
		p.fail(result, err)
		return
	}
	c, err := contextArgument(call)
	if err != nil {
		p.fail(result, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.options.StartWaitTimeout)
		defer cancel()
		client, err := p.starter.Start(ctx, config, c)
		p.options.Executor.Post(func() {
			p.completeStart(client, c, err, result)
		})
	}()
}

func (p *Plugin) completeStart(client NativeClient, c ldcontext.Context, err error, result api.Result) {
	if client == nil {
		if err == nil {
			err = errors.New("no client was returned")
		}
		_ = util.Errorf("Failed to start the client: %v", err)
		p.publish(api.ClientEvent{EventType: api.ClientEventType_Error, Status: "start failed", Error: err})
		result.Error(api.ErrorCode_StartFailed, err.Error(), nil)
		return
	}
	if err != nil {
		util.Warnf("Client started before it finished initializing: %v", err)
	}

	p.mutex.Lock()
	previous, previousCancel := p.client, p.cancelAllFlagsListener
	p.client = client
	p.context = c
	p.cancelAllFlagsListener = client.RegisterAllFlagsListener(p.pushFlagsReceived)
	p.mutex.Unlock()

	if previous != nil {
		p.listeners.clear()
		if previousCancel != nil {
			previousCancel()
		}
		if closeErr := previous.Close(); closeErr != nil {
			util.Warnf("Failed to close the previous client: %v", closeErr)
		}
	}

	p.publish(api.ClientEvent{EventType: api.ClientEventType_Initialized, Status: "success", Error: err})
	result.Success(nil)
}

func (p *Plugin) identify(client NativeClient, call api.MethodCall, result api.Result) {
	c, err := contextArgument(call)
	if err != nil {
		p.fail(result, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.options.StartWaitTimeout)
		defer cancel()
		err := client.Identify(ctx, c)
		p.options.Executor.Post(func() {
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				p.publish(api.ClientEvent{EventType: api.ClientEventType_Error, Status: "identify failed", Error: err})
				p.fail(result, err)
				return
			}
			if err != nil {
				util.Warnf("Identify is still in progress: %v", err)
			}
			p.mutex.Lock()
			p.context = c
			p.mutex.Unlock()
			p.publish(api.ClientEvent{EventType: api.ClientEventType_Identified, EventData: c.Key(), Status: "success"})
			result.Success(nil)
		})
	}()
}

func (p *Plugin) track(client NativeClient, call api.MethodCall, result api.Result) {
	eventName, err := stringArgument(call, "eventName")
	if err != nil {
		p.fail(result, err)
		return
	}
	rawData, _ := call.Argument("data")
	data, err := DecodeValue(rawData)
	if err != nil {
		p.fail(result, err)
		return
	}
	var metricValue *float64
	if raw, ok := call.Argument("metricValue"); ok && raw != nil {
		f, ok := variable_utils.ConvertNumber(raw)
		if !ok {
			p.fail(result, fmt.Errorf("%w: metricValue must be a number, got %T", ErrInvalidArgument, raw))
			return
		}
		metricValue = &f
	}
	client.Track(eventName, data, metricValue)
	result.Success(nil)
}

// defaultEvaluator checks the type of the default value and evaluates the flag with it.
type defaultEvaluator func(client NativeClient, flagKey string, rawDefault interface{}) (ldvalue.Value, func() ldreason.EvaluationDetail, error)

func boolDefault(client NativeClient, flagKey string, rawDefault interface{}) (ldvalue.Value, func() ldreason.EvaluationDetail, error) {
	b, ok := rawDefault.(bool)
	if !ok {
		return ldvalue.Null(), nil, wrongDefault("a boolean", rawDefault)
	}
	return ldvalue.Bool(b), func() ldreason.EvaluationDetail { return client.BoolVariationDetail(flagKey, b) }, nil
}

func intDefault(client NativeClient, flagKey string, rawDefault interface{}) (ldvalue.Value, func() ldreason.EvaluationDetail, error) {
	i, ok := variable_utils.ConvertInt(rawDefault)
	if !ok {
		return ldvalue.Null(), nil, wrongDefault("an integer", rawDefault)
	}
	return ldvalue.Int(i), func() ldreason.EvaluationDetail { return client.IntVariationDetail(flagKey, i) }, nil
}

func doubleDefault(client NativeClient, flagKey string, rawDefault interface{}) (ldvalue.Value, func() ldreason.EvaluationDetail, error) {
	f, ok := variable_utils.ConvertNumber(rawDefault)
	if !ok {
		return ldvalue.Null(), nil, wrongDefault("a number", rawDefault)
	}
	return ldvalue.Float64(f), func() ldreason.EvaluationDetail { return client.DoubleVariationDetail(flagKey, f) }, nil
}

func stringDefault(client NativeClient, flagKey string, rawDefault interface{}) (ldvalue.Value, func() ldreason.EvaluationDetail, error) {
	s, ok := rawDefault.(string)
	if !ok {
		return ldvalue.Null(), nil, wrongDefault("a string", rawDefault)
	}
	return ldvalue.String(s), func() ldreason.EvaluationDetail { return client.StringVariationDetail(flagKey, s) }, nil
}

func jsonDefault(client NativeClient, flagKey string, rawDefault interface{}) (ldvalue.Value, func() ldreason.EvaluationDetail, error) {
	value, err := DecodeValue(rawDefault)
	if err != nil {
		return ldvalue.Null(), nil, err
	}
	return value, func() ldreason.EvaluationDetail { return client.JSONVariationDetail(flagKey, value) }, nil
}

func wrongDefault(expected string, raw interface{}) error {
	return fmt.Errorf("%w: defaultValue must be %s, got %T", ErrInvalidArgument, expected, raw)
}

func detailResult(detail ldreason.EvaluationDetail) any {
	return EvaluationDetailToBridge(detail)
}

func (p *Plugin) variation(evaluator defaultEvaluator, project func(ldreason.EvaluationDetail) any) methodHandler {
	return func(client NativeClient, call api.MethodCall, result api.Result) {
		flagKey, err := stringArgument(call, "flagKey")
		if err != nil {
			p.fail(result, err)
			return
		}
		rawDefault, ok := call.Argument("defaultValue")
		if !ok {
			// older application layers named it fallback
			rawDefault, _ = call.Argument("fallback")
		}
		defaultValue, evaluate, err := evaluator(client, flagKey, rawDefault)
		if err != nil {
			p.fail(result, err)
			return
		}

		p.mutex.RLock()
		hookContext := &HookContext{Context: p.context, Method: call.Method, Key: flagKey, DefaultValue: defaultValue}
		p.mutex.RUnlock()

		detail := p.hookRunner.Evaluate(hookContext, evaluate)
		result.Success(project(detail))
	}
}

func (p *Plugin) allFlags(client NativeClient, _ api.MethodCall, result api.Result) {
	result.Success(EncodeValueMap(client.AllFlags()))
}

func (p *Plugin) setOnline(client NativeClient, call api.MethodCall, result api.Result) {
	raw, _ := call.Argument("online")
	online, ok := raw.(bool)
	if !ok {
		p.fail(result, fmt.Errorf("%w: online must be a boolean, got %T", ErrInvalidArgument, raw))
		return
	}
	client.SetOnline(online)
	result.Success(nil)
}

func (p *Plugin) connectionInformation(client NativeClient, _ api.MethodCall, result api.Result) {
	info := client.ConnectionInformation()
	if info == nil {
		result.Success(nil)
		return
	}
	result.Success(ConnectionInformationToBridge(info))
}

func (p *Plugin) startFlagListening(client NativeClient, call api.MethodCall, result api.Result) {
	flagKey, err := flagKeyArgument(call)
	if err != nil {
		p.fail(result, err)
		return
	}
	p.listeners.add(flagKey, func() func() {
		return client.RegisterFlagListener(flagKey, p.pushFlagUpdate)
	})
	result.Success(nil)
}

func (p *Plugin) stopFlagListening(_ NativeClient, call api.MethodCall, result api.Result) {
	flagKey, err := flagKeyArgument(call)
	if err != nil {
		p.fail(result, err)
		return
	}
	p.listeners.remove(flagKey)
	result.Success(nil)
}

func (p *Plugin) close(client NativeClient, _ api.MethodCall, result api.Result) {
	if err := p.closeClient(client); err != nil {
		util.Warnf("Error closing the client: %v", err)
	}
	result.Success(nil)
}

func (p *Plugin) closeClient(client NativeClient) error {
	p.mutex.Lock()
	cancelAllFlags := p.cancelAllFlagsListener
	p.client = nil
	p.cancelAllFlagsListener = nil
	p.mutex.Unlock()

	p.listeners.clear()
	if cancelAllFlags != nil {
		cancelAllFlags()
	}
	err := client.Close()
	p.publish(api.ClientEvent{EventType: api.ClientEventType_Closed, Status: "closed", Error: err})
	return err
}

func (p *Plugin) pushFlagUpdate(flagKey string) {
	p.publish(api.ClientEvent{EventType: api.ClientEventType_FlagUpdated, EventData: flagKey, Status: "success"})
	p.push(MethodHandleFlagUpdate, flagKey)
}

func (p *Plugin) pushFlagsReceived(flagKeys []string) {
	keys := make([]interface{}, len(flagKeys))
	for i, key := range flagKeys {
		keys[i] = key
	}
	p.publish(api.ClientEvent{EventType: api.ClientEventType_FlagsReceived, EventData: flagKeys, Status: "success"})
	p.push(MethodHandleFlagsReceived, keys)
}

func (p *Plugin) push(method string, arguments interface{}) {
	if p.invoker == nil {
		return
	}
	p.options.Executor.Post(func() {
		p.invoker.InvokeMethod(method, arguments)
	})
}

func (p *Plugin) publish(event api.ClientEvent) {
	if p.options.ClientEventHandler == nil {
		return
	}
	select {
	case p.options.ClientEventHandler <- event:
	default:
		util.Warnf("Dropping %s client event, the handler channel is full", event.EventType)
	}
}

// Close releases the wrapped client, if started, and stops the executor when the plugin
// owns it.
func (p *Plugin) Close() error {
	var err error
	if client := p.nativeClient(); client != nil {
		err = p.closeClient(client)
	}
	if loop, ok := p.options.Executor.(*EventLoop); ok && p.options.ownsExecutor {
		loop.Close()
	}
	return err
}

func (p *Plugin) fail(result api.Result, err error) {
	code := errorCode(err)
	var details interface{}
	var unsupported *UnsupportedValueTypeError
	if errors.As(err, &unsupported) && len(unsupported.Path) > 0 {
		details = map[string]interface{}{"path": strings.Join(unsupported.Path, ".")}
	}
	util.Debugf("Method call failed with %s: %v", code, err)
	result.Error(code, err.Error(), details)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrClientNotInitialized):
		return api.ErrorCode_ClientNotInitialized
	case errors.Is(err, ErrInvalidConfig):
		return api.ErrorCode_InvalidConfig
	case errors.Is(err, ErrInvalidContext):
		return api.ErrorCode_InvalidContext
	case errors.Is(err, ErrUnsupportedValueType):
		return api.ErrorCode_UnsupportedValueType
	case errors.Is(err, ErrInvalidArgument):
		return api.ErrorCode_InvalidArgument
	}
	return api.ErrorCode_Internal
}

// contextArgument reads "context", falling back to the legacy "user" map.
func contextArgument(call api.MethodCall) (ldcontext.Context, error) {
	if raw, ok := call.Argument("context"); ok && raw != nil {
		return ContextFromBridge(raw)
	}
	if raw, ok := call.Argument("user"); ok && raw != nil {
		user, ok := raw.(map[string]interface{})
		if !ok {
			return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: fmt.Sprintf("user must be a map, got %T", raw)}
		}
		return ContextFromUser(user)
	}
	return ldcontext.Context{}, &InvalidContextError{Index: -1, Reason: "context argument is missing"}
}

func stringArgument(call api.MethodCall, name string) (string, error) {
	raw, _ := call.Argument(name)
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgument, name, raw)
	}
	return s, nil
}

// flagKeyArgument accepts the flag key as the whole argument or as {"flagKey": key}.
func flagKeyArgument(call api.MethodCall) (string, error) {
	if s, ok := call.Arguments.(string); ok {
		return s, nil
	}
	return stringArgument(call, "flagKey")
}
