package ldbridge

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	"github.com/open-feature/go-sdk/pkg/openfeature"

	"github.com/launchdarkly/flutter-client-bridge/api"
	"github.com/launchdarkly/flutter-client-bridge/util"
)

// EventSink receives the analytics calls an OpenFeature client has no API for.
type EventSink interface {
	Track(c ldcontext.Context, eventName string, data ldvalue.Value, metricValue *float64)
	Flush()
}

type OpenFeatureOptions struct {
	// KnownFlags are the keys reported by AllFlags. OpenFeature cannot enumerate flags.
	KnownFlags []string

	// FlagKeys, when set, is asked for the current keys instead of using KnownFlags.
	FlagKeys  func() []string
	EventSink EventSink

	// Provider is the provider the client evaluates through. A provider that does not
	// report state, or is already ready, makes start return without waiting for a
	// ProviderReady event. When nil, start waits for the event.
	Provider openfeature.FeatureProvider
}

// OpenFeatureStarter starts NativeClients that evaluate through an OpenFeature client.
type OpenFeatureStarter struct {
	client  *openfeature.Client
	options OpenFeatureOptions
}

func NewOpenFeatureStarter(client *openfeature.Client, options OpenFeatureOptions) *OpenFeatureStarter {
	return &OpenFeatureStarter{client: client, options: options}
}

// Start returns once the provider reports ready. When ctx ends first the client is returned
// together with ctx's error and keeps serving defaults until the provider is ready.
func (s *OpenFeatureStarter) Start(ctx context.Context, config *Config, c ldcontext.Context) (NativeClient, error) {
	if s.client == nil {
		return nil, errors.New("no OpenFeature client configured")
	}
	client := newOpenFeatureClient(s.client, config, s.options)
	if err := client.Identify(ctx, c); err != nil {
		return nil, err
	}
	client.subscribe()
	if providerReady(s.options.Provider) {
		client.handleReady(openfeature.EventDetails{})
	}

	select {
	case <-client.ready:
		return client, nil
	case <-ctx.Done():
		return client, ctx.Err()
	}
}

func providerReady(provider openfeature.FeatureProvider) bool {
	if provider == nil {
		return false
	}
	stateHandler, ok := provider.(openfeature.StateHandler)
	return !ok || stateHandler.Status() == openfeature.ReadyState
}

// OpenFeatureClient adapts an OpenFeature client to NativeClient.
type OpenFeatureClient struct {
	client     *openfeature.Client
	knownFlags []string
	flagKeys   func() []string
	sink       EventSink
	stream     bool

	readyOnce sync.Once
	ready     chan struct{}

	onReady        func(openfeature.EventDetails)
	onConfigChange func(openfeature.EventDetails)
	onStale        func(openfeature.EventDetails)
	onError        func(openfeature.EventDetails)

	mutex             sync.RWMutex
	context           ldcontext.Context
	evaluationContext openfeature.EvaluationContext
	online            bool
	connection        *api.ConnectionInformation
	flagListeners     map[string]map[string]func(string)
	allFlagsListeners map[string]func([]string)
	closed            bool
}

func newOpenFeatureClient(client *openfeature.Client, config *Config, options OpenFeatureOptions) *OpenFeatureClient {
	c := &OpenFeatureClient{
		client:            client,
		knownFlags:        options.KnownFlags,
		flagKeys:          options.FlagKeys,
		sink:              options.EventSink,
		stream:            config.Stream,
		ready:             make(chan struct{}),
		online:            !config.Offline,
		flagListeners:     make(map[string]map[string]func(string)),
		allFlagsListeners: make(map[string]func([]string)),
	}
	c.onReady = c.handleReady
	c.onConfigChange = c.handleConfigChange
	c.onStale = c.handleStale
	c.onError = c.handleError
	return c
}

func (c *OpenFeatureClient) subscribe() {
	c.client.AddHandler(openfeature.ProviderReady, &c.onReady)
	c.client.AddHandler(openfeature.ProviderConfigChange, &c.onConfigChange)
	c.client.AddHandler(openfeature.ProviderStale, &c.onStale)
	c.client.AddHandler(openfeature.ProviderError, &c.onError)
}

func (c *OpenFeatureClient) unsubscribe() {
	c.client.RemoveHandler(openfeature.ProviderReady, &c.onReady)
	c.client.RemoveHandler(openfeature.ProviderConfigChange, &c.onConfigChange)
	c.client.RemoveHandler(openfeature.ProviderStale, &c.onStale)
	c.client.RemoveHandler(openfeature.ProviderError, &c.onError)
}

func (c *OpenFeatureClient) connectedState() api.ConnectionState {
	if !c.online {
		return api.ConnectionState_SetOffline
	}
	if c.stream {
		return api.ConnectionState_Streaming
	}
	return api.ConnectionState_Polling
}

func (c *OpenFeatureClient) handleReady(details openfeature.EventDetails) {
	c.readyOnce.Do(func() { close(c.ready) })

	c.mutex.Lock()
	c.connection = &api.ConnectionInformation{
		State:                    c.connectedState(),
		LastSuccessfulConnection: time.Now(),
	}
	c.mutex.Unlock()
	util.Debugf("Provider of %s is ready", c.client.Metadata().Name())
}

func (c *OpenFeatureClient) handleStale(details openfeature.EventDetails) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.connection != nil {
		c.connection.State = api.ConnectionState_Offline
	}
}

func (c *OpenFeatureClient) handleError(details openfeature.EventDetails) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info := &api.ConnectionInformation{State: api.ConnectionState_Offline}
	if c.connection != nil {
		info = c.connection
	}
	info.LastFailure = &api.ConnectionFailure{Message: details.Message, FailureType: api.FailureType_UnknownError}
	info.LastFailedConnection = time.Now()
	c.connection = info
	util.Warnf("Provider of %s reported an error: %s", c.client.Metadata().Name(), details.Message)
}

func (c *OpenFeatureClient) handleConfigChange(details openfeature.EventDetails) {
	c.mutex.Lock()
	if c.connection != nil {
		c.connection.State = c.connectedState()
		c.connection.LastSuccessfulConnection = time.Now()
	}
	c.mutex.Unlock()

	c.notify(details.FlagChanges)
}

func (c *OpenFeatureClient) notify(flagKeys []string) {
	if len(flagKeys) == 0 {
		return
	}
	c.mutex.RLock()
	var listeners []func()
	for _, key := range flagKeys {
		key := key
		for _, listener := range c.flagListeners[key] {
			listener := listener
			listeners = append(listeners, func() { listener(key) })
		}
	}
	for _, listener := range c.allFlagsListeners {
		listener := listener
		listeners = append(listeners, func() { listener(flagKeys) })
	}
	c.mutex.RUnlock()

	for _, listener := range listeners {
		listener()
	}
}

func (c *OpenFeatureClient) Identify(_ context.Context, ctx ldcontext.Context) error {
	evaluationContext, err := EvaluationContextFromContext(ctx)
	if err != nil {
		return err
	}
	c.mutex.Lock()
	previous := c.context
	c.context = ctx
	c.evaluationContext = evaluationContext
	c.mutex.Unlock()

	if previous.IsDefined() && !previous.Equal(ctx) {
		c.notify(c.keys())
	}
	return nil
}

func (c *OpenFeatureClient) keys() []string {
	if c.flagKeys != nil {
		return c.flagKeys()
	}
	return c.knownFlags
}

func (c *OpenFeatureClient) currentEvaluationContext() openfeature.EvaluationContext {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.evaluationContext
}

func (c *OpenFeatureClient) Track(eventName string, data ldvalue.Value, metricValue *float64) {
	if c.sink == nil {
		util.Debugf("Dropping %s event, no event sink configured", eventName)
		return
	}
	c.mutex.RLock()
	ctx := c.context
	c.mutex.RUnlock()
	c.sink.Track(ctx, eventName, data, metricValue)
}

func (c *OpenFeatureClient) BoolVariationDetail(flagKey string, defaultValue bool) ldreason.EvaluationDetail {
	details, err := c.client.BooleanValueDetails(context.Background(), flagKey, defaultValue, c.currentEvaluationContext())
	return DetailFromResolution(ldvalue.Bool(details.Value), details.ResolutionDetail, err)
}

func (c *OpenFeatureClient) IntVariationDetail(flagKey string, defaultValue int) ldreason.EvaluationDetail {
	details, err := c.client.IntValueDetails(context.Background(), flagKey, int64(defaultValue), c.currentEvaluationContext())
	return DetailFromResolution(ldvalue.Int(int(details.Value)), details.ResolutionDetail, err)
}

func (c *OpenFeatureClient) DoubleVariationDetail(flagKey string, defaultValue float64) ldreason.EvaluationDetail {
	details, err := c.client.FloatValueDetails(context.Background(), flagKey, defaultValue, c.currentEvaluationContext())
	return DetailFromResolution(ldvalue.Float64(details.Value), details.ResolutionDetail, err)
}

func (c *OpenFeatureClient) StringVariationDetail(flagKey string, defaultValue string) ldreason.EvaluationDetail {
	details, err := c.client.StringValueDetails(context.Background(), flagKey, defaultValue, c.currentEvaluationContext())
	return DetailFromResolution(ldvalue.String(details.Value), details.ResolutionDetail, err)
}

func (c *OpenFeatureClient) JSONVariationDetail(flagKey string, defaultValue ldvalue.Value) ldreason.EvaluationDetail {
	details, err := c.client.ObjectValueDetails(context.Background(), flagKey, EncodeValue(defaultValue), c.currentEvaluationContext())
	value, decodeErr := DecodeValue(details.Value)
	if decodeErr != nil {
		util.Warnf("Flag %s returned a value that cannot be represented: %v", flagKey, decodeErr)
		return ldreason.NewEvaluationDetailForError(ldreason.EvalErrorWrongType, defaultValue)
	}
	return DetailFromResolution(value, details.ResolutionDetail, err)
}

func (c *OpenFeatureClient) AllFlags() map[string]ldvalue.Value {
	keys := c.keys()
	flags := make(map[string]ldvalue.Value, len(keys))
	for _, key := range keys {
		detail := c.JSONVariationDetail(key, ldvalue.Null())
		if detail.Reason.GetKind() != ldreason.EvalReasonError {
			flags[key] = detail.Value
		}
	}
	return flags
}

func (c *OpenFeatureClient) SetOnline(online bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.online = online
	if c.connection != nil {
		c.connection.State = c.connectedState()
	}
}

func (c *OpenFeatureClient) IsOnline() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.online && !c.closed
}

func (c *OpenFeatureClient) IsOffline() bool {
	return !c.IsOnline()
}

func (c *OpenFeatureClient) ConnectionInformation() *api.ConnectionInformation {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.connection == nil {
		return nil
	}
	info := *c.connection
	if info.LastFailure != nil {
		failure := *info.LastFailure
		info.LastFailure = &failure
	}
	return &info
}

func (c *OpenFeatureClient) RegisterFlagListener(flagKey string, listener func(string)) func() {
	id := uuid.New().String()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.flagListeners[flagKey] == nil {
		c.flagListeners[flagKey] = make(map[string]func(string))
	}
	c.flagListeners[flagKey][id] = listener
	return func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		delete(c.flagListeners[flagKey], id)
		if len(c.flagListeners[flagKey]) == 0 {
			delete(c.flagListeners, flagKey)
		}
	}
}

func (c *OpenFeatureClient) RegisterAllFlagsListener(listener func([]string)) func() {
	id := uuid.New().String()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.allFlagsListeners[id] = listener
	return func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		delete(c.allFlagsListeners, id)
	}
}

func (c *OpenFeatureClient) Flush() {
	if c.sink != nil {
		c.sink.Flush()
	}
}

func (c *OpenFeatureClient) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.flagListeners = make(map[string]map[string]func(string))
	c.allFlagsListeners = make(map[string]func([]string))
	if c.connection != nil {
		c.connection.State = api.ConnectionState_Shutdown
	}
	c.mutex.Unlock()

	c.unsubscribe()
	c.Flush()
	return nil
}

// DetailFromResolution maps an OpenFeature resolution onto a LaunchDarkly evaluation detail.
// A numeric variant is taken as the variation index.
func DetailFromResolution(value ldvalue.Value, resolution openfeature.ResolutionDetail, err error) ldreason.EvaluationDetail {
	if resolution.ErrorCode != "" || resolution.Reason == openfeature.ErrorReason || err != nil {
		return ldreason.NewEvaluationDetailForError(errorKindFromCode(resolution.ErrorCode), value)
	}

	var reason ldreason.EvaluationReason
	switch resolution.Reason {
	case openfeature.DisabledReason:
		reason = ldreason.NewEvalReasonOff()
	case openfeature.TargetingMatchReason:
		reason = ldreason.NewEvalReasonTargetMatch()
	default:
		reason = ldreason.NewEvalReasonFallthrough()
	}

	if index, err := strconv.Atoi(resolution.Variant); err == nil && index >= 0 {
		return ldreason.NewEvaluationDetail(value, index, reason)
	}
	return ldreason.EvaluationDetail{Value: value, Reason: reason}
}

func errorKindFromCode(code openfeature.ErrorCode) ldreason.EvalErrorKind {
	switch code {
	case openfeature.FlagNotFoundCode:
		return ldreason.EvalErrorFlagNotFound
	case openfeature.TypeMismatchCode:
		return ldreason.EvalErrorWrongType
	case openfeature.ParseErrorCode:
		return ldreason.EvalErrorMalformedFlag
	case openfeature.ProviderNotReadyCode:
		return ldreason.EvalErrorClientNotReady
	case openfeature.TargetingKeyMissingCode, openfeature.InvalidContextCode:
		return ldreason.EvalErrorUserNotSpecified
	}
	return ldreason.EvalErrorException
}

// EvaluationContextFromContext flattens a context into an OpenFeature evaluation context.
// The key becomes the targeting key. A multi-kind context is keyed by its first kind and
// carries every individual context as an attribute named after its kind.
func EvaluationContextFromContext(c ldcontext.Context) (openfeature.EvaluationContext, error) {
	elements, err := ContextToBridge(c)
	if err != nil {
		return openfeature.EvaluationContext{}, err
	}
	flatten := func(element interface{}) (string, map[string]interface{}) {
		attributes := map[string]interface{}{}
		m, _ := element.(map[string]interface{})
		for name, value := range m {
			if name != contextKeyKey && name != contextKeyMeta {
				attributes[name] = value
			}
		}
		key, _ := m[contextKeyKey].(string)
		return key, attributes
	}

	if len(elements) == 1 {
		key, attributes := flatten(elements[0])
		return openfeature.NewEvaluationContext(key, attributes), nil
	}

	var targetingKey string
	attributes := map[string]interface{}{contextKeyKind: string(ldcontext.MultiKind)}
	for i, element := range elements {
		key, individual := flatten(element)
		if i == 0 {
			targetingKey = key
		}
		kind, _ := individual[contextKeyKind].(string)
		delete(individual, contextKeyKind)
		individual[contextKeyKey] = key
		attributes[kind] = individual
	}
	return openfeature.NewEvaluationContext(targetingKey, attributes), nil
}
