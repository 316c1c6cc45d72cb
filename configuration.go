package ldbridge

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/launchdarkly/flutter-client-bridge/api"
	"github.com/launchdarkly/flutter-client-bridge/util"
	variable_utils "github.com/launchdarkly/flutter-client-bridge/variable-utils"
)

// use a single instance of Validate, it caches struct info
var validate = validator.New()

const (
	DefaultPollURI   = "https://clientsdk.launchdarkly.com"
	DefaultEventsURI = "https://mobile.launchdarkly.com"
	DefaultStreamURI = "https://clientstream.launchdarkly.com"

	DefaultWrapperName = "FlutterClientSdk"
)

type ApplicationInfo struct {
	ID          string `json:"applicationId,omitempty"`
	Name        string `json:"applicationName,omitempty"`
	Version     string `json:"applicationVersion,omitempty"`
	VersionName string `json:"applicationVersionName,omitempty"`
}

// Config is the SDK configuration passed by the application to start.
type Config struct {
	MobileKey string `json:"mobileKey" validate:"required"`

	PollURI   string `json:"pollUri" validate:"required,url"`
	EventsURI string `json:"eventsUri" validate:"required,url"`
	StreamURI string `json:"streamUri" validate:"required,url"`

	EventsCapacity              int           `json:"eventsCapacity" validate:"gte=0"`
	EventsFlushInterval         time.Duration `json:"eventsFlushIntervalMillis" validate:"gte=0"`
	ConnectionTimeout           time.Duration `json:"connectionTimeoutMillis" validate:"gte=0"`
	PollingInterval             time.Duration `json:"pollingIntervalMillis" validate:"gte=0"`
	BackgroundPollingInterval   time.Duration `json:"backgroundPollingIntervalMillis" validate:"gte=0"`
	DiagnosticRecordingInterval time.Duration `json:"diagnosticRecordingIntervalMillis" validate:"gte=0"`
	// MaxCachedContexts of -1 keeps every context the device has seen.
	MaxCachedContexts int `json:"maxCachedContexts" validate:"gte=-1"`

	Stream                    bool `json:"stream"`
	Offline                   bool `json:"offline"`
	DisableBackgroundUpdating bool `json:"disableBackgroundUpdating"`
	UseReport                 bool `json:"useReport"`
	EvaluationReasons         bool `json:"evaluationReasons"`
	DiagnosticOptOut          bool `json:"diagnosticOptOut"`
	AutoEnvAttributes         bool `json:"autoEnvAttributes"`
	AllAttributesPrivate      bool `json:"allAttributesPrivate"`

	PrivateAttributes []string `json:"privateAttributes" validate:"dive,required"`

	ApplicationInfo *ApplicationInfo `json:"applicationInfo,omitempty"`

	WrapperName    string `json:"wrapperName"`
	WrapperVersion string `json:"wrapperVersion"`
}

// DefaultConfig returns the configuration used for every key the application leaves out.
func DefaultConfig() *Config {
	return &Config{
		PollURI:                     DefaultPollURI,
		EventsURI:                   DefaultEventsURI,
		StreamURI:                   DefaultStreamURI,
		EventsCapacity:              100,
		EventsFlushInterval:         time.Second * 30,
		ConnectionTimeout:           time.Second * 10,
		PollingInterval:             time.Minute * 5,
		BackgroundPollingInterval:   time.Hour,
		DiagnosticRecordingInterval: time.Minute * 15,
		MaxCachedContexts:           5,
		Stream:                      true,
		WrapperName:                 DefaultWrapperName,
	}
}

// CheckDefaults clamps intervals the mobile SDKs refuse to run with.
func (c *Config) CheckDefaults() {
	if c.PollingInterval < time.Minute*5 {
		util.Warnf("pollingIntervalMillis cannot be less than 5 minutes. Defaulting to 5 minutes.")
		c.PollingInterval = time.Minute * 5
	}
	if c.BackgroundPollingInterval < time.Minute*15 {
		util.Warnf("backgroundPollingIntervalMillis cannot be less than 15 minutes. Defaulting to 15 minutes.")
		c.BackgroundPollingInterval = time.Minute * 15
	}
	if c.DiagnosticRecordingInterval < time.Minute*5 {
		util.Warnf("diagnosticRecordingIntervalMillis cannot be less than 5 minutes. Defaulting to 5 minutes.")
		c.DiagnosticRecordingInterval = time.Minute * 5
	}
	if c.EventsFlushInterval <= 0 {
		c.EventsFlushInterval = time.Second * 30
	}
	if c.EventsCapacity <= 0 {
		c.EventsCapacity = 100
	}
	if c.WrapperName == "" {
		c.WrapperName = DefaultWrapperName
	}
}

// Validate checks the struct constraints of the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ConfigFromBridge reads the configuration map passed to start. Keys that are absent or
// null keep their default; keys of the wrong type are an error.
func ConfigFromBridge(m map[string]interface{}) (*Config, error) {
	c := DefaultConfig()
	r := configReader{m: m}

	r.readString("mobileKey", &c.MobileKey)
	r.readString("pollUri", &c.PollURI)
	r.readString("eventsUri", &c.EventsURI)
	r.readString("streamUri", &c.StreamURI)
	r.readInt("eventsCapacity", &c.EventsCapacity)
	r.readMillis("eventsFlushIntervalMillis", &c.EventsFlushInterval)
	r.readMillis("connectionTimeoutMillis", &c.ConnectionTimeout)
	r.readMillis("pollingIntervalMillis", &c.PollingInterval)
	r.readMillis("backgroundPollingIntervalMillis", &c.BackgroundPollingInterval)
	r.readMillis("diagnosticRecordingIntervalMillis", &c.DiagnosticRecordingInterval)
	r.readInt("maxCachedContexts", &c.MaxCachedContexts)
	r.readBool("stream", &c.Stream)
	r.readBool("offline", &c.Offline)
	r.readBool("disableBackgroundUpdating", &c.DisableBackgroundUpdating)
	r.readBool("useReport", &c.UseReport)
	r.readBool("evaluationReasons", &c.EvaluationReasons)
	r.readBool("diagnosticOptOut", &c.DiagnosticOptOut)
	r.readBool("autoEnvAttributes", &c.AutoEnvAttributes)
	r.readBool("allAttributesPrivate", &c.AllAttributesPrivate)
	r.readStrings("privateAttributeNames", &c.PrivateAttributes)
	r.readStrings("privateAttributes", &c.PrivateAttributes)
	r.readString("wrapperName", &c.WrapperName)
	r.readString("wrapperVersion", &c.WrapperVersion)

	var app ApplicationInfo
	r.readString("applicationId", &app.ID)
	r.readString("applicationName", &app.Name)
	r.readString("applicationVersion", &app.Version)
	r.readString("applicationVersionName", &app.VersionName)
	if app != (ApplicationInfo{}) {
		c.ApplicationInfo = &app
	}

	if r.err != nil {
		return nil, r.err
	}
	c.CheckDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// configReader keeps the first type error so ConfigFromBridge reads like a field list.
type configReader struct {
	m   map[string]interface{}
	err error
}

func (r *configReader) lookup(key string) (interface{}, bool) {
	if r.err != nil {
		return nil, false
	}
	raw, ok := r.m[key]
	return raw, ok && raw != nil
}

func (r *configReader) fail(key, expected string, raw interface{}) {
	r.err = fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidConfig, key, expected, raw)
}

func (r *configReader) readString(key string, dst *string) {
	if raw, ok := r.lookup(key); ok {
		if s, ok := raw.(string); ok {
			*dst = s
		} else {
			r.fail(key, "a string", raw)
		}
	}
}

func (r *configReader) readBool(key string, dst *bool) {
	if raw, ok := r.lookup(key); ok {
		if b, ok := raw.(bool); ok {
			*dst = b
		} else {
			r.fail(key, "a boolean", raw)
		}
	}
}

func (r *configReader) readInt(key string, dst *int) {
	if raw, ok := r.lookup(key); ok {
		if i, ok := variable_utils.ConvertInt(raw); ok {
			*dst = i
		} else {
			r.fail(key, "an integer", raw)
		}
	}
}

func (r *configReader) readMillis(key string, dst *time.Duration) {
	if raw, ok := r.lookup(key); ok {
		if i, ok := variable_utils.ConvertInt(raw); ok {
			*dst = time.Duration(i) * time.Millisecond
		} else {
			r.fail(key, "an integer number of milliseconds", raw)
		}
	}
}

func (r *configReader) readStrings(key string, dst *[]string) {
	if raw, ok := r.lookup(key); ok {
		list, err := stringList(raw, key)
		if err != nil {
			r.err = fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			return
		}
		*dst = list
	}
}

// Options configures the Plugin itself rather than the wrapped SDK.
type Options struct {
	// StartWaitTimeout bounds how long start waits for the SDK before answering anyway.
	StartWaitTimeout time.Duration
	// Executor runs every callback into the application. Defaults to a new EventLoop.
	Executor Executor
	// ClientEventHandler, when set, receives lifecycle events. Sends never block.
	ClientEventHandler chan api.ClientEvent
	EvalHooks          []*EvalHook
	Logger             util.Logger

	// set when CheckDefaults created the executor, so only that one is closed with the plugin
	ownsExecutor bool
}

func (o *Options) CheckDefaults() {
	if o.StartWaitTimeout <= 0 {
		o.StartWaitTimeout = time.Second * 5
	} else if o.StartWaitTimeout > time.Minute {
		util.Warnf("StartWaitTimeout cannot be longer than 1 minute. Defaulting to 1 minute.")
		o.StartWaitTimeout = time.Minute
	}
	if o.Executor == nil {
		o.Executor = NewEventLoop()
		o.ownsExecutor = true
	}
}
