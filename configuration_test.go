package ldbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromBridge_Defaults(t *testing.T) {
	config, err := ConfigFromBridge(map[string]interface{}{"mobileKey": "mob-key"})
	require.NoError(t, err)

	assert.Equal(t, "mob-key", config.MobileKey)
	assert.Equal(t, DefaultPollURI, config.PollURI)
	assert.Equal(t, DefaultEventsURI, config.EventsURI)
	assert.Equal(t, DefaultStreamURI, config.StreamURI)
	assert.True(t, config.Stream)
	assert.Equal(t, 100, config.EventsCapacity)
	assert.Equal(t, time.Minute*5, config.PollingInterval)
	assert.Nil(t, config.ApplicationInfo)
	assert.Equal(t, DefaultWrapperName, config.WrapperName)
}

func TestConfigFromBridge_AllKeys(t *testing.T) {
	input := map[string]interface{}{
		"mobileKey":                         "mob-key",
		"pollUri":                           "https://poll.example.com",
		"eventsUri":                         "https://events.example.com",
		"streamUri":                         "https://stream.example.com",
		"eventsCapacity":                    float64(20),
		"eventsFlushIntervalMillis":         15000,
		"connectionTimeoutMillis":           int64(3000),
		"pollingIntervalMillis":             600000,
		"backgroundPollingIntervalMillis":   3600000,
		"diagnosticRecordingIntervalMillis": 900000,
		"maxCachedContexts":                 -1,
		"stream":                            false,
		"offline":                           true,
		"disableBackgroundUpdating":         true,
		"useReport":                         true,
		"evaluationReasons":                 true,
		"diagnosticOptOut":                  true,
		"autoEnvAttributes":                 true,
		"allAttributesPrivate":              true,
		"privateAttributeNames":             []interface{}{"email", "name"},
		"wrapperName":                       "CustomWrapper",
		"wrapperVersion":                    "4.0.0",
		"applicationId":                     "app-id",
		"applicationVersion":                "1.2.3",
	}
	config, err := ConfigFromBridge(input)
	require.NoError(t, err)

	assert.Equal(t, "https://poll.example.com", config.PollURI)
	assert.Equal(t, "https://events.example.com", config.EventsURI)
	assert.Equal(t, "https://stream.example.com", config.StreamURI)
	assert.Equal(t, 20, config.EventsCapacity)
	assert.Equal(t, time.Second*15, config.EventsFlushInterval)
	assert.Equal(t, time.Second*3, config.ConnectionTimeout)
	assert.Equal(t, time.Minute*10, config.PollingInterval)
	assert.Equal(t, time.Hour, config.BackgroundPollingInterval)
	assert.Equal(t, time.Minute*15, config.DiagnosticRecordingInterval)
	assert.Equal(t, -1, config.MaxCachedContexts)
	assert.False(t, config.Stream)
	assert.True(t, config.Offline)
	assert.True(t, config.DisableBackgroundUpdating)
	assert.True(t, config.UseReport)
	assert.True(t, config.EvaluationReasons)
	assert.True(t, config.DiagnosticOptOut)
	assert.True(t, config.AutoEnvAttributes)
	assert.True(t, config.AllAttributesPrivate)
	assert.Equal(t, []string{"email", "name"}, config.PrivateAttributes)
	assert.Equal(t, "CustomWrapper", config.WrapperName)
	assert.Equal(t, "4.0.0", config.WrapperVersion)
	require.NotNil(t, config.ApplicationInfo)
	assert.Equal(t, "app-id", config.ApplicationInfo.ID)
	assert.Equal(t, "1.2.3", config.ApplicationInfo.Version)
	assert.Empty(t, config.ApplicationInfo.Name)
}

func TestConfigFromBridge_NullKeepsDefault(t *testing.T) {
	config, err := ConfigFromBridge(map[string]interface{}{"mobileKey": "k", "pollUri": nil, "stream": nil})
	require.NoError(t, err)
	assert.Equal(t, DefaultPollURI, config.PollURI)
	assert.True(t, config.Stream)
}

func TestConfigFromBridge_ClampsIntervals(t *testing.T) {
	config, err := ConfigFromBridge(map[string]interface{}{
		"mobileKey":                         "k",
		"pollingIntervalMillis":             1000,
		"backgroundPollingIntervalMillis":   1000,
		"diagnosticRecordingIntervalMillis": 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Minute*5, config.PollingInterval)
	assert.Equal(t, time.Minute*15, config.BackgroundPollingInterval)
	assert.Equal(t, time.Minute*5, config.DiagnosticRecordingInterval)
}

func TestConfigFromBridge_Invalid(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"missing mobile key":   {},
		"mobile key type":      {"mobileKey": 12},
		"bool as number":       {"mobileKey": "k", "stream": 1},
		"fractional millis":    {"mobileKey": "k", "connectionTimeoutMillis": 1.5},
		"string capacity":      {"mobileKey": "k", "eventsCapacity": "10"},
		"not a url":            {"mobileKey": "k", "pollUri": "not a url"},
		"negative timeout":     {"mobileKey": "k", "connectionTimeoutMillis": -1},
		"private attr type":    {"mobileKey": "k", "privateAttributeNames": []interface{}{"a", 1}},
		"private attr element": {"mobileKey": "k", "privateAttributes": []interface{}{""}},
		"cache below -1":       {"mobileKey": "k", "maxCachedContexts": -2},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ConfigFromBridge(input)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestOptions_CheckDefaults(t *testing.T) {
	options := &Options{}
	options.CheckDefaults()
	assert.Equal(t, time.Second*5, options.StartWaitTimeout)
	require.NotNil(t, options.Executor)
	options.Executor.(*EventLoop).Close()

	options = &Options{StartWaitTimeout: time.Hour, Executor: immediateExecutor{}}
	options.CheckDefaults()
	assert.Equal(t, time.Minute, options.StartWaitTimeout)
	assert.Equal(t, immediateExecutor{}, options.Executor)
}
