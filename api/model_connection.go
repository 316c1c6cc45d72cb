package api

import "time"

// ConnectionState mirrors the connection modes reported by the mobile SDKs.
type ConnectionState string

const (
	ConnectionState_Streaming          ConnectionState = "STREAMING"
	ConnectionState_Polling            ConnectionState = "POLLING"
	ConnectionState_BackgroundPolling  ConnectionState = "BACKGROUND_POLLING"
	ConnectionState_BackgroundDisabled ConnectionState = "BACKGROUND_DISABLED"
	ConnectionState_Offline            ConnectionState = "OFFLINE"
	ConnectionState_SetOffline         ConnectionState = "SET_OFFLINE"
	ConnectionState_Shutdown           ConnectionState = "SHUTDOWN"
)

type FailureType string

const (
	FailureType_UnexpectedResponseCode      FailureType = "UNEXPECTED_RESPONSE_CODE"
	FailureType_NetworkFailure              FailureType = "NETWORK_FAILURE"
	FailureType_InvalidResponseBody         FailureType = "INVALID_RESPONSE_BODY"
	FailureType_UnexpectedStreamElementType FailureType = "UNEXPECTED_STREAM_ELEMENT_TYPE"
	FailureType_UnknownError                FailureType = "UNKNOWN_ERROR"
)

type ConnectionFailure struct {
	Message     string      `json:"message"`
	FailureType FailureType `json:"failureType"`
}

// ConnectionInformation is a snapshot taken from the wrapped client on demand.
// Zero times mean "never happened".
type ConnectionInformation struct {
	State                    ConnectionState    `json:"connectionState"`
	LastFailure              *ConnectionFailure `json:"lastFailure,omitempty"`
	LastSuccessfulConnection time.Time          `json:"lastSuccessfulConnection,omitempty"`
	LastFailedConnection     time.Time          `json:"lastFailedConnection,omitempty"`
}
