package api

// ClientEvent is published on Options.ClientEventHandler whenever the lifecycle of the
// wrapped client changes or a flag notification is pushed to the application.
type ClientEvent struct {
	EventType ClientEventType `json:"eventType"`
	EventData interface{}     `json:"eventData"`
	Status    string          `json:"status"`
	Error     error           `json:"error"`
}

type ClientEventType string

const (
	ClientEventType_Initialized   ClientEventType = "initialized"
	ClientEventType_Identified    ClientEventType = "identified"
	ClientEventType_Error         ClientEventType = "error"
	ClientEventType_FlagUpdated   ClientEventType = "flagUpdated"
	ClientEventType_FlagsReceived ClientEventType = "flagsReceived"
	ClientEventType_Closed        ClientEventType = "closed"
)
