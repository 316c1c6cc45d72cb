package ldbridge

import (
	"github.com/launchdarkly/flutter-client-bridge/api"
)

// ConnectionInformationToBridge projects a connection snapshot into the map returned by
// getConnectionInformation. Timestamps are unix milliseconds and only present when known.
func ConnectionInformationToBridge(info *api.ConnectionInformation) map[string]interface{} {
	if info == nil {
		return nil
	}
	var lastFailure interface{}
	if info.LastFailure != nil {
		lastFailure = map[string]interface{}{
			"message":     info.LastFailure.Message,
			"failureType": string(info.LastFailure.FailureType),
		}
	}
	out := map[string]interface{}{
		"connectionState": string(info.State),
		"lastFailure":     lastFailure,
	}
	if !info.LastSuccessfulConnection.IsZero() {
		out["lastSuccessfulConnection"] = info.LastSuccessfulConnection.UnixMilli()
	}
	if !info.LastFailedConnection.IsZero() {
		out["lastFailedConnection"] = info.LastFailedConnection.UnixMilli()
	}
	return out
}
