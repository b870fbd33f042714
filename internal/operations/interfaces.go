package operations

// WebSocketHub broadcasts operation updates to connected clients. The
// concrete hub lives in the websocket package; operations only needs this
// narrow surface.
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// StepOptions carries the optional collaborators steps use to report
// progress while executing.
type StepOptions struct {
	StatusBroadcaster *StatusBroadcaster
}
