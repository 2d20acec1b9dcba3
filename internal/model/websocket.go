package model

// WebSocket message types
const (
	WSMessageTypeSnapshot = "snapshot"
	WSMessageTypeProject  = "project"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSSnapshotMessage carries the latest storyboard snapshot
type WSSnapshotMessage struct {
	Type     string   `json:"type"`
	Event    string   `json:"event"`
	Snapshot Snapshot `json:"snapshot"`
}

// WSProjectMessage reports a change in a saved project's persistence status
type WSProjectMessage struct {
	Type      string        `json:"type"`
	ProjectID string        `json:"projectId"`
	Status    ProjectStatus `json:"status"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	Error WSError `json:"error"`
}

// WSError represents error details. FrameIndex is set for animation failures.
type WSError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	FrameIndex *int   `json:"frameIndex,omitempty"`
}
