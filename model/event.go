package model

// EventTopic names a subscription topic on the event bus.
type EventTopic string

const (
	// TopicDocument carries command/undo/redo notifications.
	TopicDocument EventTopic = "document"
	// TopicTransport carries playback position updates.
	TopicTransport EventTopic = "transport"
	// TopicTelemetry carries render diagnostics such as underruns.
	TopicTelemetry EventTopic = "telemetry"
)

// Change event kinds.
const (
	EventCommandApplied = "command_applied"
	EventUndo           = "undo"
	EventRedo           = "redo"
	EventPosition       = "position"
	EventUnderrun       = "underrun"
	EventAssetImported  = "asset_imported"
)

// ChangeEvent is one entry of a subscribed event stream. Events within a
// topic are delivered in the order they were produced.
type ChangeEvent struct {
	Topic         EventTopic `json:"topic"`
	Kind          string     `json:"kind"`
	Revision      uint64     `json:"revision,omitempty"`
	Command       string     `json:"command,omitempty"`
	TrackID       TrackID    `json:"trackId,omitempty"`
	ClipID        ClipID     `json:"clipId,omitempty"`
	AssetID       AssetID    `json:"assetId,omitempty"`
	PositionFrame int64      `json:"positionFrame,omitempty"`
	Underruns     uint64     `json:"underruns,omitempty"`
	Timestamp     int64      `json:"timestamp"` // epoch milliseconds
}
