package model

import "github.com/google/uuid"

// TrackID identifies a track or bus. IDs are assigned at creation and never
// reused; all cross-entity references go through IDs, never pointers.
type TrackID string

// ClipID identifies a clip placed on a track's timeline.
type ClipID string

// AssetID identifies an asset by the hex SHA-256 digest of its encoded
// bytes. Two assets with identical content share one ID.
type AssetID string

// NewTrackID returns a fresh track identifier.
func NewTrackID() TrackID {
	return TrackID("trk_" + uuid.NewString())
}

// NewClipID returns a fresh clip identifier.
func NewClipID() ClipID {
	return ClipID("clp_" + uuid.NewString())
}

// MasterTrackID is the fixed identifier of the master bus. Every document
// has exactly one master; it cannot be deleted and is the default routing
// target.
const MasterTrackID TrackID = "trk_master"
