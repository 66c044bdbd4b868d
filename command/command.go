// Package command is the single mutation gateway of the document model:
// serializable command values, the undo journal, and the single-writer
// engine that validates, applies and journals them.
package command

import (
	"mixdown/model"
)

// Kind discriminates command payloads on the wire.
type Kind string

const (
	KindCreateTrack  Kind = "create_track"
	KindDeleteTrack  Kind = "delete_track"
	KindRenameTrack  Kind = "rename_track"
	KindSetGain      Kind = "set_gain"
	KindSetPan       Kind = "set_pan"
	KindSetMute      Kind = "set_mute"
	KindSetSolo      Kind = "set_solo"
	KindSetRoute     Kind = "set_route"
	KindAddEffect    Kind = "add_effect"
	KindRemoveEffect Kind = "remove_effect"

	KindAddClip      Kind = "add_clip"
	KindRemoveClip   Kind = "remove_clip"
	KindMoveClip     Kind = "move_clip"
	KindResizeClip   Kind = "resize_clip"
	KindSetClipFades Kind = "set_clip_fades"

	KindRegisterAsset     Kind = "register_asset"
	KindRemoveAsset       Kind = "remove_asset"
	KindMarkAssetUnusable Kind = "mark_asset_unusable"

	KindPlay    Kind = "play"
	KindStop    Kind = "stop"
	KindSeek    Kind = "seek"
	KindSetLoop Kind = "set_loop"
)

// Command is one immutable, serializable document mutation. It is a tagged
// union: Kind selects which fields are meaningful. The same representation
// travels over the RPC bus, sits in the undo journal and is persisted, so
// there is exactly one shape for a state change.
type Command struct {
	Kind Kind `json:"kind"`

	TrackID model.TrackID `json:"trackId,omitempty"`
	ClipID  model.ClipID  `json:"clipId,omitempty"`
	AssetID model.AssetID `json:"assetId,omitempty"`

	Name  string        `json:"name,omitempty"`
	IsBus bool          `json:"isBus,omitempty"`
	Value float64       `json:"value,omitempty"` // gain dB or pan position
	Flag  bool          `json:"flag,omitempty"`  // mute / solo / unusable
	Route model.TrackID `json:"route,omitempty"`

	Effect      *model.Effect `json:"effect,omitempty"`
	EffectIndex int           `json:"effectIndex,omitempty"` // -1 appends

	StartFrame     int64 `json:"startFrame,omitempty"`
	DurationFrames int64 `json:"durationFrames,omitempty"`
	OffsetFrames   int64 `json:"offsetFrames,omitempty"`
	FadeInFrames   int64 `json:"fadeInFrames,omitempty"`
	FadeOutFrames  int64 `json:"fadeOutFrames,omitempty"`

	LoopStartFrame int64 `json:"loopStartFrame,omitempty"`
	LoopEndFrame   int64 `json:"loopEndFrame,omitempty"`

	PositionFrame int64 `json:"positionFrame,omitempty"`

	// SeekSeq is only set on the inverse of a seek, restoring the exact
	// prior transport sequence.
	SeekSeq uint64 `json:"seekSeq,omitempty"`

	// Asset carries full metadata for register_asset. Track and Clips carry
	// restore payloads on the inverse of delete_track.
	Asset *model.Asset  `json:"assetMeta,omitempty"`
	Track *model.Track  `json:"trackRestore,omitempty"`
	Clips []*model.Clip `json:"clipsRestore,omitempty"`
}

func invalidRef(format string, args ...interface{}) error {
	return model.NewError(model.ErrInvalidReference, format, args...)
}

func constraint(format string, args ...interface{}) error {
	return model.NewError(model.ErrConstraintViolation, format, args...)
}
