package model

import "time"

// Asset describes one piece of immutable audio content. The ID is the hex
// SHA-256 digest of the encoded bytes, so identical imports collapse into a
// single asset. The PCM itself lives in the asset store; the document only
// holds metadata.
type Asset struct {
	ID             AssetID   `json:"id"`
	Name           string    `json:"name"`
	SampleRate     int       `json:"sampleRate"`
	Channels       int       `json:"channels"`
	DurationFrames int64     `json:"durationFrames"`
	SizeBytes      int64     `json:"sizeBytes"`
	Unusable       bool      `json:"unusable"` // decode failed; asset kept but never rendered
	CreatedAt      time.Time `json:"createdAt"`
}

// Clone returns a copy of the asset metadata.
func (a *Asset) Clone() *Asset {
	c := *a
	return &c
}
