package model

// Clip places an asset region on a track's timeline. All positions are in
// frames at the project sample rate.
//
// Invariants (checked at command apply time):
//   - StartFrame >= 0
//   - OffsetFrames >= 0 and OffsetFrames+DurationFrames <= asset duration
//   - fades fit inside the clip duration
type Clip struct {
	ID             ClipID  `json:"id"`
	Track          TrackID `json:"track"`
	Asset          AssetID `json:"asset"`
	Name           string  `json:"name,omitempty"`
	StartFrame     int64   `json:"startFrame"`
	DurationFrames int64   `json:"durationFrames"`
	OffsetFrames   int64   `json:"offsetFrames"`
	FadeInFrames   int64   `json:"fadeInFrames,omitempty"`
	FadeOutFrames  int64   `json:"fadeOutFrames,omitempty"`
}

// EndFrame is the first timeline frame after the clip.
func (c *Clip) EndFrame() int64 {
	return c.StartFrame + c.DurationFrames
}

// Clone returns a copy of the clip.
func (c *Clip) Clone() *Clip {
	cp := *c
	return &cp
}
