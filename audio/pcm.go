package audio

// PCM is decoded, interleaved sample data for one asset. Immutable after
// decode; the render context reads it without copying.
type PCM struct {
	SampleRate int
	Channels   int
	Frames     int64
	Data       []float32 // interleaved, len = Frames*Channels
}

// Sample returns the sample for a frame/channel pair. Frames outside the
// data and channels beyond the stored count fold back to channel 0, so mono
// material plays on both sides of a stereo bus.
func (p *PCM) Sample(frame int64, ch int) float32 {
	if frame < 0 || frame >= p.Frames {
		return 0
	}
	if ch >= p.Channels {
		ch = 0
	}
	return p.Data[frame*int64(p.Channels)+int64(ch)]
}
