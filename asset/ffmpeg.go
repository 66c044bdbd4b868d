package asset

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"

	"mixdown/audio"
)

// FFmpegDecoder decodes any container/codec ffmpeg understands into
// interleaved float32 PCM at the project sample rate, by piping through the
// ffmpeg binary. Resampling at import time means the render path never has
// to convert rates.
type FFmpegDecoder struct {
	Path       string
	SampleRate int
	Channels   int
}

// NewFFmpegDecoder builds a decoder targeting the project format.
func NewFFmpegDecoder(path string, sampleRate, channels int) *FFmpegDecoder {
	return &FFmpegDecoder{Path: path, SampleRate: sampleRate, Channels: channels}
}

// Decode implements Decoder.
func (d *FFmpegDecoder) Decode(ctx context.Context, encoded []byte) (*audio.PCM, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(d.Channels),
		"-ar", strconv.Itoa(d.SampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, d.Path, args...)
	cmd.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %v: %s", err, stderr.String())
	}

	raw := stdout.Bytes()
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("ffmpeg produced %d bytes of pcm", len(raw))
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return &audio.PCM{
		SampleRate: d.SampleRate,
		Channels:   d.Channels,
		Frames:     int64(len(samples) / d.Channels),
		Data:       samples,
	}, nil
}
