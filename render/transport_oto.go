package render

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoTransport plays the scheduler's output on the default audio device via
// oto. oto pulls bytes through Read on its own real-time goroutine, which
// makes Read the render context: it renders whole quanta into a staging
// buffer and hands out slices of it, with no allocation after construction.
type OtoTransport struct {
	sched *Scheduler

	ctx    *oto.Context
	player *oto.Player

	quantum []float32 // one rendered quantum, interleaved
	staged  []byte    // encoded bytes not yet consumed by oto
	off     int       // consumed prefix of staged

	mu      sync.Mutex
	started bool
}

// NewOtoTransport opens an oto context for the given format. The scheduler's
// quantum and channel configuration must match.
func NewOtoTransport(sched *Scheduler, sampleRate, channels, quantumFrames int) (*OtoTransport, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	samples := quantumFrames * channels
	t := &OtoTransport{
		sched:   sched,
		ctx:     ctx,
		quantum: make([]float32, samples),
		staged:  make([]byte, 0, samples*4),
	}
	return t, nil
}

// Read implements io.Reader for oto's player. Runs on oto's audio goroutine.
func (t *OtoTransport) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if t.off == len(t.staged) {
			t.renderNext()
		}
		c := copy(p[n:], t.staged[t.off:])
		t.off += c
		n += c
	}
	return n, nil
}

func (t *OtoTransport) renderNext() {
	t.sched.RenderQuantum(t.quantum)

	t.staged = t.staged[:len(t.quantum)*4]
	for i, s := range t.quantum {
		binary.LittleEndian.PutUint32(t.staged[i*4:], math.Float32bits(s))
	}
	t.off = 0
}

// Start begins playback.
func (t *OtoTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	t.player = t.ctx.NewPlayer(t)
	t.player.Play()
	t.started = true
	return nil
}

// Stop closes the player. The oto context itself cannot be torn down.
func (t *OtoTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	err := t.player.Close()
	t.player = nil
	t.started = false
	return err
}
