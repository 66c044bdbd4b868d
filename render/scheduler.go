// Package render is the real-time half of the engine: a scheduler that
// walks the current render plan once per quantum and the transports that
// drive it. Nothing here may allocate, lock or block once rendering starts.
package render

import (
	"time"

	"mixdown/audio"
	"mixdown/graph"
	"mixdown/rt"
)

// TelemetryKind discriminates render-side diagnostics.
type TelemetryKind uint8

const (
	// TelemetryPosition reports the playhead after a rendered quantum.
	TelemetryPosition TelemetryKind = iota
	// TelemetryUnderrun reports a quantum that missed its deadline.
	TelemetryUnderrun
)

// Telemetry is one render-to-control notification. It crosses threads
// by value through the lock-free ring.
type Telemetry struct {
	Kind          TelemetryKind
	PositionFrame int64
	RenderNanos   int64
	Underruns     uint64
}

// Scheduler renders audio quanta from the newest published plan. It owns
// the playhead: time advances by exactly one quantum per invocation, seeks
// arrive only through snapshots, and a missed quantum is silence, never a
// retry.
type Scheduler struct {
	snapshots *rt.Channel[graph.Plan]
	telemetry *rt.Ring[Telemetry]

	sampleRate    int
	quantumFrames int
	channels      int
	budget        time.Duration

	pos       int64
	seenSeek  uint64
	underruns uint64
}

// NewScheduler builds a scheduler reading plans from snapshots.
func NewScheduler(snapshots *rt.Channel[graph.Plan], sampleRate, quantumFrames, channels int) *Scheduler {
	return &Scheduler{
		snapshots:     snapshots,
		telemetry:     rt.NewRing[Telemetry](1024),
		sampleRate:    sampleRate,
		quantumFrames: quantumFrames,
		channels:      channels,
		budget:        time.Duration(quantumFrames) * time.Second / time.Duration(sampleRate),
	}
}

// Telemetry returns the ring the control side drains for positions and
// underruns.
func (s *Scheduler) Telemetry() *rt.Ring[Telemetry] {
	return s.telemetry
}

// Position returns the playhead frame. Render context only.
func (s *Scheduler) Position() int64 {
	return s.pos
}

// RenderQuantum fills out (interleaved, quantumFrames*channels samples) with
// one quantum of audio. It never fails: any degenerate condition renders
// silence and, where possible, a telemetry event.
func (s *Scheduler) RenderQuantum(out []float32) {
	started := time.Now()

	for i := range out {
		out[i] = 0
	}

	plan := s.snapshots.Current()
	if plan == nil {
		return
	}

	if plan.Transport.SeekSeq != s.seenSeek {
		s.seenSeek = plan.Transport.SeekSeq
		s.pos = plan.Transport.PositionFrame
	}

	if !plan.Transport.Playing {
		return
	}

	s.renderPlan(plan, out)
	s.advance(plan)

	elapsed := time.Since(started)
	if elapsed > s.budget {
		s.underruns++
		s.telemetry.Push(Telemetry{
			Kind:          TelemetryUnderrun,
			PositionFrame: s.pos,
			RenderNanos:   int64(elapsed),
			Underruns:     s.underruns,
		})
	}
	s.telemetry.Push(Telemetry{Kind: TelemetryPosition, PositionFrame: s.pos})
}

func (s *Scheduler) renderPlan(plan *graph.Plan, out []float32) {
	nodes := plan.Nodes
	q := s.quantumFrames

	for i := range nodes {
		audio.Clear(nodes[i].L)
		audio.Clear(nodes[i].R)
	}

	// Topological order: every feeder is processed before its target, so a
	// bus buffer holds its full input sum by the time the bus node runs.
	for i := range nodes {
		n := &nodes[i]

		if !n.IsBus && !n.Silent {
			s.renderClips(n, q)
		}
		if n.Silent {
			audio.Clear(n.L)
			audio.Clear(n.R)
		}
		for _, st := range n.Stages {
			audio.ApplyGain(n.L, st.Gain)
			audio.ApplyGain(n.R, st.Gain)
		}

		if n.Target >= 0 {
			t := &nodes[n.Target]
			audio.MixInto(t.L, n.L, n.GainL)
			audio.MixInto(t.R, n.R, n.GainR)
			continue
		}

		// Master: interleave into the transport's buffer. Channels beyond
		// stereo stay silent.
		for f := 0; f < q; f++ {
			out[f*s.channels] = n.L[f] * n.GainL
			if s.channels > 1 {
				out[f*s.channels+1] = n.R[f] * n.GainR
			}
		}
	}
}

func (s *Scheduler) renderClips(n *graph.Node, q int) {
	lo0 := s.pos
	hi0 := s.pos + int64(q)

	for ci := range n.Clips {
		span := &n.Clips[ci]
		lo := lo0
		if span.StartFrame > lo {
			lo = span.StartFrame
		}
		hi := hi0
		if span.EndFrame < hi {
			hi = span.EndFrame
		}
		if hi <= lo || span.PCM == nil {
			continue
		}

		clipFrames := span.EndFrame - span.StartFrame
		for f := lo; f < hi; f++ {
			rel := f - span.StartFrame
			src := span.Offset + rel

			g := float32(1)
			if span.FadeIn > 0 && rel < span.FadeIn {
				g *= float32(rel) / float32(span.FadeIn)
			}
			if rem := clipFrames - rel; span.FadeOut > 0 && rem <= span.FadeOut {
				g *= float32(rem) / float32(span.FadeOut)
			}

			i := int(f - lo0)
			n.L[i] += span.PCM.Sample(src, 0) * g
			n.R[i] += span.PCM.Sample(src, 1) * g
		}
	}
}

func (s *Scheduler) advance(plan *graph.Plan) {
	s.pos += int64(s.quantumFrames)

	loopStart := plan.Transport.LoopStartFrame
	loopEnd := plan.Transport.LoopEndFrame
	if loopEnd > loopStart && s.pos >= loopEnd {
		span := loopEnd - loopStart
		s.pos = loopStart + (s.pos-loopEnd)%span
	}
}
