// Package graph compiles a document revision into an immutable render plan:
// one node per track or bus, topologically sorted so every node is rendered
// after all of its inputs, with working buffers pre-sized for the configured
// quantum so the render context never allocates.
package graph

import (
	"mixdown/audio"
	"mixdown/model"
)

// Params fixes the audio format a plan is compiled for.
type Params struct {
	SampleRate    int
	QuantumFrames int
	Channels      int
}

// ClipSpan is one clip resolved to absolute frame positions, with its PCM
// already bound. A nil PCM (missing or unusable asset) renders as silence.
type ClipSpan struct {
	Asset      model.AssetID
	PCM        *audio.PCM
	StartFrame int64
	EndFrame   int64
	Offset     int64 // first asset frame played at StartFrame
	FadeIn     int64
	FadeOut    int64
}

// Stage is one compiled effect-chain entry. Effects are opaque units with a
// fixed interface; the only built-in kind is a gain stage, everything else
// compiles to a pass-through.
type Stage struct {
	Kind string
	Gain float32
}

// Node is one track or bus in the execution order. GainL/GainR fold the
// track gain, pan law and mute/solo decision into two multipliers. The L/R
// scratch buffers belong to the plan and are only touched by the render
// context that currently holds it.
type Node struct {
	Track  model.TrackID
	Name   string
	IsBus  bool
	GainL  float32
	GainR  float32
	Silent bool // muted, or excluded by another track's solo
	Stages []Stage
	Clips  []ClipSpan // sources only, sorted by StartFrame

	// Target is the index of the routing destination in Plan.Nodes, or -1
	// for the master bus. Topological order guarantees Target > this node's
	// own index.
	Target int

	L, R []float32
}

// Plan is an immutable compiled view of the audio graph for one document
// revision. Multiple plans may be alive at once; the render context always
// works with the newest one it has observed.
type Plan struct {
	Revision  uint64
	Params    Params
	Transport model.Transport
	Nodes     []Node
	Master    int // index of the master node, always last
}

// NodeByTrack returns the plan node for a track, for tests and queries.
func (p *Plan) NodeByTrack(id model.TrackID) *Node {
	for i := range p.Nodes {
		if p.Nodes[i].Track == id {
			return &p.Nodes[i]
		}
	}
	return nil
}
