package graph

import (
	"math"
	"sort"

	"mixdown/audio"
	"mixdown/model"
)

// PCMResolver looks up decoded sample data for an asset. It is called on the
// control context during compilation, never on the render path. Returning
// nil binds the clip to silence.
type PCMResolver func(model.AssetID) *audio.PCM

const sqrt2 = float32(math.Sqrt2)

// Compile derives a render plan from a document revision. It fails with
// ErrRoutingCycle when the bus routing graph is cyclic; the caller keeps
// serving the previous plan in that case.
func Compile(doc *model.Document, params Params, resolve PCMResolver) (*Plan, error) {
	order, err := topoOrder(doc)
	if err != nil {
		return nil, err
	}

	index := make(map[model.TrackID]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	anySolo := doc.AnySolo()

	plan := &Plan{
		Revision:  doc.Revision,
		Params:    params,
		Transport: doc.Transport,
		Nodes:     make([]Node, len(order)),
	}

	for i, id := range order {
		t := doc.Tracks[id]
		node := Node{
			Track:  id,
			Name:   t.Name,
			IsBus:  t.IsBus,
			Target: -1,
			L:      make([]float32, params.QuantumFrames),
			R:      make([]float32, params.QuantumFrames),
		}

		if id != model.MasterTrackID {
			target := t.Route
			if target == "" {
				target = model.MasterTrackID
			}
			node.Target = index[target]
		} else {
			plan.Master = i
		}

		silent := t.Params.Mute
		if anySolo && !t.IsBus && !t.Params.Solo {
			silent = true
		}
		node.Silent = silent

		gain := float32(audio.DBToLinear(t.Params.GainDB))
		panL, panR := audio.PanGains(t.Params.Pan)
		// Scaled so a centered pan is unity gain.
		node.GainL = gain * panL * sqrt2
		node.GainR = gain * panR * sqrt2

		node.Stages = compileStages(t.Effects)
		node.Clips = compileClips(doc, t, resolve)

		plan.Nodes[i] = node
	}

	return plan, nil
}

// topoOrder returns track IDs sorted so every track precedes its routing
// target, with the master bus last. Track IDs are visited in sorted order so
// compilation (and therefore summation order) is deterministic.
func topoOrder(doc *model.Document) ([]model.TrackID, error) {
	ids := make([]model.TrackID, 0, len(doc.Tracks))
	for id := range doc.Tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// indegree counts how many tracks feed into each target.
	indegree := make(map[model.TrackID]int, len(ids))
	feeds := func(t *model.Track) model.TrackID {
		if t.ID == model.MasterTrackID {
			return ""
		}
		if t.Route == "" {
			return model.MasterTrackID
		}
		return t.Route
	}
	for _, id := range ids {
		target := feeds(doc.Tracks[id])
		if target == "" {
			continue
		}
		if _, ok := doc.Tracks[target]; !ok {
			return nil, model.NewError(model.ErrInvalidReference,
				"track %s routes to missing track %s", id, target)
		}
		indegree[target]++
	}

	queue := make([]model.TrackID, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]model.TrackID, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		if target := feeds(doc.Tracks[id]); target != "" {
			indegree[target]--
			if indegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if len(order) != len(ids) {
		return nil, model.NewError(model.ErrRoutingCycle, "bus routing graph contains a cycle")
	}
	return order, nil
}

func compileStages(effects []model.Effect) []Stage {
	if len(effects) == 0 {
		return nil
	}
	stages := make([]Stage, 0, len(effects))
	for _, e := range effects {
		s := Stage{Kind: e.Kind, Gain: 1}
		if e.Kind == "gain" {
			s.Gain = float32(audio.DBToLinear(e.Params["db"]))
		}
		stages = append(stages, s)
	}
	return stages
}

func compileClips(doc *model.Document, t *model.Track, resolve PCMResolver) []ClipSpan {
	if len(t.ClipOrder) == 0 {
		return nil
	}
	spans := make([]ClipSpan, 0, len(t.ClipOrder))
	for _, cid := range t.ClipOrder {
		c, ok := doc.Clips[cid]
		if !ok {
			continue
		}
		span := ClipSpan{
			Asset:      c.Asset,
			StartFrame: c.StartFrame,
			EndFrame:   c.EndFrame(),
			Offset:     c.OffsetFrames,
			FadeIn:     c.FadeInFrames,
			FadeOut:    c.FadeOutFrames,
		}
		if a, ok := doc.Assets[c.Asset]; ok && !a.Unusable && resolve != nil {
			span.PCM = resolve(c.Asset)
		}
		spans = append(spans, span)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].StartFrame < spans[j].StartFrame })
	return spans
}
