package graph

import (
	"math"
	"testing"

	"mixdown/audio"
	"mixdown/model"
)

var testParams = Params{SampleRate: 48000, QuantumFrames: 64, Channels: 2}

func TestCompileOrdersFeedersBeforeTargets(t *testing.T) {
	doc := model.NewDocument()
	bus := model.TrackID("trk_bus")
	drums := model.TrackID("trk_drums")
	vox := model.TrackID("trk_vox")
	doc = doc.WithTrack(&model.Track{ID: bus, IsBus: true, Route: model.MasterTrackID})
	doc = doc.WithTrack(&model.Track{ID: drums, Route: bus})
	doc = doc.WithTrack(&model.Track{ID: vox, Route: bus})

	plan, err := Compile(doc, testParams, nil)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(plan.Nodes) != 4 {
		t.Fatalf("node count = %d, want 4", len(plan.Nodes))
	}

	pos := map[model.TrackID]int{}
	for i, n := range plan.Nodes {
		pos[n.Track] = i
	}
	if pos[drums] > pos[bus] || pos[vox] > pos[bus] {
		t.Errorf("feeder compiled after its bus: %v", plan.Nodes)
	}
	if plan.Master != len(plan.Nodes)-1 {
		t.Errorf("master at index %d, want last (%d)", plan.Master, len(plan.Nodes)-1)
	}

	// Every non-master node targets a later node.
	for i, n := range plan.Nodes {
		if n.Track == model.MasterTrackID {
			if n.Target != -1 {
				t.Errorf("master target = %d, want -1", n.Target)
			}
			continue
		}
		if n.Target <= i {
			t.Errorf("node %s targets %d, not a later node", n.Track, n.Target)
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	doc := model.NewDocument()
	for _, id := range []model.TrackID{"trk_c", "trk_a", "trk_b"} {
		doc = doc.WithTrack(&model.Track{ID: id, Route: model.MasterTrackID})
	}

	first, err := Compile(doc, testParams, nil)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Compile(doc, testParams, nil)
		if err != nil {
			t.Fatalf("Compile() error: %v", err)
		}
		for j := range first.Nodes {
			if first.Nodes[j].Track != again.Nodes[j].Track {
				t.Fatalf("node order differs between identical compiles")
			}
		}
	}
}

func TestCompileRejectsRoutingCycle(t *testing.T) {
	doc := model.NewDocument()
	a := model.TrackID("trk_a")
	b := model.TrackID("trk_b")
	doc = doc.WithTrack(&model.Track{ID: a, IsBus: true, Route: b})
	doc = doc.WithTrack(&model.Track{ID: b, IsBus: true, Route: a})

	_, err := Compile(doc, testParams, nil)
	if err == nil {
		t.Fatal("Compile() accepted a cyclic routing graph")
	}
	if code := model.CodeOf(err); code != model.ErrRoutingCycle {
		t.Errorf("error code = %s, want %s", code, model.ErrRoutingCycle)
	}
}

func TestCompileRejectsMissingRouteTarget(t *testing.T) {
	doc := model.NewDocument()
	doc = doc.WithTrack(&model.Track{ID: "trk_lost", Route: "trk_ghost"})

	_, err := Compile(doc, testParams, nil)
	if err == nil {
		t.Fatal("Compile() accepted a route to a missing track")
	}
	if code := model.CodeOf(err); code != model.ErrInvalidReference {
		t.Errorf("error code = %s, want %s", code, model.ErrInvalidReference)
	}
}

func TestCompileGains(t *testing.T) {
	doc := model.NewDocument()
	id := model.TrackID("trk_guitar")
	doc = doc.WithTrack(&model.Track{
		ID:     id,
		Route:  model.MasterTrackID,
		Params: model.ParamSet{GainDB: -6.0206, Pan: 0},
	})

	plan, err := Compile(doc, testParams, nil)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	n := plan.NodeByTrack(id)
	if n == nil {
		t.Fatal("track node missing from plan")
	}

	// Center pan is unity, so both sides sit at the fader's linear gain.
	if math.Abs(float64(n.GainL)-0.5) > 1e-4 || math.Abs(float64(n.GainR)-0.5) > 1e-4 {
		t.Errorf("gains = %v, %v, want 0.5 each", n.GainL, n.GainR)
	}
}

func TestCompileSolo(t *testing.T) {
	doc := model.NewDocument()
	soloed := model.TrackID("trk_solo")
	other := model.TrackID("trk_other")
	bus := model.TrackID("trk_bus")
	doc = doc.WithTrack(&model.Track{ID: soloed, Route: model.MasterTrackID, Params: model.ParamSet{Solo: true}})
	doc = doc.WithTrack(&model.Track{ID: other, Route: model.MasterTrackID})
	doc = doc.WithTrack(&model.Track{ID: bus, IsBus: true, Route: model.MasterTrackID})

	plan, err := Compile(doc, testParams, nil)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	if plan.NodeByTrack(soloed).Silent {
		t.Error("soloed track compiled silent")
	}
	if !plan.NodeByTrack(other).Silent {
		t.Error("non-solo track not silenced while a solo is active")
	}
	if plan.NodeByTrack(bus).Silent {
		t.Error("bus silenced by solo; buses pass through")
	}
}

func TestCompileBindsClipPCM(t *testing.T) {
	pcm := &audio.PCM{SampleRate: 48000, Channels: 2, Frames: 1000, Data: make([]float32, 2000)}
	usable := model.AssetID("aaa")
	broken := model.AssetID("bbb")

	doc := model.NewDocument()
	doc = doc.WithAsset(&model.Asset{ID: usable, DurationFrames: 1000})
	doc = doc.WithAsset(&model.Asset{ID: broken, DurationFrames: 1000, Unusable: true})

	trackID := model.TrackID("trk_t")
	c1 := model.ClipID("clp_1")
	c2 := model.ClipID("clp_2")
	doc = doc.WithTrack(&model.Track{ID: trackID, Route: model.MasterTrackID, ClipOrder: []model.ClipID{c1, c2}})
	doc = doc.WithClip(&model.Clip{ID: c1, Track: trackID, Asset: usable, StartFrame: 0, DurationFrames: 500})
	doc = doc.WithClip(&model.Clip{ID: c2, Track: trackID, Asset: broken, StartFrame: 600, DurationFrames: 200})

	resolve := func(id model.AssetID) *audio.PCM {
		if id == usable {
			return pcm
		}
		return nil
	}

	plan, err := Compile(doc, testParams, resolve)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	spans := plan.NodeByTrack(trackID).Clips
	if len(spans) != 2 {
		t.Fatalf("span count = %d, want 2", len(spans))
	}
	if spans[0].PCM != pcm {
		t.Error("usable clip not bound to its PCM")
	}
	if spans[1].PCM != nil {
		t.Error("unusable asset's clip bound to PCM; must compile to silence")
	}
	if spans[0].StartFrame > spans[1].StartFrame {
		t.Error("spans not sorted by start frame")
	}
}
