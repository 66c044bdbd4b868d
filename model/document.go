package model

// Transport is the playback state of the document. Seek, play and loop
// changes are ordinary commands, so the render side always learns about them
// through a new snapshot, never by being poked directly.
type Transport struct {
	Playing        bool  `json:"playing"`
	PositionFrame  int64 `json:"positionFrame"`
	LoopStartFrame int64 `json:"loopStartFrame"`
	LoopEndFrame   int64 `json:"loopEndFrame"` // 0 disables looping

	// SeekSeq increments on every seek so the scheduler can distinguish an
	// actual cursor move from an unrelated revision bump.
	SeekSeq uint64 `json:"seekSeq"`
}

// Document is the authoritative project state: identifier-indexed entities
// plus a monotonically increasing revision number. A Document value is
// immutable once built; mutators return a new Document that shares every
// unchanged map with its predecessor (copy-on-write per entity kind).
type Document struct {
	Revision  uint64              `json:"revision"`
	Tracks    map[TrackID]*Track  `json:"tracks"`
	Clips     map[ClipID]*Clip    `json:"clips"`
	Assets    map[AssetID]*Asset  `json:"assets"`
	Transport Transport           `json:"transport"`
}

// NewDocument returns revision 0 of an empty project containing only the
// master bus.
func NewDocument() *Document {
	master := &Track{
		ID:    MasterTrackID,
		Name:  "Master",
		IsBus: true,
	}
	return &Document{
		Revision: 0,
		Tracks:   map[TrackID]*Track{MasterTrackID: master},
		Clips:    map[ClipID]*Clip{},
		Assets:   map[AssetID]*Asset{},
		// SeekSeq starts at 1 so a stored transport sequence is never the
		// zero value.
		Transport: Transport{SeekSeq: 1},
	}
}

// Track looks up a track by ID.
func (d *Document) Track(id TrackID) (*Track, bool) {
	t, ok := d.Tracks[id]
	return t, ok
}

// Clip looks up a clip by ID.
func (d *Document) Clip(id ClipID) (*Clip, bool) {
	c, ok := d.Clips[id]
	return c, ok
}

// Asset looks up an asset by ID.
func (d *Document) Asset(id AssetID) (*Asset, bool) {
	a, ok := d.Assets[id]
	return a, ok
}

func (d *Document) shallow() *Document {
	c := *d
	return &c
}

func cloneTracks(m map[TrackID]*Track) map[TrackID]*Track {
	c := make(map[TrackID]*Track, len(m)+1)
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneClips(m map[ClipID]*Clip) map[ClipID]*Clip {
	c := make(map[ClipID]*Clip, len(m)+1)
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneAssets(m map[AssetID]*Asset) map[AssetID]*Asset {
	c := make(map[AssetID]*Asset, len(m)+1)
	for k, v := range m {
		c[k] = v
	}
	return c
}

// WithTrack returns a new document with the track inserted or replaced.
// Clip and asset maps are shared with the receiver.
func (d *Document) WithTrack(t *Track) *Document {
	n := d.shallow()
	n.Tracks = cloneTracks(d.Tracks)
	n.Tracks[t.ID] = t
	return n
}

// WithoutTrack returns a new document with the track removed.
func (d *Document) WithoutTrack(id TrackID) *Document {
	n := d.shallow()
	n.Tracks = cloneTracks(d.Tracks)
	delete(n.Tracks, id)
	return n
}

// WithClip returns a new document with the clip inserted or replaced.
func (d *Document) WithClip(c *Clip) *Document {
	n := d.shallow()
	n.Clips = cloneClips(d.Clips)
	n.Clips[c.ID] = c
	return n
}

// WithoutClip returns a new document with the clip removed.
func (d *Document) WithoutClip(id ClipID) *Document {
	n := d.shallow()
	n.Clips = cloneClips(d.Clips)
	delete(n.Clips, id)
	return n
}

// WithAsset returns a new document with the asset inserted or replaced.
func (d *Document) WithAsset(a *Asset) *Document {
	n := d.shallow()
	n.Assets = cloneAssets(d.Assets)
	n.Assets[a.ID] = a
	return n
}

// WithoutAsset returns a new document with the asset removed.
func (d *Document) WithoutAsset(id AssetID) *Document {
	n := d.shallow()
	n.Assets = cloneAssets(d.Assets)
	delete(n.Assets, id)
	return n
}

// WithTransport returns a new document with the transport replaced.
func (d *Document) WithTransport(t Transport) *Document {
	n := d.shallow()
	n.Transport = t
	return n
}

// WithRevision returns a new document carrying the given revision number.
func (d *Document) WithRevision(rev uint64) *Document {
	n := d.shallow()
	n.Revision = rev
	return n
}

// RouteChain reports whether following routing targets from id would revisit
// a track, i.e. whether the routing graph contains a cycle reachable from id.
func (d *Document) RouteChain(id TrackID) bool {
	seen := map[TrackID]bool{}
	for cur := id; cur != ""; {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		t, ok := d.Tracks[cur]
		if !ok {
			return false
		}
		cur = t.Route
	}
	return false
}

// AnySolo reports whether any track has solo enabled. When true, non-solo
// source tracks are excluded from the mix.
func (d *Document) AnySolo() bool {
	for _, t := range d.Tracks {
		if t.Params.Solo {
			return true
		}
	}
	return false
}
