package model

// ParamSet holds the mixer parameters of a track or bus.
type ParamSet struct {
	GainDB float64 `json:"gainDb"`
	Pan    float64 `json:"pan"` // -1 (left) .. +1 (right)
	Mute   bool    `json:"mute"`
	Solo   bool    `json:"solo"`
}

// Effect is one entry of a track's effect chain. The engine treats effects
// as opaque processing units; Kind selects the built-in implementation.
type Effect struct {
	ID     string             `json:"id"`
	Kind   string             `json:"kind"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Clone deep-copies the effect.
func (e Effect) Clone() Effect {
	c := e
	if e.Params != nil {
		c.Params = make(map[string]float64, len(e.Params))
		for k, v := range e.Params {
			c.Params[k] = v
		}
	}
	return c
}

// Track is a named node in the project hierarchy: an audio track or a bus.
// Route names the bus this track feeds; the master bus has an empty route.
// ClipOrder lists the track's clips in timeline order.
type Track struct {
	ID        TrackID  `json:"id"`
	Name      string   `json:"name"`
	IsBus     bool     `json:"isBus"`
	Params    ParamSet `json:"params"`
	Route     TrackID  `json:"route,omitempty"`
	Effects   []Effect `json:"effects,omitempty"`
	ClipOrder []ClipID `json:"clipOrder,omitempty"`
}

// Clone deep-copies the track so a copy-on-write mutation never aliases
// slices with the previous document revision.
func (t *Track) Clone() *Track {
	c := *t
	if t.Effects != nil {
		c.Effects = make([]Effect, len(t.Effects))
		for i, e := range t.Effects {
			c.Effects[i] = e.Clone()
		}
	}
	if t.ClipOrder != nil {
		c.ClipOrder = make([]ClipID, len(t.ClipOrder))
		copy(c.ClipOrder, t.ClipOrder)
	}
	return &c
}
