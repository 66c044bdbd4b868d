package command

import (
	"mixdown/model"
)

// applyCommand validates cmd against doc and, on success, returns the new
// document plus the inverse command. The input document is never modified,
// so a failed command leaves no observable state change. Fresh entity IDs
// are assigned into cmd so the caller sees what was created.
//
// The returned document still carries the old revision number; the engine
// stamps the new one.
func applyCommand(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	switch cmd.Kind {
	case KindCreateTrack:
		return applyCreateTrack(doc, cmd)
	case KindDeleteTrack:
		return applyDeleteTrack(doc, cmd)
	case KindRenameTrack:
		return applyRenameTrack(doc, cmd)
	case KindSetGain, KindSetPan, KindSetMute, KindSetSolo:
		return applySetParam(doc, cmd)
	case KindSetRoute:
		return applySetRoute(doc, cmd)
	case KindAddEffect:
		return applyAddEffect(doc, cmd)
	case KindRemoveEffect:
		return applyRemoveEffect(doc, cmd)
	case KindAddClip:
		return applyAddClip(doc, cmd)
	case KindRemoveClip:
		return applyRemoveClip(doc, cmd)
	case KindMoveClip:
		return applyMoveClip(doc, cmd)
	case KindResizeClip:
		return applyResizeClip(doc, cmd)
	case KindSetClipFades:
		return applySetClipFades(doc, cmd)
	case KindRegisterAsset:
		return applyRegisterAsset(doc, cmd)
	case KindRemoveAsset:
		return applyRemoveAsset(doc, cmd)
	case KindMarkAssetUnusable:
		return applyMarkAssetUnusable(doc, cmd)
	case KindPlay, KindStop:
		return applyPlayStop(doc, cmd)
	case KindSeek:
		return applySeek(doc, cmd)
	case KindSetLoop:
		return applySetLoop(doc, cmd)
	default:
		return nil, Command{}, constraint("unknown command kind %q", cmd.Kind)
	}
}

func applyCreateTrack(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	if cmd.Track != nil {
		return restoreTrack(doc, cmd)
	}
	if cmd.TrackID == "" {
		cmd.TrackID = model.NewTrackID()
	}
	if _, exists := doc.Track(cmd.TrackID); exists {
		return nil, Command{}, constraint("track %s already exists", cmd.TrackID)
	}
	name := cmd.Name
	if name == "" {
		name = "Untitled"
	}
	t := &model.Track{
		ID:    cmd.TrackID,
		Name:  name,
		IsBus: cmd.IsBus,
	}
	inverse := Command{Kind: KindDeleteTrack, TrackID: t.ID}
	return doc.WithTrack(t), inverse, nil
}

func applyDeleteTrack(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t, ok := doc.Track(cmd.TrackID)
	if !ok {
		return nil, Command{}, invalidRef("track %s does not exist", cmd.TrackID)
	}
	if cmd.TrackID == model.MasterTrackID {
		return nil, Command{}, constraint("the master bus cannot be deleted")
	}
	for _, other := range doc.Tracks {
		if other.ID != t.ID && other.Route == t.ID {
			return nil, Command{}, constraint("track %s is a routing target of %s", t.ID, other.ID)
		}
	}

	// Removing a track removes its clips; the inverse restores both.
	restored := make([]*model.Clip, 0, len(t.ClipOrder))
	next := doc
	for _, cid := range t.ClipOrder {
		if c, ok := next.Clip(cid); ok {
			restored = append(restored, c)
			next = next.WithoutClip(cid)
		}
	}
	next = next.WithoutTrack(t.ID)

	inverse := Command{
		Kind:  KindCreateTrack,
		Track: t,
		Clips: restored,
	}
	return next, inverse, nil
}

// restoreTrack handles a create_track carrying a full restore payload. The
// undo path builds these, but they also arrive over the wire, so the payload
// is held to the same rules as the granular commands: the route target must
// be an existing bus and every clip must lie inside a registered asset.
func restoreTrack(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t := cmd.Track
	if t.ID == "" {
		return nil, Command{}, constraint("restore payload is missing a track ID")
	}
	if _, exists := doc.Track(t.ID); exists {
		return nil, Command{}, constraint("track %s already exists", t.ID)
	}
	if t.Route != "" {
		target, ok := doc.Track(t.Route)
		if !ok {
			return nil, Command{}, invalidRef("routing target %s does not exist", t.Route)
		}
		if !target.IsBus {
			return nil, Command{}, constraint("routing target %s is not a bus", t.Route)
		}
	}
	if t.IsBus && len(cmd.Clips) > 0 {
		return nil, Command{}, constraint("bus %s cannot hold clips", t.ID)
	}

	next := doc.WithTrack(t.Clone())
	for _, c := range cmd.Clips {
		if c.Track != t.ID {
			return nil, Command{}, constraint("clip %s does not belong to track %s", c.ID, t.ID)
		}
		if _, exists := doc.Clip(c.ID); exists {
			return nil, Command{}, constraint("clip %s already exists", c.ID)
		}
		a, ok := doc.Asset(c.Asset)
		if !ok {
			return nil, Command{}, invalidRef("asset %s does not exist", c.Asset)
		}
		if err := validateClipBounds(a, c.StartFrame, c.DurationFrames, c.OffsetFrames,
			c.FadeInFrames, c.FadeOutFrames); err != nil {
			return nil, Command{}, err
		}
		next = next.WithClip(c.Clone())
	}

	inverse := Command{Kind: KindDeleteTrack, TrackID: t.ID}
	return next, inverse, nil
}

func applyRenameTrack(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t, ok := doc.Track(cmd.TrackID)
	if !ok {
		return nil, Command{}, invalidRef("track %s does not exist", cmd.TrackID)
	}
	inverse := Command{Kind: KindRenameTrack, TrackID: t.ID, Name: t.Name}
	nt := t.Clone()
	nt.Name = cmd.Name
	return doc.WithTrack(nt), inverse, nil
}

func applySetParam(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t, ok := doc.Track(cmd.TrackID)
	if !ok {
		return nil, Command{}, invalidRef("track %s does not exist", cmd.TrackID)
	}
	inverse := Command{Kind: cmd.Kind, TrackID: t.ID}
	nt := t.Clone()
	switch cmd.Kind {
	case KindSetGain:
		inverse.Value = t.Params.GainDB
		nt.Params.GainDB = cmd.Value
	case KindSetPan:
		if cmd.Value < -1 || cmd.Value > 1 {
			return nil, Command{}, constraint("pan %v outside [-1, 1]", cmd.Value)
		}
		inverse.Value = t.Params.Pan
		nt.Params.Pan = cmd.Value
	case KindSetMute:
		inverse.Flag = t.Params.Mute
		nt.Params.Mute = cmd.Flag
	case KindSetSolo:
		inverse.Flag = t.Params.Solo
		nt.Params.Solo = cmd.Flag
	}
	return doc.WithTrack(nt), inverse, nil
}

func applySetRoute(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t, ok := doc.Track(cmd.TrackID)
	if !ok {
		return nil, Command{}, invalidRef("track %s does not exist", cmd.TrackID)
	}
	if t.ID == model.MasterTrackID {
		return nil, Command{}, constraint("the master bus has no routing target")
	}
	if cmd.Route != "" {
		target, ok := doc.Track(cmd.Route)
		if !ok {
			return nil, Command{}, invalidRef("routing target %s does not exist", cmd.Route)
		}
		if !target.IsBus {
			return nil, Command{}, constraint("routing target %s is not a bus", cmd.Route)
		}
	}

	inverse := Command{Kind: KindSetRoute, TrackID: t.ID, Route: t.Route}
	nt := t.Clone()
	nt.Route = cmd.Route
	next := doc.WithTrack(nt)

	if next.RouteChain(t.ID) {
		return nil, Command{}, model.NewError(model.ErrRoutingCycle,
			"routing %s to %s would close a cycle", t.ID, cmd.Route)
	}
	return next, inverse, nil
}

func applyAddEffect(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t, ok := doc.Track(cmd.TrackID)
	if !ok {
		return nil, Command{}, invalidRef("track %s does not exist", cmd.TrackID)
	}
	if cmd.Effect == nil {
		return nil, Command{}, constraint("add_effect requires an effect payload")
	}
	idx := cmd.EffectIndex
	if idx < 0 || idx > len(t.Effects) {
		idx = len(t.Effects)
	}
	nt := t.Clone()
	nt.Effects = append(nt.Effects[:idx], append([]model.Effect{cmd.Effect.Clone()}, nt.Effects[idx:]...)...)
	inverse := Command{Kind: KindRemoveEffect, TrackID: t.ID, EffectIndex: idx}
	return doc.WithTrack(nt), inverse, nil
}

func applyRemoveEffect(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t, ok := doc.Track(cmd.TrackID)
	if !ok {
		return nil, Command{}, invalidRef("track %s does not exist", cmd.TrackID)
	}
	idx := cmd.EffectIndex
	if idx < 0 || idx >= len(t.Effects) {
		return nil, Command{}, invalidRef("track %s has no effect at index %d", t.ID, idx)
	}
	removed := t.Effects[idx].Clone()
	nt := t.Clone()
	nt.Effects = append(nt.Effects[:idx], nt.Effects[idx+1:]...)
	if len(nt.Effects) == 0 {
		nt.Effects = nil
	}
	inverse := Command{Kind: KindAddEffect, TrackID: t.ID, Effect: &removed, EffectIndex: idx}
	return doc.WithTrack(nt), inverse, nil
}

func validateClipBounds(a *model.Asset, start, duration, offset, fadeIn, fadeOut int64) error {
	if start < 0 {
		return constraint("clip start %d is negative", start)
	}
	if duration <= 0 {
		return constraint("clip duration %d must be positive", duration)
	}
	if offset < 0 || offset+duration > a.DurationFrames {
		return constraint("trim [%d, %d) lies outside asset duration %d",
			offset, offset+duration, a.DurationFrames)
	}
	if fadeIn < 0 || fadeOut < 0 || fadeIn+fadeOut > duration {
		return constraint("fades (%d + %d) exceed clip duration %d", fadeIn, fadeOut, duration)
	}
	return nil
}

func applyAddClip(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	t, ok := doc.Track(cmd.TrackID)
	if !ok {
		return nil, Command{}, invalidRef("track %s does not exist", cmd.TrackID)
	}
	if t.IsBus {
		return nil, Command{}, constraint("bus %s cannot hold clips", t.ID)
	}
	a, ok := doc.Asset(cmd.AssetID)
	if !ok {
		return nil, Command{}, invalidRef("asset %s does not exist", cmd.AssetID)
	}
	if err := validateClipBounds(a, cmd.StartFrame, cmd.DurationFrames, cmd.OffsetFrames,
		cmd.FadeInFrames, cmd.FadeOutFrames); err != nil {
		return nil, Command{}, err
	}

	if cmd.ClipID == "" {
		cmd.ClipID = model.NewClipID()
	}
	if _, exists := doc.Clip(cmd.ClipID); exists {
		return nil, Command{}, constraint("clip %s already exists", cmd.ClipID)
	}

	c := &model.Clip{
		ID:             cmd.ClipID,
		Track:          t.ID,
		Asset:          a.ID,
		Name:           cmd.Name,
		StartFrame:     cmd.StartFrame,
		DurationFrames: cmd.DurationFrames,
		OffsetFrames:   cmd.OffsetFrames,
		FadeInFrames:   cmd.FadeInFrames,
		FadeOutFrames:  cmd.FadeOutFrames,
	}

	nt := t.Clone()
	nt.ClipOrder = append(nt.ClipOrder, c.ID)

	inverse := Command{Kind: KindRemoveClip, ClipID: c.ID}
	return doc.WithClip(c).WithTrack(nt), inverse, nil
}

func applyRemoveClip(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	c, ok := doc.Clip(cmd.ClipID)
	if !ok {
		return nil, Command{}, invalidRef("clip %s does not exist", cmd.ClipID)
	}
	t, ok := doc.Track(c.Track)
	if !ok {
		return nil, Command{}, invalidRef("clip %s references missing track %s", c.ID, c.Track)
	}

	nt := t.Clone()
	for i, id := range nt.ClipOrder {
		if id == c.ID {
			nt.ClipOrder = append(nt.ClipOrder[:i], nt.ClipOrder[i+1:]...)
			break
		}
	}
	if len(nt.ClipOrder) == 0 {
		nt.ClipOrder = nil
	}

	inverse := Command{
		Kind:           KindAddClip,
		ClipID:         c.ID,
		TrackID:        c.Track,
		AssetID:        c.Asset,
		Name:           c.Name,
		StartFrame:     c.StartFrame,
		DurationFrames: c.DurationFrames,
		OffsetFrames:   c.OffsetFrames,
		FadeInFrames:   c.FadeInFrames,
		FadeOutFrames:  c.FadeOutFrames,
	}
	return doc.WithoutClip(c.ID).WithTrack(nt), inverse, nil
}

func applyMoveClip(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	c, ok := doc.Clip(cmd.ClipID)
	if !ok {
		return nil, Command{}, invalidRef("clip %s does not exist", cmd.ClipID)
	}
	if cmd.StartFrame < 0 {
		return nil, Command{}, constraint("clip start %d is negative", cmd.StartFrame)
	}
	inverse := Command{Kind: KindMoveClip, ClipID: c.ID, StartFrame: c.StartFrame}
	nc := c.Clone()
	nc.StartFrame = cmd.StartFrame
	return doc.WithClip(nc), inverse, nil
}

func applyResizeClip(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	c, ok := doc.Clip(cmd.ClipID)
	if !ok {
		return nil, Command{}, invalidRef("clip %s does not exist", cmd.ClipID)
	}
	a, ok := doc.Asset(c.Asset)
	if !ok {
		return nil, Command{}, invalidRef("clip %s references missing asset %s", c.ID, c.Asset)
	}
	if err := validateClipBounds(a, c.StartFrame, cmd.DurationFrames, cmd.OffsetFrames,
		c.FadeInFrames, c.FadeOutFrames); err != nil {
		return nil, Command{}, err
	}
	inverse := Command{
		Kind:           KindResizeClip,
		ClipID:         c.ID,
		DurationFrames: c.DurationFrames,
		OffsetFrames:   c.OffsetFrames,
	}
	nc := c.Clone()
	nc.DurationFrames = cmd.DurationFrames
	nc.OffsetFrames = cmd.OffsetFrames
	return doc.WithClip(nc), inverse, nil
}

func applySetClipFades(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	c, ok := doc.Clip(cmd.ClipID)
	if !ok {
		return nil, Command{}, invalidRef("clip %s does not exist", cmd.ClipID)
	}
	if cmd.FadeInFrames < 0 || cmd.FadeOutFrames < 0 ||
		cmd.FadeInFrames+cmd.FadeOutFrames > c.DurationFrames {
		return nil, Command{}, constraint("fades (%d + %d) exceed clip duration %d",
			cmd.FadeInFrames, cmd.FadeOutFrames, c.DurationFrames)
	}
	inverse := Command{
		Kind:          KindSetClipFades,
		ClipID:        c.ID,
		FadeInFrames:  c.FadeInFrames,
		FadeOutFrames: c.FadeOutFrames,
	}
	nc := c.Clone()
	nc.FadeInFrames = cmd.FadeInFrames
	nc.FadeOutFrames = cmd.FadeOutFrames
	return doc.WithClip(nc), inverse, nil
}

func applyRegisterAsset(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	if cmd.Asset == nil || cmd.Asset.ID == "" {
		return nil, Command{}, constraint("register_asset requires asset metadata")
	}
	if _, exists := doc.Asset(cmd.Asset.ID); exists {
		// Content-addressed: identical content is already this asset.
		return nil, Command{}, constraint("asset %s is already registered", cmd.Asset.ID)
	}
	inverse := Command{Kind: KindRemoveAsset, AssetID: cmd.Asset.ID}
	return doc.WithAsset(cmd.Asset.Clone()), inverse, nil
}

func applyRemoveAsset(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	a, ok := doc.Asset(cmd.AssetID)
	if !ok {
		return nil, Command{}, invalidRef("asset %s does not exist", cmd.AssetID)
	}
	for _, c := range doc.Clips {
		if c.Asset == a.ID {
			return nil, Command{}, constraint("asset %s is referenced by clip %s", a.ID, c.ID)
		}
	}
	inverse := Command{Kind: KindRegisterAsset, Asset: a}
	return doc.WithoutAsset(a.ID), inverse, nil
}

func applyMarkAssetUnusable(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	a, ok := doc.Asset(cmd.AssetID)
	if !ok {
		return nil, Command{}, invalidRef("asset %s does not exist", cmd.AssetID)
	}
	inverse := Command{Kind: KindMarkAssetUnusable, AssetID: a.ID, Flag: a.Unusable}
	na := a.Clone()
	na.Unusable = cmd.Flag
	return doc.WithAsset(na), inverse, nil
}

func applyPlayStop(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	tr := doc.Transport
	var inverse Command
	if tr.Playing {
		inverse = Command{Kind: KindPlay}
	} else {
		inverse = Command{Kind: KindStop}
	}
	tr.Playing = cmd.Kind == KindPlay
	return doc.WithTransport(tr), inverse, nil
}

func applySeek(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	if cmd.PositionFrame < 0 {
		return nil, Command{}, constraint("seek position %d is negative", cmd.PositionFrame)
	}
	tr := doc.Transport
	inverse := Command{Kind: KindSeek, PositionFrame: tr.PositionFrame, SeekSeq: tr.SeekSeq}
	tr.PositionFrame = cmd.PositionFrame
	if cmd.SeekSeq != 0 {
		tr.SeekSeq = cmd.SeekSeq
	} else {
		tr.SeekSeq++
	}
	return doc.WithTransport(tr), inverse, nil
}

func applySetLoop(doc *model.Document, cmd *Command) (*model.Document, Command, error) {
	if cmd.LoopEndFrame != 0 &&
		(cmd.LoopStartFrame < 0 || cmd.LoopEndFrame <= cmd.LoopStartFrame) {
		return nil, Command{}, constraint("loop region [%d, %d) is invalid",
			cmd.LoopStartFrame, cmd.LoopEndFrame)
	}
	tr := doc.Transport
	inverse := Command{
		Kind:           KindSetLoop,
		LoopStartFrame: tr.LoopStartFrame,
		LoopEndFrame:   tr.LoopEndFrame,
	}
	tr.LoopStartFrame = cmd.LoopStartFrame
	tr.LoopEndFrame = cmd.LoopEndFrame
	return doc.WithTransport(tr), inverse, nil
}
