package server

import (
	"context"
	"time"

	"mixdown/cache"
	"mixdown/logger"
	"mixdown/model"
	"mixdown/render"
)

// telemetryInterval is how often the control side drains the render ring.
// Position events are coalesced to the newest one per drain; underruns are
// forwarded individually.
const telemetryInterval = 50 * time.Millisecond

func runTelemetryPump(ctx context.Context, sched *render.Scheduler, hub *EventHub) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	ring := sched.Telemetry()
	var lastPublished int64 = -1
	var lastDropped uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		havePos := false
		var pos int64
		for {
			t, ok := ring.Pop()
			if !ok {
				break
			}
			switch t.Kind {
			case render.TelemetryPosition:
				havePos = true
				pos = t.PositionFrame
			case render.TelemetryUnderrun:
				logger.Warn("render underrun",
					logger.Int64("positionFrame", t.PositionFrame),
					logger.Int64("renderNanos", t.RenderNanos),
					logger.Uint64("underruns", t.Underruns))
				hub.PublishEvent(model.ChangeEvent{
					Topic:         model.TopicTelemetry,
					Kind:          model.EventUnderrun,
					PositionFrame: t.PositionFrame,
					Underruns:     t.Underruns,
					Timestamp:     time.Now().UnixMilli(),
				})
			}
		}
		if dropped := ring.Dropped(); dropped != lastDropped {
			logger.Debug("telemetry ring dropped events", logger.Uint64("dropped", dropped-lastDropped))
			lastDropped = dropped
		}

		if havePos && pos != lastPublished {
			lastPublished = pos
			hub.PublishEvent(model.ChangeEvent{
				Topic:         model.TopicTransport,
				Kind:          model.EventPosition,
				PositionFrame: pos,
				Timestamp:     time.Now().UnixMilli(),
			})
			if err := cache.SetPlaybackPosition(ctx, pos); err != nil {
				logger.Debug("cache playback position", logger.ErrorField(err))
			}
		}
	}
}
