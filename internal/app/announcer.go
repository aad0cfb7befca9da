package app

import (
	"context"
	"time"

	"wushik/internal/ports"
)

// EventAnnouncer voices a combination by emitting an announcement event and
// waiting out its playback time. Clients play the audio.
type EventAnnouncer struct {
	emit func(Event)
}

// NewEventAnnouncer returns an announcer writing to emit.
func NewEventAnnouncer(emit func(Event)) *EventAnnouncer {
	return &EventAnnouncer{emit: emit}
}

// Announce implements ports.Announcer.
func (a *EventAnnouncer) Announce(ctx context.Context, ann ports.Announcement) error {
	a.emit(Event{Kind: EventAnnouncement, Payload: AnnouncementPayload{
		Player:      ann.Player,
		Combination: ann.Combination,
		DurationMs:  ann.Duration.Milliseconds(),
	}})
	if ann.Duration <= 0 {
		return nil
	}

	timer := time.NewTimer(ann.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
