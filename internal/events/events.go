// Package events publishes domain events for downstream consumers. Publishing
// is best-effort from the caller's point of view: services log a failed
// publish and carry on.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TopicUsers = "user_events"
	TopicNotes = "note_events"
)

const (
	TypeUserRegistered = "user_registered"
	TypeUserLoggedIn   = "user_logged_in"
	TypeNoteCreated    = "note_created"
	TypeNoteUpdated    = "note_updated"
	TypeNoteDeleted    = "note_deleted"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     uint      `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	NoteID     uint      `json:"note_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(typ string, userID uint) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Topic returns the topic an event type belongs to.
func Topic(typ string) string {
	switch typ {
	case TypeUserRegistered, TypeUserLoggedIn:
		return TopicUsers
	default:
		return TopicNotes
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error { return nil }

// Observed passes every publish result to Observe, for metrics.
type Observed struct {
	Publisher
	Observe func(typ string, err error)
}

func (o Observed) Publish(ctx context.Context, ev Event) error {
	err := o.Publisher.Publish(ctx, ev)
	if o.Observe != nil {
		o.Observe(ev.Type, err)
	}
	return err
}
