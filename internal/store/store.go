// Package store persists chat and drawing events published through the
// relay. The broker only ever appends; reading history back is served by
// the HTTP backend, not by this process.
package store

import (
	"context"
	"time"
)

// Event is a single chat or drawing payload attributed to the sender that
// published it. The message body is treated as opaque, already-serialized
// data and is never interpreted here.
type Event struct {
	RoomID    string    `bson:"roomId" json:"roomId"`
	Message   string    `bson:"message" json:"message"`
	SenderID  string    `bson:"senderId" json:"senderId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// EventStore is the append-only sink for published events.
type EventStore interface {
	// Append durably records a single event.
	Append(ctx context.Context, ev Event) error
	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
