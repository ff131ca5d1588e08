package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendAndReadBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ev := Event{RoomID: "42", Message: "hello", SenderID: "user-1", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.Append(ctx, ev))
	require.NoError(t, s.Append(ctx, Event{RoomID: "42", Message: "again", SenderID: "user-2"}))

	events := s.Events("42")
	require.Len(t, events, 2)
	assert.Equal(t, "hello", events[0].Message)
	assert.Equal(t, "user-1", events[0].SenderID)
	assert.Equal(t, "again", events[1].Message)
}

func TestMemoryStoreRoomsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Event{RoomID: "42", Message: "for 42", SenderID: "user-1"}))
	require.NoError(t, s.Append(ctx, Event{RoomID: "7", Message: "for 7", SenderID: "user-2"}))

	assert.Len(t, s.Events("42"), 1)
	assert.Len(t, s.Events("7"), 1)
	assert.Empty(t, s.Events("unknown"))
}

func TestMemoryStoreEventsReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Event{RoomID: "42", Message: "original", SenderID: "user-1"}))

	events := s.Events("42")
	events[0].Message = "mutated"

	assert.Equal(t, "original", s.Events("42")[0].Message)
}

func TestMemoryStoreClose(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Close(context.Background()))
}
