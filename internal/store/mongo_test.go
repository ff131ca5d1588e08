package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestMongoStoreAppend is a smoke test against a real MongoDB instance.
// It runs only when MONGO_TEST_URI is set, e.g.
//
//	MONGO_TEST_URI=mongodb://localhost:27017 go test ./internal/store
func TestMongoStoreAppend(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set; skipping MongoDB smoke test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewMongoStore(ctx, uri, "minicanvas_test", "chats")
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(context.Background())) }()

	err = s.Append(ctx, Event{
		RoomID:    "42",
		Message:   "hello",
		SenderID:  "user-1",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}
