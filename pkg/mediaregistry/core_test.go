package mediaregistry_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-registry/pkg/mediaregistry"
)

func TestHandleGenerator(t *testing.T) {
	gen := mediaregistry.NewHandleGenerator()

	h1 := gen.Generate("alice", 1, 1)
	assert.Equal(t, h1, gen.Generate("alice", 1, 1))
	assert.NotEqual(t, h1, gen.Generate("alice", 1, 2))
	assert.NotEqual(t, h1, gen.Generate("bob", 1, 1))
	assert.NotEqual(t, h1, gen.Generate("alice", 2, 1))

	assert.True(t, mediaregistry.ValidHandle(h1.String()))
	assert.False(t, mediaregistry.ValidHandle(""))
	assert.False(t, mediaregistry.ValidHandle("mh1234"))
	assert.False(t, mediaregistry.ValidHandle("xx"+h1.String()[2:]))
}

func TestRegistryError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &mediaregistry.RegistryError{
		Op:     "delete_media",
		Reason: mediaregistry.ReasonOnlyOwner,
		Err:    mediaregistry.ErrNotOwner,
	})

	assert.True(t, errors.Is(err, mediaregistry.ErrNotOwner))
	assert.Equal(t, mediaregistry.ReasonOnlyOwner, mediaregistry.Reason(err))
	assert.Contains(t, err.Error(), "delete_media")

	plain := &mediaregistry.RegistryError{Op: "status", Err: errors.New("db down")}
	assert.Equal(t, "status: db down", plain.Error())
	assert.Equal(t, "status: db down", mediaregistry.Reason(plain))
	assert.Equal(t, "", mediaregistry.Reason(nil))
}

func TestAddMediaRequestValidate(t *testing.T) {
	assert.NoError(t, mediaregistry.AddMediaRequest{ContentRef: "ref", Title: "t"}.Validate())
	assert.ErrorIs(t, mediaregistry.AddMediaRequest{ContentRef: "  ", Title: "t"}.Validate(), mediaregistry.ErrInvalidArgument)
	assert.ErrorIs(t, mediaregistry.AddMediaRequest{ContentRef: "ref"}.Validate(), mediaregistry.ErrInvalidArgument)
}

func TestEventSinks(t *testing.T) {
	ctx := context.Background()
	event := mediaregistry.Event{Type: mediaregistry.EventMediaAdded, PublicHandle: "h", OwnerIndex: 1, Owner: "alice"}

	t.Run("noop", func(t *testing.T) {
		assert.NoError(t, mediaregistry.NewNoopEventSink().Publish(ctx, event))
	})

	t.Run("logging", func(t *testing.T) {
		var buf bytes.Buffer
		sink := mediaregistry.NewLoggingEventSink(slog.New(slog.NewJSONHandler(&buf, nil)))
		require.NoError(t, sink.Publish(ctx, event))
		assert.Contains(t, buf.String(), `"type":"MediaAdded"`)
		assert.Contains(t, buf.String(), `"owner":"alice"`)
	})

	t.Run("multi joins errors and calls every sink", func(t *testing.T) {
		first := &recordingSink{err: errors.New("first")}
		second := &recordingSink{}
		sink := mediaregistry.NewMultiEventSink(first, nil, second)

		err := sink.Publish(ctx, event)
		assert.ErrorContains(t, err, "first")
		assert.Len(t, first.Events(), 1)
		assert.Len(t, second.Events(), 1)
	})
}
