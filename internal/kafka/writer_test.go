package kafka

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/models"
)

func TestNewMessageCreatedTruncatesPreview(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	msg := models.ChatMessage{ID: 4, RoomID: 2, SenderID: 9, Type: models.MessageText, Content: strings.Repeat("é", 200), CreatedAt: ts}

	rec := NewMessageCreated(msg)
	assert.Equal(t, "message.created", rec.EventType)
	assert.Equal(t, 4, rec.MessageID)
	assert.Equal(t, 2, rec.RoomID)
	assert.Len(t, []rune(rec.Preview), previewLength)
	assert.Equal(t, ts, rec.CreatedAt)
}

func TestNewWriterWithoutBrokersIsNoop(t *testing.T) {
	stream := NewWriter(" , ", "collab.messages")
	_, ok := stream.(Noop)
	require.True(t, ok)
	assert.NoError(t, stream.MessageCreated(context.Background(), models.ChatMessage{ID: 1}))
	assert.NoError(t, stream.Close())
}
