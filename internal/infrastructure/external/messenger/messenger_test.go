package messenger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/stock-approval/internal/application/port"
)

func TestMessenger_Send(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewMessenger(zap.New(core))

	err := m.Send(context.Background(), port.Message{
		Recipient:  "bob",
		Subject:    "Approval REQ-1 needs your action",
		Body:       "Request REQ-1 was forwarded by alice.",
		ApprovalID: 7,
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "bob", fields["recipient"])
	assert.Equal(t, int64(7), fields["approval_id"])
}

func TestMessenger_SendRejectsIncompleteMessages(t *testing.T) {
	m := NewMessenger(zap.NewNop())

	assert.Error(t, m.Send(context.Background(), port.Message{Body: "x"}))
	assert.Error(t, m.Send(context.Background(), port.Message{Recipient: "bob"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, port.Message{Recipient: "bob", Body: "x"}), context.Canceled)
}
