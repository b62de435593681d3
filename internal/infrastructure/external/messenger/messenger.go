package messenger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/port"
)

// Messenger implements port.MessageSender by writing each message to the log.
// Deployments without a mail or chat integration read notifications from there.
type Messenger struct {
	logger *zap.Logger
}

// NewMessenger creates a log-backed message sender
func NewMessenger(logger *zap.Logger) *Messenger {
	return &Messenger{logger: logger.Named("messenger")}
}

// Send implements port.MessageSender
func (m *Messenger) Send(ctx context.Context, msg port.Message) error {
	if strings.TrimSpace(msg.Recipient) == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if msg.Body == "" {
		return fmt.Errorf("body cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.logger.Info("Notification",
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.Int64("approval_id", msg.ApprovalID),
		zap.String("body", msg.Body),
	)
	return nil
}

var _ port.MessageSender = (*Messenger)(nil)
