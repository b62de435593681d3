package service

import (
	"context"
	"fmt"

	"github.com/garyjia/stock-approval/internal/application/dispatcher"
	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/domain/entity"
	"github.com/garyjia/stock-approval/internal/domain/event"
)

// NotificationService tells users when an approval reaches them or ends
type NotificationService interface {
	// Register subscribes the service to approval events
	Register(d dispatcher.Dispatcher)

	// NotifyNextApprover messages whoever the approval now waits on
	NotifyNextApprover(ctx context.Context, evt *event.Event) error

	// NotifySubmitter messages the submitter once the approval is rejected or finalized
	NotifySubmitter(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	approvalRepo  port.ApprovalRepository
	messageSender port.MessageSender
	logger        Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	approvalRepo port.ApprovalRepository,
	messageSender port.MessageSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		approvalRepo:  approvalRepo,
		messageSender: messageSender,
		logger:        logger,
	}
}

// Register subscribes to the approval events that change who must act
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{event.TypeApprovalSubmitted, event.TypeApprovalForwarded, event.TypeApprovalApproved} {
		d.SubscribeNamed(t, "notify-next-approver:"+t.String(), s.NotifyNextApprover)
	}
	for _, t := range []event.Type{event.TypeApprovalRejected, event.TypeApprovalFinalized} {
		d.SubscribeNamed(t, "notify-submitter:"+t.String(), s.NotifySubmitter)
	}
}

// NotifyNextApprover sends the "waiting on you" message
func (s *notificationServiceImpl) NotifyNextApprover(ctx context.Context, evt *event.Event) error {
	to := evt.GetPayloadString("to")
	if to == "" {
		return nil
	}

	subject := fmt.Sprintf("Request %s needs your action", evt.RequestID)
	body := fmt.Sprintf("Approval %d for request %s was %s by %s and is now waiting on you.",
		evt.ApprovalID, evt.RequestID, describe(evt.Type), evt.GetPayloadString("actor_id"))

	return s.send(ctx, port.Message{Recipient: to, Subject: subject, Body: body, ApprovalID: evt.ApprovalID})
}

// NotifySubmitter sends the outcome to whoever submitted the request
func (s *notificationServiceImpl) NotifySubmitter(ctx context.Context, evt *event.Event) error {
	approval, err := s.approvalRepo.GetByID(ctx, evt.ApprovalID)
	if err != nil {
		s.logger.Error("Failed to get approval", "error", err, "approval_id", evt.ApprovalID)
		return fmt.Errorf("get approval: %w", err)
	}
	if approval == nil {
		return fmt.Errorf("%w: approval %d", entity.ErrNotFound, evt.ApprovalID)
	}

	subject := fmt.Sprintf("Request %s was %s", approval.RequestID, describe(evt.Type))
	body := fmt.Sprintf("Approval %d for request %s was %s by %s.",
		approval.ID, approval.RequestID, describe(evt.Type), evt.GetPayloadString("actor_id"))
	if reason := evt.GetPayloadString("reason"); reason != "" {
		body += " Reason: " + reason
	}

	return s.send(ctx, port.Message{Recipient: approval.SubmittedBy, Subject: subject, Body: body, ApprovalID: approval.ID})
}

func (s *notificationServiceImpl) send(ctx context.Context, msg port.Message) error {
	if err := s.messageSender.Send(ctx, msg); err != nil {
		s.logger.Error("Failed to send notification", "error", err, "approval_id", msg.ApprovalID, "recipient", msg.Recipient)
		return fmt.Errorf("send message: %w", err)
	}

	s.logger.Info("Notification sent", "approval_id", msg.ApprovalID, "recipient", msg.Recipient)
	return nil
}

func describe(t event.Type) string {
	switch t {
	case event.TypeApprovalSubmitted:
		return "submitted"
	case event.TypeApprovalForwarded:
		return "forwarded"
	case event.TypeApprovalApproved:
		return "approved"
	case event.TypeApprovalRejected:
		return "rejected"
	case event.TypeApprovalFinalized:
		return "finalized"
	default:
		return t.String()
	}
}
