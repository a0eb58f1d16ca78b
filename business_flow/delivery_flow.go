package businessflow

import (
	"context"
	"errors"
	"fmt"

	"sms-backend/app/dto"
	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// ErrMessageNotFound marks a delivery report that matched no message; callers
// log and discard it.
var ErrMessageNotFound = errors.New("message not found")

// DeliveryFlow applies inbound gateway delivery reports to messages.
type DeliveryFlow interface {
	ApplyDeliveryReport(ctx context.Context, req *dto.DeliveryReportRequest) error
}

// DeliveryFlowImpl implements the delivery report business flow
type DeliveryFlowImpl struct {
	messageRepo  repository.MessageRepository
	campaignRepo repository.CampaignRepository
}

// NewDeliveryFlow creates a new delivery flow instance
func NewDeliveryFlow(
	messageRepo repository.MessageRepository,
	campaignRepo repository.CampaignRepository,
) DeliveryFlow {
	return &DeliveryFlowImpl{
		messageRepo:  messageRepo,
		campaignRepo: campaignRepo,
	}
}

// ApplyDeliveryReport transitions a sent message to delivered or undelivered
// by its gateway message id. Reports for unknown ids or messages no longer in
// sent state return ErrMessageNotFound for the caller to log and drop.
func (s *DeliveryFlowImpl) ApplyDeliveryReport(ctx context.Context, req *dto.DeliveryReportRequest) error {
	message, err := s.messageRepo.ByMessageID(ctx, req.MessageID)
	if err != nil {
		return fmt.Errorf("failed to find message %s: %w", req.MessageID, err)
	}
	if message == nil {
		return fmt.Errorf("%w: gateway message id %s", ErrMessageNotFound, req.MessageID)
	}
	if message.Status != models.MessageStatusSent {
		// already settled; a duplicate or late report
		return fmt.Errorf("%w: message %s is %s", ErrMessageNotFound, req.MessageID, message.Status)
	}

	switch req.Status {
	case "delivered":
		message.Status = models.MessageStatusDelivered
		if req.DeliveredAt != nil {
			message.DeliveredAt = utils.TimeToUTCPtr(req.DeliveredAt)
		} else {
			message.DeliveredAt = utils.UTCNowPtr()
		}
	case "undelivered", "failed":
		message.Status = models.MessageStatusUndelivered
		message.ErrorMessage = req.ErrorDetail
	default:
		return fmt.Errorf("%w: unknown delivery status %q", ErrMessageNotFound, req.Status)
	}

	if err := s.messageRepo.Update(ctx, message); err != nil {
		return fmt.Errorf("failed to update message %s: %w", req.MessageID, err)
	}

	// keep the campaign counters consistent: a delivered message moves from
	// the sent bucket to the delivered bucket
	if message.CampaignID != nil && message.Status == models.MessageStatusDelivered {
		if err := s.campaignRepo.IncrementCounters(ctx, *message.CampaignID, -1, 0, 1, 0); err != nil {
			return fmt.Errorf("failed to adjust campaign counters: %w", err)
		}
	}
	return nil
}
