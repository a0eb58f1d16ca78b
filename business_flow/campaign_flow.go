// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"sms-backend/app/dto"
	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// MinScheduleLead is how far in the future a scheduled start must be
const MinScheduleLead = time.Minute

// CampaignFlow handles the campaign lifecycle business logic. All state
// changes go through the transition guard; a disallowed change is rejected
// before anything is persisted.
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error)
	GetCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)

	ScheduleCampaign(ctx context.Context, campaignUUID string, customerID uint, at time.Time) (*dto.CampaignResponse, error)
	StartCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error)
	PauseCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error)
	StopCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error)
	ArchiveCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error)
	RestartCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error)

	// MarkCompleted is the natural-completion transition taken by the
	// dispatcher once every contact is accounted for.
	MarkCompleted(ctx context.Context, campaignID uint) error
	// MarkFailed moves a campaign to failed with the given reason and stops
	// further dispatch.
	MarkFailed(ctx context.Context, campaignID uint, reason string) error
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	customerRepo repository.CustomerRepository
	contactRepo  repository.ContactRepository
	rateFlow     RateFlow
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	customerRepo repository.CustomerRepository,
	contactRepo repository.ContactRepository,
	rateFlow RateFlow,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		customerRepo: customerRepo,
		contactRepo:  contactRepo,
		rateFlow:     rateFlow,
		db:           db,
	}
}

// CreateCampaign handles the complete campaign creation process
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CampaignResponse, error) {
	if err := s.validateCreateCampaignRequest(req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	customer, err := getCustomer(ctx, s.customerRepo, req.CustomerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to lookup customer", err)
	}

	list, err := s.contactRepo.ListByID(ctx, req.ContactListID)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LIST_LOOKUP_FAILED", "Failed to lookup contact list", err)
	}
	if list == nil || list.CustomerID != customer.ID {
		return nil, NewBusinessError("CONTACT_LIST_NOT_FOUND", "Contact list not found", ErrContactListNotFound)
	}

	contactCount, err := s.contactRepo.CountByList(ctx, list.ID)
	if err != nil {
		return nil, NewBusinessError("CONTACT_LIST_LOOKUP_FAILED", "Failed to count contacts", err)
	}
	if contactCount == 0 {
		return nil, NewBusinessError("CONTACT_LIST_EMPTY", "Contact list is empty", ErrContactListEmpty)
	}

	campaign := &models.Campaign{
		CustomerID:     customer.ID,
		Status:         models.CampaignStatusDraft,
		Name:           strings.TrimSpace(req.Name),
		ContactListID:  list.ID,
		MessageContent: req.MessageContent,
		SenderID:       req.SenderID,
		Country:        req.Country,
		ContactCount:   int(contactCount),
		ScheduledAt:    utils.TimeToUTCPtr(req.ScheduledAt),
	}
	campaign.EstimatedCost = s.estimateCost(ctx, customer.ID, list.ID, int(contactCount))

	err = s.inTransaction(ctx, func(txCtx context.Context) error {
		return s.campaignRepo.Save(txCtx, campaign)
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	resp := dto.ToCampaignResponse(campaign)
	return &resp, nil
}

// GetCampaign returns a single campaign owned by the customer
func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error) {
	campaign, err := getCampaign(ctx, s.campaignRepo, campaignUUID, customerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	resp := dto.ToCampaignResponse(campaign)
	return &resp, nil
}

// ListCampaigns returns a page of the customer's campaigns
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	if req.Page < 1 {
		return nil, NewBusinessError("CAMPAIGN_LIST_VALIDATION_FAILED", "Invalid page", ErrInvalidPage)
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		return nil, NewBusinessError("CAMPAIGN_LIST_VALIDATION_FAILED", "Invalid page size", ErrInvalidPageSize)
	}

	filter := models.CampaignFilter{CustomerID: &req.CustomerID}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("CAMPAIGN_LIST_VALIDATION_FAILED", "Invalid status filter", fmt.Errorf("unknown status %q", *req.Status))
		}
		filter.Status = &status
	}

	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", req.PageSize, (req.Page-1)*req.PageSize)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}
	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to count campaigns", err)
	}

	items := make([]dto.CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		items = append(items, dto.ToCampaignResponse(c))
	}
	return &dto.ListCampaignsResponse{Items: items, Total: total, Page: req.Page}, nil
}

// ScheduleCampaign moves a draft to scheduled with a future start time
func (s *CampaignFlowImpl) ScheduleCampaign(ctx context.Context, campaignUUID string, customerID uint, at time.Time) (*dto.CampaignResponse, error) {
	at = utils.TimeToUTC(at)
	if at.Before(utils.UTCNowAdd(MinScheduleLead)) {
		return nil, NewBusinessError("CAMPAIGN_SCHEDULE_FAILED", "Schedule time is too soon", ErrScheduleTimeTooSoon)
	}
	return s.transition(ctx, campaignUUID, customerID, models.CampaignStatusScheduled, func(c *models.Campaign) map[string]any {
		c.ScheduledAt = &at
		return map[string]any{"scheduled_at": &at}
	})
}

// StartCampaign moves a campaign into sending. StartedAt is stamped on the
// first entry only; resuming from paused keeps the original value.
func (s *CampaignFlowImpl) StartCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error) {
	return s.transition(ctx, campaignUUID, customerID, models.CampaignStatusSending, func(c *models.Campaign) map[string]any {
		if c.StartedAt != nil {
			return nil
		}
		c.StartedAt = utils.UTCNowPtr()
		return map[string]any{"started_at": c.StartedAt}
	})
}

// PauseCampaign suspends dispatch; in-flight sends complete
func (s *CampaignFlowImpl) PauseCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error) {
	return s.transition(ctx, campaignUUID, customerID, models.CampaignStatusPaused, nil)
}

// StopCampaign terminates dispatch and stamps CompletedAt
func (s *CampaignFlowImpl) StopCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error) {
	return s.transition(ctx, campaignUUID, customerID, models.CampaignStatusStopped, func(c *models.Campaign) map[string]any {
		c.CompletedAt = utils.UTCNowPtr()
		return map[string]any{"completed_at": c.CompletedAt}
	})
}

// ArchiveCampaign moves a finished campaign out of the working set
func (s *CampaignFlowImpl) ArchiveCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error) {
	return s.transition(ctx, campaignUUID, customerID, models.CampaignStatusArchived, nil)
}

// RestartCampaign returns a finished campaign to draft with all run state cleared
func (s *CampaignFlowImpl) RestartCampaign(ctx context.Context, campaignUUID string, customerID uint) (*dto.CampaignResponse, error) {
	return s.transition(ctx, campaignUUID, customerID, models.CampaignStatusDraft, func(c *models.Campaign) map[string]any {
		c.ResetCounters()
		// restart wipes the counters on purpose, so they are named here
		return map[string]any{
			"sent_count":      0,
			"failed_count":    0,
			"delivered_count": 0,
			"actual_cost":     0.0,
			"progress":        0,
			"started_at":      nil,
			"completed_at":    nil,
			"error_message":   nil,
		}
	})
}

// MarkCompleted performs the natural completion transition
func (s *CampaignFlowImpl) MarkCompleted(ctx context.Context, campaignID uint) error {
	ok, err := s.campaignRepo.UpdateStatus(ctx, campaignID, models.CampaignStatusSending, models.CampaignStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to complete campaign %d: %w", campaignID, err)
	}
	if !ok {
		// lost the race against pause/stop; their transition wins
		return nil
	}
	return s.campaignRepo.UpdateFields(ctx, campaignID, map[string]any{
		"completed_at": utils.UTCNowPtr(),
	})
}

// MarkFailed moves a campaign to failed with the given reason
func (s *CampaignFlowImpl) MarkFailed(ctx context.Context, campaignID uint, reason string) error {
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to find campaign %d: %w", campaignID, err)
	}
	if campaign == nil {
		return ErrCampaignNotFound
	}
	if !campaign.CanTransitionTo(models.CampaignStatusFailed) {
		return NewInvalidTransitionError(campaign.Status, models.CampaignStatusFailed)
	}
	ok, err := s.campaignRepo.UpdateStatus(ctx, campaignID, campaign.Status, models.CampaignStatusFailed)
	if err != nil || !ok {
		return err
	}
	return s.campaignRepo.UpdateFields(ctx, campaignID, map[string]any{
		"error_message": &reason,
		"completed_at":  utils.UTCNowPtr(),
	})
}

// transition applies one guarded state change. The status flip is a
// conditional UPDATE on the previous status, so two racing transitions
// cannot both win. mutate adjusts the in-memory row for the response and
// returns the columns to persist; only those columns are written, keeping
// the counter columns owned by IncrementCounters.
func (s *CampaignFlowImpl) transition(ctx context.Context, campaignUUID string, customerID uint, to models.CampaignStatus, mutate func(*models.Campaign) map[string]any) (*dto.CampaignResponse, error) {
	campaign, err := getCampaign(ctx, s.campaignRepo, campaignUUID, customerID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	if !campaign.CanTransitionTo(to) {
		return nil, NewInvalidTransitionError(campaign.Status, to)
	}

	ok, err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, campaign.Status, to)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_FAILED", "Campaign transition failed", err)
	}
	if !ok {
		return nil, NewInvalidTransitionError(campaign.Status, to)
	}

	campaign.Status = to
	if mutate != nil {
		if fields := mutate(campaign); len(fields) > 0 {
			if err := s.campaignRepo.UpdateFields(ctx, campaign.ID, fields); err != nil {
				return nil, NewBusinessError("CAMPAIGN_TRANSITION_FAILED", "Failed to persist campaign", err)
			}
		}
	}

	resp := dto.ToCampaignResponse(campaign)
	return &resp, nil
}

// inTransaction wraps fn in a database transaction. A nil db leaves
// atomicity to the repositories themselves.
func (s *CampaignFlowImpl) inTransaction(ctx context.Context, fn func(context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return repository.WithTransaction(ctx, s.db, fn)
}

func (s *CampaignFlowImpl) validateCreateCampaignRequest(req *dto.CreateCampaignRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return ErrCampaignNameRequired
	}
	if strings.TrimSpace(req.MessageContent) == "" {
		return ErrCampaignContentRequired
	}
	if strings.TrimSpace(req.SenderID) == "" {
		return ErrCampaignSenderRequired
	}
	if req.ScheduledAt != nil && req.ScheduledAt.Before(utils.UTCNowAdd(MinScheduleLead)) {
		return ErrScheduleTimeTooSoon
	}
	return nil
}

// estimateCost prices the contact list with the customer's rate deck. Rates
// are cached by a coarse number prefix; the result is an estimate, the
// authoritative cost accrues per message at send time.
func (s *CampaignFlowImpl) estimateCost(ctx context.Context, customerID, listID uint, contactCount int) float64 {
	contacts, err := s.contactRepo.ListUnprocessed(ctx, listID, 0, contactCount)
	if err != nil {
		return 0
	}

	cache := make(map[string]float64)
	var total float64
	for _, contact := range contacts {
		number := utils.NormalizeNumber(contact.PhoneNumber)
		key := number
		if len(key) > 4 {
			key = key[:4]
		}
		rate, ok := cache[key]
		if !ok {
			resolved, err := s.rateFlow.ResolveRate(ctx, customerID, number)
			if err != nil {
				cache[key] = 0
				continue
			}
			rate = resolved.Rate
			cache[key] = rate
		}
		total += rate
	}
	return total
}
