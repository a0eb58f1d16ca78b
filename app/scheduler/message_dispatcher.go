// Package scheduler contains the background loops driving dispatch and billing
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	businessflow "sms-backend/business_flow"
	"sms-backend/app/services"
	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// MessageDispatcher drains campaigns in sending state. Each campaign gets a
// single drainer goroutine (the single writer for its counters is the
// database's atomic increment, the drainer just serializes batch boundaries);
// gateway calls inside one batch fan out to a bounded worker pool.
type MessageDispatcher struct {
	campaignRepo repository.CampaignRepository
	contactRepo  repository.ContactRepository
	messageRepo  repository.MessageRepository

	campaignFlow businessflow.CampaignFlow
	routingFlow  businessflow.RoutingFlow
	rateFlow     businessflow.RateFlow
	triggerFlow  businessflow.BillingTriggerFlow
	gateways     services.GatewayRegistry

	logger   *log.Logger
	interval time.Duration
	workers  int

	mu     sync.Mutex
	active map[uint]struct{}
	wg     sync.WaitGroup
}

// NewMessageDispatcher creates a new dispatcher instance
func NewMessageDispatcher(
	campaignRepo repository.CampaignRepository,
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	campaignFlow businessflow.CampaignFlow,
	routingFlow businessflow.RoutingFlow,
	rateFlow businessflow.RateFlow,
	triggerFlow businessflow.BillingTriggerFlow,
	gateways services.GatewayRegistry,
	logger *log.Logger,
	interval time.Duration,
	workers int,
) *MessageDispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if workers <= 0 {
		workers = 8
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[dispatcher] ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
	}
	return &MessageDispatcher{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		messageRepo:  messageRepo,
		campaignFlow: campaignFlow,
		routingFlow:  routingFlow,
		rateFlow:     rateFlow,
		triggerFlow:  triggerFlow,
		gateways:     gateways,
		logger:       logger,
		interval:     interval,
		workers:      workers,
		active:       make(map[uint]struct{}),
	}
}

// Start launches the dispatch loop and returns a stop function. Stopping
// cancels the loop and waits for in-flight drainers to settle their current
// batch; sends already handed to a gateway complete.
func (s *MessageDispatcher) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		s.wg.Wait()
	}
}

func (s *MessageDispatcher) runOnce(ctx context.Context) {
	s.promoteDueScheduled(ctx)
	s.retryQueued(ctx)

	campaigns, err := s.campaignRepo.ListByStatus(ctx, models.CampaignStatusSending, utils.DispatchBatchSize)
	if err != nil {
		s.logger.Printf("failed to list sending campaigns: %v", err)
		return
	}

	for _, campaign := range campaigns {
		s.mu.Lock()
		if _, running := s.active[campaign.ID]; running {
			s.mu.Unlock()
			continue
		}
		s.active[campaign.ID] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func(c *models.Campaign) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.active, c.ID)
				s.mu.Unlock()
			}()
			s.drainCampaign(ctx, c)
		}(campaign)
	}
}

// promoteDueScheduled moves scheduled campaigns whose time has come into sending
func (s *MessageDispatcher) promoteDueScheduled(ctx context.Context) {
	due, err := s.campaignRepo.ListDueScheduled(ctx, utils.UTCNow(), utils.DispatchBatchSize)
	if err != nil {
		s.logger.Printf("failed to list due scheduled campaigns: %v", err)
		return
	}
	for _, campaign := range due {
		ok, err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusScheduled, models.CampaignStatusSending)
		if err != nil {
			s.logger.Printf("failed to start scheduled campaign %d: %v", campaign.ID, err)
			continue
		}
		if !ok {
			continue
		}
		if campaign.StartedAt == nil {
			fields := map[string]any{"started_at": utils.UTCNowPtr()}
			if err := s.campaignRepo.UpdateFields(ctx, campaign.ID, fields); err != nil {
				s.logger.Printf("failed to stamp start of campaign %d: %v", campaign.ID, err)
			}
		}
		s.logger.Printf("campaign %d entered sending (scheduled)", campaign.ID)
	}
}

// drainCampaign pushes the campaign's unprocessed contacts through the
// gateway in batches. Pause and stop are observed between contacts by
// re-reading the status at every batch boundary, never mid-send.
func (s *MessageDispatcher) drainCampaign(ctx context.Context, campaign *models.Campaign) {
	for {
		if ctx.Err() != nil {
			return
		}

		current, err := s.campaignRepo.ByID(ctx, campaign.ID)
		if err != nil {
			s.logger.Printf("failed to reload campaign %d: %v", campaign.ID, err)
			return
		}
		if current == nil || current.Status != models.CampaignStatusSending {
			return
		}

		contacts, err := s.contactRepo.ListUnprocessed(ctx, current.ContactListID, current.ID, utils.DispatchBatchSize)
		if err != nil {
			s.logger.Printf("failed to list contacts for campaign %d: %v", current.ID, err)
			return
		}
		if len(contacts) == 0 {
			s.finishIfDrained(ctx, current)
			return
		}

		sem := make(chan struct{}, s.workers)
		var wg sync.WaitGroup
		for _, contact := range contacts {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(contact *models.Contact) {
				defer wg.Done()
				defer func() { <-sem }()
				s.processContact(ctx, current, contact)
			}(contact)
		}
		wg.Wait()
	}
}

// finishIfDrained applies natural completion once every contact is accounted
// for. Messages still waiting in the retry queue keep the campaign open.
func (s *MessageDispatcher) finishIfDrained(ctx context.Context, campaign *models.Campaign) {
	current, err := s.campaignRepo.ByID(ctx, campaign.ID)
	if err != nil || current == nil {
		return
	}
	if !current.IsDrained() {
		return
	}
	if err := s.campaignFlow.MarkCompleted(ctx, current.ID); err != nil {
		s.logger.Printf("failed to complete campaign %d: %v", current.ID, err)
		return
	}
	campaignsCompletedTotal.Inc()
	s.logger.Printf("campaign %d completed: sent=%d failed=%d delivered=%d", current.ID, current.SentCount, current.FailedCount, current.DeliveredCount)
}

// processContact sends one message end to end. Rate and routing misses fail
// the single message, never the campaign.
func (s *MessageDispatcher) processContact(ctx context.Context, campaign *models.Campaign, contact *models.Contact) {
	to := utils.NormalizeNumber(contact.PhoneNumber)

	message := &models.Message{
		CustomerID: campaign.CustomerID,
		CampaignID: &campaign.ID,
		ContactID:  &contact.ID,
		To:         to,
		SenderID:   campaign.SenderID,
		Content:    campaign.MessageContent,
		Status:     models.MessageStatusPending,
		Currency:   utils.DefaultCurrency,
		MaxRetries: utils.DefaultMaxRetries,
	}

	resolved, err := s.rateFlow.ResolveRate(ctx, campaign.CustomerID, to)
	if err != nil {
		s.failMessage(ctx, message, fmt.Sprintf("rate resolution failed: %v", err))
		return
	}
	// price is stamped once and never recomputed
	message.Cost = resolved.Rate
	message.Currency = resolved.Currency
	message.Prefix = resolved.Prefix
	message.RateDeckID = &resolved.RateDeckID

	s.attemptSend(ctx, message)
}

// attemptSend routes and submits one message, classifying the outcome.
// The message row is saved whatever happens, so the contact is never
// dispatched twice.
func (s *MessageDispatcher) attemptSend(ctx context.Context, message *models.Message) {
	provider, assignment, err := s.routingFlow.SelectProvider(ctx, message.CustomerID, message.To)
	if err != nil {
		if businessflow.IsNoAvailableProvider(err) {
			// capacity may come back; spend a retry slot
			s.requeueOrFail(ctx, message, "no available provider")
			return
		}
		s.failMessage(ctx, message, fmt.Sprintf("provider routing failed: %v", err))
		return
	}
	message.ProviderID = &provider.ID

	gateway, ok := s.gateways.Get(provider.Name)
	if !ok {
		s.failMessage(ctx, message, fmt.Sprintf("no gateway configured for provider %s", provider.Name))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, utils.GatewaySendTimeout)
	result, err := gateway.Send(sendCtx, message.To, message.SenderID, message.Content)
	cancel()

	if sendErr := classifySend(result, err); sendErr != nil {
		if businessflow.IsTransientSendFailure(sendErr) {
			s.requeueOrFail(ctx, message, sendErr.Error())
		} else {
			s.failMessage(ctx, message, sendErr.Error())
		}
		return
	}

	message.Status = models.MessageStatusSent
	message.SentAt = utils.UTCNowPtr()
	message.ErrorMessage = nil
	if result.MessageID != "" {
		message.MessageID = &result.MessageID
	}
	if result.Cost != nil {
		message.Cost = *result.Cost
	}

	if err := s.saveMessage(ctx, message); err != nil {
		s.logger.Printf("failed to persist sent message to %s: %v", message.To, err)
		return
	}
	messagesDispatchedTotal.WithLabelValues("sent").Inc()

	if err := s.routingFlow.RecordUsage(ctx, assignment); err != nil {
		s.logger.Printf("failed to record usage for assignment %d: %v", assignment.ID, err)
	}
	if message.CampaignID != nil {
		if err := s.campaignRepo.IncrementCounters(ctx, *message.CampaignID, 1, 0, 0, message.Cost); err != nil {
			s.logger.Printf("failed to increment counters for campaign %d: %v", *message.CampaignID, err)
		}
	}

	// threshold billing is evaluated after every successful send
	if _, err := s.triggerFlow.EvaluateThreshold(ctx, message.CustomerID); err != nil {
		s.logger.Printf("threshold evaluation failed for customer %d: %v", message.CustomerID, err)
	}
}

// retryQueued re-attempts messages parked in the retry queue once their
// backoff has elapsed. Backoff doubles per attempt. Messages belonging to
// a campaign that left sending stay parked until it resumes.
func (s *MessageDispatcher) retryQueued(ctx context.Context) {
	messages, err := s.messageRepo.ListRetryable(ctx, utils.DispatchBatchSize)
	if err != nil {
		s.logger.Printf("failed to list retryable messages: %v", err)
		return
	}

	now := utils.UTCNow()
	sendable := make(map[uint]bool)
	for _, message := range messages {
		if ctx.Err() != nil {
			return
		}
		backoff := utils.RetryBackoffBase << uint(message.RetryCount)
		last := message.CreatedAt
		if message.UpdatedAt != nil {
			last = *message.UpdatedAt
		}
		if now.Sub(last) < backoff {
			continue
		}
		if message.CampaignID != nil && !s.campaignIsSending(ctx, *message.CampaignID, sendable) {
			continue
		}
		s.attemptSend(ctx, message)
	}
}

func (s *MessageDispatcher) campaignIsSending(ctx context.Context, campaignID uint, cache map[uint]bool) bool {
	if ok, seen := cache[campaignID]; seen {
		return ok
	}
	campaign, err := s.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		s.logger.Printf("failed to reload campaign %d: %v", campaignID, err)
		return false
	}
	ok := campaign != nil && campaign.Status == models.CampaignStatusSending
	cache[campaignID] = ok
	return ok
}

// requeueOrFail parks a transient failure in the retry queue, or fails it
// for good once the retry budget is spent.
func (s *MessageDispatcher) requeueOrFail(ctx context.Context, message *models.Message, reason string) {
	message.RetryCount++
	message.ErrorMessage = &reason
	if message.RetryCount < message.MaxRetries {
		message.Status = models.MessageStatusQueued
		if err := s.saveMessage(ctx, message); err != nil {
			s.logger.Printf("failed to requeue message to %s: %v", message.To, err)
		}
		return
	}
	s.failMessage(ctx, message, reason)
}

// failMessage settles a message as permanently failed and charges the
// campaign's failed counter.
func (s *MessageDispatcher) failMessage(ctx context.Context, message *models.Message, reason string) {
	message.Status = models.MessageStatusFailed
	message.ErrorMessage = &reason
	message.FailedAt = utils.UTCNowPtr()

	if err := s.saveMessage(ctx, message); err != nil {
		s.logger.Printf("failed to persist failed message to %s: %v", message.To, err)
		return
	}
	messagesDispatchedTotal.WithLabelValues("failed").Inc()
	if message.CampaignID != nil {
		if err := s.campaignRepo.IncrementCounters(ctx, *message.CampaignID, 0, 1, 0, 0); err != nil {
			s.logger.Printf("failed to increment counters for campaign %d: %v", *message.CampaignID, err)
		}
	}
}

func (s *MessageDispatcher) saveMessage(ctx context.Context, message *models.Message) error {
	if message.ID == 0 {
		return s.messageRepo.Save(ctx, message)
	}
	return s.messageRepo.Update(ctx, message)
}

// classifySend maps one gateway outcome onto the send failure sentinels.
// Transport failures and timeouts are transient, as are refusals the
// gateway does not mark permanent; nil means the message went out.
func classifySend(result *services.SendResult, err error) error {
	switch {
	case err != nil:
		if errors.Is(err, services.ErrGatewayUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", businessflow.ErrTransientSendFailure, err)
		}
		return fmt.Errorf("%w: %v", businessflow.ErrPermanentSendFailure, err)
	case !result.Success && result.Permanent:
		return fmt.Errorf("%w: %s", businessflow.ErrPermanentSendFailure, gatewayError(result))
	case !result.Success:
		return fmt.Errorf("%w: %s", businessflow.ErrTransientSendFailure, gatewayError(result))
	}
	return nil
}

func gatewayError(result *services.SendResult) string {
	if result.ErrorText != "" {
		return result.ErrorText
	}
	if result.ErrorCode != "" {
		return "gateway error " + result.ErrorCode
	}
	return "gateway rejected the message"
}
