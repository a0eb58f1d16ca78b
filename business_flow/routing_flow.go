package businessflow

import (
	"context"
	"fmt"

	"sms-backend/app/services"
	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// RoutingFlow selects the provider assignment a message goes out through.
type RoutingFlow interface {
	// SelectProvider walks the customer's active assignments in ascending
	// priority and returns the first one with daily/monthly headroom whose
	// provider's rolling windows admit one more send. The window slot is
	// consumed at admission time. None surviving means ErrNoAvailableProvider.
	SelectProvider(ctx context.Context, customerID uint, destination string) (*models.Provider, *models.ProviderAssignment, error)
	// RecordUsage charges the send against the chosen assignment's daily and
	// monthly counters.
	RecordUsage(ctx context.Context, assignment *models.ProviderAssignment) error
}

// RoutingFlowImpl implements the provider routing business flow
type RoutingFlowImpl struct {
	assignmentRepo repository.ProviderAssignmentRepository
	providerRepo   repository.ProviderRepository
	rateLimiter    services.RateLimiter
}

// NewRoutingFlow creates a new routing flow instance
func NewRoutingFlow(
	assignmentRepo repository.ProviderAssignmentRepository,
	providerRepo repository.ProviderRepository,
	rateLimiter services.RateLimiter,
) RoutingFlow {
	return &RoutingFlowImpl{
		assignmentRepo: assignmentRepo,
		providerRepo:   providerRepo,
		rateLimiter:    rateLimiter,
	}
}

func (s *RoutingFlowImpl) SelectProvider(ctx context.Context, customerID uint, destination string) (*models.Provider, *models.ProviderAssignment, error) {
	assignments, err := s.assignmentRepo.ListActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list provider assignments: %w", err)
	}

	now := utils.UTCNow()
	providers := make(map[uint]*models.Provider, len(assignments))

	for _, assignment := range assignments {
		// watermark-aware capacity: usage counts as zero once the stored
		// reset boundary has been crossed
		if !assignment.HasDailyCapacity(now) || !assignment.HasMonthlyCapacity(now) {
			continue
		}

		provider, ok := providers[assignment.ProviderID]
		if !ok {
			provider, err = s.providerRepo.ByID(ctx, assignment.ProviderID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to find provider %d: %w", assignment.ProviderID, err)
			}
			providers[assignment.ProviderID] = provider
		}
		if provider == nil || !utils.IsTrue(provider.IsActive) {
			continue
		}

		admitted, err := s.rateLimiter.Allow(ctx, provider.ID, provider.RateLimitPerSecond, provider.RateLimitPerMinute, provider.RateLimitPerHour)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check rate limit for provider %d: %w", provider.ID, err)
		}
		if !admitted {
			continue
		}

		return provider, assignment, nil
	}

	return nil, nil, NewBusinessError("NO_AVAILABLE_PROVIDER", "No provider can take this message", ErrNoAvailableProvider)
}

func (s *RoutingFlowImpl) RecordUsage(ctx context.Context, assignment *models.ProviderAssignment) error {
	if err := s.assignmentRepo.RecordUsage(ctx, assignment.ID, utils.UTCNow()); err != nil {
		return fmt.Errorf("failed to record provider usage: %w", err)
	}
	return nil
}
