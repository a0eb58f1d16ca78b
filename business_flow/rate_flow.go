package businessflow

import (
	"context"
	"fmt"

	"sms-backend/models"
	"sms-backend/repository"
	"sms-backend/utils"
)

// ResolvedRate is the price entry matched for one destination. Prefix and
// rate are stamped on the message at send time and never recomputed.
type ResolvedRate struct {
	Rate       float64
	Prefix     string
	Currency   string
	RateDeckID uint
}

// RateFlow resolves the per-message price for a destination number
type RateFlow interface {
	ResolveRate(ctx context.Context, customerID uint, destination string) (*ResolvedRate, error)
}

// RateFlowImpl implements longest-prefix rate resolution over the customer's
// assigned SMS rate deck
type RateFlowImpl struct {
	rateDeckRepo repository.RateDeckRepository
}

// NewRateFlow creates a new rate flow instance
func NewRateFlow(rateDeckRepo repository.RateDeckRepository) RateFlow {
	return &RateFlowImpl{rateDeckRepo: rateDeckRepo}
}

func (s *RateFlowImpl) ResolveRate(ctx context.Context, customerID uint, destination string) (*ResolvedRate, error) {
	deck, err := s.rateDeckRepo.ByCustomerAndService(ctx, customerID, models.RateDeckServiceSMS)
	if err != nil {
		return nil, fmt.Errorf("failed to find rate deck: %w", err)
	}
	if deck == nil {
		return nil, NewBusinessError("NO_RATE_DECK", "No SMS rate deck assigned", ErrNoRateDeckAssigned)
	}

	number := utils.NormalizeNumber(destination)
	rate, err := s.rateDeckRepo.LongestPrefixRate(ctx, deck.ID, number)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rate: %w", err)
	}
	if rate == nil {
		return nil, NewBusinessError("NO_RATE_FOR_PREFIX", fmt.Sprintf("No rate for destination %s", number), ErrNoRateForPrefix)
	}

	return &ResolvedRate{
		Rate:       rate.Rate,
		Prefix:     rate.Prefix,
		Currency:   deck.Currency,
		RateDeckID: deck.ID,
	}, nil
}
