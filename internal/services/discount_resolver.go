package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/oakmart/api/internal/domain"
	"github.com/oakmart/api/internal/repositories"
)

var (
	// ErrDiscountInvalidInput signals the caller provided invalid data.
	ErrDiscountInvalidInput = errors.New("discount: invalid input")
	// ErrDiscountNotFound indicates the coupon code or campaign does not exist.
	ErrDiscountNotFound = errors.New("discount: not found")
	// ErrDiscountInactive indicates the discount source has been disabled.
	ErrDiscountInactive = errors.New("discount: inactive")
	// ErrDiscountNotStarted indicates the validity window has not opened yet.
	ErrDiscountNotStarted = errors.New("discount: not started")
	// ErrDiscountExpired indicates the validity window has closed.
	ErrDiscountExpired = errors.New("discount: expired")
	// ErrDiscountMinOrder indicates the subtotal is below the minimum order amount.
	ErrDiscountMinOrder = errors.New("discount: minimum order amount not met")
	// ErrDiscountExhausted indicates the global usage cap has been reached.
	ErrDiscountExhausted = errors.New("discount: usage limit reached")
	// ErrDiscountUserLimit indicates the per-user usage cap has been reached.
	ErrDiscountUserLimit = errors.New("discount: per-user usage limit reached")
	// ErrDiscountUnavailable indicates discount dependencies are unavailable.
	ErrDiscountUnavailable = errors.New("discount: unavailable")
)

// DiscountResolverDeps wires the repositories required by the resolver.
type DiscountResolverDeps struct {
	Coupons   repositories.CouponRepository
	Campaigns repositories.CampaignRepository
	Usages    repositories.DiscountUsageRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type discountResolver struct {
	coupons   repositories.CouponRepository
	campaigns repositories.CampaignRepository
	usages    repositories.DiscountUsageRepository
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewDiscountResolver constructs a DiscountService validating required dependencies.
func NewDiscountResolver(deps DiscountResolverDeps) (DiscountService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("discount resolver: coupon repository is required")
	}
	if deps.Campaigns == nil {
		return nil, errors.New("discount resolver: campaign repository is required")
	}
	if deps.Usages == nil {
		return nil, errors.New("discount resolver: usage repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &discountResolver{
		coupons:   deps.Coupons,
		campaigns: deps.Campaigns,
		usages:    deps.Usages,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Resolve picks the discount source for an order amount. Precedence: explicit
// coupon code, then explicit campaign, then the best eligible auto-apply
// campaign. Coupon and campaign are mutually exclusive per order; a nil
// snapshot with nil error means no discount applies.
func (r *discountResolver) Resolve(ctx context.Context, cmd ResolveDiscountCommand) (*DiscountSnapshot, error) {
	if cmd.Subtotal < 0 {
		return nil, fmt.Errorf("%w: subtotal must not be negative", ErrDiscountInvalidInput)
	}

	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		return r.resolveCoupon(ctx, code, cmd)
	}
	if campaignID := strings.TrimSpace(cmd.CampaignID); campaignID != "" {
		return r.resolveCampaign(ctx, campaignID, cmd)
	}
	return r.resolveAutoCampaign(ctx, cmd)
}

func (r *discountResolver) resolveCoupon(ctx context.Context, code string, cmd ResolveDiscountCommand) (*DiscountSnapshot, error) {
	coupon, err := r.coupons.FindByCode(ctx, code)
	if err != nil {
		return nil, r.mapRepositoryError(err)
	}

	terms := discountTerms{
		sourceType:     domain.DiscountSourceCoupon,
		sourceRef:      coupon.ID,
		isActive:       coupon.IsActive,
		startsAt:       coupon.StartsAt,
		endsAt:         coupon.EndsAt,
		minOrderAmount: coupon.MinOrderAmount,
		usageLimit:     coupon.UsageLimit,
		perUserLimit:   coupon.PerUserLimit,
	}
	if err := r.checkEligibility(ctx, terms, cmd); err != nil {
		return nil, err
	}

	amount := computeDiscountAmount(coupon.Type, coupon.Value, coupon.MaxDiscount, cmd.Subtotal)
	return &DiscountSnapshot{
		SourceType: domain.DiscountSourceCoupon,
		SourceRef:  coupon.ID,
		Code:       coupon.Code,
		Name:       coupon.Name,
		Type:       coupon.Type,
		Value:      coupon.Value,
		Amount:     amount,
	}, nil
}

func (r *discountResolver) resolveCampaign(ctx context.Context, campaignID string, cmd ResolveDiscountCommand) (*DiscountSnapshot, error) {
	campaign, err := r.campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return nil, r.mapRepositoryError(err)
	}
	if err := r.checkEligibility(ctx, campaignTerms(campaign), cmd); err != nil {
		return nil, err
	}
	return campaignSnapshot(campaign, cmd.Subtotal), nil
}

// resolveAutoCampaign evaluates all currently eligible auto-apply campaigns
// and selects the highest-priority one, ties broken by larger discount.
// An ineligible candidate is skipped, never surfaced as an error.
func (r *discountResolver) resolveAutoCampaign(ctx context.Context, cmd ResolveDiscountCommand) (*DiscountSnapshot, error) {
	candidates, err := r.campaigns.ListAutoApply(ctx, r.now())
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, nil
		}
		return nil, r.mapRepositoryError(err)
	}

	var best *domain.Campaign
	var bestAmount int64
	for i := range candidates {
		candidate := candidates[i]
		if err := r.checkEligibility(ctx, campaignTerms(candidate), cmd); err != nil {
			if errors.Is(err, ErrDiscountUnavailable) {
				return nil, err
			}
			continue
		}
		amount := computeDiscountAmount(candidate.Type, candidate.Value, candidate.MaxDiscount, cmd.Subtotal)
		if amount <= 0 {
			continue
		}
		if best == nil || candidate.Priority > best.Priority || (candidate.Priority == best.Priority && amount > bestAmount) {
			best = &candidates[i]
			bestAmount = amount
		}
	}
	if best == nil {
		return nil, nil
	}
	return campaignSnapshot(*best, cmd.Subtotal), nil
}

type discountTerms struct {
	sourceType     domain.DiscountSourceType
	sourceRef      string
	isActive       bool
	startsAt       time.Time
	endsAt         time.Time
	minOrderAmount int64
	usageLimit     int
	perUserLimit   int
}

func campaignTerms(campaign domain.Campaign) discountTerms {
	return discountTerms{
		sourceType:     domain.DiscountSourceCampaign,
		sourceRef:      campaign.ID,
		isActive:       campaign.IsActive,
		startsAt:       campaign.StartsAt,
		endsAt:         campaign.EndsAt,
		minOrderAmount: campaign.MinOrderAmount,
		usageLimit:     campaign.UsageLimit,
		perUserLimit:   campaign.PerUserLimit,
	}
}

func campaignSnapshot(campaign domain.Campaign, subtotal int64) *DiscountSnapshot {
	return &DiscountSnapshot{
		SourceType: domain.DiscountSourceCampaign,
		SourceRef:  campaign.ID,
		Name:       campaign.Name,
		Type:       campaign.Type,
		Value:      campaign.Value,
		Amount:     computeDiscountAmount(campaign.Type, campaign.Value, campaign.MaxDiscount, subtotal),
	}
}

func (r *discountResolver) checkEligibility(ctx context.Context, terms discountTerms, cmd ResolveDiscountCommand) error {
	if !terms.isActive {
		return ErrDiscountInactive
	}

	now := r.now()
	if !terms.startsAt.IsZero() && now.Before(terms.startsAt) {
		return ErrDiscountNotStarted
	}
	if !terms.endsAt.IsZero() && now.After(terms.endsAt) {
		return ErrDiscountExpired
	}
	if terms.minOrderAmount > 0 && cmd.Subtotal < terms.minOrderAmount {
		return ErrDiscountMinOrder
	}

	if terms.usageLimit > 0 {
		used, err := r.usages.CountBySource(ctx, terms.sourceType, terms.sourceRef)
		if err != nil {
			return r.mapRepositoryError(err)
		}
		if used >= terms.usageLimit {
			return ErrDiscountExhausted
		}
	}
	if terms.perUserLimit > 0 && strings.TrimSpace(cmd.UserID) != "" {
		used, err := r.usages.CountBySourceAndUser(ctx, terms.sourceType, terms.sourceRef, cmd.UserID)
		if err != nil {
			return r.mapRepositoryError(err)
		}
		if used >= terms.perUserLimit {
			return ErrDiscountUserLimit
		}
	}

	return nil
}

// computeDiscountAmount applies the discount value to the subtotal, capped at
// maxDiscount when set and never exceeding the subtotal itself.
func computeDiscountAmount(discountType domain.DiscountType, value, maxDiscount, subtotal int64) int64 {
	if subtotal <= 0 || value <= 0 {
		return 0
	}

	var amount int64
	switch discountType {
	case domain.DiscountTypePercentage:
		amount = subtotal * value / 100
	case domain.DiscountTypeFixed:
		amount = value
	default:
		return 0
	}

	if maxDiscount > 0 && amount > maxDiscount {
		amount = maxDiscount
	}
	if amount > subtotal {
		amount = subtotal
	}
	return amount
}

func (r *discountResolver) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDiscountNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
}
