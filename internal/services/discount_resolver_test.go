package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/oakmart/api/internal/domain"
)

func testResolver(t *testing.T, coupons *stubCouponRepository, campaigns *stubCampaignRepository, usages *stubUsageRepository, now time.Time) DiscountService {
	t.Helper()
	if coupons == nil {
		coupons = &stubCouponRepository{err: &stubRepoError{notFound: true}}
	}
	if campaigns == nil {
		campaigns = &stubCampaignRepository{}
	}
	if usages == nil {
		usages = &stubUsageRepository{}
	}
	svc, err := NewDiscountResolver(DiscountResolverDeps{
		Coupons:   coupons,
		Campaigns: campaigns,
		Usages:    usages,
		Clock: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatalf("NewDiscountResolver: %v", err)
	}
	return svc
}

func validCoupon(now time.Time) domain.Coupon {
	return domain.Coupon{
		ID:       "cpn_1",
		Code:     "SAVE10",
		Name:     "Save 10%",
		Type:     domain.DiscountTypePercentage,
		Value:    10,
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
		IsActive: true,
	}
}

func TestDiscountResolver_Resolve_PercentageCoupon(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coupons := &stubCouponRepository{coupon: validCoupon(now)}
	svc := testResolver(t, coupons, nil, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{
		UserID:     "user-1",
		Subtotal:   10000,
		CouponCode: "save10",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot == nil {
		t.Fatalf("expected snapshot")
	}
	if snapshot.SourceType != domain.DiscountSourceCoupon {
		t.Fatalf("unexpected source type %s", snapshot.SourceType)
	}
	if snapshot.Amount != 1000 {
		t.Fatalf("expected amount 1000 got %d", snapshot.Amount)
	}
	if snapshot.Code != "SAVE10" {
		t.Fatalf("unexpected code %q", snapshot.Code)
	}
}

func TestDiscountResolver_Resolve_MaxDiscountCap(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coupon := validCoupon(now)
	coupon.MaxDiscount = 500
	coupons := &stubCouponRepository{coupon: coupon}
	svc := testResolver(t, coupons, nil, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 10000, CouponCode: "SAVE10"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot.Amount != 500 {
		t.Fatalf("expected capped amount 500 got %d", snapshot.Amount)
	}
}

func TestDiscountResolver_Resolve_FixedNeverExceedsSubtotal(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coupon := validCoupon(now)
	coupon.Type = domain.DiscountTypeFixed
	coupon.Value = 5000
	coupons := &stubCouponRepository{coupon: coupon}
	svc := testResolver(t, coupons, nil, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 3000, CouponCode: "SAVE10"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot.Amount != 3000 {
		t.Fatalf("expected amount clamped to subtotal, got %d", snapshot.Amount)
	}
}

func TestDiscountResolver_Resolve_MinOrderBoundary(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coupon := validCoupon(now)
	coupon.MinOrderAmount = 100
	coupons := &stubCouponRepository{coupon: coupon}
	svc := testResolver(t, coupons, nil, nil, now)

	if _, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 99, CouponCode: "SAVE10"}); !errors.Is(err, ErrDiscountMinOrder) {
		t.Fatalf("expected ErrDiscountMinOrder at 99 got %v", err)
	}

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 100, CouponCode: "SAVE10"})
	if err != nil {
		t.Fatalf("Resolve at exact minimum returned error: %v", err)
	}
	if snapshot.Amount != 10 {
		t.Fatalf("expected amount 10 at subtotal 100 got %d", snapshot.Amount)
	}
}

func TestDiscountResolver_Resolve_WindowAndActiveChecks(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	coupon := validCoupon(now)
	coupon.StartsAt = now.Add(time.Hour)
	svc := testResolver(t, &stubCouponRepository{coupon: coupon}, nil, nil, now)
	if _, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 100, CouponCode: "SAVE10"}); !errors.Is(err, ErrDiscountNotStarted) {
		t.Fatalf("expected ErrDiscountNotStarted got %v", err)
	}

	coupon = validCoupon(now)
	coupon.EndsAt = now.Add(-time.Minute)
	svc = testResolver(t, &stubCouponRepository{coupon: coupon}, nil, nil, now)
	if _, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 100, CouponCode: "SAVE10"}); !errors.Is(err, ErrDiscountExpired) {
		t.Fatalf("expected ErrDiscountExpired got %v", err)
	}

	coupon = validCoupon(now)
	coupon.IsActive = false
	svc = testResolver(t, &stubCouponRepository{coupon: coupon}, nil, nil, now)
	if _, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 100, CouponCode: "SAVE10"}); !errors.Is(err, ErrDiscountInactive) {
		t.Fatalf("expected ErrDiscountInactive got %v", err)
	}
}

func TestDiscountResolver_Resolve_UsageCaps(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	coupon := validCoupon(now)
	coupon.UsageLimit = 5
	usages := &stubUsageRepository{bySource: map[string]int{usageKey(domain.DiscountSourceCoupon, "cpn_1"): 5}}
	svc := testResolver(t, &stubCouponRepository{coupon: coupon}, nil, usages, now)
	if _, err := svc.Resolve(context.Background(), ResolveDiscountCommand{UserID: "user-1", Subtotal: 100, CouponCode: "SAVE10"}); !errors.Is(err, ErrDiscountExhausted) {
		t.Fatalf("expected ErrDiscountExhausted got %v", err)
	}

	coupon = validCoupon(now)
	coupon.PerUserLimit = 1
	usages = &stubUsageRepository{byUser: map[string]int{usageKey(domain.DiscountSourceCoupon, "cpn_1") + "/user-1": 1}}
	svc = testResolver(t, &stubCouponRepository{coupon: coupon}, nil, usages, now)
	if _, err := svc.Resolve(context.Background(), ResolveDiscountCommand{UserID: "user-1", Subtotal: 100, CouponCode: "SAVE10"}); !errors.Is(err, ErrDiscountUserLimit) {
		t.Fatalf("expected ErrDiscountUserLimit got %v", err)
	}
}

func TestDiscountResolver_Resolve_UnknownCoupon(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coupons := &stubCouponRepository{err: &stubRepoError{notFound: true}}
	svc := testResolver(t, coupons, nil, nil, now)

	if _, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 100, CouponCode: "NOPE"}); !errors.Is(err, ErrDiscountNotFound) {
		t.Fatalf("expected ErrDiscountNotFound got %v", err)
	}
}

func TestDiscountResolver_Resolve_AutoCampaignPriorityAndTies(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	campaigns := &stubCampaignRepository{
		auto: []domain.Campaign{
			{
				ID: "cmp_low", Name: "Low", Type: domain.DiscountTypeFixed, Value: 900,
				Priority: 1, AutoApply: true, IsActive: true,
				StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
			},
			{
				ID: "cmp_small", Name: "Small", Type: domain.DiscountTypeFixed, Value: 200,
				Priority: 5, AutoApply: true, IsActive: true,
				StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
			},
			{
				ID: "cmp_big", Name: "Big", Type: domain.DiscountTypeFixed, Value: 400,
				Priority: 5, AutoApply: true, IsActive: true,
				StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
			},
		},
	}
	svc := testResolver(t, nil, campaigns, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{UserID: "user-1", Subtotal: 10000})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot == nil {
		t.Fatalf("expected auto campaign snapshot")
	}
	if snapshot.SourceRef != "cmp_big" {
		t.Fatalf("expected highest priority with larger discount, got %s", snapshot.SourceRef)
	}
	if snapshot.Amount != 400 {
		t.Fatalf("unexpected amount %d", snapshot.Amount)
	}
}

func TestDiscountResolver_Resolve_AutoCampaignSkipsIneligible(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	campaigns := &stubCampaignRepository{
		auto: []domain.Campaign{
			{
				ID: "cmp_minorder", Name: "High roller", Type: domain.DiscountTypeFixed, Value: 2000,
				MinOrderAmount: 50000, Priority: 9, AutoApply: true, IsActive: true,
				StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
			},
			{
				ID: "cmp_ok", Name: "OK", Type: domain.DiscountTypeFixed, Value: 300,
				Priority: 1, AutoApply: true, IsActive: true,
				StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
			},
		},
	}
	svc := testResolver(t, nil, campaigns, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 10000})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot == nil || snapshot.SourceRef != "cmp_ok" {
		t.Fatalf("expected cmp_ok, got %+v", snapshot)
	}
}

func TestDiscountResolver_Resolve_NoDiscount(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc := testResolver(t, nil, &stubCampaignRepository{}, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 100})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected nil snapshot, got %+v", snapshot)
	}
}

func TestDiscountResolver_Resolve_ExplicitCampaign(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	campaigns := &stubCampaignRepository{
		campaign: domain.Campaign{
			ID: "cmp_1", Name: "March", Type: domain.DiscountTypePercentage, Value: 20,
			IsActive: true, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour),
		},
	}
	svc := testResolver(t, nil, campaigns, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{Subtotal: 1000, CampaignID: "cmp_1"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot.SourceType != domain.DiscountSourceCampaign || snapshot.Amount != 200 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestDiscountResolver_Resolve_CouponTakesPrecedence(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coupons := &stubCouponRepository{coupon: validCoupon(now)}
	campaigns := &stubCampaignRepository{
		campaign: domain.Campaign{ID: "cmp_1", IsActive: true, Type: domain.DiscountTypeFixed, Value: 9999},
	}
	svc := testResolver(t, coupons, campaigns, nil, now)

	snapshot, err := svc.Resolve(context.Background(), ResolveDiscountCommand{
		Subtotal:   1000,
		CouponCode: "SAVE10",
		CampaignID: "cmp_1",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if snapshot.SourceType != domain.DiscountSourceCoupon {
		t.Fatalf("expected coupon to win, got %s", snapshot.SourceType)
	}
}
