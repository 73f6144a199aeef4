package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
)

const (
	couponsCollection   = "coupons"
	campaignsCollection = "campaigns"
)

// CouponRepository resolves coupon documents by code or ID. Codes are stored
// uppercased in a dedicated field so lookups stay case-insensitive.
type CouponRepository struct {
	coupons *pfirestore.BaseRepository[couponDocument]
}

func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		coupons: pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil, nil),
	}, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Coupon{}, pfirestore.WrapError("coupons.findByCode", status.Error(codes.NotFound, "coupon code is empty"))
	}

	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.WrapError("coupons.findByCode", status.Errorf(codes.NotFound, "no coupon with code %q", code))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	doc, err := r.coupons.Get(ctx, strings.TrimSpace(couponID))
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// CampaignRepository resolves campaign documents, including the auto-applied
// set evaluated on every checkout without a coupon code.
type CampaignRepository struct {
	campaigns *pfirestore.BaseRepository[campaignDocument]
}

func NewCampaignRepository(provider *pfirestore.Provider) (*CampaignRepository, error) {
	if provider == nil {
		return nil, errors.New("campaign repository requires firestore provider")
	}
	return &CampaignRepository{
		campaigns: pfirestore.NewBaseRepository[campaignDocument](provider, campaignsCollection, nil, nil),
	}, nil
}

func (r *CampaignRepository) FindByID(ctx context.Context, campaignID string) (domain.Campaign, error) {
	if r == nil || r.campaigns == nil {
		return domain.Campaign{}, errors.New("campaign repository not initialised")
	}
	doc, err := r.campaigns.Get(ctx, strings.TrimSpace(campaignID))
	if err != nil {
		return domain.Campaign{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListAutoApply returns active auto-apply campaigns whose window covers now.
// The upper bound of the window is checked in memory since Firestore limits
// range filters to a single field per query.
func (r *CampaignRepository) ListAutoApply(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	if r == nil || r.campaigns == nil {
		return nil, errors.New("campaign repository not initialised")
	}
	now = now.UTC()

	docs, err := r.campaigns.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("autoApply", "==", true).
			Where("isActive", "==", true).
			Where("startsAt", "<=", now)
	})
	if err != nil {
		return nil, err
	}

	var campaigns []domain.Campaign
	for _, doc := range docs {
		campaign := doc.Data.toDomain(doc.ID)
		if campaign.EndsAt.Before(now) {
			continue
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, nil
}

// Document structures -------------------------------------------------------

type couponDocument struct {
	Code           string    `firestore:"code"`
	Name           string    `firestore:"name"`
	Type           string    `firestore:"type"`
	Value          int64     `firestore:"value"`
	MinOrderAmount int64     `firestore:"minOrderAmount"`
	MaxDiscount    int64     `firestore:"maxDiscount"`
	StartsAt       time.Time `firestore:"startsAt"`
	EndsAt         time.Time `firestore:"endsAt"`
	UsageLimit     int       `firestore:"usageLimit"`
	PerUserLimit   int       `firestore:"perUserLimit"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	return domain.Coupon{
		ID:             id,
		Code:           d.Code,
		Name:           d.Name,
		Type:           domain.DiscountType(d.Type),
		Value:          d.Value,
		MinOrderAmount: d.MinOrderAmount,
		MaxDiscount:    d.MaxDiscount,
		StartsAt:       d.StartsAt,
		EndsAt:         d.EndsAt,
		UsageLimit:     d.UsageLimit,
		PerUserLimit:   d.PerUserLimit,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type campaignDocument struct {
	Name           string    `firestore:"name"`
	Type           string    `firestore:"type"`
	Value          int64     `firestore:"value"`
	MinOrderAmount int64     `firestore:"minOrderAmount"`
	MaxDiscount    int64     `firestore:"maxDiscount"`
	StartsAt       time.Time `firestore:"startsAt"`
	EndsAt         time.Time `firestore:"endsAt"`
	UsageLimit     int       `firestore:"usageLimit"`
	PerUserLimit   int       `firestore:"perUserLimit"`
	Priority       int       `firestore:"priority"`
	AutoApply      bool      `firestore:"autoApply"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func (d campaignDocument) toDomain(id string) domain.Campaign {
	return domain.Campaign{
		ID:             id,
		Name:           d.Name,
		Type:           domain.DiscountType(d.Type),
		Value:          d.Value,
		MinOrderAmount: d.MinOrderAmount,
		MaxDiscount:    d.MaxDiscount,
		StartsAt:       d.StartsAt,
		EndsAt:         d.EndsAt,
		UsageLimit:     d.UsageLimit,
		PerUserLimit:   d.PerUserLimit,
		Priority:       d.Priority,
		AutoApply:      d.AutoApply,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
