package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/iterator"

	domain "github.com/oakmart/api/internal/domain"
	pfirestore "github.com/oakmart/api/internal/platform/firestore"
)

const discountUsagesCollection = "discountUsages"

// DiscountUsageRepository appends redemption ledger entries and counts them
// for limit enforcement. Entries are written once on confirmed payment and
// never mutated.
type DiscountUsageRepository struct {
	provider *pfirestore.Provider
	usages   *pfirestore.BaseRepository[discountUsageDocument]
}

func NewDiscountUsageRepository(provider *pfirestore.Provider) (*DiscountUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("discount usage repository requires firestore provider")
	}
	usages := pfirestore.NewBaseRepository[discountUsageDocument](provider, discountUsagesCollection, nil, nil)
	return &DiscountUsageRepository{provider: provider, usages: usages}, nil
}

func (r *DiscountUsageRepository) Append(ctx context.Context, usage domain.DiscountUsage) error {
	if r == nil || r.usages == nil {
		return errors.New("discount usage repository not initialised")
	}
	if strings.TrimSpace(usage.ID) == "" {
		return errors.New("discount usage append: id is required")
	}
	if strings.TrimSpace(usage.SourceRef) == "" {
		return errors.New("discount usage append: source ref is required")
	}

	doc := discountUsageDocument{
		SourceType: string(usage.SourceType),
		SourceRef:  strings.TrimSpace(usage.SourceRef),
		UserRef:    strings.TrimSpace(usage.UserID),
		OrderRef:   strings.TrimSpace(usage.OrderRef),
		Amount:     usage.Amount,
		UsedAt:     usage.UsedAt.UTC(),
	}
	_, err := r.usages.Set(ctx, usage.ID, doc)
	return err
}

func (r *DiscountUsageRepository) CountBySource(ctx context.Context, sourceType domain.DiscountSourceType, sourceRef string) (int, error) {
	return r.count(ctx, sourceType, sourceRef, "")
}

func (r *DiscountUsageRepository) CountBySourceAndUser(ctx context.Context, sourceType domain.DiscountSourceType, sourceRef string, userID string) (int, error) {
	return r.count(ctx, sourceType, sourceRef, strings.TrimSpace(userID))
}

func (r *DiscountUsageRepository) count(ctx context.Context, sourceType domain.DiscountSourceType, sourceRef string, userID string) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("discount usage repository not initialised")
	}
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return 0, errors.New("discount usage count: source ref is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("discountUsages.count", err)
	}

	query := client.Collection(discountUsagesCollection).
		Where("sourceType", "==", string(sourceType)).
		Where("sourceRef", "==", sourceRef)
	if userID != "" {
		query = query.Where("userRef", "==", userID)
	}

	iter := query.Select().Documents(ctx)
	defer iter.Stop()

	total := 0
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, pfirestore.WrapError("discountUsages.count", err)
		}
		total++
	}
	return total, nil
}

// Document structures -------------------------------------------------------

type discountUsageDocument struct {
	SourceType string    `firestore:"sourceType"`
	SourceRef  string    `firestore:"sourceRef"`
	UserRef    string    `firestore:"userRef"`
	OrderRef   string    `firestore:"orderRef"`
	Amount     int64     `firestore:"amount"`
	UsedAt     time.Time `firestore:"usedAt"`
}

func (d discountUsageDocument) toDomain(id string) domain.DiscountUsage {
	return domain.DiscountUsage{
		ID:         id,
		SourceType: domain.DiscountSourceType(d.SourceType),
		SourceRef:  d.SourceRef,
		UserID:     d.UserRef,
		OrderRef:   d.OrderRef,
		Amount:     d.Amount,
		UsedAt:     d.UsedAt,
	}
}
