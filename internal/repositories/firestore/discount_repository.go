package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hogtech/orderflow/internal/domain"
	pfirestore "github.com/hogtech/orderflow/internal/platform/firestore"
	"github.com/hogtech/orderflow/internal/repositories"
)

const discountsCollection = "discounts"

// DiscountRepository implements repositories.DiscountRepository.
type DiscountRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[discountDocument]
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection, nil, nil)
	return &DiscountRepository{provider: provider, base: base}, nil
}

// FindByCode resolves a discount by its upper-cased code.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	if r == nil || r.base == nil {
		return domain.Discount{}, errors.New("discount repository not initialised")
	}
	code = domain.NormalizeDiscountCode(code)
	if code == "" {
		return domain.Discount{}, pfirestore.NotFoundError("discounts.find_by_code", "code is required")
	}
	doc, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code)
	})
	if err != nil {
		return domain.Discount{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// IncrementUsage bumps usedCount while it stays below usageLimit. When ctx carries a unit of
// work the read and write join it; otherwise a dedicated transaction runs.
func (r *DiscountRepository) IncrementUsage(ctx context.Context, discountID string) error {
	if r == nil || r.provider == nil {
		return errors.New("discount repository not initialised")
	}
	discountID = strings.TrimSpace(discountID)
	if discountID == "" {
		return repositories.NewDiscountError(repositories.DiscountErrorNotFound, "discount id is required", nil)
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, discountID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewDiscountError(repositories.DiscountErrorNotFound, fmt.Sprintf("discount %s not found", discountID), err)
			}
			return err
		}
		var doc discountDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode discount %s: %w", discountID, err)
		}
		if doc.UsageLimit != nil && doc.UsedCount >= *doc.UsageLimit {
			return repositories.NewDiscountError(repositories.DiscountErrorUsageExhausted, fmt.Sprintf("discount %s usage limit reached", discountID), nil)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "usedCount", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	}

	var err error
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		err = apply(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, apply)
	}
	if err != nil {
		var discountErr *repositories.DiscountError
		if errors.As(err, &discountErr) {
			discountErr.Op = "discounts.increment_usage"
			return discountErr
		}
		return pfirestore.WrapError("discounts.increment_usage", err)
	}
	return nil
}

type discountDocument struct {
	Code            string     `firestore:"code"`
	Name            string     `firestore:"name,omitempty"`
	Type            string     `firestore:"type"`
	Value           float64    `firestore:"value"`
	MinimumAmount   float64    `firestore:"minimumAmount"`
	MaximumDiscount *float64   `firestore:"maximumDiscount"`
	AppliesTo       string     `firestore:"appliesTo"`
	IsActive        bool       `firestore:"isActive"`
	ValidFrom       *time.Time `firestore:"validFrom"`
	ValidUntil      *time.Time `firestore:"validUntil"`
	UsageLimit      *int       `firestore:"usageLimit"`
	UsedCount       int        `firestore:"usedCount"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}

func (d discountDocument) toDomain(id string) domain.Discount {
	return domain.Discount{
		ID:              id,
		Code:            domain.NormalizeDiscountCode(d.Code),
		Name:            d.Name,
		Type:            domain.DiscountType(strings.ToLower(strings.TrimSpace(d.Type))),
		Value:           d.Value,
		MinimumAmount:   d.MinimumAmount,
		MaximumDiscount: d.MaximumDiscount,
		AppliesTo:       domain.ParseDiscountScope(d.AppliesTo),
		IsActive:        d.IsActive,
		ValidFrom:       utcPtr(d.ValidFrom),
		ValidUntil:      utcPtr(d.ValidUntil),
		UsageLimit:      d.UsageLimit,
		UsedCount:       d.UsedCount,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}
