package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hogtech/orderflow/internal/domain"
	pfirestore "github.com/hogtech/orderflow/internal/platform/firestore"
)

const (
	productsCollection = "products"
	dealsCollection    = "deals"
)

type productDocument struct {
	Name          string  `firestore:"name"`
	Price         float64 `firestore:"price"`
	StockQuantity int     `firestore:"stockQuantity"`
	InStock       bool    `firestore:"inStock"`
}

type dealDocument struct {
	Title         string  `firestore:"title"`
	Description   string  `firestore:"description,omitempty"`
	Price         float64 `firestore:"price"`
	OriginalPrice float64 `firestore:"originalPrice"`
	ImageURL      string  `firestore:"imageUrl,omitempty"`
	StockQuantity int     `firestore:"stockQuantity"`
	IsActive      bool    `firestore:"isActive"`
}

// ProductRepository implements repositories.ProductRepository.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product reader.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, base: base}, nil
}

// FindByIDs batch-loads products. Missing ids are left out of the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	result := make(map[string]domain.Product, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	var snaps []*firestore.DocumentSnapshot
	var err error
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		client, clientErr := r.provider.Client(ctx)
		if clientErr != nil {
			return nil, clientErr
		}
		snaps, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, pfirestore.WrapError("products.get_all", err)
	}

	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		result[snap.Ref.ID] = domain.Product{
			ID:            snap.Ref.ID,
			Name:          doc.Name,
			Price:         doc.Price,
			StockQuantity: doc.StockQuantity,
			InStock:       doc.InStock,
		}
	}
	return result, nil
}

// DealRepository implements repositories.DealRepository.
type DealRepository struct {
	base *pfirestore.BaseRepository[dealDocument]
}

// NewDealRepository constructs a Firestore-backed deal reader.
func NewDealRepository(provider *pfirestore.Provider) (*DealRepository, error) {
	if provider == nil {
		return nil, errors.New("deal repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[dealDocument](provider, dealsCollection, nil, nil)
	return &DealRepository{base: base}, nil
}

func (r *DealRepository) FindByID(ctx context.Context, dealID string) (domain.Deal, error) {
	if r == nil || r.base == nil {
		return domain.Deal{}, errors.New("deal repository not initialised")
	}
	dealID = strings.TrimSpace(dealID)
	if dealID == "" {
		return domain.Deal{}, pfirestore.NotFoundError("deals.get", "deal id is required")
	}
	doc, err := r.base.Get(ctx, dealID)
	if err != nil {
		return domain.Deal{}, err
	}
	d := doc.Data
	return domain.Deal{
		ID:            doc.ID,
		Title:         d.Title,
		Description:   d.Description,
		Price:         d.Price,
		OriginalPrice: d.OriginalPrice,
		ImageURL:      d.ImageURL,
		StockQuantity: d.StockQuantity,
		IsActive:      d.IsActive,
	}, nil
}
