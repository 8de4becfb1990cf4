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

// InventoryRepository decrements product and deal stock for committed orders.
type InventoryRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	deals    *pfirestore.BaseRepository[dealDocument]
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		deals:    pfirestore.NewBaseRepository[dealDocument](provider, dealsCollection, nil, nil),
	}, nil
}

type stockTarget struct {
	id       string
	ref      *firestore.DocumentRef
	quantity int
	deal     bool
}

// ApplyOrderStock decrements stock for every adjustment and marks the order stock_adjusted in a
// single transaction. Orders already past created are left untouched.
func (r *InventoryRepository) ApplyOrderStock(ctx context.Context, orderID string, adjustments []repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockAdjustmentResult{}, errors.New("inventory repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return repositories.StockAdjustmentResult{}, repositories.NewInventoryError(repositories.InventoryErrorOrderNotFound, "order id is required", nil)
	}

	var result repositories.StockAdjustmentResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.StockAdjustmentResult{}

		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorOrderNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		workflow, _ := orderSnap.DataAt("workflowStatus")
		if current, _ := workflow.(string); current != "" && current != string(domain.OrderWorkflowCreated) {
			result.AlreadyApplied = true
			return nil
		}

		targets, err := r.resolveTargets(ctx, adjustments)
		if err != nil {
			return err
		}

		// Every read happens before the first write.
		type pending struct {
			target stockTarget
			stock  int
		}
		writes := make([]pending, 0, len(targets))
		for _, target := range targets {
			snap, err := tx.Get(target.ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					result.Skipped = append(result.Skipped, target.id)
					continue
				}
				return err
			}
			raw, err := snap.DataAt("stockQuantity")
			if err != nil {
				result.Skipped = append(result.Skipped, target.id)
				continue
			}
			writes = append(writes, pending{target: target, stock: toInt(raw)})
		}

		now := time.Now().UTC()
		for _, w := range writes {
			remaining := w.stock - w.target.quantity
			if remaining < 0 {
				remaining = 0
			}
			updates := []firestore.Update{
				{Path: "stockQuantity", Value: remaining},
				{Path: "updatedAt", Value: now},
			}
			if !w.target.deal {
				updates = append(updates, firestore.Update{Path: "inStock", Value: remaining > 0})
			}
			if err := tx.Update(w.target.ref, updates); err != nil {
				return err
			}
		}

		return tx.Update(orderRef, []firestore.Update{
			{Path: "workflowStatus", Value: string(domain.OrderWorkflowStockAdjusted)},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return repositories.StockAdjustmentResult{}, wrapInventoryError("inventory.apply_order_stock", err)
	}
	return result, nil
}

// resolveTargets merges adjustments that hit the same product or deal.
func (r *InventoryRepository) resolveTargets(ctx context.Context, adjustments []repositories.StockAdjustment) ([]stockTarget, error) {
	index := make(map[string]int, len(adjustments))
	targets := make([]stockTarget, 0, len(adjustments))
	for _, adj := range adjustments {
		if adj.Quantity <= 0 {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidAdjustment, "quantity must be positive", nil)
		}
		productID := strings.TrimSpace(adj.ProductID)
		dealID := strings.TrimSpace(adj.DealID)

		var (
			key  string
			id   string
			deal bool
			ref  *firestore.DocumentRef
			err  error
		)
		switch {
		case productID != "":
			key, id = "product:"+productID, productID
			ref, err = r.products.DocumentRef(ctx, productID)
		case dealID != "":
			key, id, deal = "deal:"+dealID, dealID, true
			ref, err = r.deals.DocumentRef(ctx, dealID)
		default:
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidAdjustment, "adjustment requires a product or deal id", nil)
		}
		if err != nil {
			return nil, err
		}
		if i, ok := index[key]; ok {
			targets[i].quantity += adj.Quantity
			continue
		}
		index[key] = len(targets)
		targets = append(targets, stockTarget{id: id, ref: ref, quantity: adj.Quantity, deal: deal})
	}
	return targets, nil
}

func toInt(value any) int {
	switch v := value.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
