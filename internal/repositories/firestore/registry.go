package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/hogtech/orderflow/internal/platform/firestore"
	"github.com/hogtech/orderflow/internal/repositories"
)

// Registry bundles every Firestore repository behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	uow      *pfirestore.UnitOfWork

	orders       *OrderRepository
	transactions *TransactionRepository
	discounts    *DiscountRepository
	customers    *CustomerRepository
	products     *ProductRepository
	deals        *DealRepository
	inventory    *InventoryRepository
	counters     *CounterRepository
	settings     *SettingsRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs all repositories over the shared provider. health may be nil, in which
// case a probe pinging Firestore is used.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider, uow: pfirestore.NewUnitOfWork(provider)}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.transactions, err = NewTransactionRepository(provider); err != nil {
		return nil, err
	}
	if reg.discounts, err = NewDiscountRepository(provider); err != nil {
		return nil, err
	}
	if reg.customers, err = NewCustomerRepository(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.deals, err = NewDealRepository(provider); err != nil {
		return nil, err
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	if reg.settings, err = NewSettingsRepository(provider); err != nil {
		return nil, err
	}

	if health == nil {
		health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{Name: "firestore", Check: reg.Ping},
		})
		if err != nil {
			return nil, fmt.Errorf("firestore registry: health: %w", err)
		}
	}
	reg.health = health
	return reg, nil
}

// Ping verifies Firestore is reachable by reading the settings document.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.settings.GetStoreSettings(ctx)
	var repoErr *pfirestore.Error
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return nil
	}
	return err
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Orders() repositories.OrderRepository             { return r.orders }
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }
func (r *Registry) Discounts() repositories.DiscountRepository       { return r.discounts }
func (r *Registry) Customers() repositories.CustomerRepository       { return r.customers }
func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) Deals() repositories.DealRepository               { return r.deals }
func (r *Registry) Inventory() repositories.InventoryRepository      { return r.inventory }
func (r *Registry) Counters() repositories.CounterRepository         { return r.counters }
func (r *Registry) Settings() repositories.SettingsRepository        { return r.settings }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }
