package repositories

import (
	"context"

	domain "github.com/hogtech/orderflow/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Transactions() TransactionRepository
	Discounts() DiscountRepository
	Customers() CustomerRepository
	Products() ProductRepository
	Deals() DealRepository
	Inventory() InventoryRepository
	Counters() CounterRepository
	Settings() SettingsRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Implementations backed by stores that require reads before writes expect callers to issue
// every lookup before the first mutation inside fn.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers together with their immutable items.
type OrderRepository interface {
	// Insert stores the order header and every item in Order.Items.
	Insert(ctx context.Context, order domain.Order) error
	// Update replaces mutable header fields. Items are never rewritten.
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	// FindByPaymentReference looks up the order whose shipping address carries the reference.
	FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// UpdateWorkflowStatus advances the crash-recovery marker without touching other fields.
	UpdateWorkflowStatus(ctx context.Context, orderID string, status domain.OrderWorkflowStatus) error
	// ListByWorkflowStatus returns orders, items included, oldest first.
	ListByWorkflowStatus(ctx context.Context, status domain.OrderWorkflowStatus, limit int) ([]domain.Order, error)
}

// OrderListFilter narrows order listings. An empty UserID lists every customer's orders.
type OrderListFilter struct {
	UserID        string
	CustomerID    string
	Status        []string
	PaymentStatus []string
	Pagination    domain.Pagination
}

// TransactionRepository persists payment attempts keyed by their unique reference.
type TransactionRepository interface {
	// Insert creates the transaction and returns a conflict error when the reference already exists.
	Insert(ctx context.Context, txn domain.Transaction) error
	Update(ctx context.Context, txn domain.Transaction) error
	FindByReference(ctx context.Context, reference string) (domain.Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error)
}

// DiscountRepository reads discount codes and commits usage.
type DiscountRepository interface {
	// FindByCode resolves a normalised code. Inactive discounts are returned so callers can
	// report why a code is unusable.
	FindByCode(ctx context.Context, code string) (domain.Discount, error)
	// IncrementUsage atomically increments used_count only while it is below usage_limit.
	// It returns a *DiscountError with DiscountErrorUsageExhausted when the limit is reached.
	IncrementUsage(ctx context.Context, discountID string) error
}

// CustomerRepository persists canonical customer records.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	Update(ctx context.Context, customer domain.Customer) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	FindByPhone(ctx context.Context, phone string) (domain.Customer, error)
}

// ProductRepository exposes the catalog data required by order creation.
type ProductRepository interface {
	// FindByIDs returns the products that exist; unknown ids are omitted from the map.
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// DealRepository exposes promotional deals referenced by non-catalog order items.
type DealRepository interface {
	FindByID(ctx context.Context, dealID string) (domain.Deal, error)
}

// StockAdjustment decrements either a catalog product or a deal by Quantity.
type StockAdjustment struct {
	ProductID string
	DealID    string
	Quantity  int
}

// StockAdjustmentResult reports the outcome of ApplyOrderStock.
type StockAdjustmentResult struct {
	// AlreadyApplied is true when the order had already moved past the created workflow state.
	AlreadyApplied bool
	// Skipped lists product or deal ids that had no stock record.
	Skipped []string
}

// InventoryRepository applies stock changes for committed orders.
type InventoryRepository interface {
	// ApplyOrderStock decrements stock for every adjustment, flooring at zero, and advances the
	// order workflow status to stock_adjusted in the same atomic step. Re-running it for an
	// order already past created is a no-op.
	ApplyOrderStock(ctx context.Context, orderID string, adjustments []StockAdjustment) (StockAdjustmentResult, error)
}

// CounterRepository provides sequential counters backed by persistent storage.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig configures counter behaviour.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// SettingsRepository loads store-wide settings.
type SettingsRepository interface {
	GetStoreSettings(ctx context.Context) (domain.StoreSettings, error)
}

// HealthRepository probes downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
