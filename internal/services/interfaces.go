package services

import (
	"context"
	"time"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	ShippingAddress    = domain.ShippingAddress
	DeliveryOption     = domain.DeliveryOption
	DealSnapshot       = domain.DealSnapshot
	Transaction        = domain.Transaction
	Discount           = domain.Discount
	DiscountResult     = domain.DiscountResult
	Customer           = domain.Customer
	StoreSettings      = domain.StoreSettings
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService covers checkout, order reads and the status state machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
	TrackOrder(ctx context.Context, query TrackOrderQuery) (OrderTracking, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	// RecoverIncompleteOrders re-runs post-commit steps for orders left in the created workflow state.
	RecoverIncompleteOrders(ctx context.Context, limit int) (RecoveryReport, error)
}

// DiscountService evaluates discount codes against cart snapshots without committing usage.
type DiscountService interface {
	ApplyDiscount(ctx context.Context, cmd ApplyDiscountCommand) (DiscountResult, error)
}

// PaymentService proxies hosted checkout initialisation and verification to the gateway.
type PaymentService interface {
	InitializePayment(ctx context.Context, cmd InitializePaymentCommand) (PaymentInitialization, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (PaymentVerification, error)
}

// WebhookReconciler turns signed gateway callbacks into at most one order per payment reference.
type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, cmd WebhookCommand) (WebhookResult, error)
}

// SystemService aggregates utility endpoints (health checks).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Collaborators -------------------------------------------------------------

// NotificationOutcome reports what happened to an outbound notification. Senders never return
// errors for delivery problems; they report them through the outcome.
type NotificationOutcome string

const (
	NotificationSent    NotificationOutcome = "sent"
	NotificationSkipped NotificationOutcome = "skipped"
	NotificationFailed  NotificationOutcome = "failed"
)

// NotificationResult is returned by every EmailNotifier call.
type NotificationResult struct {
	Outcome NotificationOutcome
	Reason  string
}

// EmailNotifier queues customer facing emails. Formatting and delivery happen elsewhere.
type EmailNotifier interface {
	SendOrderConfirmation(ctx context.Context, order Order) NotificationResult
	SendOrderStatusUpdate(ctx context.Context, order Order, previous OrderStatus) NotificationResult
	SendOrderCancellation(ctx context.Context, order Order, reason string) NotificationResult
}

// AdminNotifier alerts store staff about new orders.
type AdminNotifier interface {
	NotifyNewOrder(ctx context.Context, order Order, adminEmail string) NotificationResult
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type                  string
	OrderID               string
	OrderNumber           string
	PreviousStatus        string
	CurrentStatus         string
	PreviousPaymentStatus string
	CurrentPaymentStatus  string
	ActorID               string
	OccurredAt            time.Time
	Metadata              map[string]any
}

// SettingsProvider returns the current store settings, typically through a TTL cache.
type SettingsProvider interface {
	StoreSettings(ctx context.Context) (StoreSettings, error)
}

// WebhookLocker serialises concurrent deliveries for the same payment reference.
type WebhookLocker interface {
	// Acquire returns false without error when another worker holds the lock.
	Acquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// WebhookArchiver stores raw callback bodies for audit.
type WebhookArchiver interface {
	ArchiveWebhook(ctx context.Context, provider, reference string, body []byte) error
}

// DiscountPolicy decides what happens when a discount code supplied at checkout is unusable.
type DiscountPolicy string

const (
	// DiscountPolicyLenient drops an unusable code and proceeds without a discount.
	DiscountPolicyLenient DiscountPolicy = "lenient"
	// DiscountPolicyStrict fails order creation with ErrOrderInvalidDiscount.
	DiscountPolicyStrict DiscountPolicy = "strict"
)

// Commands and DTOs ---------------------------------------------------------

// Actor identifies who is performing an operation. Zero value is an anonymous guest.
type Actor struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// System reports whether the action originates from an internal process rather than a person.
func (a Actor) System() bool {
	return a.UserID == systemActorID
}

const systemActorID = "system"

// SystemActor is used for webhook and recovery initiated mutations.
var SystemActor = Actor{UserID: systemActorID, IsAdmin: true}

// CheckoutLine is a line item as submitted by the client. An empty ProductID marks a deal or
// other non-catalog line.
type CheckoutLine struct {
	ProductID   string            `json:"product_id,omitempty"`
	DealID      string            `json:"deal_id,omitempty"`
	ProductName string            `json:"product_name"`
	Quantity    int               `json:"quantity"`
	UnitPrice   float64           `json:"unit_price"`
	Subtotal    float64           `json:"subtotal,omitempty"`
	Variants    map[string]string `json:"variants,omitempty"`
	Deal        *CheckoutDeal     `json:"deal,omitempty"`
}

// CheckoutDeal is the client copy of deal pricing at the time the cart was built.
type CheckoutDeal struct {
	DealID        string  `json:"deal_id,omitempty"`
	Title         string  `json:"title,omitempty"`
	Description   string  `json:"description,omitempty"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price,omitempty"`
	ImageURL      string  `json:"image_url,omitempty"`
}

// CheckoutAddress is the client delivery address.
type CheckoutAddress struct {
	FullName       string                  `json:"full_name,omitempty"`
	Email          string                  `json:"email,omitempty"`
	Phone          string                  `json:"phone,omitempty"`
	Street         string                  `json:"street,omitempty"`
	City           string                  `json:"city,omitempty"`
	Region         string                  `json:"region,omitempty"`
	PostalCode     string                  `json:"postal_code,omitempty"`
	Country        string                  `json:"country,omitempty"`
	Notes          string                  `json:"notes,omitempty"`
	DeliveryOption *CheckoutDeliveryOption `json:"delivery_option,omitempty"`
}

// CheckoutDeliveryOption is the delivery method chosen by the client.
type CheckoutDeliveryOption struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price"`
}

// CheckoutSnapshot is the full order request. It is what the client posts to create an order
// and what is stored in gateway metadata so a webhook can rebuild the order.
type CheckoutSnapshot struct {
	CustomerID       string           `json:"customer_id,omitempty"`
	UserID           string           `json:"user_id,omitempty"`
	Email            string           `json:"email,omitempty"`
	FullName         string           `json:"full_name,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	Items            []CheckoutLine   `json:"order_items"`
	DeliveryAddress  *CheckoutAddress `json:"delivery_address,omitempty"`
	PaymentMethod    string           `json:"payment_method,omitempty"`
	DiscountCode     string           `json:"discount_code,omitempty"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	DeliveryFee      float64          `json:"delivery_fee,omitempty"`
	Tax              float64          `json:"tax,omitempty"`
	Subtotal         *float64         `json:"subtotal,omitempty"`
	Total            *float64         `json:"total,omitempty"`
	Notes            string           `json:"notes,omitempty"`
}

// ConfirmedPayment carries gateway confirmation for orders created from a successful charge.
type ConfirmedPayment struct {
	Provider string
	Amount   float64
	Currency string
	Channel  string
	PaidAt   time.Time
}

// CreateOrderCommand asks the orchestrator to create an order.
type CreateOrderCommand struct {
	Checkout CheckoutSnapshot
	Actor    Actor
	// Payment is set when the order is created from a confirmed gateway charge.
	Payment *ConfirmedPayment
	Source  domain.CustomerSource
}

// OrderListQuery lists orders visible to Actor.
type OrderListQuery struct {
	Actor         Actor
	CustomerID    string
	Status        []string
	PaymentStatus []string
	Pagination    Pagination
}

// TrackOrderQuery looks up an order by its public number.
type TrackOrderQuery struct {
	OrderNumber string
	Email       string
}

// OrderTracking is the limited public view returned by order tracking.
type OrderTracking struct {
	OrderNumber   string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Total         float64
	Currency      string
	ItemCount     int
	Items         []TrackedItem
	DeliveryName  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TrackedItem is a display-only order line.
type TrackedItem struct {
	ProductName string
	Quantity    int
	Subtotal    float64
}

// UpdateOrderStatusCommand changes Order.Status.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	Actor   Actor
}

// UpdatePaymentStatusCommand changes Order.PaymentStatus and keeps transactions in sync.
type UpdatePaymentStatusCommand struct {
	OrderID       string
	PaymentStatus string
	Actor         Actor
	// Reference overrides the transaction reference used when marking an order paid.
	Reference string
	PaidAt    *time.Time
}

// CancelOrderCommand cancels an order on behalf of its owner or an admin.
type CancelOrderCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

// RecoveryReport summarises a recovery sweep.
type RecoveryReport struct {
	Scanned   int
	Recovered int
	Failed    []string
}

// ApplyDiscountCommand evaluates a code against a cart snapshot.
type ApplyDiscountCommand struct {
	Code        string
	Subtotal    float64
	DeliveryFee float64
	Items       []CheckoutLine
}

// InitializePaymentCommand starts a hosted checkout for a cart that is not yet an order.
type InitializePaymentCommand struct {
	Checkout    CheckoutSnapshot
	Actor       Actor
	Email       string
	Provider    string
	CallbackURL string
	Reference   string
}

// PaymentInitialization is returned to the client to redirect to the gateway.
type PaymentInitialization struct {
	Provider         string
	Reference        string
	AuthorizationURL string
	AccessCode       string
	Amount           float64
	Currency         string
}

// VerifyPaymentCommand asks the gateway for the outcome of a reference.
type VerifyPaymentCommand struct {
	Reference string
	Provider  string
	Actor     Actor
}

// PaymentVerification reports the gateway outcome and the linked order if one exists.
type PaymentVerification struct {
	Reference     string
	Status        PaymentStatus
	Order         *Order
	AlreadyLinked bool
}

// WebhookCommand carries a raw gateway callback.
type WebhookCommand struct {
	Provider  string
	Body      []byte
	Signature string
}

// WebhookOutcome describes how a webhook was handled.
type WebhookOutcome string

const (
	WebhookOrderCreated     WebhookOutcome = "order_created"
	WebhookPaymentUpdated   WebhookOutcome = "payment_updated"
	WebhookAlreadyProcessed WebhookOutcome = "already_processed"
	WebhookProcessing       WebhookOutcome = "processing"
	WebhookIgnored          WebhookOutcome = "ignored"
)

// WebhookResult is acknowledged to the gateway with 200.
type WebhookResult struct {
	Outcome   WebhookOutcome
	Reference string
	OrderID   string
	Message   string
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

var _ repositories.UnitOfWork = noopUnitOfWork{}
