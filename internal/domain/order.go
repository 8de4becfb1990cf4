package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates fulfilment lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates staff accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal: the customer received the order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal: the order will not be fulfilled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus normalises raw input into a known OrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	candidate := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range orderStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed from the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus enumerates payment states mirrored between orders and transactions.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
	PaymentStatusCancelled,
}

// ParsePaymentStatus normalises raw input into a known PaymentStatus.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	candidate := PaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range paymentStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// OrderWorkflowStatus tracks post-commit progress of order creation so interrupted
// workflows can be resumed.
type OrderWorkflowStatus string

const (
	// OrderWorkflowCreated means the order, its items, the transaction link and discount usage are committed.
	OrderWorkflowCreated OrderWorkflowStatus = "created"
	// OrderWorkflowStockAdjusted means inventory was decremented for every item.
	OrderWorkflowStockAdjusted OrderWorkflowStatus = "stock_adjusted"
	// OrderWorkflowCompleted means confirmation side effects were dispatched.
	OrderWorkflowCompleted OrderWorkflowStatus = "completed"
)

// DeliveryOption describes how the order reaches the customer.
type DeliveryOption struct {
	ID    string
	Name  string
	Price float64
}

// ShippingAddress is the structured delivery address stored on an order. It also carries the
// payment reference used to correlate gateway callbacks with orders.
type ShippingAddress struct {
	FullName         string
	Email            string
	Phone            string
	Street           string
	City             string
	Region           string
	PostalCode       string
	Country          string
	Notes            string
	DeliveryOption   *DeliveryOption
	PaymentReference string
}

// IsZero reports whether no deliverable fields were supplied.
func (a ShippingAddress) IsZero() bool {
	return strings.TrimSpace(a.Street) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.Region) == "" &&
		strings.TrimSpace(a.FullName) == ""
}

// Order captures the order header persisted by the orders repository.
type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	UserID          string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	Currency        string
	Subtotal        float64
	Discount        float64
	DiscountCode    string
	Tax             float64
	ShippingFee     float64
	Total           float64
	ShippingAddress ShippingAddress
	Notes           string
	WorkflowStatus  OrderWorkflowStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time

	Items        []OrderItem
	Transactions []Transaction
}

// PaymentReference returns the gateway reference embedded in the shipping address.
func (o Order) PaymentReference() string {
	return strings.TrimSpace(o.ShippingAddress.PaymentReference)
}

// IsOwnedBy reports whether the order belongs to the given authenticated user.
func (o Order) IsOwnedBy(userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID != "" && strings.TrimSpace(o.UserID) == userID
}

// DealSnapshot is a denormalised copy of deal pricing captured at purchase time.
type DealSnapshot struct {
	DealID        string
	Title         string
	Description   string
	Price         float64
	OriginalPrice float64
	ImageURL      string
}

// OrderItem is an immutable line belonging to exactly one order. ProductID is empty for deal
// and other non-catalog items.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
	Variants    map[string]string
	Deal        *DealSnapshot
	CreatedAt   time.Time
}

// IsCatalogItem reports whether the line references a catalog product.
func (i OrderItem) IsCatalogItem() bool {
	return strings.TrimSpace(i.ProductID) != ""
}
