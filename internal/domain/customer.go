package domain

import "time"

// CustomerSource records how a customer record came to exist.
type CustomerSource string

const (
	CustomerSourceGuestCheckout    CustomerSource = "guest_checkout"
	CustomerSourceRegistered       CustomerSource = "registered"
	CustomerSourceManual           CustomerSource = "manual"
	CustomerSourceAdminManualOrder CustomerSource = "admin_manual_order"
	CustomerSourceBackfill         CustomerSource = "backfill"
)

// Customer is the canonical purchaser record, optionally linked to an authenticated account.
type Customer struct {
	ID          string
	UserID      string
	Email       string
	FullName    string
	Phone       string
	Source      CustomerSource
	LastOrderAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is the subset of catalog data needed to price and stock order lines.
type Product struct {
	ID            string
	Name          string
	Price         float64
	StockQuantity int
	InStock       bool
}

// Deal is a promotional, non-catalog item with its own stock counter.
type Deal struct {
	ID            string
	Title         string
	Description   string
	Price         float64
	OriginalPrice float64
	ImageURL      string
	StockQuantity int
	IsActive      bool
}

// StoreSettings holds store-wide values cached by the settings cache.
type StoreSettings struct {
	Currency              string
	AdminEmail            string
	FreeShippingThreshold *float64
	UpdatedAt             time.Time
}
