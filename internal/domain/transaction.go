package domain

import "time"

// TransactionStatus is the gateway-facing state of a payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// TransactionStatusFor maps an order payment status onto the transaction status that mirrors it.
func TransactionStatusFor(status PaymentStatus) TransactionStatus {
	switch status {
	case PaymentStatusPaid:
		return TransactionStatusSuccess
	case PaymentStatusPending:
		return TransactionStatusPending
	default:
		return TransactionStatusFailed
	}
}

// Transaction records a payment attempt. Reference is unique across all transactions and
// OrderID is assigned once when the payment is linked to an order.
type Transaction struct {
	ID              string
	Reference       string
	OrderID         string
	UserID          string
	PaymentMethod   string
	PaymentProvider string
	Amount          float64
	Currency        string
	Status          TransactionStatus
	PaymentStatus   PaymentStatus
	CustomerEmail   string
	Metadata        map[string]any
	InitiatedAt     time.Time
	PaidAt          *time.Time
	UpdatedAt       time.Time
}

// IsLinked reports whether the transaction already belongs to an order.
func (t Transaction) IsLinked() bool {
	return t.OrderID != ""
}
