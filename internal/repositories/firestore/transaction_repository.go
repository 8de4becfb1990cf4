package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hogtech/orderflow/internal/domain"
	pfirestore "github.com/hogtech/orderflow/internal/platform/firestore"
)

const transactionsCollection = "transactions"

// TransactionRepository implements repositories.TransactionRepository. Documents are keyed by a
// digest of the payment reference so Create enforces reference uniqueness.
type TransactionRepository struct {
	base *pfirestore.BaseRepository[transactionDocument]
}

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[transactionDocument](provider, transactionsCollection, nil, nil)
	return &TransactionRepository{base: base}, nil
}

// Insert creates the transaction. A second insert for the same reference is a conflict.
func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	if r == nil || r.base == nil {
		return errors.New("transaction repository not initialised")
	}
	reference := strings.TrimSpace(txn.Reference)
	if reference == "" {
		return errors.New("transaction repository: reference is required")
	}
	_, err := r.base.Create(ctx, transactionDocID(reference), encodeTransaction(txn))
	return err
}

// Update overwrites the stored transaction for the reference.
func (r *TransactionRepository) Update(ctx context.Context, txn domain.Transaction) error {
	if r == nil || r.base == nil {
		return errors.New("transaction repository not initialised")
	}
	reference := strings.TrimSpace(txn.Reference)
	if reference == "" {
		return errors.New("transaction repository: reference is required")
	}
	doc := encodeTransaction(txn)
	_, err := r.base.Update(ctx, transactionDocID(reference), []firestore.Update{
		{Path: "orderId", Value: doc.OrderID},
		{Path: "userId", Value: doc.UserID},
		{Path: "paymentMethod", Value: doc.PaymentMethod},
		{Path: "paymentProvider", Value: doc.PaymentProvider},
		{Path: "amount", Value: doc.Amount},
		{Path: "currency", Value: doc.Currency},
		{Path: "status", Value: doc.Status},
		{Path: "paymentStatus", Value: doc.PaymentStatus},
		{Path: "customerEmail", Value: doc.CustomerEmail},
		{Path: "metadata", Value: doc.Metadata},
		{Path: "paidAt", Value: doc.PaidAt},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}, firestore.Exists)
	return err
}

// FindByReference loads the transaction for the payment reference.
func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) (domain.Transaction, error) {
	if r == nil || r.base == nil {
		return domain.Transaction{}, errors.New("transaction repository not initialised")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Transaction{}, pfirestore.NotFoundError("transactions.get", "reference is required")
	}
	doc, err := r.base.Get(ctx, transactionDocID(reference))
	if err != nil {
		return domain.Transaction{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByOrder returns every transaction linked to the order, oldest first.
func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Transaction, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("transaction repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("initiatedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	txns := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		txns = append(txns, doc.Data.toDomain(doc.ID))
	}
	return txns, nil
}

func transactionDocID(reference string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(reference)))
	return hex.EncodeToString(sum[:])
}

type transactionDocument struct {
	TransactionID   string         `firestore:"transactionId"`
	Reference       string         `firestore:"reference"`
	OrderID         string         `firestore:"orderId"`
	UserID          string         `firestore:"userId,omitempty"`
	PaymentMethod   string         `firestore:"paymentMethod,omitempty"`
	PaymentProvider string         `firestore:"paymentProvider,omitempty"`
	Amount          float64        `firestore:"amount"`
	Currency        string         `firestore:"currency"`
	Status          string         `firestore:"status"`
	PaymentStatus   string         `firestore:"paymentStatus"`
	CustomerEmail   string         `firestore:"customerEmail,omitempty"`
	Metadata        map[string]any `firestore:"metadata,omitempty"`
	InitiatedAt     time.Time      `firestore:"initiatedAt"`
	PaidAt          *time.Time     `firestore:"paidAt"`
	UpdatedAt       time.Time      `firestore:"updatedAt"`
}

func encodeTransaction(txn domain.Transaction) transactionDocument {
	return transactionDocument{
		TransactionID:   strings.TrimSpace(txn.ID),
		Reference:       strings.TrimSpace(txn.Reference),
		OrderID:         strings.TrimSpace(txn.OrderID),
		UserID:          strings.TrimSpace(txn.UserID),
		PaymentMethod:   txn.PaymentMethod,
		PaymentProvider: txn.PaymentProvider,
		Amount:          txn.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(txn.Currency)),
		Status:          string(txn.Status),
		PaymentStatus:   string(txn.PaymentStatus),
		CustomerEmail:   txn.CustomerEmail,
		Metadata:        txn.Metadata,
		InitiatedAt:     txn.InitiatedAt.UTC(),
		PaidAt:          utcPtr(txn.PaidAt),
		UpdatedAt:       txn.UpdatedAt.UTC(),
	}
}

func (d transactionDocument) toDomain(docID string) domain.Transaction {
	id := d.TransactionID
	if id == "" {
		id = docID
	}
	return domain.Transaction{
		ID:              id,
		Reference:       d.Reference,
		OrderID:         d.OrderID,
		UserID:          d.UserID,
		PaymentMethod:   d.PaymentMethod,
		PaymentProvider: d.PaymentProvider,
		Amount:          d.Amount,
		Currency:        d.Currency,
		Status:          domain.TransactionStatus(d.Status),
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		CustomerEmail:   d.CustomerEmail,
		Metadata:        d.Metadata,
		InitiatedAt:     d.InitiatedAt.UTC(),
		PaidAt:          utcPtr(d.PaidAt),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}
