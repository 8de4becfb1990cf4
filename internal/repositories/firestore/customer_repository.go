package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hogtech/orderflow/internal/domain"
	pfirestore "github.com/hogtech/orderflow/internal/platform/firestore"
)

const customersCollection = "customers"

// CustomerRepository implements repositories.CustomerRepository.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customersCollection, nil, nil)
	return &CustomerRepository{base: base}, nil
}

func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customer.ID)
	if id == "" {
		return errors.New("customer repository: customer id is required")
	}
	_, err := r.base.Create(ctx, id, encodeCustomer(customer))
	return err
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	id := strings.TrimSpace(customer.ID)
	if id == "" {
		return errors.New("customer repository: customer id is required")
	}
	doc := encodeCustomer(customer)
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "userId", Value: doc.UserID},
		{Path: "email", Value: doc.Email},
		{Path: "fullName", Value: doc.FullName},
		{Path: "phone", Value: doc.Phone},
		{Path: "source", Value: doc.Source},
		{Path: "lastOrderAt", Value: doc.LastOrderAt},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}, firestore.Exists)
	return err
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, pfirestore.NotFoundError("customers.get", "customer id is required")
	}
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail matches the lower-cased email.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	return r.findBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	return r.findBy(ctx, "phone", strings.TrimSpace(phone))
}

func (r *CustomerRepository) findBy(ctx context.Context, field, value string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	if value == "" {
		return domain.Customer{}, pfirestore.NotFoundError("customers.find_by_"+field, field+" is required")
	}
	doc, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type customerDocument struct {
	UserID      string     `firestore:"userId,omitempty"`
	Email       string     `firestore:"email,omitempty"`
	FullName    string     `firestore:"fullName,omitempty"`
	Phone       string     `firestore:"phone,omitempty"`
	Source      string     `firestore:"source"`
	LastOrderAt *time.Time `firestore:"lastOrderAt"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func encodeCustomer(customer domain.Customer) customerDocument {
	return customerDocument{
		UserID:      strings.TrimSpace(customer.UserID),
		Email:       strings.ToLower(strings.TrimSpace(customer.Email)),
		FullName:    strings.TrimSpace(customer.FullName),
		Phone:       strings.TrimSpace(customer.Phone),
		Source:      string(customer.Source),
		LastOrderAt: utcPtr(customer.LastOrderAt),
		CreatedAt:   customer.CreatedAt.UTC(),
		UpdatedAt:   customer.UpdatedAt.UTC(),
	}
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:          id,
		UserID:      d.UserID,
		Email:       d.Email,
		FullName:    d.FullName,
		Phone:       d.Phone,
		Source:      domain.CustomerSource(d.Source),
		LastOrderAt: utcPtr(d.LastOrderAt),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}
