package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/repositories"
)

const customerIDPrefix = "cus_"

// CustomerHints are the identity signals available on an order request.
type CustomerHints struct {
	CustomerID string
	UserID     string
	Email      string
	FullName   string
	Phone      string
	Source     domain.CustomerSource
}

// CustomerResolver maps identity hints to a canonical customer record.
type CustomerResolver interface {
	// Resolve returns nil without error when neither email nor phone is available.
	Resolve(ctx context.Context, hints CustomerHints) (*Customer, error)
}

// CustomerResolverDeps bundles collaborators required to construct the resolver.
type CustomerResolverDeps struct {
	Customers   repositories.CustomerRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerResolver struct {
	customers repositories.CustomerRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCustomerResolver constructs a find-or-create customer resolver.
func NewCustomerResolver(deps CustomerResolverDeps) (CustomerResolver, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer resolver: customer repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &customerResolver{
		customers: deps.Customers,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (r *customerResolver) Resolve(ctx context.Context, hints CustomerHints) (*Customer, error) {
	hints.Email = strings.ToLower(strings.TrimSpace(hints.Email))
	hints.Phone = strings.TrimSpace(hints.Phone)
	hints.FullName = strings.TrimSpace(hints.FullName)
	hints.UserID = strings.TrimSpace(hints.UserID)
	now := r.clock()

	if id := strings.TrimSpace(hints.CustomerID); id != "" {
		customer, err := r.customers.FindByID(ctx, id)
		switch {
		case err == nil:
			return r.refresh(ctx, customer, hints, now)
		case !isNotFound(err):
			return nil, fmt.Errorf("%w: by id: %v", ErrCustomerLookup, err)
		}
		r.logger(ctx, "customer.resolve.id_not_found", map[string]any{"customerId": id})
	}

	var (
		customer Customer
		err      error
	)
	switch {
	case hints.Email != "":
		customer, err = r.customers.FindByEmail(ctx, hints.Email)
	case hints.Phone != "":
		customer, err = r.customers.FindByPhone(ctx, hints.Phone)
	default:
		return nil, nil
	}
	if err == nil {
		return r.refresh(ctx, customer, hints, now)
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrCustomerLookup, err)
	}

	source := hints.Source
	if source == "" {
		source = domain.CustomerSourceGuestCheckout
	}
	if hints.UserID != "" {
		source = domain.CustomerSourceRegistered
	}
	created := Customer{
		ID:          customerIDPrefix + r.newID(),
		UserID:      hints.UserID,
		Email:       hints.Email,
		FullName:    hints.FullName,
		Phone:       hints.Phone,
		Source:      source,
		LastOrderAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.customers.Insert(ctx, created); err != nil {
		if isConflict(err) && hints.Email != "" {
			// Another checkout created the same customer concurrently.
			existing, findErr := r.customers.FindByEmail(ctx, hints.Email)
			if findErr == nil {
				return r.refresh(ctx, existing, hints, now)
			}
		}
		return nil, fmt.Errorf("%w: insert: %v", ErrCustomerLookup, err)
	}
	r.logger(ctx, "customer.created", map[string]any{"customerId": created.ID, "source": string(source)})
	return &created, nil
}

// refresh fills missing contact data, links the account and records the order time.
func (r *customerResolver) refresh(ctx context.Context, customer Customer, hints CustomerHints, now time.Time) (*Customer, error) {
	if customer.FullName == "" && hints.FullName != "" {
		customer.FullName = hints.FullName
	}
	if customer.Phone == "" && hints.Phone != "" {
		customer.Phone = hints.Phone
	}
	if customer.Email == "" && hints.Email != "" {
		customer.Email = hints.Email
	}
	if hints.UserID != "" && customer.UserID == "" {
		customer.UserID = hints.UserID
		if customer.Source == domain.CustomerSourceGuestCheckout || customer.Source == "" {
			customer.Source = domain.CustomerSourceRegistered
			r.logger(ctx, "customer.promoted", map[string]any{"customerId": customer.ID})
		}
	}
	customer.LastOrderAt = &now
	customer.UpdatedAt = now

	if err := r.customers.Update(ctx, customer); err != nil {
		// The record exists; a failed refresh must not block the order.
		r.logger(ctx, "customer.refresh.failed", map[string]any{"customerId": customer.ID, "error": err.Error()})
	}
	return &customer, nil
}
