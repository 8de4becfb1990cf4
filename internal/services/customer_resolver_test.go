package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/hogtech/orderflow/internal/domain"
)

func newTestResolver(t *testing.T, repo *memCustomerRepo) CustomerResolver {
	t.Helper()
	resolver, err := NewCustomerResolver(CustomerResolverDeps{
		Customers:   repo,
		Clock:       fixedClock(orderNow),
		IDGenerator: sequenceIDs("C"),
	})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return resolver
}

func TestCustomerResolverCreatesGuest(t *testing.T) {
	repo := newMemCustomerRepo()
	resolver := newTestResolver(t, repo)

	customer, err := resolver.Resolve(context.Background(), CustomerHints{Email: " Ama@Example.com ", FullName: "Ama"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer == nil || customer.Source != domain.CustomerSourceGuestCheckout || customer.Email != "ama@example.com" {
		t.Fatalf("unexpected customer %+v", customer)
	}
	if customer.ID != customerIDPrefix+"C0001" {
		t.Fatalf("unexpected id %q", customer.ID)
	}
	if customer.LastOrderAt == nil || !customer.LastOrderAt.Equal(orderNow) {
		t.Fatalf("expected last order time, got %v", customer.LastOrderAt)
	}
}

func TestCustomerResolverCreatesRegisteredForUser(t *testing.T) {
	resolver := newTestResolver(t, newMemCustomerRepo())
	customer, err := resolver.Resolve(context.Background(), CustomerHints{Email: "kofi@example.com", UserID: "user-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.Source != domain.CustomerSourceRegistered || customer.UserID != "user-2" {
		t.Fatalf("unexpected customer %+v", customer)
	}
}

func TestCustomerResolverPromotesGuest(t *testing.T) {
	repo := newMemCustomerRepo(domain.Customer{
		ID: "cus_existing", Email: "ama@example.com", Source: domain.CustomerSourceGuestCheckout,
	})
	resolver := newTestResolver(t, repo)

	customer, err := resolver.Resolve(context.Background(), CustomerHints{Email: "ama@example.com", UserID: "user-1", Phone: "0240000000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.ID != "cus_existing" || customer.UserID != "user-1" || customer.Source != domain.CustomerSourceRegistered {
		t.Fatalf("expected promoted customer, got %+v", customer)
	}
	if customer.Phone != "0240000000" {
		t.Fatalf("expected missing phone filled, got %q", customer.Phone)
	}
	if repo.updates != 1 {
		t.Fatalf("expected one update, got %d", repo.updates)
	}
}

func TestCustomerResolverLookupOrder(t *testing.T) {
	repo := newMemCustomerRepo(
		domain.Customer{ID: "cus_by_id", Email: "id@example.com", Source: domain.CustomerSourceManual},
		domain.Customer{ID: "cus_by_phone", Phone: "0551234567", Source: domain.CustomerSourceGuestCheckout},
	)
	resolver := newTestResolver(t, repo)

	byID, err := resolver.Resolve(context.Background(), CustomerHints{CustomerID: "cus_by_id", Email: "other@example.com"})
	if err != nil || byID.ID != "cus_by_id" {
		t.Fatalf("expected id match, got %+v err=%v", byID, err)
	}

	byPhone, err := resolver.Resolve(context.Background(), CustomerHints{Phone: "0551234567"})
	if err != nil || byPhone.ID != "cus_by_phone" {
		t.Fatalf("expected phone match, got %+v err=%v", byPhone, err)
	}

	none, err := resolver.Resolve(context.Background(), CustomerHints{FullName: "Nobody"})
	if err != nil || none != nil {
		t.Fatalf("expected nil customer without contact details, got %+v err=%v", none, err)
	}
}

func TestCustomerResolverErrors(t *testing.T) {
	repo := newMemCustomerRepo()
	repo.findErr = &testRepoError{msg: "unavailable", unavailable: true}
	resolver := newTestResolver(t, repo)
	if _, err := resolver.Resolve(context.Background(), CustomerHints{Email: "ama@example.com"}); !errors.Is(err, ErrCustomerLookup) {
		t.Fatalf("expected lookup error, got %v", err)
	}

	repo = newMemCustomerRepo(domain.Customer{ID: "cus_1", Email: "ama@example.com"})
	repo.updateErr = errBoom
	resolver = newTestResolver(t, repo)
	customer, err := resolver.Resolve(context.Background(), CustomerHints{Email: "ama@example.com"})
	if err != nil || customer.ID != "cus_1" {
		t.Fatalf("refresh failures must not block resolution, got %+v err=%v", customer, err)
	}
}
