package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/platform/auth"
	"github.com/hogtech/orderflow/internal/services"
)

type stubOrderService struct {
	createFn        func(context.Context, services.CreateOrderCommand) (services.Order, error)
	listFn          func(context.Context, services.OrderListQuery) (domain.CursorPage[services.Order], error)
	getFn           func(context.Context, string, services.Actor) (services.Order, error)
	trackFn         func(context.Context, services.TrackOrderQuery) (services.OrderTracking, error)
	statusFn        func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	paymentStatusFn func(context.Context, services.UpdatePaymentStatusCommand) (services.Order, error)
	cancelFn        func(context.Context, services.CancelOrderCommand) (services.Order, error)
	recoverFn       func(context.Context, int) (services.RecoveryReport, error)
}

var errNotStubbed = errors.New("not implemented")

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.OrderListQuery) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, actor services.Actor) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) TrackOrder(ctx context.Context, query services.TrackOrderQuery) (services.OrderTracking, error) {
	if s.trackFn != nil {
		return s.trackFn(ctx, query)
	}
	return services.OrderTracking{}, errNotStubbed
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (services.Order, error) {
	if s.paymentStatusFn != nil {
		return s.paymentStatusFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) RecoverIncompleteOrders(ctx context.Context, limit int) (services.RecoveryReport, error) {
	if s.recoverFn != nil {
		return s.recoverFn(ctx, limit)
	}
	return services.RecoveryReport{}, nil
}

var _ services.OrderService = (*stubOrderService)(nil)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

// withIdentity simulates the Firebase middleware having verified a caller.
func withIdentity(r *http.Request, uid string, roles ...string) *http.Request {
	if len(roles) == 0 {
		roles = []string{auth.RoleUser}
	}
	identity := &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles}
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}
