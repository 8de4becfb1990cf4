package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/platform/pagination"
	"github.com/hogtech/orderflow/internal/repositories"
)

const (
	orderEventCreated              = "order.created"
	orderEventStatusChanged        = "order.status.changed"
	orderEventPaymentStatusChanged = "order.payment_status.changed"
	orderEventCancelled            = "order.cancelled"

	orderIDPrefix       = "ord_"
	orderItemIDPrefix   = "itm_"
	transactionIDPrefix = "txn_"

	maxNotesLength        = 1000
	defaultRecoveryGrace  = 2 * time.Minute
	defaultRecoveryLimit  = 50
	manualReferencePrefix = "MANUAL-"
)

// errDiscountExhausted signals that the discount ran out between evaluation and commit.
var errDiscountExhausted = errors.New("order: discount usage exhausted during commit")

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Transactions repositories.TransactionRepository
	Discounts    repositories.DiscountRepository
	Products     repositories.ProductRepository
	Deals        repositories.DealRepository
	Inventory    repositories.InventoryRepository
	Counters     repositories.CounterRepository
	Customers    CustomerResolver
	Settings     SettingsProvider
	UnitOfWork   repositories.UnitOfWork

	Emails EmailNotifier
	Admin  AdminNotifier
	Events OrderEventPublisher

	DiscountPolicy    DiscountPolicy
	TotalTolerance    float64
	OrderNumberPrefix string
	DefaultCurrency   string
	AdminEmail        string
	RecoveryGrace     time.Duration

	Sanitizer   func(string) string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	transactions repositories.TransactionRepository
	discounts    repositories.DiscountRepository
	products     repositories.ProductRepository
	deals        repositories.DealRepository
	inventory    repositories.InventoryRepository
	counters     repositories.CounterRepository
	customers    CustomerResolver
	unitOfWork   repositories.UnitOfWork

	emails EmailNotifier
	admin  AdminNotifier
	events OrderEventPublisher

	pricer        checkoutPricer
	policy        DiscountPolicy
	orderPrefix   string
	adminEmail    string
	recoveryGrace time.Duration

	sanitize func(string) string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("order service: transaction repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer resolver is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = bluemonday.StrictPolicy().Sanitize
	}

	policy := deps.DiscountPolicy
	if policy == "" {
		policy = DiscountPolicyLenient
	}
	if policy != DiscountPolicyLenient && policy != DiscountPolicyStrict {
		return nil, fmt.Errorf("order service: unknown discount policy %q", policy)
	}

	prefix := strings.ToUpper(strings.TrimSpace(deps.OrderNumberPrefix))
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}

	grace := deps.RecoveryGrace
	if grace <= 0 {
		grace = defaultRecoveryGrace
	}

	return &orderService{
		orders:       deps.Orders,
		transactions: deps.Transactions,
		discounts:    deps.Discounts,
		products:     deps.Products,
		deals:        deps.Deals,
		inventory:    deps.Inventory,
		counters:     deps.Counters,
		customers:    deps.Customers,
		unitOfWork:   unit,
		emails:       deps.Emails,
		admin:        deps.Admin,
		events:       deps.Events,
		pricer: checkoutPricer{
			discounts:       deps.Discounts,
			settings:        deps.Settings,
			policy:          policy,
			tolerance:       deps.TotalTolerance,
			defaultCurrency: deps.DefaultCurrency,
			logger:          logger,
		},
		policy:        policy,
		orderPrefix:   prefix,
		adminEmail:    strings.TrimSpace(deps.AdminEmail),
		recoveryGrace: grace,
		sanitize:      sanitize,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder validates the checkout, prices it, and commits the order, its items, the payment
// transaction and discount usage in one unit of work. Stock and notifications follow the commit
// and never fail the request.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	checkout := cmd.Checkout
	if len(checkout.Items) == 0 {
		return Order{}, ErrOrderMissingItems
	}
	if checkout.DeliveryAddress == nil {
		return Order{}, ErrOrderMissingAddress
	}
	address := toShippingAddress(*checkout.DeliveryAddress)
	if address.IsZero() {
		return Order{}, ErrOrderMissingAddress
	}

	now := s.now()
	reference := strings.TrimSpace(checkout.PaymentReference)
	address.PaymentReference = reference

	userID := strings.TrimSpace(cmd.Actor.UserID)
	if cmd.Actor.System() {
		userID = strings.TrimSpace(checkout.UserID)
	}
	email := firstNonEmpty(checkout.Email, address.Email, cmd.Actor.Email)
	if address.Email == "" {
		address.Email = strings.ToLower(email)
	}

	source := cmd.Source
	customer, err := s.customers.Resolve(ctx, CustomerHints{
		CustomerID: checkout.CustomerID,
		UserID:     userID,
		Email:      email,
		FullName:   firstNonEmpty(checkout.FullName, address.FullName),
		Phone:      firstNonEmpty(checkout.Phone, address.Phone),
		Source:     source,
	})
	if err != nil {
		return Order{}, err
	}

	priced, err := s.pricer.price(ctx, checkout, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   strings.TrimSpace(checkout.PaymentMethod),
		ShippingAddress: address,
		Notes:           s.cleanNotes(checkout.Notes),
		WorkflowStatus:  domain.OrderWorkflowCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if customer != nil {
		order.CustomerID = customer.ID
	}
	if cmd.Payment != nil {
		order.PaymentStatus = domain.PaymentStatusPaid
		if order.PaymentMethod == "" {
			order.PaymentMethod = cmd.Payment.Provider
		}
	}

	items, adjustments, err := s.buildItems(ctx, order.ID, priced.Lines, now)
	if err != nil {
		return Order{}, err
	}
	order.Items = items
	applyPricing(&order, priced)
	order.OrderNumber = s.generateOrderNumber(ctx, now)

	txn, err := s.commitOrder(ctx, &order, priced, reference, cmd.Payment)
	if errors.Is(err, errDiscountExhausted) {
		if s.policy == DiscountPolicyStrict {
			return Order{}, fmt.Errorf("%w: %w", ErrOrderInvalidDiscount, ErrDiscountUsageLimitReached)
		}
		s.logger(ctx, "order.discount.exhausted_at_commit", map[string]any{
			"order": order.ID,
			"code":  order.DiscountCode,
		})
		priced, err = s.pricer.withoutDiscount(ctx, priced, checkout.Total, ErrDiscountUsageLimitReached)
		if err != nil {
			return Order{}, err
		}
		applyPricing(&order, priced)
		txn, err = s.commitOrder(ctx, &order, priced, reference, cmd.Payment)
	}
	if err != nil {
		if errors.Is(err, ErrOrderAlreadyProcessed) {
			return Order{}, err
		}
		s.logger(ctx, "order.persist.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return Order{}, fmt.Errorf("%w: %v", ErrOrderPersistence, err)
	}
	order.Transactions = []Transaction{txn}

	s.logger(ctx, "order.created", map[string]any{
		"order":         order.ID,
		"orderNumber":   order.OrderNumber,
		"total":         order.Total,
		"paymentStatus": string(order.PaymentStatus),
		"reference":     txn.Reference,
	})

	order = s.completeWorkflow(ctx, order, adjustments)
	return order, nil
}

// commitOrder runs every read before the first write so stores with read-before-write
// transactions accept it.
func (s *orderService) commitOrder(ctx context.Context, order *Order, priced pricedCheckout, reference string, payment *ConfirmedPayment) (Transaction, error) {
	var committed Transaction
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var existing *Transaction
		if reference != "" {
			found, err := s.transactions.FindByReference(txCtx, reference)
			switch {
			case err == nil:
				if found.IsLinked() {
					return fmt.Errorf("%w: reference %s belongs to order %s", ErrOrderAlreadyProcessed, reference, found.OrderID)
				}
				existing = &found
			case !isNotFound(err):
				return err
			}
		}

		if priced.Discount != nil {
			if err := s.discounts.IncrementUsage(txCtx, priced.Discount.ID); err != nil {
				var discountErr *repositories.DiscountError
				if errors.As(err, &discountErr) && discountErr.Code == repositories.DiscountErrorUsageExhausted {
					return errDiscountExhausted
				}
				return err
			}
		}

		if err := s.orders.Insert(txCtx, *order); err != nil {
			return err
		}

		committed = s.linkTransaction(*order, existing, reference, payment)
		if existing != nil {
			return s.transactions.Update(txCtx, committed)
		}
		if err := s.transactions.Insert(txCtx, committed); err != nil {
			if isConflict(err) {
				return fmt.Errorf("%w: reference %s", ErrOrderAlreadyProcessed, committed.Reference)
			}
			return err
		}
		return nil
	})
	return committed, err
}

func (s *orderService) linkTransaction(order Order, existing *Transaction, reference string, payment *ConfirmedPayment) Transaction {
	now := order.CreatedAt
	txn := Transaction{
		ID:          transactionIDPrefix + s.newID(),
		Reference:   reference,
		InitiatedAt: now,
	}
	if existing != nil {
		txn = *existing
		txn.Metadata = maps.Clone(existing.Metadata)
	}
	if txn.Reference == "" {
		txn.Reference = "TXN-" + strings.TrimPrefix(order.ID, orderIDPrefix)
	}

	txn.OrderID = order.ID
	if txn.UserID == "" {
		txn.UserID = order.UserID
	}
	if txn.PaymentMethod == "" {
		txn.PaymentMethod = order.PaymentMethod
	}
	txn.Amount = order.Total
	txn.Currency = order.Currency
	txn.PaymentStatus = order.PaymentStatus
	txn.Status = domain.TransactionStatusFor(order.PaymentStatus)
	if txn.CustomerEmail == "" {
		txn.CustomerEmail = order.ShippingAddress.Email
	}
	if payment != nil {
		if payment.Provider != "" {
			txn.PaymentProvider = payment.Provider
		}
		paidAt := payment.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		txn.PaidAt = &paidAt
		if payment.Amount > 0 && domain.Round2(payment.Amount) != order.Total {
			if txn.Metadata == nil {
				txn.Metadata = map[string]any{}
			}
			txn.Metadata["gateway_amount"] = payment.Amount
		}
	}
	txn.UpdatedAt = now
	return txn
}

// buildItems resolves catalog membership and deal snapshots. Lines whose product id is not in the
// catalog are stored as non-catalog items.
func (s *orderService) buildItems(ctx context.Context, orderID string, lines []CheckoutLine, now time.Time) ([]OrderItem, []repositories.StockAdjustment, error) {
	catalog := map[string]domain.Product{}
	if s.products != nil {
		ids := make([]string, 0, len(lines))
		for _, line := range lines {
			if line.ProductID != "" {
				ids = append(ids, line.ProductID)
			}
		}
		if len(ids) > 0 {
			found, err := s.products.FindByIDs(ctx, ids)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: catalog lookup: %v", ErrOrderPersistence, err)
			}
			catalog = found
		}
	}

	items := make([]OrderItem, 0, len(lines))
	adjustments := make([]repositories.StockAdjustment, 0, len(lines))
	for _, line := range lines {
		item := OrderItem{
			ID:          orderItemIDPrefix + s.newID(),
			OrderID:     orderID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Subtotal:    line.Subtotal,
			Variants:    maps.Clone(line.Variants),
			CreatedAt:   now,
		}
		if _, ok := catalog[line.ProductID]; ok && line.ProductID != "" {
			item.ProductID = line.ProductID
			adjustments = append(adjustments, repositories.StockAdjustment{ProductID: line.ProductID, Quantity: line.Quantity})
		} else {
			item.Deal = s.dealSnapshot(ctx, line)
			if item.Deal != nil && item.Deal.DealID != "" {
				adjustments = append(adjustments, repositories.StockAdjustment{DealID: item.Deal.DealID, Quantity: line.Quantity})
			}
		}
		items = append(items, item)
	}
	return items, adjustments, nil
}

func (s *orderService) dealSnapshot(ctx context.Context, line CheckoutLine) *DealSnapshot {
	var snapshot *DealSnapshot
	if line.Deal != nil {
		snapshot = &DealSnapshot{
			DealID:        firstNonEmpty(line.Deal.DealID, line.DealID),
			Title:         firstNonEmpty(line.Deal.Title, line.ProductName),
			Description:   line.Deal.Description,
			Price:         line.Deal.Price,
			OriginalPrice: line.Deal.OriginalPrice,
			ImageURL:      line.Deal.ImageURL,
		}
	}
	if line.DealID == "" || s.deals == nil {
		return snapshot
	}
	deal, err := s.deals.FindByID(ctx, line.DealID)
	if err != nil {
		if !isNotFound(err) {
			s.logger(ctx, "order.deal.lookup_failed", map[string]any{"deal": line.DealID, "error": err.Error()})
		}
		if snapshot == nil {
			snapshot = &DealSnapshot{DealID: line.DealID, Title: line.ProductName, Price: line.UnitPrice}
		}
		return snapshot
	}
	return &DealSnapshot{
		DealID:        deal.ID,
		Title:         deal.Title,
		Description:   deal.Description,
		Price:         deal.Price,
		OriginalPrice: deal.OriginalPrice,
		ImageURL:      deal.ImageURL,
	}
}

// completeWorkflow performs the post-commit saga steps: stock, then notifications. Each step
// advances the persisted workflow status so recovery can resume where it stopped.
func (s *orderService) completeWorkflow(ctx context.Context, order Order, adjustments []repositories.StockAdjustment) Order {
	if order.WorkflowStatus == domain.OrderWorkflowCreated {
		if s.applyStock(ctx, order, adjustments) {
			order.WorkflowStatus = domain.OrderWorkflowStockAdjusted
		} else {
			return order
		}
	}

	if order.WorkflowStatus == domain.OrderWorkflowStockAdjusted {
		s.notifyCreated(ctx, order)
		if err := s.orders.UpdateWorkflowStatus(ctx, order.ID, domain.OrderWorkflowCompleted); err != nil {
			s.logger(ctx, "order.workflow.update_failed", map[string]any{"order": order.ID, "error": err.Error()})
			return order
		}
		order.WorkflowStatus = domain.OrderWorkflowCompleted
	}
	return order
}

func (s *orderService) applyStock(ctx context.Context, order Order, adjustments []repositories.StockAdjustment) bool {
	if s.inventory == nil {
		if err := s.orders.UpdateWorkflowStatus(ctx, order.ID, domain.OrderWorkflowStockAdjusted); err != nil {
			s.logger(ctx, "order.workflow.update_failed", map[string]any{"order": order.ID, "error": err.Error()})
			return false
		}
		return true
	}
	result, err := s.inventory.ApplyOrderStock(ctx, order.ID, adjustments)
	if err != nil {
		s.logger(ctx, "order.stock.failed", map[string]any{
			"severity": "WARNING",
			"order":    order.ID,
			"error":    err.Error(),
		})
		return false
	}
	if len(result.Skipped) > 0 {
		s.logger(ctx, "order.stock.skipped", map[string]any{"order": order.ID, "skipped": result.Skipped})
	}
	return true
}

func (s *orderService) notifyCreated(ctx context.Context, order Order) {
	if s.emails != nil {
		s.logNotification(ctx, "confirmation", order.ID, s.emails.SendOrderConfirmation(ctx, order))
	}
	if s.admin != nil && s.adminEmail != "" {
		s.logNotification(ctx, "admin_new_order", order.ID, s.admin.NotifyNewOrder(ctx, order, s.adminEmail))
	}
	s.publishEvent(ctx, OrderEvent{
		Type:                 orderEventCreated,
		OrderID:              order.ID,
		OrderNumber:          order.OrderNumber,
		CurrentStatus:        string(order.Status),
		CurrentPaymentStatus: string(order.PaymentStatus),
		ActorID:              order.UserID,
		OccurredAt:           order.CreatedAt,
		Metadata: map[string]any{
			"total":    order.Total,
			"currency": order.Currency,
		},
	})
}

// RecoverIncompleteOrders resumes orders whose post-commit steps were interrupted.
func (s *orderService) RecoverIncompleteOrders(ctx context.Context, limit int) (RecoveryReport, error) {
	if limit <= 0 {
		limit = defaultRecoveryLimit
	}
	cutoff := s.now().Add(-s.recoveryGrace)
	var report RecoveryReport

	for _, status := range []domain.OrderWorkflowStatus{domain.OrderWorkflowCreated, domain.OrderWorkflowStockAdjusted} {
		orders, err := s.orders.ListByWorkflowStatus(ctx, status, limit)
		if err != nil {
			return report, mapRepositoryError(err, nil)
		}
		for _, order := range orders {
			if order.CreatedAt.After(cutoff) {
				continue
			}
			report.Scanned++
			recovered := s.completeWorkflow(ctx, order, stockAdjustmentsFor(order.Items))
			if recovered.WorkflowStatus == domain.OrderWorkflowCompleted {
				report.Recovered++
			} else {
				report.Failed = append(report.Failed, order.ID)
			}
		}
	}

	s.logger(ctx, "order.recovery.completed", map[string]any{
		"scanned":   report.Scanned,
		"recovered": report.Recovered,
		"failed":    len(report.Failed),
	})
	return report, nil
}

func stockAdjustmentsFor(items []OrderItem) []repositories.StockAdjustment {
	adjustments := make([]repositories.StockAdjustment, 0, len(items))
	for _, item := range items {
		switch {
		case item.IsCatalogItem():
			adjustments = append(adjustments, repositories.StockAdjustment{ProductID: item.ProductID, Quantity: item.Quantity})
		case item.Deal != nil && item.Deal.DealID != "":
			adjustments = append(adjustments, repositories.StockAdjustment{DealID: item.Deal.DealID, Quantity: item.Quantity})
		}
	}
	return adjustments
}

// ListOrders restricts non-admin callers to their own orders.
func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	filter := repositories.OrderListFilter{
		Status:        query.Status,
		PaymentStatus: query.PaymentStatus,
		Pagination:    query.Pagination,
	}
	if query.Actor.IsAdmin {
		filter.CustomerID = strings.TrimSpace(query.CustomerID)
	} else {
		userID := strings.TrimSpace(query.Actor.UserID)
		if userID == "" {
			return domain.CursorPage[Order]{}, ErrOrderForbidden
		}
		filter.UserID = userID
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return domain.CursorPage[Order]{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return page, nil
}

// GetOrder returns the order with items and transactions when the actor may see it.
func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !actor.IsAdmin && !order.IsOwnedBy(actor.UserID) {
		return Order{}, ErrOrderForbidden
	}
	txns, err := s.transactions.ListByOrder(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "order.transactions.load_failed", map[string]any{"order": order.ID, "error": err.Error()})
	} else {
		order.Transactions = txns
	}
	return order, nil
}

// TrackOrder returns a limited view when the email matches the order contact.
func (s *orderService) TrackOrder(ctx context.Context, query TrackOrderQuery) (OrderTracking, error) {
	number := strings.ToUpper(strings.TrimSpace(query.OrderNumber))
	email := strings.ToLower(strings.TrimSpace(query.Email))
	if number == "" || email == "" {
		return OrderTracking{}, fmt.Errorf("%w: order number and email are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return OrderTracking{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if !strings.EqualFold(strings.TrimSpace(order.ShippingAddress.Email), email) {
		return OrderTracking{}, ErrOrderUnauthorized
	}

	tracking := OrderTracking{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total,
		Currency:      order.Currency,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if opt := order.ShippingAddress.DeliveryOption; opt != nil {
		tracking.DeliveryName = opt.Name
	}
	for _, item := range order.Items {
		tracking.ItemCount += item.Quantity
		tracking.Items = append(tracking.Items, TrackedItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
		})
	}
	return tracking, nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return order, nil
}

func (s *orderService) cleanNotes(notes string) string {
	cleaned := strings.TrimSpace(s.sanitize(notes))
	if len(cleaned) <= maxNotesLength {
		return cleaned
	}
	cut := maxNotesLength
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return strings.TrimSpace(cleaned[:cut])
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) logNotification(ctx context.Context, kind, orderID string, result NotificationResult) {
	if result.Outcome == NotificationSent {
		return
	}
	s.logger(ctx, "order.notification."+string(result.Outcome), map[string]any{
		"kind":   kind,
		"order":  orderID,
		"reason": result.Reason,
	})
}

func applyPricing(order *Order, priced pricedCheckout) {
	order.Currency = priced.Currency
	order.Subtotal = priced.Totals.Subtotal
	order.Discount = priced.Totals.Discount
	order.Tax = priced.Totals.Tax
	order.ShippingFee = priced.Totals.ShippingFee
	order.Total = priced.Totals.Total
	order.DiscountCode = ""
	if priced.DiscountResult != nil {
		order.DiscountCode = priced.DiscountResult.Code
	}
}

func toShippingAddress(addr CheckoutAddress) ShippingAddress {
	out := ShippingAddress{
		FullName:   strings.TrimSpace(addr.FullName),
		Email:      strings.ToLower(strings.TrimSpace(addr.Email)),
		Phone:      strings.TrimSpace(addr.Phone),
		Street:     strings.TrimSpace(addr.Street),
		City:       strings.TrimSpace(addr.City),
		Region:     strings.TrimSpace(addr.Region),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
		Notes:      strings.TrimSpace(addr.Notes),
	}
	if opt := addr.DeliveryOption; opt != nil {
		out.DeliveryOption = &DeliveryOption{
			ID:    strings.TrimSpace(opt.ID),
			Name:  strings.TrimSpace(opt.Name),
			Price: domain.Round2(opt.Price),
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
