package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/hogtech/orderflow/internal/domain"
	"github.com/hogtech/orderflow/internal/repositories"
)

type testRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *testRepoError) Error() string       { return e.msg }
func (e *testRepoError) IsNotFound() bool    { return e.notFound }
func (e *testRepoError) IsConflict() bool    { return e.conflict }
func (e *testRepoError) IsUnavailable() bool { return e.unavailable }

func errNotFound(what string) error {
	return &testRepoError{msg: what + " not found", notFound: true}
}

func errConflict(what string) error {
	return &testRepoError{msg: what + " exists", conflict: true}
}

type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order) error
	inserts  int
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: map[string]domain.Order{}}
}

func (r *memOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if r.insertFn != nil {
		if err := r.insertFn(ctx, order); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return errConflict("order")
	}
	order.Transactions = nil
	r.orders[order.ID] = order
	r.inserts++
	return nil
}

func (r *memOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if r.updateFn != nil {
		if err := r.updateFn(ctx, order); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[order.ID]
	if !ok {
		return errNotFound("order")
	}
	order.Items = current.Items
	order.Transactions = nil
	r.orders[order.ID] = order
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, errNotFound("order")
	}
	return order, nil
}

func (r *memOrderRepo) FindByNumber(_ context.Context, number string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.OrderNumber == number {
			return order, nil
		}
	}
	return domain.Order{}, errNotFound("order")
}

func (r *memOrderRepo) FindByPaymentReference(_ context.Context, reference string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.PaymentReference() == reference {
			return order, nil
		}
	}
	return domain.Order{}, errNotFound("order")
}

func (r *memOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var page domain.CursorPage[domain.Order]
	for _, order := range r.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		page.Items = append(page.Items, order)
	}
	return page, nil
}

func (r *memOrderRepo) UpdateWorkflowStatus(_ context.Context, orderID string, status domain.OrderWorkflowStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return errNotFound("order")
	}
	order.WorkflowStatus = status
	r.orders[orderID] = order
	return nil
}

func (r *memOrderRepo) ListByWorkflowStatus(_ context.Context, status domain.OrderWorkflowStatus, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.WorkflowStatus == status {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memOrderRepo) snapshot() map[string]domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.orders)
}

func (r *memOrderRepo) restore(orders map[string]domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = orders
}

func (r *memOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *memOrderRepo) only() domain.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		return order
	}
	return domain.Order{}
}

// memUnitOfWork runs one transaction at a time and discards its writes on error,
// matching how conflicting Firestore transactions settle after retries.
type memUnitOfWork struct {
	mu     sync.Mutex
	orders *memOrderRepo
	txns   *memTransactionRepo
}

func (u *memUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	orders := u.orders.snapshot()
	txns := u.txns.snapshot()
	if err := fn(ctx); err != nil {
		u.orders.restore(orders)
		u.txns.restore(txns)
		return err
	}
	return nil
}

func withMemUnitOfWork(deps *OrderServiceDeps) {
	deps.UnitOfWork = &memUnitOfWork{
		orders: deps.Orders.(*memOrderRepo),
		txns:   deps.Transactions.(*memTransactionRepo),
	}
}

type memTransactionRepo struct {
	mu       sync.Mutex
	txns     map[string]domain.Transaction
	insertFn func(domain.Transaction) error
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{txns: map[string]domain.Transaction{}}
}

func (r *memTransactionRepo) Insert(_ context.Context, txn domain.Transaction) error {
	if r.insertFn != nil {
		if err := r.insertFn(txn); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txns[txn.Reference]; ok {
		return errConflict("transaction")
	}
	r.txns[txn.Reference] = txn
	return nil
}

func (r *memTransactionRepo) snapshot() map[string]domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.txns)
}

func (r *memTransactionRepo) restore(txns map[string]domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns = txns
}

func (r *memTransactionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txns)
}

func (r *memTransactionRepo) Update(_ context.Context, txn domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns[txn.Reference] = txn
	return nil
}

func (r *memTransactionRepo) FindByReference(_ context.Context, reference string) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.txns[reference]
	if !ok {
		return domain.Transaction{}, errNotFound("transaction")
	}
	return txn, nil
}

func (r *memTransactionRepo) ListByOrder(_ context.Context, orderID string) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, txn := range r.txns {
		if txn.OrderID == orderID {
			out = append(out, txn)
		}
	}
	return out, nil
}

type memDiscountRepo struct {
	mu          sync.Mutex
	discounts   map[string]domain.Discount
	incrementFn func(string) error
}

func newMemDiscountRepo(discounts ...domain.Discount) *memDiscountRepo {
	repo := &memDiscountRepo{discounts: map[string]domain.Discount{}}
	for _, d := range discounts {
		repo.discounts[domain.NormalizeDiscountCode(d.Code)] = d
	}
	return repo
}

func (r *memDiscountRepo) FindByCode(_ context.Context, code string) (domain.Discount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.discounts[code]
	if !ok {
		return domain.Discount{}, errNotFound("discount")
	}
	return d, nil
}

func (r *memDiscountRepo) IncrementUsage(_ context.Context, discountID string) error {
	if r.incrementFn != nil {
		return r.incrementFn(discountID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, d := range r.discounts {
		if d.ID != discountID {
			continue
		}
		if d.UsageExhausted() {
			return repositories.NewDiscountError(repositories.DiscountErrorUsageExhausted, "", nil)
		}
		d.UsedCount++
		r.discounts[code] = d
		return nil
	}
	return repositories.NewDiscountError(repositories.DiscountErrorNotFound, "", nil)
}

func (r *memDiscountRepo) used(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discounts[code].UsedCount
}

type memCustomerRepo struct {
	mu        sync.Mutex
	customers map[string]domain.Customer
	findErr   error
	insertErr error
	updateErr error
	updates   int
}

func newMemCustomerRepo(customers ...domain.Customer) *memCustomerRepo {
	repo := &memCustomerRepo{customers: map[string]domain.Customer{}}
	for _, c := range customers {
		repo.customers[c.ID] = c
	}
	return repo
}

func (r *memCustomerRepo) Insert(_ context.Context, customer domain.Customer) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[customer.ID] = customer
	return nil
}

func (r *memCustomerRepo) Update(_ context.Context, customer domain.Customer) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	r.customers[customer.ID] = customer
	return nil
}

func (r *memCustomerRepo) FindByID(_ context.Context, id string) (domain.Customer, error) {
	return r.find(func(c domain.Customer) bool { return c.ID == id })
}

func (r *memCustomerRepo) FindByEmail(_ context.Context, email string) (domain.Customer, error) {
	return r.find(func(c domain.Customer) bool { return strings.EqualFold(c.Email, email) })
}

func (r *memCustomerRepo) FindByPhone(_ context.Context, phone string) (domain.Customer, error) {
	return r.find(func(c domain.Customer) bool { return c.Phone == phone })
}

func (r *memCustomerRepo) find(match func(domain.Customer) bool) (domain.Customer, error) {
	if r.findErr != nil {
		return domain.Customer{}, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if match(c) {
			return c, nil
		}
	}
	return domain.Customer{}, errNotFound("customer")
}

type stubProductRepo struct {
	products map[string]domain.Product
}

func (s *stubProductRepo) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := map[string]domain.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type stubDealRepo struct {
	deals map[string]domain.Deal
}

func (s *stubDealRepo) FindByID(_ context.Context, id string) (domain.Deal, error) {
	d, ok := s.deals[id]
	if !ok {
		return domain.Deal{}, errNotFound("deal")
	}
	return d, nil
}

type stubInventoryRepo struct {
	mu      sync.Mutex
	applyFn func(context.Context, string, []repositories.StockAdjustment) (repositories.StockAdjustmentResult, error)
	calls   [][]repositories.StockAdjustment
	orders  *memOrderRepo
}

func (s *stubInventoryRepo) ApplyOrderStock(ctx context.Context, orderID string, adjustments []repositories.StockAdjustment) (repositories.StockAdjustmentResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, adjustments)
	s.mu.Unlock()
	if s.applyFn != nil {
		return s.applyFn(ctx, orderID, adjustments)
	}
	if s.orders != nil {
		if err := s.orders.UpdateWorkflowStatus(ctx, orderID, domain.OrderWorkflowStockAdjusted); err != nil {
			return repositories.StockAdjustmentResult{}, err
		}
	}
	return repositories.StockAdjustmentResult{}, nil
}

type stubCounterRepo struct {
	mu     sync.Mutex
	nextFn func(context.Context, string, int64) (int64, error)
	ids    []string
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	s.mu.Lock()
	s.ids = append(s.ids, counterID)
	n := int64(len(s.ids))
	s.mu.Unlock()
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return n, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type stubSettings struct {
	settings StoreSettings
	err      error
}

func (s stubSettings) StoreSettings(context.Context) (StoreSettings, error) {
	return s.settings, s.err
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type captureEmails struct {
	mu            sync.Mutex
	confirmations []string
	updates       []string
	cancellations []string
	outcome       NotificationOutcome
}

func (c *captureEmails) result() NotificationResult {
	if c.outcome == "" {
		return NotificationResult{Outcome: NotificationSent}
	}
	return NotificationResult{Outcome: c.outcome, Reason: "stub"}
}

func (c *captureEmails) SendOrderConfirmation(_ context.Context, order Order) NotificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmations = append(c.confirmations, order.ID)
	return c.result()
}

func (c *captureEmails) SendOrderStatusUpdate(_ context.Context, order Order, _ OrderStatus) NotificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, order.ID)
	return c.result()
}

func (c *captureEmails) SendOrderCancellation(_ context.Context, order Order, _ string) NotificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancellations = append(c.cancellations, order.ID)
	return c.result()
}

type captureAdmin struct {
	mu       sync.Mutex
	notified []string
}

func (c *captureAdmin) NotifyNewOrder(_ context.Context, order Order, adminEmail string) NotificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notified = append(c.notified, order.ID+"|"+adminEmail)
	return NotificationResult{Outcome: NotificationSent}
}

type captureLog struct {
	mu     sync.Mutex
	events []string
}

func (c *captureLog) log(_ context.Context, event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLog) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

func sequenceIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}

var errBoom = errors.New("boom")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func ptrFloat(v float64) *float64 { return &v }

func ptrInt(v int) *int { return &v }

func ptrTime(t time.Time) *time.Time { return &t }
