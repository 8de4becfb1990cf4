package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hogtech/orderflow/internal/domain"
	pfirestore "github.com/hogtech/orderflow/internal/platform/firestore"
	"github.com/hogtech/orderflow/internal/platform/pagination"
	"github.com/hogtech/orderflow/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "items"

	maxInFilterValues = 10
)

// OrderRepository implements repositories.OrderRepository. Items live in an "items"
// subcollection beneath each order document.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Insert creates the order header and its items. Inside a unit of work every write is staged on
// the bound transaction.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	if _, err := r.base.Create(ctx, orderID, encodeOrder(order)); err != nil {
		return err
	}

	orderRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	tx, inTx := pfirestore.TransactionFromContext(ctx)
	for _, item := range order.Items {
		itemID := strings.TrimSpace(item.ID)
		if itemID == "" {
			return fmt.Errorf("order repository: item id is required for order %s", orderID)
		}
		itemRef := orderRef.Collection(orderItemsCollection).Doc(itemID)
		payload := encodeOrderItem(orderID, item)
		if inTx {
			err = tx.Create(itemRef, payload)
		} else {
			_, err = itemRef.Create(ctx, payload)
		}
		if err != nil {
			return pfirestore.WrapError("orders.items.create", err)
		}
	}
	return nil
}

// Update replaces the mutable header fields.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrder(order)
	updates := []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "paymentStatus", Value: doc.PaymentStatus},
		{Path: "paymentMethod", Value: doc.PaymentMethod},
		{Path: "customerId", Value: doc.CustomerID},
		{Path: "notes", Value: doc.Notes},
		{Path: "shippingAddress", Value: doc.ShippingAddress},
		{Path: "workflowStatus", Value: doc.WorkflowStatus},
		{Path: "cancelledAt", Value: doc.CancelledAt},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
	_, err := r.base.Update(ctx, orderID, updates, firestore.Exists)
	return err
}

// FindByID loads the order together with its items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, pfirestore.NotFoundError("orders.get", "order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return r.hydrate(ctx, doc)
}

// FindByNumber loads the order carrying the human-readable order number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if orderNumber == "" {
		return domain.Order{}, pfirestore.NotFoundError("orders.find_by_number", "order number is required")
	}
	return r.findOne(ctx, "orderNumber", orderNumber)
}

// FindByPaymentReference loads the order whose shipping address embeds the reference.
func (r *OrderRepository) FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Order{}, pfirestore.NotFoundError("orders.find_by_payment_reference", "payment reference is required")
	}
	return r.findOne(ctx, "shippingAddress.paymentReference", reference)
}

func (r *OrderRepository) findOne(ctx context.Context, field, value string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return r.hydrate(ctx, doc)
}

// List returns order headers newest first. Items are not loaded for listings.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	if limit > pagination.DefaultMaxPageSize {
		limit = pagination.DefaultMaxPageSize
	}

	startAfter, err := decodeOrderListToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	userID := strings.TrimSpace(filter.UserID)
	customerID := strings.TrimSpace(filter.CustomerID)
	statuses := normaliseFilterValues(filter.Status)
	paymentStatuses := normaliseFilterValues(filter.PaymentStatus)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}
		q = whereIn(q, "status", statuses)
		q = whereIn(q, "paymentStatus", paymentStatuses)
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if len(docs) > limit {
		docs = docs[:limit]
		last := docs[len(docs)-1]
		nextToken, err = encodeOrderListToken(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

// UpdateWorkflowStatus advances the recovery marker only.
func (r *OrderRepository) UpdateWorkflowStatus(ctx context.Context, orderID string, status domain.OrderWorkflowStatus) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: "workflowStatus", Value: string(status)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}, firestore.Exists)
	return err
}

// ListByWorkflowStatus returns orders stuck at the given workflow status, oldest first.
func (r *OrderRepository) ListByWorkflowStatus(ctx context.Context, status domain.OrderWorkflowStatus, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("workflowStatus", "==", string(status)).OrderBy("createdAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := r.hydrate(ctx, doc)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *OrderRepository) hydrate(ctx context.Context, doc pfirestore.Document[orderDocument]) (domain.Order, error) {
	order := doc.Data.toDomain(doc.ID)
	items, err := r.loadItems(ctx, doc.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	orderRef, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, err
	}
	query := orderRef.Collection(orderItemsCollection).OrderBy("createdAt", firestore.Asc)

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		snaps, err = tx.Documents(query).GetAll()
	} else {
		snaps, err = query.Documents(ctx).GetAll()
	}
	if err != nil {
		return nil, pfirestore.WrapError("orders.items.list", err)
	}

	items := make([]domain.OrderItem, 0, len(snaps))
	for _, snap := range snaps {
		var doc orderItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}
	return items, nil
}

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	CustomerID      string                  `firestore:"customerId,omitempty"`
	UserID          string                  `firestore:"userId,omitempty"`
	Status          string                  `firestore:"status"`
	PaymentStatus   string                  `firestore:"paymentStatus"`
	PaymentMethod   string                  `firestore:"paymentMethod,omitempty"`
	Currency        string                  `firestore:"currency"`
	Subtotal        float64                 `firestore:"subtotal"`
	Discount        float64                 `firestore:"discount"`
	DiscountCode    string                  `firestore:"discountCode,omitempty"`
	Tax             float64                 `firestore:"tax"`
	ShippingFee     float64                 `firestore:"shippingFee"`
	Total           float64                 `firestore:"total"`
	ShippingAddress shippingAddressDocument `firestore:"shippingAddress"`
	Notes           string                  `firestore:"notes,omitempty"`
	WorkflowStatus  string                  `firestore:"workflowStatus"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
	CancelledAt     *time.Time              `firestore:"cancelledAt"`
}

type shippingAddressDocument struct {
	FullName         string                  `firestore:"fullName,omitempty"`
	Email            string                  `firestore:"email,omitempty"`
	Phone            string                  `firestore:"phone,omitempty"`
	Street           string                  `firestore:"street,omitempty"`
	City             string                  `firestore:"city,omitempty"`
	Region           string                  `firestore:"region,omitempty"`
	PostalCode       string                  `firestore:"postalCode,omitempty"`
	Country          string                  `firestore:"country,omitempty"`
	Notes            string                  `firestore:"notes,omitempty"`
	DeliveryOption   *deliveryOptionDocument `firestore:"deliveryOption,omitempty"`
	PaymentReference string                  `firestore:"paymentReference,omitempty"`
}

type deliveryOptionDocument struct {
	ID    string  `firestore:"id"`
	Name  string  `firestore:"name"`
	Price float64 `firestore:"price"`
}

type orderItemDocument struct {
	OrderID     string            `firestore:"orderId"`
	ProductID   string            `firestore:"productId,omitempty"`
	ProductName string            `firestore:"productName"`
	Quantity    int               `firestore:"quantity"`
	UnitPrice   float64           `firestore:"unitPrice"`
	Subtotal    float64           `firestore:"subtotal"`
	Variants    map[string]string `firestore:"variants,omitempty"`
	Deal        *dealSnapshotDoc  `firestore:"deal,omitempty"`
	CreatedAt   time.Time         `firestore:"createdAt"`
}

type dealSnapshotDoc struct {
	DealID        string  `firestore:"dealId"`
	Title         string  `firestore:"title"`
	Description   string  `firestore:"description,omitempty"`
	Price         float64 `firestore:"price"`
	OriginalPrice float64 `firestore:"originalPrice"`
	ImageURL      string  `firestore:"imageUrl,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	addr := order.ShippingAddress
	doc := orderDocument{
		OrderNumber:   strings.TrimSpace(order.OrderNumber),
		CustomerID:    strings.TrimSpace(order.CustomerID),
		UserID:        strings.TrimSpace(order.UserID),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: strings.TrimSpace(order.PaymentMethod),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:      order.Subtotal,
		Discount:      order.Discount,
		DiscountCode:  strings.TrimSpace(order.DiscountCode),
		Tax:           order.Tax,
		ShippingFee:   order.ShippingFee,
		Total:         order.Total,
		ShippingAddress: shippingAddressDocument{
			FullName:         addr.FullName,
			Email:            addr.Email,
			Phone:            addr.Phone,
			Street:           addr.Street,
			City:             addr.City,
			Region:           addr.Region,
			PostalCode:       addr.PostalCode,
			Country:          addr.Country,
			Notes:            addr.Notes,
			PaymentReference: strings.TrimSpace(addr.PaymentReference),
		},
		Notes:          order.Notes,
		WorkflowStatus: string(order.WorkflowStatus),
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		CancelledAt:    utcPtr(order.CancelledAt),
	}
	if opt := addr.DeliveryOption; opt != nil {
		doc.ShippingAddress.DeliveryOption = &deliveryOptionDocument{ID: opt.ID, Name: opt.Name, Price: opt.Price}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	addr := domain.ShippingAddress{
		FullName:         d.ShippingAddress.FullName,
		Email:            d.ShippingAddress.Email,
		Phone:            d.ShippingAddress.Phone,
		Street:           d.ShippingAddress.Street,
		City:             d.ShippingAddress.City,
		Region:           d.ShippingAddress.Region,
		PostalCode:       d.ShippingAddress.PostalCode,
		Country:          d.ShippingAddress.Country,
		Notes:            d.ShippingAddress.Notes,
		PaymentReference: d.ShippingAddress.PaymentReference,
	}
	if opt := d.ShippingAddress.DeliveryOption; opt != nil {
		addr.DeliveryOption = &domain.DeliveryOption{ID: opt.ID, Name: opt.Name, Price: opt.Price}
	}
	return domain.Order{
		ID:              id,
		OrderNumber:     d.OrderNumber,
		CustomerID:      d.CustomerID,
		UserID:          d.UserID,
		Status:          domain.OrderStatus(d.Status),
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		PaymentMethod:   d.PaymentMethod,
		Currency:        d.Currency,
		Subtotal:        d.Subtotal,
		Discount:        d.Discount,
		DiscountCode:    d.DiscountCode,
		Tax:             d.Tax,
		ShippingFee:     d.ShippingFee,
		Total:           d.Total,
		ShippingAddress: addr,
		Notes:           d.Notes,
		WorkflowStatus:  domain.OrderWorkflowStatus(d.WorkflowStatus),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
		CancelledAt:     utcPtr(d.CancelledAt),
	}
}

func encodeOrderItem(orderID string, item domain.OrderItem) orderItemDocument {
	doc := orderItemDocument{
		OrderID:     orderID,
		ProductID:   strings.TrimSpace(item.ProductID),
		ProductName: item.ProductName,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		Subtotal:    item.Subtotal,
		Variants:    item.Variants,
		CreatedAt:   item.CreatedAt.UTC(),
	}
	if deal := item.Deal; deal != nil {
		doc.Deal = &dealSnapshotDoc{
			DealID:        deal.DealID,
			Title:         deal.Title,
			Description:   deal.Description,
			Price:         deal.Price,
			OriginalPrice: deal.OriginalPrice,
			ImageURL:      deal.ImageURL,
		}
	}
	return doc
}

func (d orderItemDocument) toDomain(id string) domain.OrderItem {
	item := domain.OrderItem{
		ID:          id,
		OrderID:     d.OrderID,
		ProductID:   d.ProductID,
		ProductName: d.ProductName,
		Quantity:    d.Quantity,
		UnitPrice:   d.UnitPrice,
		Subtotal:    d.Subtotal,
		Variants:    d.Variants,
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if deal := d.Deal; deal != nil {
		item.Deal = &domain.DealSnapshot{
			DealID:        deal.DealID,
			Title:         deal.Title,
			Description:   deal.Description,
			Price:         deal.Price,
			OriginalPrice: deal.OriginalPrice,
			ImageURL:      deal.ImageURL,
		}
	}
	return item
}

func encodeOrderListToken(createdAt time.Time, docID string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
}

func decodeOrderListToken(token string) ([]any, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor length", pagination.ErrInvalidPageToken)
	}
	raw, ok := cursor.StartAfter[0].(string)
	docID, idOK := cursor.StartAfter[1].(string)
	if !ok || !idOK {
		return nil, fmt.Errorf("%w: malformed cursor", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return []any{createdAt, docID}, nil
}

func whereIn(q firestore.Query, field string, values []string) firestore.Query {
	switch {
	case len(values) == 1:
		return q.Where(field, "==", values[0])
	case len(values) > 1:
		if len(values) > maxInFilterValues {
			values = values[:maxInFilterValues]
		}
		return q.Where(field, "in", values)
	}
	return q
}

func normaliseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	value := t.UTC()
	return &value
}
