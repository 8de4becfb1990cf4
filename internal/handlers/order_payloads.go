package handlers

import (
	"strings"

	"github.com/hogtech/orderflow/internal/services"
)

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string  `json:"id"`
	OrderNumber   string  `json:"order_number"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Currency      string  `json:"currency"`
	Total         float64 `json:"total"`
	CreatedAt     string  `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"order_number"`
	CustomerID      string               `json:"customer_id,omitempty"`
	UserID          string               `json:"user_id,omitempty"`
	Status          string               `json:"status"`
	PaymentStatus   string               `json:"payment_status"`
	PaymentMethod   string               `json:"payment_method,omitempty"`
	Currency        string               `json:"currency"`
	Subtotal        float64              `json:"subtotal"`
	Discount        float64              `json:"discount"`
	DiscountCode    string               `json:"discount_code,omitempty"`
	Tax             float64              `json:"tax"`
	ShippingFee     float64              `json:"shipping_fee"`
	Total           float64              `json:"total"`
	ShippingAddress addressPayload       `json:"shipping_address"`
	Notes           string               `json:"notes,omitempty"`
	Items           []orderItemPayload   `json:"items"`
	Transactions    []transactionPayload `json:"transactions,omitempty"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at,omitempty"`
	CancelledAt     string               `json:"cancelled_at,omitempty"`
}

type addressPayload struct {
	FullName         string                 `json:"full_name,omitempty"`
	Email            string                 `json:"email,omitempty"`
	Phone            string                 `json:"phone,omitempty"`
	Street           string                 `json:"street,omitempty"`
	City             string                 `json:"city,omitempty"`
	Region           string                 `json:"region,omitempty"`
	PostalCode       string                 `json:"postal_code,omitempty"`
	Country          string                 `json:"country,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	DeliveryOption   *deliveryOptionPayload `json:"delivery_option,omitempty"`
	PaymentReference string                 `json:"payment_reference,omitempty"`
}

type deliveryOptionPayload struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price"`
}

type orderItemPayload struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"product_id,omitempty"`
	ProductName string            `json:"product_name"`
	Quantity    int               `json:"quantity"`
	UnitPrice   float64           `json:"unit_price"`
	Subtotal    float64           `json:"subtotal"`
	Variants    map[string]string `json:"variants,omitempty"`
	Deal        *dealPayload      `json:"deal,omitempty"`
}

type dealPayload struct {
	DealID        string  `json:"deal_id"`
	Title         string  `json:"title,omitempty"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price,omitempty"`
	ImageURL      string  `json:"image_url,omitempty"`
}

type transactionPayload struct {
	Reference     string  `json:"reference"`
	Provider      string  `json:"provider,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	InitiatedAt   string  `json:"initiated_at,omitempty"`
	PaidAt        string  `json:"paid_at,omitempty"`
}

type trackingPayload struct {
	OrderNumber   string               `json:"order_number"`
	Status        string               `json:"status"`
	PaymentStatus string               `json:"payment_status"`
	Total         float64              `json:"total"`
	Currency      string               `json:"currency"`
	ItemCount     int                  `json:"item_count"`
	Items         []trackedItemPayload `json:"items"`
	Delivery      string               `json:"delivery,omitempty"`
	CreatedAt     string               `json:"created_at"`
	UpdatedAt     string               `json:"updated_at,omitempty"`
}

type trackedItemPayload struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	Subtotal    float64 `json:"subtotal"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      order.Currency,
		Total:         order.Total,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   order.PaymentMethod,
		Currency:        order.Currency,
		Subtotal:        order.Subtotal,
		Discount:        order.Discount,
		DiscountCode:    order.DiscountCode,
		Tax:             order.Tax,
		ShippingFee:     order.ShippingFee,
		Total:           order.Total,
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Notes:           order.Notes,
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
	}
	for _, item := range order.Items {
		itemPayload := orderItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			Variants:    item.Variants,
		}
		if deal := item.Deal; deal != nil {
			itemPayload.Deal = &dealPayload{
				DealID:        deal.DealID,
				Title:         deal.Title,
				Price:         deal.Price,
				OriginalPrice: deal.OriginalPrice,
				ImageURL:      deal.ImageURL,
			}
		}
		payload.Items = append(payload.Items, itemPayload)
	}
	for _, txn := range order.Transactions {
		payload.Transactions = append(payload.Transactions, transactionPayload{
			Reference:     txn.Reference,
			Provider:      txn.PaymentProvider,
			PaymentMethod: txn.PaymentMethod,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			Status:        string(txn.Status),
			PaymentStatus: string(txn.PaymentStatus),
			InitiatedAt:   formatTime(txn.InitiatedAt),
			PaidAt:        formatTimePtr(txn.PaidAt),
		})
	}
	return payload
}

func buildAddressPayload(addr services.ShippingAddress) addressPayload {
	payload := addressPayload{
		FullName:         addr.FullName,
		Email:            addr.Email,
		Phone:            addr.Phone,
		Street:           addr.Street,
		City:             addr.City,
		Region:           addr.Region,
		PostalCode:       addr.PostalCode,
		Country:          addr.Country,
		Notes:            addr.Notes,
		PaymentReference: addr.PaymentReference,
	}
	if opt := addr.DeliveryOption; opt != nil {
		payload.DeliveryOption = &deliveryOptionPayload{ID: opt.ID, Name: opt.Name, Price: opt.Price}
	}
	return payload
}

func buildTrackingPayload(tracking services.OrderTracking) trackingPayload {
	payload := trackingPayload{
		OrderNumber:   tracking.OrderNumber,
		Status:        string(tracking.Status),
		PaymentStatus: string(tracking.PaymentStatus),
		Total:         tracking.Total,
		Currency:      tracking.Currency,
		ItemCount:     tracking.ItemCount,
		Items:         make([]trackedItemPayload, 0, len(tracking.Items)),
		Delivery:      strings.TrimSpace(tracking.DeliveryName),
		CreatedAt:     formatTime(tracking.CreatedAt),
		UpdatedAt:     formatTime(tracking.UpdatedAt),
	}
	for _, item := range tracking.Items {
		payload.Items = append(payload.Items, trackedItemPayload(item))
	}
	return payload
}
