package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

const (
	NameOrderCreated            = "OrderCreated"
	NameOrderStatusChanged      = "OrderStatusChanged"
	NameOrderRefunded           = "OrderRefunded"
	NameDeliveryCreated         = "DeliveryCreated"
	NameDeliveryStatusChanged   = "DeliveryStatusChanged"
	NameDeliveryLocationUpdated = "DeliveryLocationUpdated"
	NameLowStockAlert           = "LowStockAlert"
)

type OrderCreated struct {
	OrderID        uuid.UUID   `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	CheckoutID     uuid.UUID   `json:"checkout_id"`
	CustomerID     uuid.UUID   `json:"customer_id"`
	SellerKind     string      `json:"seller_kind"`
	SellerID       uuid.UUID   `json:"seller_id"`
	DeliveryMethod string      `json:"delivery_method"`
	Total          money.Cents `json:"total"`
	PaymentStatus  string      `json:"payment_status"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

func (OrderCreated) EventName() string  { return NameOrderCreated }
func (e OrderCreated) EventKey() string { return e.OrderID.String() }

type OrderStatusChanged struct {
	OrderID        uuid.UUID `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	ActorID        uuid.UUID `json:"actor_id"`
	ActorRole      string    `json:"actor_role"`
	DeliveryMethod string    `json:"delivery_method"`
	SellerKind     string    `json:"seller_kind"`
	SellerID       uuid.UUID `json:"seller_id"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (OrderStatusChanged) EventName() string  { return NameOrderStatusChanged }
func (e OrderStatusChanged) EventKey() string { return e.OrderID.String() }

type OrderRefunded struct {
	OrderID    uuid.UUID   `json:"order_id"`
	Amount     money.Cents `json:"amount"`
	Full       bool        `json:"full"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func (OrderRefunded) EventName() string  { return NameOrderRefunded }
func (e OrderRefunded) EventKey() string { return e.OrderID.String() }

type DeliveryCreated struct {
	DeliveryID          uuid.UUID   `json:"delivery_id"`
	OrderID             uuid.UUID   `json:"order_id"`
	DriverID            uuid.UUID   `json:"driver_id"`
	DeliveryFee         money.Cents `json:"delivery_fee"`
	DriverEarnings      money.Cents `json:"driver_earnings"`
	EstimatedPickupAt   time.Time   `json:"estimated_pickup_at"`
	EstimatedDeliveryAt time.Time   `json:"estimated_delivery_at"`
	OccurredAt          time.Time   `json:"occurred_at"`
}

func (DeliveryCreated) EventName() string  { return NameDeliveryCreated }
func (e DeliveryCreated) EventKey() string { return e.OrderID.String() }

type DeliveryStatusChanged struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	OrderID    uuid.UUID `json:"order_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (DeliveryStatusChanged) EventName() string  { return NameDeliveryStatusChanged }
func (e DeliveryStatusChanged) EventKey() string { return e.OrderID.String() }

type DeliveryLocationUpdated struct {
	DeliveryID          uuid.UUID  `json:"delivery_id"`
	OrderID             uuid.UUID  `json:"order_id"`
	DriverID            uuid.UUID  `json:"driver_id"`
	Lat                 float64    `json:"lat"`
	Lng                 float64    `json:"lng"`
	EstimatedPickupAt   *time.Time `json:"estimated_pickup_at,omitempty"`
	EstimatedDeliveryAt *time.Time `json:"estimated_delivery_at,omitempty"`
	OccurredAt          time.Time  `json:"occurred_at"`
}

func (DeliveryLocationUpdated) EventName() string  { return NameDeliveryLocationUpdated }
func (e DeliveryLocationUpdated) EventKey() string { return e.OrderID.String() }

type LowStockAlert struct {
	ProductID     uuid.UUID `json:"product_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	StockQuantity int64     `json:"stock_quantity"`
	Threshold     int64     `json:"low_stock_threshold"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (LowStockAlert) EventName() string  { return NameLowStockAlert }
func (e LowStockAlert) EventKey() string { return e.ProductID.String() }
