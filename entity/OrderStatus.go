package entity

type OrderStatus string

const (
	OrderNew       OrderStatus = "new"
	OrderAccepted  OrderStatus = "accepted"
	OrderPicking   OrderStatus = "picking"
	OrderReady     OrderStatus = "ready"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderNew, OrderAccepted, OrderPicking, OrderReady, OrderPickedUp, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Terminal statuses only allow payment_status paid -> refunded afterwards.
func (s OrderStatus) Terminal() bool {
	return s == OrderPickedUp || s == OrderDelivered || s == OrderCancelled
}
