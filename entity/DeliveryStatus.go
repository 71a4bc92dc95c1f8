package entity

type DeliveryStatus string

const (
	DeliveryAccepted  DeliveryStatus = "accepted"
	DeliveryPickedUp  DeliveryStatus = "picked_up"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

var deliveryRank = map[DeliveryStatus]int{
	DeliveryAccepted:  0,
	DeliveryPickedUp:  1,
	DeliveryInTransit: 2,
	DeliveryDelivered: 3,
}

func (s DeliveryStatus) Valid() bool {
	_, ok := deliveryRank[s]
	return ok || s == DeliveryCancelled
}

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryCancelled
}

// Active deliveries hold the driver: they are neither finished nor cancelled.
func ActiveDeliveryStatuses() []DeliveryStatus {
	return []DeliveryStatus{DeliveryAccepted, DeliveryPickedUp, DeliveryInTransit}
}

// Rank orders the forward sequence; cancelled has no rank.
func (s DeliveryStatus) Rank() (int, bool) {
	r, ok := deliveryRank[s]
	return r, ok
}
