package entity

// PaymentStatus is the order-side view of payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// IntentStatus is the gateway-side lifecycle of a PaymentIntent.
type IntentStatus string

const (
	IntentCreated  IntentStatus = "created"
	IntentCaptured IntentStatus = "captured"
	IntentFailed   IntentStatus = "failed"
	IntentRefunded IntentStatus = "refunded"
)
