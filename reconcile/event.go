package reconcile

// Event is a provider-neutral view of one webhook delivery, produced by the
// HTTP handlers after signature verification.
type Event struct {
	Provider    string // "paypal" | "stripe"
	ID          string // provider's event id
	Type        string // provider's native event type string
	CaptureID   string // capture / transaction id, the idempotency fingerprint
	AmountCents int64  // captured amount
	RefToken    string // reference token (custom id) attached at checkout
}

// Normalized is the internal event classification.
type Normalized int

const (
	EventUnknown Normalized = iota
	EventPaymentCompleted
	EventPaymentFailed
	EventOrderApproved
	EventOrderCompleted
)

func (n Normalized) String() string {
	switch n {
	case EventPaymentCompleted:
		return "payment_completed"
	case EventPaymentFailed:
		return "payment_failed"
	case EventOrderApproved:
		return "order_approved"
	case EventOrderCompleted:
		return "order_completed"
	default:
		return "unknown"
	}
}

// Normalize maps (provider, native event type) to the internal classification.
// Unknown combinations are acknowledged without processing; failing them
// would only cause endless provider retries.
func Normalize(provider, eventType string) Normalized {
	switch provider {
	case "paypal":
		switch eventType {
		case "PAYMENT.CAPTURE.COMPLETED":
			return EventPaymentCompleted
		case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
			return EventPaymentFailed
		case "CHECKOUT.ORDER.APPROVED":
			return EventOrderApproved
		case "CHECKOUT.ORDER.COMPLETED":
			return EventOrderCompleted
		}
	case "stripe":
		switch eventType {
		case "checkout.session.completed":
			return EventPaymentCompleted
		case "payment_intent.payment_failed", "charge.failed", "checkout.session.expired":
			return EventPaymentFailed
		}
	}
	return EventUnknown
}
