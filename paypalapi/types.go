package paypalapi

import "encoding/json"

// Event is the PayPal webhook envelope. Resource is left raw because its
// shape depends on the event type (capture vs. order).
type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

// Capture is the resource of PAYMENT.CAPTURE.* events. CustomID carries the
// reference token attached at checkout time.
type Capture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	Amount   Amount `json:"amount"`
}

// Amount is a PayPal money value: a decimal string plus currency code.
type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}
