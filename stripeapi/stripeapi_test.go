package stripeapi

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Unix(1712345678, 0)
	header := Sign(payload, "whsec_test", now)

	if err := VerifySignature(payload, header, "whsec_test", DefaultTolerance, now); err != nil {
		t.Fatalf("VerifySignature() error = %v", err)
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Now()
	header := Sign(payload, "whsec_a", now)
	if err := VerifySignature(payload, header, "whsec_b", DefaultTolerance, now); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifySignatureTamperedBody(t *testing.T) {
	now := time.Now()
	header := Sign([]byte(`{"amount":100}`), "whsec_test", now)
	if err := VerifySignature([]byte(`{"amount":10000}`), header, "whsec_test", DefaultTolerance, now); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("error = %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	signedAt := time.Now().Add(-time.Hour)
	header := Sign(payload, "whsec_test", signedAt)
	if err := VerifySignature(payload, header, "whsec_test", DefaultTolerance, time.Now()); !errors.Is(err, ErrTimestampTooOld) {
		t.Fatalf("error = %v, want ErrTimestampTooOld", err)
	}
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	for _, h := range []string{"", "v1=abc", "t=123", "nonsense"} {
		if err := VerifySignature([]byte(`{}`), h, "whsec_test", 0, time.Now()); !errors.Is(err, ErrBadSignatureHeader) {
			t.Errorf("header %q: error = %v, want ErrBadSignatureHeader", h, err)
		}
	}
}

func TestCheckoutSessionDecode(t *testing.T) {
	raw := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_9","amount_total":2500,"currency":"usd","client_reference_id":"points_7_package_1000_1712345678","payment_status":"paid"}}}`)
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	var cs CheckoutSession
	if err := json.Unmarshal(ev.Data.Object, &cs); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if cs.PaymentIntent != "pi_9" || cs.AmountTotal != 2500 || cs.ClientReferenceID != "points_7_package_1000_1712345678" {
		t.Errorf("session = %+v", cs)
	}
}
