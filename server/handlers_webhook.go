package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/tip-tender/backend/paypalapi"
	"github.com/onnwee/tip-tender/backend/reconcile"
	"github.com/onnwee/tip-tender/backend/stripeapi"
	"github.com/onnwee/tip-tender/backend/telemetry"
)

// maxWebhookBody bounds the accepted request body. Provider events are small;
// anything bigger is not a genuine delivery.
const maxWebhookBody = 1 << 20

// HandlePayPalWebhook ingests PayPal event deliveries. The response code is
// the retry contract: 2xx acknowledges (including events we drop on purpose),
// 401 rejects an unverifiable delivery, 5xx asks PayPal to retry later.
func (h *Handlers) HandlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx)
	telemetry.WebhooksReceived.WithLabelValues("paypal").Inc()

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.paypal != nil {
		ok, err := h.paypal.Verify(ctx, rawBody, r.Header)
		if errors.Is(err, paypalapi.ErrMissingHeaders) {
			telemetry.SignatureFailures.WithLabelValues("paypal").Inc()
			log.Warn("paypal delivery missing signature headers", slog.Any("err", err), slog.String("component", "webhook"))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			// Verification call itself failed; a 5xx makes PayPal redeliver
			// once the outage clears.
			log.Error("paypal signature verification unavailable", slog.Any("err", err), slog.String("component", "webhook"))
			http.Error(w, "verification unavailable", http.StatusBadGateway)
			return
		}
		if !ok {
			telemetry.SignatureFailures.WithLabelValues("paypal").Inc()
			log.Warn("paypal signature verification failed", slog.String("component", "webhook"))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var env paypalapi.Event
	if err := json.Unmarshal(rawBody, &env); err != nil {
		log.Warn("paypal event body not parseable, acknowledged", slog.Any("err", err), slog.String("component", "webhook"))
		writeAck(w)
		return
	}

	ev := reconcile.Event{Provider: "paypal", ID: env.ID, Type: env.EventType}
	if len(env.Resource) > 0 {
		var capture paypalapi.Capture
		if err := json.Unmarshal(env.Resource, &capture); err == nil {
			ev.CaptureID = capture.ID
			ev.RefToken = capture.CustomID
			if capture.Amount.Value != "" {
				cents, err := parseDecimalCents(capture.Amount.Value)
				if err != nil {
					log.Warn("paypal amount not parseable",
						slog.String("value", capture.Amount.Value), slog.Any("err", err),
						slog.String("component", "webhook"))
				} else {
					ev.AmountCents = cents
				}
			}
		}
	}

	if err := reconcile.HandleEvent(ctx, h.engine, ev); err != nil {
		log.Error("paypal event processing failed", slog.String("event_id", env.ID), slog.Any("err", err), slog.String("component", "webhook"))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	writeAck(w)
}

// HandleStripeWebhook ingests Stripe event deliveries. Same retry contract as
// the PayPal endpoint; verification here is a local HMAC check, so there is no
// 5xx verification-outage path.
func (h *Handlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx)
	telemetry.WebhooksReceived.WithLabelValues("stripe").Inc()

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.stripeSecret != "" {
		sig := r.Header.Get("Stripe-Signature")
		if err := stripeapi.VerifySignature(rawBody, sig, h.stripeSecret, stripeapi.DefaultTolerance, time.Now()); err != nil {
			telemetry.SignatureFailures.WithLabelValues("stripe").Inc()
			log.Warn("stripe signature verification failed", slog.Any("err", err), slog.String("component", "webhook"))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var env stripeapi.Event
	if err := json.Unmarshal(rawBody, &env); err != nil {
		log.Warn("stripe event body not parseable, acknowledged", slog.Any("err", err), slog.String("component", "webhook"))
		writeAck(w)
		return
	}

	ev := reconcile.Event{Provider: "stripe", ID: env.ID, Type: env.Type}
	if len(env.Data.Object) > 0 && strings.HasPrefix(env.Type, "checkout.session.") {
		var session stripeapi.CheckoutSession
		if err := json.Unmarshal(env.Data.Object, &session); err == nil {
			// The payment intent is the stable idempotency fingerprint; fall
			// back to the session id for sessions that never reached payment.
			ev.CaptureID = session.PaymentIntent
			if ev.CaptureID == "" {
				ev.CaptureID = session.ID
			}
			ev.RefToken = session.ClientReferenceID
			ev.AmountCents = session.AmountTotal
		}
	}

	if err := reconcile.HandleEvent(ctx, h.engine, ev); err != nil {
		log.Error("stripe event processing failed", slog.String("event_id", env.ID), slog.Any("err", err), slog.String("component", "webhook"))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	writeAck(w)
}

func writeAck(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// parseDecimalCents converts a provider decimal money string ("25.00", "5",
// "10.5") into integer cents. More than two fractional digits is rejected
// rather than rounded.
func parseDecimalCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	var cents int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("amount %q is not a decimal number", s)
		}
		cents = cents*10 + int64(r-'0')
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}
