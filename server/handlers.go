package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/tip-tender/backend/announce"
	"github.com/onnwee/tip-tender/backend/paypalapi"
	"github.com/onnwee/tip-tender/backend/reconcile"
	"github.com/onnwee/tip-tender/backend/telemetry"
)

// Handlers holds shared dependencies for HTTP handlers.
type Handlers struct {
	db           *sql.DB
	engine       *reconcile.Engine
	paypal       *paypalapi.Client // nil disables signature verification
	stripeSecret string            // empty disables signature verification
	startedAt    time.Time
}

// Option customizes Handlers construction.
type Option func(*Handlers)

// WithPayPal enables PayPal webhook signature verification via the given client.
func WithPayPal(c *paypalapi.Client) Option {
	return func(h *Handlers) { h.paypal = c }
}

// WithStripeSecret enables Stripe webhook signature verification.
func WithStripeSecret(secret string) Option {
	return func(h *Handlers) { h.stripeSecret = secret }
}

// WithMirror attaches the post-commit chat announcement mirror.
func WithMirror(m announce.Sayer) Option {
	return func(h *Handlers) {
		if h.engine != nil {
			h.engine.Mirror = m
		}
	}
}

// WithEngine overrides the default reconciliation engine (tests).
func WithEngine(e *reconcile.Engine) Option {
	return func(h *Handlers) { h.engine = e }
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx context.Context, db *sql.DB, opts ...Option) *Handlers {
	telemetry.Init()
	h := &Handlers{
		db:        db,
		engine:    &reconcile.Engine{DB: db},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.paypal == nil {
		slog.Warn("PayPal signature verification disabled - webhook deliveries are accepted UNVERIFIED. Set PAYPAL_CLIENT_ID, PAYPAL_CLIENT_SECRET, PAYPAL_WEBHOOK_ID for production")
	}
	if h.stripeSecret == "" {
		slog.Warn("Stripe signature verification disabled - webhook deliveries are accepted UNVERIFIED. Set STRIPE_WEBHOOK_SECRET for production")
	}
	return h
}

// HandleStatus returns operational counters for dashboards: processed event
// totals, pending donations, and unprocessed gift orders.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	out := map[string]any{
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	var processed int64
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_events`).Scan(&processed); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	out["events_processed"] = processed

	var pendingDonations int64
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM donations WHERE status = 'pending'`).Scan(&pendingDonations); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	out["pending_donations"] = pendingDonations

	var unprocessedGifts int64
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gift_orders WHERE NOT processed`).Scan(&unprocessedGifts); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	out["unprocessed_gift_orders"] = unprocessedGifts

	var activeSubs int64
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE status = 'active'`).Scan(&activeSubs); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	out["active_subscriptions"] = activeSubs

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
