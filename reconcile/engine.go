// Package reconcile converts verified provider payment events into durable
// platform entitlements: points credits, donation completion, subscription
// activation, and gift distribution. Each event is applied in one database
// transaction together with its idempotency marker, so duplicate and retried
// deliveries are suppressed without races and partial failures leave nothing
// behind.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/tip-tender/backend/announce"
	"github.com/onnwee/tip-tender/backend/db"
	"github.com/onnwee/tip-tender/backend/ledger"
	"github.com/onnwee/tip-tender/backend/reftoken"
	"github.com/onnwee/tip-tender/backend/telemetry"
)

// Engine applies reconciliation workflows against the entitlement ledger.
type Engine struct {
	DB     *sql.DB
	Mirror announce.Sayer // optional post-commit Twitch mirror
}

// dispatch binds each normalized event to its handler. Only
// payment_completed decodes the reference token and mutates the ledger.
var dispatch = map[Normalized]func(*Engine, context.Context, Event) error{
	EventPaymentCompleted: (*Engine).applyPaymentCompleted,
	EventPaymentFailed:    (*Engine).recordFailure,
	EventOrderApproved:    (*Engine).acknowledge,
	EventOrderCompleted:   (*Engine).acknowledge,
}

// HandleEvent routes one verified delivery. A nil return acknowledges the
// event to the provider (2xx); a non-nil return surfaces as a server error
// and triggers a provider retry.
func HandleEvent(ctx context.Context, e *Engine, ev Event) error {
	norm := Normalize(ev.Provider, ev.Type)
	fn, ok := dispatch[norm]
	if !ok {
		telemetry.LoggerWithCorr(ctx).Info("unhandled event type acknowledged",
			slog.String("provider", ev.Provider), slog.String("type", ev.Type),
			slog.String("component", "reconcile"))
		return nil
	}
	var err error
	telemetry.TimeFunc(telemetry.ReconcileDuration, func() {
		err = fn(e, ctx, ev)
	})
	return err
}

func (e *Engine) acknowledge(ctx context.Context, ev Event) error {
	telemetry.LoggerWithCorr(ctx).Debug("event acknowledged without mutation",
		slog.String("provider", ev.Provider), slog.String("type", ev.Type),
		slog.String("component", "reconcile"))
	return nil
}

func (e *Engine) recordFailure(ctx context.Context, ev Event) error {
	telemetry.LoggerWithCorr(ctx).Warn("payment failed upstream",
		slog.String("provider", ev.Provider), slog.String("type", ev.Type),
		slog.String("capture_id", ev.CaptureID), slog.String("component", "reconcile"))
	return nil
}

// applyPaymentCompleted is the main reconciliation path: idempotency guard,
// token decode, workflow selection, announcement flush, commit.
func (e *Engine) applyPaymentCompleted(ctx context.Context, ev Event) error {
	log := telemetry.LoggerWithCorr(ctx)
	if ev.CaptureID == "" {
		log.Warn("payment_completed without capture id dropped",
			slog.String("provider", ev.Provider), slog.String("event_id", ev.ID),
			slog.String("component", "reconcile"))
		return nil
	}

	workflow := "unknown"
	err := e.inTx(ctx, func(tx *sql.Tx, buf *announce.Buffer) error {
		fresh, err := ledger.MarkEventProcessed(ctx, tx, ev.Provider, ev.CaptureID, ev.Type)
		if err != nil {
			return err
		}
		if !fresh {
			telemetry.DuplicatesSuppressed.Inc()
			log.Info("duplicate delivery suppressed",
				slog.String("provider", ev.Provider), slog.String("capture_id", ev.CaptureID),
				slog.String("component", "reconcile"))
			return nil
		}

		ref, err := reftoken.Decode(ev.RefToken)
		if err != nil {
			return err
		}
		workflow = ref.Kind.String()

		switch ref.Kind {
		case reftoken.KindPoints:
			err = e.creditPoints(ctx, tx, ev, ref)
		case reftoken.KindDonation:
			err = e.completeDonation(ctx, tx, ev, ref, buf)
		case reftoken.KindSubscription:
			err = e.activateSubscription(ctx, tx, ev, ref, buf)
		case reftoken.KindGift:
			err = e.runGiftOrder(ctx, tx, ref.GiftOrderID, buf)
		}
		if err != nil {
			return err
		}
		telemetry.EventsApplied.WithLabelValues(ref.Kind.String()).Inc()
		return nil
	})

	// Malformed tokens and catalog/data bugs are dropped with a success
	// acknowledgment: the provider can retry forever and the platform will
	// never be able to interpret the event differently.
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reftoken.ErrMalformed):
		telemetry.TokensRejected.Inc()
		log.Warn("unrecognized reference token dropped",
			slog.String("provider", ev.Provider), slog.String("token", ev.RefToken),
			slog.Any("err", err), slog.String("component", "reconcile"))
		return nil
	case errors.Is(err, ErrUnknownPackage), errors.Is(err, ledger.ErrNotFound):
		log.Warn("event references unknown catalog or ledger entry, dropped",
			slog.String("provider", ev.Provider), slog.String("capture_id", ev.CaptureID),
			slog.Any("err", err), slog.String("component", "reconcile"))
		return nil
	default:
		telemetry.EventsFailed.WithLabelValues(workflow).Inc()
		return fmt.Errorf("reconcile %s %s: %w", ev.Provider, ev.CaptureID, err)
	}
}

// inTx runs fn and the announcement flush in one transaction, then mirrors
// committed announcements. A failed fn rolls everything back, including the
// idempotency marker, so the provider retry starts clean.
func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx, buf *announce.Buffer) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	buf := &announce.Buffer{}
	if err := fn(tx, buf); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := buf.Flush(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if e.Mirror != nil {
		for _, m := range buf.Messages() {
			e.Mirror.Say(m)
		}
	}
	return nil
}

// formatCents renders integer cents as a dollar string ("25.00").
func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

func nowUTC() time.Time { return time.Now().UTC() }

var _ db.DBTX = (*sql.Tx)(nil)
