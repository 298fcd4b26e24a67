// Package ledger is the durable store of truth for entitlements: user point
// balances, subscription rows, donations, the append-only points-transaction
// log, system chat rows, gift orders, and the webhook idempotency ledger.
// Reconciliation workflows are the only writers.
//
// Every helper takes a db.DBTX so a whole workflow can run inside one
// transaction; statements are narrow single-row mutations.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/tip-tender/backend/db"
	"github.com/onnwee/tip-tender/backend/reftoken"
)

// ErrNotFound reports a row that does not exist.
var ErrNotFound = errors.New("not found")

type User struct {
	ID                int64
	Username          string
	PointsBalance     int64
	PointsEarnedTotal int64
	IsSubscriber      bool
	IsBanned          bool
}

type Subscription struct {
	ID           int64
	UserID       int64
	PlanType     string
	BillingCycle reftoken.Cycle
	AmountCents  int64
	StartDate    time.Time
	EndDate      time.Time
	Status       string
}

type Donation struct {
	ID          int64
	DonorName   string
	IsAnonymous bool
	AmountCents int64
	Message     string
	Status      string
}

type GiftOrder struct {
	CustomID     string
	UserID       int64
	Recipients   []string
	Quantity     int
	PlanType     string
	BillingCycle reftoken.Cycle
	AmountCents  int64
	GiftMessage  string
	Processed    bool
}

// MarkEventProcessed records a provider event in the idempotency ledger.
// The insert is an atomic insert-if-absent on the (provider, capture_id)
// primary key; it returns false when the event was already recorded.
// Run it in the same transaction as the workflow mutations so a failed
// workflow leaves no marker behind.
func MarkEventProcessed(ctx context.Context, q db.DBTX, provider, captureID, eventType string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO webhook_events (provider, capture_id, event_type, processed_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (provider, capture_id) DO NOTHING`,
		provider, captureID, eventType)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, q db.DBTX, id int64) (User, error) {
	var u User
	err := q.QueryRowContext(ctx,
		`SELECT id, username, points_balance, points_earned_total, is_subscriber, is_banned
		 FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.PointsBalance, &u.PointsEarnedTotal, &u.IsSubscriber, &u.IsBanned)
	if err == sql.ErrNoRows {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

// GetUserByUsername fetches a user by username.
func GetUserByUsername(ctx context.Context, q db.DBTX, username string) (User, error) {
	var u User
	err := q.QueryRowContext(ctx,
		`SELECT id, username, points_balance, points_earned_total, is_subscriber, is_banned
		 FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.PointsBalance, &u.PointsEarnedTotal, &u.IsSubscriber, &u.IsBanned)
	if err == sql.ErrNoRows {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return u, err
}

// CreditPoints increments a user's spendable balance and lifetime total in a
// single statement and appends the corresponding transaction row. The
// description embeds the provider capture id for audit.
func CreditPoints(ctx context.Context, q db.DBTX, userID, points int64, description string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE users SET points_balance = points_balance + $1, points_earned_total = points_earned_total + $1
		 WHERE id = $2`, points, userID)
	if err != nil {
		return fmt.Errorf("credit points: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO points_transactions (user_id, type, points_amount, description, created_at)
		 VALUES ($1, 'purchase', $2, $3, NOW())`, userID, points, description)
	if err != nil {
		return fmt.Errorf("append points transaction: %w", err)
	}
	return nil
}

// CompleteDonation transitions a donation from pending to completed and
// returns the row as it was at completion time. The second return value is
// false when the donation was already completed (idempotent re-delivery) —
// in that case no chat announcement should be emitted. A donation id that
// does not exist at all returns ErrNotFound.
func CompleteDonation(ctx context.Context, q db.DBTX, id int64, provider, captureID string) (Donation, bool, error) {
	var d Donation
	err := q.QueryRowContext(ctx,
		`UPDATE donations SET status = 'completed', provider = $2, capture_id = $3, completed_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING id, donor_name, is_anonymous, amount_cents, message, status`,
		id, provider, captureID).
		Scan(&d.ID, &d.DonorName, &d.IsAnonymous, &d.AmountCents, &d.Message, &d.Status)
	if err == sql.ErrNoRows {
		// Either already completed or missing; distinguish for the caller.
		var status string
		err2 := q.QueryRowContext(ctx, `SELECT status FROM donations WHERE id = $1`, id).Scan(&status)
		if err2 == sql.ErrNoRows {
			return Donation{}, false, fmt.Errorf("donation %d: %w", id, ErrNotFound)
		}
		if err2 != nil {
			return Donation{}, false, err2
		}
		return Donation{ID: id, Status: status}, false, nil
	}
	if err != nil {
		return Donation{}, false, fmt.Errorf("complete donation: %w", err)
	}
	return d, true, nil
}

// ActiveSubscription returns the user's active subscription or nil.
func ActiveSubscription(ctx context.Context, q db.DBTX, userID int64) (*Subscription, error) {
	var s Subscription
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, plan_type, billing_cycle, amount_cents, start_date, end_date, status
		 FROM subscriptions WHERE user_id = $1 AND status = 'active'`, userID).
		Scan(&s.ID, &s.UserID, &s.PlanType, &s.BillingCycle, &s.AmountCents, &s.StartDate, &s.EndDate, &s.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSubscription creates an active subscription row and flips the user's
// subscriber flag. The partial unique index rejects a second active row.
func InsertSubscription(ctx context.Context, q db.DBTX, s Subscription) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan_type, billing_cycle, amount_cents, start_date, end_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'active', NOW())`,
		s.UserID, s.PlanType, string(s.BillingCycle), s.AmountCents, s.StartDate, s.EndDate)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	_, err = q.ExecContext(ctx, `UPDATE users SET is_subscriber = TRUE WHERE id = $1`, s.UserID)
	return err
}

// ExtendSubscription pushes a subscription's end date forward.
func ExtendSubscription(ctx context.Context, q db.DBTX, subID int64, newEnd time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE subscriptions SET end_date = $2, updated_at = NOW() WHERE id = $1`, subID, newEnd)
	if err != nil {
		return fmt.Errorf("extend subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %d: %w", subID, ErrNotFound)
	}
	return nil
}

// GetGiftOrder fetches a gift order staging record by its custom id.
func GetGiftOrder(ctx context.Context, q db.DBTX, customID string) (GiftOrder, error) {
	var g GiftOrder
	var recipients []byte
	err := q.QueryRowContext(ctx,
		`SELECT custom_id, user_id, recipients, quantity, plan_type, billing_cycle, amount_cents, gift_message, processed
		 FROM gift_orders WHERE custom_id = $1`, customID).
		Scan(&g.CustomID, &g.UserID, &recipients, &g.Quantity, &g.PlanType, &g.BillingCycle, &g.AmountCents, &g.GiftMessage, &g.Processed)
	if err == sql.ErrNoRows {
		return GiftOrder{}, fmt.Errorf("gift order %q: %w", customID, ErrNotFound)
	}
	if err != nil {
		return GiftOrder{}, err
	}
	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &g.Recipients); err != nil {
			return GiftOrder{}, fmt.Errorf("gift order %q recipients: %w", customID, err)
		}
	}
	return g, nil
}

// InsertGiftOrder stages a gift order at checkout-session time.
func InsertGiftOrder(ctx context.Context, q db.DBTX, g GiftOrder) error {
	recipients, err := json.Marshal(g.Recipients)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO gift_orders (custom_id, user_id, recipients, quantity, plan_type, billing_cycle, amount_cents, gift_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		g.CustomID, g.UserID, recipients, g.Quantity, g.PlanType, string(g.BillingCycle), g.AmountCents, g.GiftMessage)
	return err
}

// MarkGiftOrderProcessed flips the order's terminal flag. Returns false when
// the order was already processed.
func MarkGiftOrderProcessed(ctx context.Context, q db.DBTX, customID string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE gift_orders SET processed = TRUE, processed_at = NOW()
		 WHERE custom_id = $1 AND NOT processed`, customID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UnprocessedGiftOrders lists custom ids of orders still pending after minAge,
// oldest first. Used by the sweep worker to re-run stuck orders.
func UnprocessedGiftOrders(ctx context.Context, q db.DBTX, minAge time.Duration, limit int) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT custom_id FROM gift_orders
		 WHERE NOT processed AND created_at < NOW() - ($1 * INTERVAL '1 second')
		 ORDER BY created_at ASC LIMIT $2`, int64(minAge.Seconds()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Candidate is a potential community gift recipient: a user together with
// their active subscription, if any.
type Candidate struct {
	UserID   int64
	Username string
	SubID    sql.NullInt64
	EndDate  sql.NullTime
}

// CommunityCandidates selects up to limit users eligible for unallocated
// gifted subscriptions. Policy (a visible fairness rule, not an
// implementation detail): users with no active subscription first, then
// soonest-expiring active subscriptions; the gifter, banned users, and
// already-granted users are excluded.
func CommunityCandidates(ctx context.Context, q db.DBTX, gifterID int64, exclude []int64, limit int) ([]Candidate, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT u.id, u.username, s.id, s.end_date
		 FROM users u
		 LEFT JOIN subscriptions s ON s.user_id = u.id AND s.status = 'active'
		 WHERE u.id <> $1 AND NOT u.is_banned AND NOT (u.id = ANY($2::bigint[]))
		 ORDER BY (s.id IS NOT NULL), s.end_date ASC NULLS LAST, u.id ASC
		 LIMIT $3`, gifterID, int64Array(exclude), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.UserID, &c.Username, &c.SubID, &c.EndDate); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// int64Array formats ids as a Postgres array literal for ANY($n::bigint[]).
func int64Array(ids []int64) string {
	if len(ids) == 0 {
		return "{}"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// InsertSystemMessage appends a system row to the chat feed. Fire-and-forget
// relative to the reconciliation transaction; the chat UI polls this table.
func InsertSystemMessage(ctx context.Context, q db.DBTX, message string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO chat_messages (username, message, created_at) VALUES ('System', $1, NOW())`, message)
	return err
}
