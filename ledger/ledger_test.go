package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/tip-tender/backend/reftoken"
	"github.com/onnwee/tip-tender/backend/testutil"
)

func setupLedger(t *testing.T) *sql.DB {
	t.Helper()
	database := testutil.SetupTestDB(t)
	testutil.ResetTables(t, database,
		"webhook_events", "chat_messages", "points_transactions",
		"gift_orders", "subscriptions", "donations", "users")
	return database
}

func insertUser(t *testing.T, database *sql.DB, username string) int64 {
	t.Helper()
	var id int64
	err := database.QueryRow(
		`INSERT INTO users (username) VALUES ($1) RETURNING id`, username).Scan(&id)
	if err != nil {
		t.Fatalf("insert user %s: %v", username, err)
	}
	return id
}

func TestMarkEventProcessedCAS(t *testing.T) {
	database := setupLedger(t)
	ctx := context.Background()

	fresh, err := MarkEventProcessed(ctx, database, "paypal", "CAP-1", "PAYMENT.CAPTURE.COMPLETED")
	if err != nil {
		t.Fatalf("MarkEventProcessed: %v", err)
	}
	if !fresh {
		t.Error("first mark should be fresh")
	}

	fresh, err = MarkEventProcessed(ctx, database, "paypal", "CAP-1", "PAYMENT.CAPTURE.COMPLETED")
	if err != nil {
		t.Fatalf("MarkEventProcessed repeat: %v", err)
	}
	if fresh {
		t.Error("second mark should report duplicate")
	}

	// Same capture id under another provider is a distinct event.
	fresh, err = MarkEventProcessed(ctx, database, "stripe", "CAP-1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("MarkEventProcessed other provider: %v", err)
	}
	if !fresh {
		t.Error("same capture id under a different provider should be fresh")
	}
}

func TestMarkEventProcessedRollsBackWithTransaction(t *testing.T) {
	database := setupLedger(t)
	ctx := context.Background()

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := MarkEventProcessed(ctx, tx, "paypal", "CAP-RB", ""); err != nil {
		t.Fatalf("MarkEventProcessed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	fresh, err := MarkEventProcessed(ctx, database, "paypal", "CAP-RB", "")
	if err != nil {
		t.Fatalf("MarkEventProcessed after rollback: %v", err)
	}
	if !fresh {
		t.Error("marker should not survive a rolled-back transaction")
	}
}

func TestCreditPoints(t *testing.T) {
	database := setupLedger(t)
	ctx := context.Background()
	uid := insertUser(t, database, "alice")

	if err := CreditPoints(ctx, database, uid, 550, "Purchased package_500"); err != nil {
		t.Fatalf("CreditPoints: %v", err)
	}
	if err := CreditPoints(ctx, database, uid, 1150, "Purchased package_1000"); err != nil {
		t.Fatalf("CreditPoints: %v", err)
	}

	u, err := GetUser(ctx, database, uid)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.PointsBalance != 1700 || u.PointsEarnedTotal != 1700 {
		t.Errorf("balance/earned = %d/%d, want 1700/1700", u.PointsBalance, u.PointsEarnedTotal)
	}

	if err := CreditPoints(ctx, database, 424242, 100, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CreditPoints(unknown user) = %v, want ErrNotFound", err)
	}
}

func TestCompleteDonationTransitions(t *testing.T) {
	database := setupLedger(t)
	ctx := context.Background()

	var id int64
	err := database.QueryRow(
		`INSERT INTO donations (donor_name, amount_cents, message) VALUES ('bob', 1000, 'hey') RETURNING id`).Scan(&id)
	if err != nil {
		t.Fatalf("insert donation: %v", err)
	}

	d, applied, err := CompleteDonation(ctx, database, id, "paypal", "CAP-D1")
	if err != nil {
		t.Fatalf("CompleteDonation: %v", err)
	}
	if !applied {
		t.Fatal("first completion should apply")
	}
	if d.DonorName != "bob" || d.AmountCents != 1000 || d.Message != "hey" {
		t.Errorf("donation = %+v", d)
	}

	_, applied, err = CompleteDonation(ctx, database, id, "paypal", "CAP-D2")
	if err != nil {
		t.Fatalf("CompleteDonation repeat: %v", err)
	}
	if applied {
		t.Error("second completion should be a no-op")
	}

	if _, _, err := CompleteDonation(ctx, database, 999999, "paypal", "CAP-D3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteDonation(missing) = %v, want ErrNotFound", err)
	}
}

func TestInsertSubscriptionRejectsSecondActive(t *testing.T) {
	database := setupLedger(t)
	ctx := context.Background()
	uid := insertUser(t, database, "alice")

	start := time.Now().UTC()
	sub := Subscription{
		UserID: uid, PlanType: "premium", BillingCycle: reftoken.Monthly,
		AmountCents: 499, StartDate: start, EndDate: start.AddDate(0, 1, 0),
	}
	if err := InsertSubscription(ctx, database, sub); err != nil {
		t.Fatalf("InsertSubscription: %v", err)
	}
	if err := InsertSubscription(ctx, database, sub); err == nil {
		t.Error("second active subscription should violate the partial unique index")
	}

	u, _ := GetUser(ctx, database, uid)
	if !u.IsSubscriber {
		t.Error("is_subscriber not flipped")
	}
}

func TestCommunityCandidatesOrdering(t *testing.T) {
	database := setupLedger(t)
	ctx := context.Background()

	gifter := insertUser(t, database, "gifter")
	noSub := insertUser(t, database, "no_sub")
	subSoon := insertUser(t, database, "sub_soon")
	subLate := insertUser(t, database, "sub_late")
	banned := insertUser(t, database, "banned")
	excluded := insertUser(t, database, "excluded")
	if _, err := database.Exec(`UPDATE users SET is_banned = TRUE WHERE id = $1`, banned); err != nil {
		t.Fatalf("ban user: %v", err)
	}

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []struct {
		uid int64
		end time.Time
	}{
		{subSoon, base.AddDate(0, 0, 3)},
		{subLate, base.AddDate(0, 6, 0)},
	} {
		err := InsertSubscription(ctx, database, Subscription{
			UserID: s.uid, PlanType: "premium", BillingCycle: reftoken.Monthly,
			AmountCents: 499, StartDate: base.AddDate(0, -1, 0), EndDate: s.end,
		})
		if err != nil {
			t.Fatalf("insert subscription: %v", err)
		}
	}

	got, err := CommunityCandidates(ctx, database, gifter, []int64{excluded}, 10)
	if err != nil {
		t.Fatalf("CommunityCandidates: %v", err)
	}
	want := []int64{noSub, subSoon, subLate}
	if len(got) != len(want) {
		t.Fatalf("candidates = %d, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.UserID != want[i] {
			t.Errorf("candidate[%d] = %d (%s), want %d", i, c.UserID, c.Username, want[i])
		}
	}

	// Limit truncates after ordering.
	got, err = CommunityCandidates(ctx, database, gifter, nil, 1)
	if err != nil {
		t.Fatalf("CommunityCandidates limit: %v", err)
	}
	if len(got) != 1 || got[0].UserID != noSub {
		t.Errorf("limited candidates = %+v, want just no_sub", got)
	}
}

func TestUnprocessedGiftOrders(t *testing.T) {
	database := setupLedger(t)
	ctx := context.Background()
	uid := insertUser(t, database, "gifter")

	for _, id := range []string{"OLD-1", "OLD-2", "NEW-1"} {
		err := InsertGiftOrder(ctx, database, GiftOrder{
			CustomID: id, UserID: uid, Quantity: 1,
			PlanType: "premium", BillingCycle: reftoken.Monthly, AmountCents: 499,
		})
		if err != nil {
			t.Fatalf("insert gift order %s: %v", id, err)
		}
	}
	if _, err := database.Exec(
		`UPDATE gift_orders SET created_at = NOW() - INTERVAL '2 hours' WHERE custom_id LIKE 'OLD-%'`); err != nil {
		t.Fatalf("backdate orders: %v", err)
	}
	if _, err := MarkGiftOrderProcessed(ctx, database, "OLD-2"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	ids, err := UnprocessedGiftOrders(ctx, database, time.Hour, 10)
	if err != nil {
		t.Fatalf("UnprocessedGiftOrders: %v", err)
	}
	if len(ids) != 1 || ids[0] != "OLD-1" {
		t.Errorf("unprocessed = %v, want [OLD-1]", ids)
	}

	// Double processing is detected.
	done, err := MarkGiftOrderProcessed(ctx, database, "OLD-2")
	if err != nil {
		t.Fatalf("MarkGiftOrderProcessed: %v", err)
	}
	if done {
		t.Error("already-processed order should report false")
	}
}
