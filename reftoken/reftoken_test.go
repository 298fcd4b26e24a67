package reftoken

import (
	"errors"
	"testing"
	"time"
)

func TestDecodePoints(t *testing.T) {
	issued := time.Unix(1712345678, 0).UTC()
	tok := PointsToken(7, "package_1000", issued)
	if tok != "points_7_package_1000_1712345678" {
		t.Fatalf("PointsToken = %q", tok)
	}
	ref, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ref.Kind != KindPoints || ref.UserID != 7 || ref.PackageID != "package_1000" {
		t.Errorf("ref = %+v", ref)
	}
	if !ref.IssuedAt.Equal(issued) {
		t.Errorf("IssuedAt = %v, want %v", ref.IssuedAt, issued)
	}
}

func TestDecodeGift(t *testing.T) {
	ref, err := Decode(GiftToken("a1b2c3"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ref.Kind != KindGift || ref.GiftOrderID != "a1b2c3" {
		t.Errorf("ref = %+v", ref)
	}
	// Opaque ids may themselves contain underscores.
	ref, err = Decode("gift_order_55")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ref.GiftOrderID != "order_55" {
		t.Errorf("GiftOrderID = %q", ref.GiftOrderID)
	}
}

func TestDecodeSubscription(t *testing.T) {
	ref, err := Decode(SubscriptionToken(42, "standard", Yearly))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ref.Kind != KindSubscription || ref.UserID != 42 || ref.PlanType != "standard" || ref.BillingCycle != Yearly {
		t.Errorf("ref = %+v", ref)
	}
}

func TestDecodeDonation(t *testing.T) {
	ref, err := Decode("12345")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ref.Kind != KindDonation || ref.DonationID != 12345 {
		t.Errorf("ref = %+v", ref)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"points_7",                     // too few segments
		"points_x_package_1000_123",    // non-numeric user id
		"points_7_package_1000_later",  // non-numeric timestamp
		"gift_",                        // missing order id
		"sub_7_standard",               // too few segments
		"sub_7_standard_weekly",        // unsupported cycle
		"totally-not-a-token",          // not numeric either
	}
	for _, c := range cases {
		if _, err := Decode(c); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) error = %v, want ErrMalformed", c, err)
		}
	}
}

func TestCycleArithmetic(t *testing.T) {
	if Monthly.Months() != 1 || Yearly.Months() != 12 {
		t.Error("cycle months wrong")
	}
	if Monthly.InitialTerm() != 30*24*time.Hour {
		t.Errorf("monthly initial term = %v", Monthly.InitialTerm())
	}
	if Yearly.InitialTerm() != 365*24*time.Hour {
		t.Errorf("yearly initial term = %v", Yearly.InitialTerm())
	}
}
