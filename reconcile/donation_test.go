package reconcile

import (
	"testing"

	"github.com/onnwee/tip-tender/backend/ledger"
)

func TestDonationAnnouncement(t *testing.T) {
	cases := []struct {
		name string
		d    ledger.Donation
		want string
	}{
		{
			name: "named donor with message",
			d:    ledger.Donation{DonorName: "DonorName", AmountCents: 2500, Message: "go team"},
			want: `💰 DonorName donated $25.00: "go team"`,
		},
		{
			name: "named donor without message",
			d:    ledger.Donation{DonorName: "alice", AmountCents: 500},
			want: "💰 alice donated $5.00",
		},
		{
			name: "anonymous flag overrides name",
			d:    ledger.Donation{DonorName: "bob", IsAnonymous: true, AmountCents: 100},
			want: "💰 Anonymous donated $1.00",
		},
		{
			name: "empty name falls back to anonymous",
			d:    ledger.Donation{AmountCents: 1050, Message: "hi"},
			want: `💰 Anonymous donated $10.50: "hi"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DonationAnnouncement(tc.d); got != tc.want {
				t.Errorf("DonationAnnouncement() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatCents(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{99, "0.99"},
		{100, "1.00"},
		{2500, "25.00"},
		{123456, "1234.56"},
		{-250, "-2.50"},
	}
	for _, tc := range cases {
		if got := formatCents(tc.cents); got != tc.want {
			t.Errorf("formatCents(%d) = %q, want %q", tc.cents, got, tc.want)
		}
	}
}
