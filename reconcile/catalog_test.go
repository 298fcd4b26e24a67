package reconcile

import (
	"errors"
	"testing"

	"github.com/onnwee/tip-tender/backend/reftoken"
)

func TestLookupPackage(t *testing.T) {
	cases := []struct {
		id    string
		total int64
	}{
		{"package_500", 550},
		{"package_1000", 1150},
		{"package_2500", 2950},
		{"package_5000", 6000},
	}
	for _, tc := range cases {
		pkg, err := LookupPackage(tc.id)
		if err != nil {
			t.Fatalf("LookupPackage(%q): %v", tc.id, err)
		}
		if got := pkg.Total(); got != tc.total {
			t.Errorf("LookupPackage(%q).Total() = %d, want %d", tc.id, got, tc.total)
		}
	}
}

func TestLookupPackageUnknown(t *testing.T) {
	for _, id := range []string{"package_999", "", "points", "PACKAGE_500"} {
		if _, err := LookupPackage(id); !errors.Is(err, ErrUnknownPackage) {
			t.Errorf("LookupPackage(%q) = %v, want ErrUnknownPackage", id, err)
		}
	}
}

func TestPlanPriceCents(t *testing.T) {
	if got := PlanPriceCents(reftoken.Monthly); got != 499 {
		t.Errorf("monthly price = %d, want 499", got)
	}
	if got := PlanPriceCents(reftoken.Yearly); got != 4999 {
		t.Errorf("yearly price = %d, want 4999", got)
	}
}
