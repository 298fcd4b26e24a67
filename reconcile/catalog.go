package reconcile

import (
	"errors"

	"github.com/onnwee/tip-tender/backend/reftoken"
)

// ErrUnknownPackage reports a package id that is not in the fixed catalog.
// Treated as a catalog/data bug: the event is logged and dropped with a
// success acknowledgment, never retried.
var ErrUnknownPackage = errors.New("unknown points package")

// PointsPackage is one entry of the fixed package catalog.
type PointsPackage struct {
	Base  int64
	Bonus int64
}

// Total is the number of points credited for one purchase.
func (p PointsPackage) Total() int64 { return p.Base + p.Bonus }

// pointsCatalog maps checkout package ids to their point values. Larger
// packages carry bonus points.
var pointsCatalog = map[string]PointsPackage{
	"package_500":  {Base: 500, Bonus: 50},
	"package_1000": {Base: 1000, Bonus: 150},
	"package_2500": {Base: 2500, Bonus: 450},
	"package_5000": {Base: 5000, Bonus: 1000},
}

// LookupPackage resolves a package id from the fixed catalog.
func LookupPackage(id string) (PointsPackage, error) {
	p, ok := pointsCatalog[id]
	if !ok {
		return PointsPackage{}, ErrUnknownPackage
	}
	return p, nil
}

// Subscription prices are fixed per billing cycle. The captured payment
// amount is not consulted (trust-the-catalog, not trust-the-payment).
var planPriceCents = map[reftoken.Cycle]int64{
	reftoken.Monthly: 499,
	reftoken.Yearly:  4999,
}

// PlanPriceCents returns the catalog price for one billing cycle.
func PlanPriceCents(cycle reftoken.Cycle) int64 { return planPriceCents[cycle] }
