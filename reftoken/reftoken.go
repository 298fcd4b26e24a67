// Package reftoken encodes and decodes the reference tokens that round-trip
// business intent through a payment provider: the token is attached to the
// checkout order as its custom id and comes back on the webhook, identifying
// which user bought which product on which billing cycle.
//
// Wire formats:
//
//	points_<userId>_<packageId...>_<unixTimestamp>
//	gift_<opaqueOrderId>
//	sub_<userId>_<planType>_<billingCycle>
//	<bare numeric donation id>
package reftoken

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed reports a token that cannot be interpreted. Callers log and
// drop the event (with a success acknowledgment) rather than failing it.
var ErrMalformed = errors.New("malformed reference token")

// Kind discriminates the token variants.
type Kind int

const (
	KindPoints Kind = iota
	KindGift
	KindSubscription
	KindDonation
)

func (k Kind) String() string {
	switch k {
	case KindPoints:
		return "points"
	case KindGift:
		return "gift"
	case KindSubscription:
		return "sub"
	case KindDonation:
		return "donation"
	default:
		return "unknown"
	}
}

// Cycle is a subscription billing cycle.
type Cycle string

const (
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// Valid reports whether the cycle is one of the two supported values.
func (c Cycle) Valid() bool { return c == Monthly || c == Yearly }

// Months returns the calendar length of one cycle, used for extensions.
func (c Cycle) Months() int {
	if c == Yearly {
		return 12
	}
	return 1
}

// InitialTerm returns the fixed duration of a newly activated subscription.
func (c Cycle) InitialTerm() time.Duration {
	if c == Yearly {
		return 365 * 24 * time.Hour
	}
	return 30 * 24 * time.Hour
}

// Ref is the decoded intent carried by a token. Kind selects which fields are set.
type Ref struct {
	Kind Kind

	// KindPoints
	UserID    int64
	PackageID string
	IssuedAt  time.Time

	// KindGift
	GiftOrderID string

	// KindSubscription (UserID shared with points)
	PlanType     string
	BillingCycle Cycle

	// KindDonation
	DonationID int64
}

// PointsToken encodes a points purchase reference.
func PointsToken(userID int64, packageID string, issuedAt time.Time) string {
	return fmt.Sprintf("points_%d_%s_%d", userID, packageID, issuedAt.Unix())
}

// GiftToken encodes a gift order reference.
func GiftToken(orderID string) string {
	return "gift_" + orderID
}

// SubscriptionToken encodes a subscription purchase reference.
func SubscriptionToken(userID int64, planType string, cycle Cycle) string {
	return fmt.Sprintf("sub_%d_%s_%s", userID, planType, cycle)
}

// Decode parses a token back into its variant. Tokens with too few segments
// for their discriminant, non-numeric ids, or invalid billing cycles return
// ErrMalformed. A token that is not points/gift/sub but parses as a number is
// a bare donation id.
func Decode(token string) (Ref, error) {
	parts := strings.Split(token, "_")
	switch parts[0] {
	case "points":
		// points_<userId>_<packageId...>_<ts>; package ids themselves contain
		// underscores (package_1000), so the id spans the middle segments.
		if len(parts) < 4 {
			return Ref{}, fmt.Errorf("%w: points token has %d segments", ErrMalformed, len(parts))
		}
		uid, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: bad user id %q", ErrMalformed, parts[1])
		}
		ts, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, parts[len(parts)-1])
		}
		return Ref{
			Kind:      KindPoints,
			UserID:    uid,
			PackageID: strings.Join(parts[2:len(parts)-1], "_"),
			IssuedAt:  time.Unix(ts, 0).UTC(),
		}, nil
	case "gift":
		if len(parts) < 2 || parts[1] == "" {
			return Ref{}, fmt.Errorf("%w: gift token missing order id", ErrMalformed)
		}
		return Ref{Kind: KindGift, GiftOrderID: strings.Join(parts[1:], "_")}, nil
	case "sub":
		if len(parts) < 4 {
			return Ref{}, fmt.Errorf("%w: sub token has %d segments", ErrMalformed, len(parts))
		}
		uid, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: bad user id %q", ErrMalformed, parts[1])
		}
		cycle := Cycle(parts[len(parts)-1])
		if !cycle.Valid() {
			return Ref{}, fmt.Errorf("%w: bad billing cycle %q", ErrMalformed, parts[len(parts)-1])
		}
		return Ref{
			Kind:         KindSubscription,
			UserID:       uid,
			PlanType:     strings.Join(parts[2:len(parts)-1], "_"),
			BillingCycle: cycle,
		}, nil
	default:
		// Anything else is treated as a bare donation id.
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("%w: unrecognized token %q", ErrMalformed, token)
		}
		return Ref{Kind: KindDonation, DonationID: id}, nil
	}
}
