// Package priority implements the multi-factor priority scoring model.
// Scoring is a pure additive function of the order and its contextual
// headers: identical inputs always produce identical classifications.
package priority

import (
	"fmt"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"orderflow/internal/domain/orders"
)

// ResolvedTier is the tier derived from the cumulative score. It is a
// superset of the declared tier set: sufficiently hot orders resolve to
// CRITICAL even though no order is declared that way.
type ResolvedTier string

const (
	ResolvedLow      ResolvedTier = "LOW"
	ResolvedNormal   ResolvedTier = "NORMAL"
	ResolvedHigh     ResolvedTier = "HIGH"
	ResolvedUrgent   ResolvedTier = "URGENT"
	ResolvedCritical ResolvedTier = "CRITICAL"
)

// Score thresholds for resolving the tier.
const (
	thresholdCritical = 150
	thresholdUrgent   = 120
	thresholdHigh     = 80
	thresholdNormal   = 50
)

// Amount and age adjustment boundaries.
var (
	premiumAmount = decimal.MustParse("5000")
	highAmount    = decimal.MustParse("1000")
)

const (
	staleAgeMinutes = 240
	agedAgeMinutes  = 120
)

// HeaderCustomerClass is the contextual header consulted for VIP detection.
const HeaderCustomerClass = "customer-class"

// Classification is derived data, recomputed on demand and never persisted.
type Classification struct {
	OrderID  string
	BaseTier orders.PriorityTier
	Score    int
	Tier     ResolvedTier
	Factors  []string
}

// Score computes the numeric priority score and resolved tier for an order.
// The model is monotonic: raising the amount, the age, or the customer class
// never lowers the score.
func Score(o *orders.Order, headers map[string]string, now time.Time) Classification {
	c := Classification{OrderID: o.ID, BaseTier: o.Tier}

	base := baseScore(o.Tier)
	c.Score = base
	c.Factors = append(c.Factors, fmt.Sprintf("base:%s=%d", o.Tier, base))

	switch {
	case o.TotalAmount.Cmp(premiumAmount) > 0:
		c.Score += 50
		c.Factors = append(c.Factors, "amount>premium:+50")
	case o.TotalAmount.Cmp(highAmount) > 0:
		c.Score += 25
		c.Factors = append(c.Factors, "amount>high:+25")
	}

	age := o.AgeMinutes(now)
	switch {
	case age > staleAgeMinutes:
		c.Score += 30
		c.Factors = append(c.Factors, "age>240m:+30")
	case age > agedAgeMinutes:
		c.Score += 15
		c.Factors = append(c.Factors, "age>120m:+15")
	}

	if isPrivileged(headers[HeaderCustomerClass]) {
		c.Score += 20
		c.Factors = append(c.Factors, "customer-class:+20")
	}

	c.Tier = resolve(c.Score)
	return c
}

func baseScore(t orders.PriorityTier) int {
	switch t {
	case orders.TierUrgent:
		return 100
	case orders.TierHigh:
		return 75
	case orders.TierNormal:
		return 50
	default:
		return 25
	}
}

func resolve(score int) ResolvedTier {
	switch {
	case score >= thresholdCritical:
		return ResolvedCritical
	case score >= thresholdUrgent:
		return ResolvedUrgent
	case score >= thresholdHigh:
		return ResolvedHigh
	case score >= thresholdNormal:
		return ResolvedNormal
	default:
		return ResolvedLow
	}
}

// isPrivileged reports whether a department/customer-class header marks the
// customer as VIP or executive.
func isPrivileged(class string) bool {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case "vip", "executive":
		return true
	default:
		return false
	}
}
