// Package sla evaluates breach risk and escalation level for an order based
// on its age and declared priority tier. All functions are pure.
package sla

import (
	"time"

	"orderflow/internal/domain/orders"
)

// BreachRisk buckets how much of the SLA budget an order has consumed.
type BreachRisk string

const (
	RiskLow      BreachRisk = "LOW"
	RiskMedium   BreachRisk = "MEDIUM"
	RiskHigh     BreachRisk = "HIGH"
	RiskBreached BreachRisk = "BREACHED"
)

// EscalationLevel is how loudly an overdue order should be escalated.
type EscalationLevel string

const (
	EscalationNone     EscalationLevel = "NONE"
	EscalationMedium   EscalationLevel = "MEDIUM"
	EscalationHigh     EscalationLevel = "HIGH"
	EscalationCritical EscalationLevel = "CRITICAL"
)

// escalationHighAgeMinutes: anything older than a day escalates at least HIGH.
const escalationHighAgeMinutes = 1440

// Budget returns the SLA budget for a declared tier.
func Budget(tier orders.PriorityTier) time.Duration {
	switch tier {
	case orders.TierUrgent:
		return 4 * time.Hour
	case orders.TierHigh:
		return 24 * time.Hour
	case orders.TierNormal:
		return 72 * time.Hour
	default:
		return 168 * time.Hour
	}
}

// Assessment is derived data, recomputed per evaluation call.
type Assessment struct {
	OrderID       string
	AgeMinutes    int
	BudgetMinutes int
	Risk          BreachRisk
	Level         EscalationLevel
}

// Assess computes the breach risk and escalation level for an order at the
// given instant. Risk is monotonically non-decreasing in age for a fixed tier.
func Assess(o *orders.Order, now time.Time) Assessment {
	age := o.AgeMinutes(now)
	budget := Budget(o.Tier).Minutes()

	a := Assessment{
		OrderID:       o.ID,
		AgeMinutes:    int(age),
		BudgetMinutes: int(budget),
		Risk:          riskFor(age, budget),
		Level:         EscalationNone,
	}

	if !needsEscalation(age, budget) {
		return a
	}

	switch {
	case o.Tier == orders.TierUrgent && age > 2*budget:
		a.Level = EscalationCritical
	case age > escalationHighAgeMinutes:
		a.Level = EscalationHigh
	default:
		a.Level = EscalationMedium
	}
	return a
}

// NeedsEscalation reports whether the order's age has reached its SLA budget.
// The boundary is exact: false strictly below the budget, true at and above it.
func NeedsEscalation(o *orders.Order, now time.Time) bool {
	return needsEscalation(o.AgeMinutes(now), Budget(o.Tier).Minutes())
}

func needsEscalation(ageMinutes, budgetMinutes float64) bool {
	return ageMinutes >= budgetMinutes
}

func riskFor(ageMinutes, budgetMinutes float64) BreachRisk {
	if budgetMinutes <= 0 {
		return RiskBreached
	}
	ratio := ageMinutes / budgetMinutes
	switch {
	case ratio >= 1.0:
		return RiskBreached
	case ratio >= 0.8:
		return RiskHigh
	case ratio >= 0.6:
		return RiskMedium
	default:
		return RiskLow
	}
}
