// Package dispatch maps a priority classification and SLA assessment onto a
// destination channel name. Selection is deterministic: the same order always
// lands on the same channel, and the selector never returns an empty
// destination.
package dispatch

import (
	"fmt"
	"hash/fnv"

	"github.com/govalues/decimal"

	"orderflow/internal/domain/orders"
	"orderflow/internal/priority"
	"orderflow/internal/sla"
)

// FallbackChannel is the terminal, always-available destination returned on
// any classification failure.
const FallbackChannel = "dispatch.fallback"

// Escalation channels dominate tier-only routing.
const (
	channelEscalationCritical = "dispatch.escalation.critical"
	channelEscalationHigh     = "dispatch.escalation.high"
	channelEscalationMedium   = "dispatch.escalation.medium"
	channelAtRisk             = "dispatch.atrisk"
	channelBulk               = "dispatch.bulk"
)

var premiumValue = decimal.MustParse("5000")

// Config sizes the horizontally-scaled channel pools.
type Config struct {
	UrgentPoolSize   int
	ExpressPoolSize  int
	StandardPoolSize int
}

// DefaultConfig returns the pool sizes used when none are configured.
func DefaultConfig() Config {
	return Config{UrgentPoolSize: 3, ExpressPoolSize: 3, StandardPoolSize: 2}
}

// Selector picks destination channels. It is stateless and safe for
// concurrent use.
type Selector struct {
	cfg Config
}

// NewSelector builds a Selector, substituting defaults for non-positive pool sizes.
func NewSelector(cfg Config) *Selector {
	def := DefaultConfig()
	if cfg.UrgentPoolSize <= 0 {
		cfg.UrgentPoolSize = def.UrgentPoolSize
	}
	if cfg.ExpressPoolSize <= 0 {
		cfg.ExpressPoolSize = def.ExpressPoolSize
	}
	if cfg.StandardPoolSize <= 0 {
		cfg.StandardPoolSize = def.StandardPoolSize
	}
	return &Selector{cfg: cfg}
}

// Select resolves the destination channel for an order. Escalation level and
// breach risk dominate the resolved tier; ties break toward the more urgent
// channel. Malformed input falls back to FallbackChannel, never an error.
func (s *Selector) Select(o *orders.Order, c priority.Classification, a sla.Assessment) string {
	if o == nil || o.ID == "" {
		return FallbackChannel
	}

	switch a.Level {
	case sla.EscalationCritical:
		return channelEscalationCritical
	case sla.EscalationHigh:
		return channelEscalationHigh
	case sla.EscalationMedium:
		return channelEscalationMedium
	}

	if a.Risk == sla.RiskBreached {
		// Breached but unescalated should not happen; treat as critical anyway.
		return channelEscalationCritical
	}
	if a.Risk == sla.RiskHigh {
		return channelAtRisk
	}

	switch c.Tier {
	case priority.ResolvedCritical, priority.ResolvedUrgent:
		return s.pooled("urgent", o.ID, s.cfg.UrgentPoolSize)
	case priority.ResolvedHigh:
		return s.pooled("express", o.ID, s.cfg.ExpressPoolSize)
	case priority.ResolvedNormal:
		if s.premiumBracket(o) {
			// High-value orders never ride the standard pool.
			return s.pooled("express", o.ID, s.cfg.ExpressPoolSize)
		}
		return s.pooled("standard", o.ID, s.cfg.StandardPoolSize)
	case priority.ResolvedLow:
		if o.Tier == orders.TierHigh || o.Tier == orders.TierUrgent {
			// Declared priority outranks a stale-but-low computed score.
			return s.pooled("standard", o.ID, s.cfg.StandardPoolSize)
		}
		return channelBulk
	default:
		return FallbackChannel
	}
}

// pooled picks a pool member by hashing the order id, so ordering-sensitive
// consumers always see the same order on the same channel and distinct orders
// spread evenly.
func (s *Selector) pooled(class, orderID string, size int) string {
	if size <= 0 {
		return FallbackChannel
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(orderID))
	return fmt.Sprintf("dispatch.%s.%d", class, h.Sum32()%uint32(size))
}

func (s *Selector) premiumBracket(o *orders.Order) bool {
	return o.TotalAmount.Cmp(premiumValue) > 0
}
