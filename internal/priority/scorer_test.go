package priority

import (
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"

	"orderflow/internal/domain/orders"
)

var scoreNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func orderWith(tier orders.PriorityTier, amount string, age time.Duration) *orders.Order {
	return &orders.Order{
		ID:          "ORD-1",
		Tier:        tier,
		TotalAmount: decimal.MustParse(amount),
		CreatedAt:   scoreNow.Add(-age),
	}
}

func TestScoreBaseTiers(t *testing.T) {
	cases := []struct {
		tier orders.PriorityTier
		want int
	}{
		{orders.TierUrgent, 100},
		{orders.TierHigh, 75},
		{orders.TierNormal, 50},
		{orders.TierLow, 25},
	}
	for _, tc := range cases {
		c := Score(orderWith(tc.tier, "10", 0), nil, scoreNow)
		assert.Equal(t, tc.want, c.Score, "tier %s", tc.tier)
	}
}

func TestScoreAmountBrackets(t *testing.T) {
	// exactly 1000 gets no boost; strictly above does
	assert.Equal(t, 50, Score(orderWith(orders.TierNormal, "1000", 0), nil, scoreNow).Score)
	assert.Equal(t, 75, Score(orderWith(orders.TierNormal, "1000.01", 0), nil, scoreNow).Score)
	assert.Equal(t, 75, Score(orderWith(orders.TierNormal, "5000", 0), nil, scoreNow).Score)
	assert.Equal(t, 100, Score(orderWith(orders.TierNormal, "5000.01", 0), nil, scoreNow).Score)
}

func TestScoreAgeBrackets(t *testing.T) {
	assert.Equal(t, 50, Score(orderWith(orders.TierNormal, "10", 120*time.Minute), nil, scoreNow).Score)
	assert.Equal(t, 65, Score(orderWith(orders.TierNormal, "10", 121*time.Minute), nil, scoreNow).Score)
	assert.Equal(t, 80, Score(orderWith(orders.TierNormal, "10", 241*time.Minute), nil, scoreNow).Score)
}

func TestScoreCustomerClass(t *testing.T) {
	o := orderWith(orders.TierNormal, "10", 0)
	assert.Equal(t, 70, Score(o, map[string]string{HeaderCustomerClass: "vip"}, scoreNow).Score)
	assert.Equal(t, 70, Score(o, map[string]string{HeaderCustomerClass: "Executive"}, scoreNow).Score)
	assert.Equal(t, 50, Score(o, map[string]string{HeaderCustomerClass: "retail"}, scoreNow).Score)
	assert.Equal(t, 50, Score(o, nil, scoreNow).Score)
}

func TestScoreResolvesCritical(t *testing.T) {
	// URGENT base + premium amount + stale age: 100 + 50 + 30 = 180
	c := Score(orderWith(orders.TierUrgent, "6000", 300*time.Minute), nil, scoreNow)
	assert.Equal(t, 180, c.Score)
	assert.Equal(t, ResolvedCritical, c.Tier)
}

func TestResolveThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  ResolvedTier
	}{
		{180, ResolvedCritical},
		{150, ResolvedCritical},
		{149, ResolvedUrgent},
		{120, ResolvedUrgent},
		{119, ResolvedHigh},
		{80, ResolvedHigh},
		{79, ResolvedNormal},
		{50, ResolvedNormal},
		{49, ResolvedLow},
		{25, ResolvedLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resolve(tc.score), "score %d", tc.score)
	}
}

func TestScoreIsPure(t *testing.T) {
	o := orderWith(orders.TierHigh, "2000", 130*time.Minute)
	headers := map[string]string{HeaderCustomerClass: "vip"}

	first := Score(o, headers, scoreNow)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(o, headers, scoreNow))
	}
}

func TestScoreMonotonicInAmount(t *testing.T) {
	low := Score(orderWith(orders.TierNormal, "500", 0), nil, scoreNow).Score
	mid := Score(orderWith(orders.TierNormal, "2000", 0), nil, scoreNow).Score
	high := Score(orderWith(orders.TierNormal, "9000", 0), nil, scoreNow).Score
	assert.LessOrEqual(t, low, mid)
	assert.LessOrEqual(t, mid, high)
}

func TestScoreFactorsExplainTotal(t *testing.T) {
	c := Score(orderWith(orders.TierUrgent, "6000", 300*time.Minute), map[string]string{HeaderCustomerClass: "vip"}, scoreNow)
	assert.Len(t, c.Factors, 4)
	assert.Equal(t, 200, c.Score)
}
