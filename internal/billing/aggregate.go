package billing

import (
	"encoding/json"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/shopspring/decimal"
)

// CategoryTotal is the monthly spend of one category.
type CategoryTotal struct {
	Category     string          `json:"category"`
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
	Count        int             `json:"count"`
}

// CategoryTotals maps categories to monthly totals and remembers the order in
// which categories were first seen.
type CategoryTotals struct {
	items []CategoryTotal
	index map[string]int
}

func newCategoryTotals() *CategoryTotals {
	return &CategoryTotals{index: make(map[string]int)}
}

func (c *CategoryTotals) add(category string, amount decimal.Decimal) {
	i, ok := c.index[category]
	if !ok {
		c.index[category] = len(c.items)
		c.items = append(c.items, CategoryTotal{Category: category, MonthlyTotal: amount, Count: 1})
		return
	}
	c.items[i].MonthlyTotal = c.items[i].MonthlyTotal.Add(amount)
	c.items[i].Count++
}

// Len returns the number of categories.
func (c *CategoryTotals) Len() int {
	return len(c.items)
}

// Get returns the monthly total of a category.
func (c *CategoryTotals) Get(category string) (decimal.Decimal, bool) {
	i, ok := c.index[category]
	if !ok {
		return decimal.Zero, false
	}
	return c.items[i].MonthlyTotal, true
}

// Categories returns category names in first-seen order.
func (c *CategoryTotals) Categories() []string {
	names := make([]string, len(c.items))
	for i, item := range c.items {
		names[i] = item.Category
	}
	return names
}

// Items returns a copy of the totals in first-seen order.
func (c *CategoryTotals) Items() []CategoryTotal {
	out := make([]CategoryTotal, len(c.items))
	copy(out, c.items)
	return out
}

// Total is the sum over all categories.
func (c *CategoryTotals) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.MonthlyTotal)
	}
	return total
}

// MarshalJSON encodes the totals as an ordered array.
func (c *CategoryTotals) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Items())
}

// AggregateByCategory sums monthly equivalents per exact category label.
// Any subscription with an unknown cycle fails the whole aggregation.
func AggregateByCategory(subs []domain.Subscription) (*CategoryTotals, error) {
	totals := newCategoryTotals()
	for i := range subs {
		monthly, err := MonthlyEquivalent(subs[i].Price, subs[i].Cycle)
		if err != nil {
			return nil, err
		}
		totals.add(subs[i].Category, monthly)
	}
	return totals, nil
}

// TotalMonthlySpend sums the monthly equivalents of all subscriptions.
func TotalMonthlySpend(subs []domain.Subscription) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range subs {
		monthly, err := MonthlyEquivalent(subs[i].Price, subs[i].Cycle)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(monthly)
	}
	return total, nil
}
