// Package billing holds the pure cost and calendar rules for subscriptions:
// monthly normalisation, per-category aggregation and payment scheduling.
//
// Each billing cycle has one rule that knows both how to turn a price into its
// monthly equivalent and how to move a payment date forward by whole cycles.
package billing

import (
	"fmt"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/shopspring/decimal"
)

// WeeksPerMonth is the average number of weeks in a month used for weekly plans.
var WeeksPerMonth = decimal.RequireFromString("4.33")

// cycleRule converts prices and advances dates for one billing cycle.
type cycleRule interface {
	// monthly returns the monthly equivalent of a price paid once per cycle.
	monthly(price decimal.Decimal) decimal.Decimal
	// advance moves anchor forward by n cycles.
	advance(anchor domain.Date, n int) domain.Date
	// elapsed counts whole cycles from anchor to from, such that
	// advance(anchor, elapsed+1) is after from. from must not be before anchor.
	elapsed(anchor, from domain.Date) int
}

type weeklyRule struct{}

func (weeklyRule) monthly(price decimal.Decimal) decimal.Decimal { return price.Mul(WeeksPerMonth) }
func (weeklyRule) advance(anchor domain.Date, n int) domain.Date { return anchor.AddDays(7 * n) }

func (weeklyRule) elapsed(anchor, from domain.Date) int {
	return int(from.Sub(anchor.Time) / (7 * 24 * time.Hour))
}

type monthRule struct {
	months int64
}

func (r monthRule) monthly(price decimal.Decimal) decimal.Decimal {
	if r.months == 1 {
		return price
	}
	return price.Div(decimal.NewFromInt(r.months))
}

func (r monthRule) advance(anchor domain.Date, n int) domain.Date {
	return AddMonthsClamped(anchor, int(r.months)*n)
}

func (r monthRule) elapsed(anchor, from domain.Date) int {
	months := (from.Year()-anchor.Year())*12 + int(from.Month()) - int(anchor.Month())
	return months / int(r.months)
}

var cycleRules = map[domain.Cycle]cycleRule{
	domain.CycleWeekly:    weeklyRule{},
	domain.CycleMonthly:   monthRule{months: 1},
	domain.CycleQuarterly: monthRule{months: 3},
	domain.CycleYearly:    monthRule{months: 12},
}

func ruleFor(cycle domain.Cycle) (cycleRule, error) {
	rule, ok := cycleRules[cycle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCycle, cycle)
	}
	return rule, nil
}

// MonthlyEquivalent normalises a price paid once per cycle to a monthly cost.
// The result is not rounded.
func MonthlyEquivalent(price decimal.Decimal, cycle domain.Cycle) (decimal.Decimal, error) {
	rule, err := ruleFor(cycle)
	if err != nil {
		return decimal.Zero, err
	}
	return rule.monthly(price), nil
}

// YearlyEquivalent is twelve times the monthly equivalent.
func YearlyEquivalent(price decimal.Decimal, cycle domain.Cycle) (decimal.Decimal, error) {
	monthly, err := MonthlyEquivalent(price, cycle)
	if err != nil {
		return decimal.Zero, err
	}
	return monthly.Mul(decimal.NewFromInt(12)), nil
}
