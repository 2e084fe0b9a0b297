package billing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
)

// DefaultUpcomingWindow is the lookahead, in days, of the dashboard view.
const DefaultUpcomingWindow = 7

// DefaultPreviewCount is how many payments a schedule preview shows.
const DefaultPreviewCount = 3

// ErrInvalidCount is returned when a non-positive number of dates is requested.
var ErrInvalidCount = errors.New("count must be positive")

// AddMonthsClamped adds months to d, keeping the day of month unless the target
// month is shorter, in which case the last day of that month is used.
func AddMonthsClamped(d domain.Date, months int) domain.Date {
	year, month, day := d.Date()

	total := int(month) - 1 + months
	year += total / 12
	total %= 12
	if total < 0 {
		total += 12
		year--
	}
	target := time.Month(total + 1)

	if last := daysIn(year, target); day > last {
		day = last
	}
	return domain.NewDate(year, target, day)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextPaymentDates projects count payment dates starting at anchor.
// Element i is the anchor advanced by i cycles; element 0 is the anchor itself.
func NextPaymentDates(anchor domain.Date, cycle domain.Cycle, count int) ([]domain.Date, error) {
	if err := anchor.Validate(); err != nil {
		return nil, err
	}
	rule, err := ruleFor(cycle)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	dates := make([]domain.Date, count)
	for i := range dates {
		dates[i] = rule.advance(anchor, i)
	}
	return dates, nil
}

// NextOccurrence returns the first projected payment on or after from.
// An anchor that is already on or after from is returned unchanged.
func NextOccurrence(anchor domain.Date, cycle domain.Cycle, from domain.Date) (domain.Date, error) {
	if err := anchor.Validate(); err != nil {
		return domain.Date{}, err
	}
	rule, err := ruleFor(cycle)
	if err != nil {
		return domain.Date{}, err
	}

	if !anchor.Before(from.Time) {
		return anchor, nil
	}

	// elapsed lands on or just before from, so this steps at most once.
	n := rule.elapsed(anchor, from)
	for {
		next := rule.advance(anchor, n)
		if !next.Before(from.Time) {
			return next, nil
		}
		n++
	}
}

// IsUpcoming reports whether payment falls within [now, now+windowDays], both ends inclusive.
func IsUpcoming(payment, now domain.Date, windowDays int) bool {
	if payment.IsZero() || now.IsZero() {
		return false
	}
	end := now.AddDays(windowDays)
	return !payment.Before(now.Time) && !payment.After(end.Time)
}

// UpcomingPayment is a subscription due within a lookahead window.
type UpcomingPayment struct {
	Subscription domain.Subscription `json:"subscription"`
	DueDate      domain.Date         `json:"due_date"`
	DaysUntil    int                 `json:"days_until"`
}

// ScheduleWarning explains why a subscription was left out of a schedule view.
type ScheduleWarning struct {
	SubscriptionID string `json:"subscription_id"`
	Name           string `json:"name"`
	Reason         string `json:"reason"`
	Err            error  `json:"-"`
}

// UpcomingReport is the result of an upcoming-payments scan.
type UpcomingReport struct {
	Payments []UpcomingPayment `json:"payments"`
	Warnings []ScheduleWarning `json:"warnings"`
}

// Upcoming lists subscriptions whose next payment on or after now is within
// windowDays. Records with a missing date or unknown cycle are skipped and
// reported as warnings. Payments are ordered by due date, then name.
func Upcoming(subs []domain.Subscription, now domain.Date, windowDays int) UpcomingReport {
	report := UpcomingReport{
		Payments: make([]UpcomingPayment, 0),
		Warnings: make([]ScheduleWarning, 0),
	}

	for _, sub := range subs {
		due, err := NextOccurrence(sub.PaymentDate, sub.Cycle, now)
		if err != nil {
			report.Warnings = append(report.Warnings, ScheduleWarning{
				SubscriptionID: sub.ID,
				Name:           sub.Name,
				Reason:         err.Error(),
				Err:            err,
			})
			continue
		}
		if !IsUpcoming(due, now, windowDays) {
			continue
		}
		report.Payments = append(report.Payments, UpcomingPayment{
			Subscription: sub,
			DueDate:      due,
			DaysUntil:    int(due.Sub(now.Time).Hours() / 24),
		})
	}

	sort.SliceStable(report.Payments, func(i, j int) bool {
		a, b := report.Payments[i], report.Payments[j]
		if !a.DueDate.Equal(b.DueDate.Time) {
			return a.DueDate.Before(b.DueDate.Time)
		}
		return a.Subscription.Name < b.Subscription.Name
	})

	return report
}
