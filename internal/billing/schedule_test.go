package billing

import (
	"testing"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) domain.Date {
	return domain.NewDate(y, m, d)
}

func TestNextPaymentDates(t *testing.T) {
	tests := []struct {
		name   string
		anchor domain.Date
		cycle  domain.Cycle
		count  int
		want   []domain.Date
	}{
		{
			name:   "monthly clamps to leap day",
			anchor: date(2024, time.January, 31),
			cycle:  domain.CycleMonthly,
			count:  3,
			want:   []domain.Date{date(2024, time.January, 31), date(2024, time.February, 29), date(2024, time.March, 31)},
		},
		{
			name:   "monthly clamps in non-leap year",
			anchor: date(2023, time.January, 31),
			cycle:  domain.CycleMonthly,
			count:  2,
			want:   []domain.Date{date(2023, time.January, 31), date(2023, time.February, 28)},
		},
		{
			name:   "monthly crosses year end",
			anchor: date(2024, time.November, 30),
			cycle:  domain.CycleMonthly,
			count:  3,
			want:   []domain.Date{date(2024, time.November, 30), date(2024, time.December, 30), date(2025, time.January, 30)},
		},
		{
			name:   "yearly from leap day",
			anchor: date(2024, time.February, 29),
			cycle:  domain.CycleYearly,
			count:  5,
			want: []domain.Date{
				date(2024, time.February, 29),
				date(2025, time.February, 28),
				date(2026, time.February, 28),
				date(2027, time.February, 28),
				date(2028, time.February, 29),
			},
		},
		{
			name:   "quarterly steps three months",
			anchor: date(2024, time.November, 30),
			cycle:  domain.CycleQuarterly,
			count:  3,
			want:   []domain.Date{date(2024, time.November, 30), date(2025, time.February, 28), date(2025, time.May, 30)},
		},
		{
			name:   "weekly steps seven days",
			anchor: date(2024, time.December, 25),
			cycle:  domain.CycleWeekly,
			count:  3,
			want:   []domain.Date{date(2024, time.December, 25), date(2025, time.January, 1), date(2025, time.January, 8)},
		},
		{
			name:   "single date is the anchor",
			anchor: date(2024, time.May, 5),
			cycle:  domain.CycleYearly,
			count:  1,
			want:   []domain.Date{date(2024, time.May, 5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextPaymentDates(tt.anchor, tt.cycle, tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextPaymentDates_FirstIsAnchor(t *testing.T) {
	anchor := date(2024, time.January, 31)
	for _, c := range domain.Cycles() {
		got, err := NextPaymentDates(anchor, c, 4)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, anchor, got[0], c)
	}
}

func TestNextPaymentDates_ClampIsFromAnchor(t *testing.T) {
	// March must go back to the 31st rather than stay on the clamped 29th.
	got, err := NextPaymentDates(date(2024, time.January, 31), domain.CycleMonthly, 4)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 30), got[3])
	assert.Equal(t, date(2024, time.March, 31), got[2])
}

func TestNextPaymentDates_Errors(t *testing.T) {
	_, err := NextPaymentDates(domain.Date{}, domain.CycleMonthly, 3)
	assert.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = NextPaymentDates(date(2024, time.January, 1), "fortnightly", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidCycle)

	_, err = NextPaymentDates(date(2024, time.January, 1), domain.CycleMonthly, 0)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestAddMonthsClamped_Negative(t *testing.T) {
	assert.Equal(t, date(2023, time.December, 31), AddMonthsClamped(date(2024, time.January, 31), -1))
	assert.Equal(t, date(2022, time.December, 15), AddMonthsClamped(date(2024, time.January, 15), -13))
	assert.Equal(t, date(2024, time.February, 29), AddMonthsClamped(date(2024, time.March, 31), -1))
}

func TestIsUpcoming(t *testing.T) {
	now := date(2024, time.June, 10)

	tests := []struct {
		name    string
		payment domain.Date
		window  int
		want    bool
	}{
		{name: "same day", payment: now, window: 7, want: true},
		{name: "last day of window", payment: now.AddDays(7), window: 7, want: true},
		{name: "one past window", payment: now.AddDays(8), window: 7, want: false},
		{name: "yesterday", payment: now.AddDays(-1), window: 7, want: false},
		{name: "custom window", payment: now.AddDays(30), window: 30, want: true},
		{name: "missing date", payment: domain.Date{}, window: 7, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUpcoming(tt.payment, now, tt.window))
		})
	}
}

func TestNextOccurrence(t *testing.T) {
	from := date(2024, time.June, 10)

	got, err := NextOccurrence(date(2024, time.June, 20), domain.CycleMonthly, from)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 20), got, "future anchor is returned as is")

	got, err = NextOccurrence(date(2024, time.January, 31), domain.CycleMonthly, from)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 30), got)

	got, err = NextOccurrence(date(2024, time.June, 3), domain.CycleWeekly, from)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.June, 10), got)

	_, err = NextOccurrence(domain.Date{}, domain.CycleWeekly, from)
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestNextOccurrence_DistantAnchor(t *testing.T) {
	from := date(2024, time.June, 10)

	tests := []struct {
		name   string
		anchor domain.Date
		cycle  domain.Cycle
		want   domain.Date
	}{
		{"weekly", date(1900, time.January, 1), domain.CycleWeekly, date(2024, time.June, 10)},
		{"monthly clamp", date(1800, time.January, 31), domain.CycleMonthly, date(2024, time.June, 30)},
		{"quarterly", date(1950, time.March, 15), domain.CycleQuarterly, date(2024, time.June, 15)},
		{"yearly leap day", date(1904, time.February, 29), domain.CycleYearly, date(2025, time.February, 28)},
		{"same month earlier day", date(2000, time.June, 5), domain.CycleYearly, date(2025, time.June, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.anchor, tt.cycle, from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_MatchesStepping(t *testing.T) {
	anchor := date(2023, time.January, 31)

	for _, cycle := range domain.Cycles() {
		rule, err := ruleFor(cycle)
		require.NoError(t, err)

		for offset := 0; offset < 800; offset += 3 {
			from := anchor.AddDays(offset)

			want := anchor
			for i := 1; want.Before(from.Time); i++ {
				want = rule.advance(anchor, i)
			}

			got, err := NextOccurrence(anchor, cycle, from)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s from %s", cycle, from)
		}
	}
}

func TestUpcoming(t *testing.T) {
	now := date(2024, time.June, 10)

	later := sub("Later", "5", domain.CycleMonthly, "Other")
	later.PaymentDate = date(2024, time.June, 15)

	today := sub("Today", "5", domain.CycleMonthly, "Other")
	today.PaymentDate = date(2024, time.May, 10)

	far := sub("Far", "5", domain.CycleYearly, "Other")
	far.PaymentDate = date(2024, time.December, 1)

	broken := sub("Broken", "5", domain.CycleMonthly, "Other")

	badCycle := sub("BadCycle", "5", "daily", "Other")
	badCycle.PaymentDate = now

	report := Upcoming([]domain.Subscription{later, far, broken, today, badCycle}, now, DefaultUpcomingWindow)

	require.Len(t, report.Payments, 2)
	assert.Equal(t, "Today", report.Payments[0].Subscription.Name)
	assert.Equal(t, now, report.Payments[0].DueDate)
	assert.Equal(t, 0, report.Payments[0].DaysUntil)
	assert.Equal(t, "Later", report.Payments[1].Subscription.Name)
	assert.Equal(t, 5, report.Payments[1].DaysUntil)

	require.Len(t, report.Warnings, 2)
	assert.Equal(t, "Broken", report.Warnings[0].Name)
	assert.ErrorIs(t, report.Warnings[0].Err, domain.ErrInvalidDate)
	assert.ErrorIs(t, report.Warnings[1].Err, domain.ErrInvalidCycle)
}

func TestUpcoming_Empty(t *testing.T) {
	report := Upcoming(nil, date(2024, time.June, 10), 7)
	assert.NotNil(t, report.Payments)
	assert.Empty(t, report.Payments)
	assert.Empty(t, report.Warnings)
}
