package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cycle is the billing frequency of a subscription.
type Cycle string

// Billing cycles.
const (
	CycleWeekly    Cycle = "weekly"
	CycleMonthly   Cycle = "monthly"
	CycleQuarterly Cycle = "quarterly"
	CycleYearly    Cycle = "yearly"
)

// Domain errors.
var (
	ErrInvalidCycle          = errors.New("invalid billing cycle")
	ErrInvalidDate           = errors.New("invalid payment date")
	ErrInvalidName           = errors.New("name is required")
	ErrInvalidCategory       = errors.New("category is required")
	ErrNegativePrice         = errors.New("price must not be negative")
	ErrPricePrecision        = errors.New("price must have at most two decimal places")
	ErrPriceTooLarge         = errors.New("price is too large")
	ErrIncompleteCycleChange = errors.New("changing the billing cycle requires price and payment date")
)

// PriceScale and maxPrice mirror the NUMERIC(12, 2) price column.
const PriceScale = 2

var maxPrice = decimal.New(1, 10)

// Cycles returns all billing cycles in display order.
func Cycles() []Cycle {
	return []Cycle{CycleMonthly, CycleYearly, CycleQuarterly, CycleWeekly}
}

// IsValid reports whether c is a known billing cycle.
func (c Cycle) IsValid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

// ParseCycle converts a raw value into a Cycle.
func ParseCycle(s string) (Cycle, error) {
	c := Cycle(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCycle, s)
	}
	return c, nil
}

// SuggestedCategories is the category list offered to users. Any non-empty label is accepted.
var SuggestedCategories = []string{
	"Entertainment",
	"Productivity",
	"Utilities",
	"Health & Fitness",
	"Education",
	"Food & Drink",
	"Shopping",
	"Other",
}

// Subscription is a recurring payment owned by a single user.
type Subscription struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Cycle       Cycle           `json:"cycle"`
	Category    string          `json:"category"`
	PaymentDate Date            `json:"payment_date"`
	Notes       *string         `json:"notes,omitempty"`
	Logo        *string         `json:"logo,omitempty"`
	OwnerID     string          `json:"owner_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks the mutable fields of a subscription.
func (s *Subscription) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrInvalidName
	}
	if s.Price.IsNegative() {
		return ErrNegativePrice
	}
	if !s.Price.Equal(s.Price.Truncate(PriceScale)) {
		return fmt.Errorf("%w: %s", ErrPricePrecision, s.Price)
	}
	if s.Price.GreaterThanOrEqual(maxPrice) {
		return fmt.Errorf("%w: %s", ErrPriceTooLarge, s.Price)
	}
	if !s.Cycle.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCycle, s.Cycle)
	}
	if strings.TrimSpace(s.Category) == "" {
		return ErrInvalidCategory
	}
	if err := s.PaymentDate.Validate(); err != nil {
		return err
	}
	return nil
}

// SubscriptionPatch is a partial update. Identity fields (id, owner, creation time)
// are not part of it and can never change.
type SubscriptionPatch struct {
	Name        *string
	Price       *decimal.Decimal
	Cycle       *Cycle
	Category    *string
	PaymentDate *Date
	Notes       *string
	Logo        *string
}

// IsEmpty reports whether the patch changes nothing.
func (p SubscriptionPatch) IsEmpty() bool {
	return p.Name == nil && p.Price == nil && p.Cycle == nil && p.Category == nil &&
		p.PaymentDate == nil && p.Notes == nil && p.Logo == nil
}

// ChangesCycle reports whether applying the patch moves the subscription to another cycle.
func (p SubscriptionPatch) ChangesCycle(current Cycle) bool {
	return p.Cycle != nil && *p.Cycle != current
}

// Apply returns a copy of s with the patch applied and validated.
// A cycle change re-derives the record: price and payment date must come with it.
func (p SubscriptionPatch) Apply(s Subscription) (Subscription, error) {
	if p.ChangesCycle(s.Cycle) && (p.Price == nil || p.PaymentDate == nil) {
		return Subscription{}, ErrIncompleteCycleChange
	}

	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Price != nil {
		s.Price = *p.Price
	}
	if p.Cycle != nil {
		s.Cycle = *p.Cycle
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.PaymentDate != nil {
		s.PaymentDate = *p.PaymentDate
	}
	if p.Notes != nil {
		s.Notes = optional(*p.Notes)
	}
	if p.Logo != nil {
		s.Logo = optional(*p.Logo)
	}

	if err := s.Validate(); err != nil {
		return Subscription{}, err
	}
	return s, nil
}

// optional maps an empty string to nil so that a patch can clear optional fields.
func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
