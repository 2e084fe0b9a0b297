// Package export encodes subscriptions into downloadable CSV and JSON artifacts.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/shopspring/decimal"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Export errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrInvalidPrice      = errors.New("invalid price")
)

// CSVHeader is the fixed header row of CSV exports.
var CSVHeader = []string{"Name", "Price", "Cycle", "Category", "Payment Date", "Notes", "Created At"}

// ParseFormat converts a raw value into a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// MediaType returns the MIME type of the format.
func (f Format) MediaType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// Artifact is an encoded export ready to be served as a download.
type Artifact struct {
	Data      []byte
	Filename  string
	MediaType string
}

// Filename returns subscriptions_<YYYY-MM-DD>.<ext> for the given day.
func Filename(f Format, today time.Time) string {
	return fmt.Sprintf("subscriptions_%s.%s", today.Format(domain.DateLayout), f)
}

// Encode serialises subs in input order. today only affects the filename.
func Encode(subs []domain.Subscription, f Format, today time.Time) (*Artifact, error) {
	var (
		data []byte
		err  error
	)

	switch f {
	case FormatCSV:
		data, err = encodeCSV(subs)
	case FormatJSON:
		data, err = encodeJSON(subs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Data:      data,
		Filename:  Filename(f, today),
		MediaType: f.MediaType(),
	}, nil
}

func encodeCSV(subs []domain.Subscription) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for i := range subs {
		s := &subs[i]
		notes := ""
		if s.Notes != nil {
			notes = *s.Notes
		}
		record := []string{
			s.Name,
			s.Price.String(),
			string(s.Cycle),
			s.Category,
			s.PaymentDate.String(),
			notes,
			s.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// record is the JSON export layout. Field names follow the data model rather
// than the API envelope, and price is a bare number.
type record struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Price       json.Number  `json:"price"`
	Cycle       domain.Cycle `json:"cycle"`
	Category    string       `json:"category"`
	PaymentDate domain.Date  `json:"paymentDate"`
	Notes       *string      `json:"notes,omitempty"`
	Logo        *string      `json:"logo,omitempty"`
	OwnerID     string       `json:"ownerId"`
	CreatedAt   time.Time    `json:"createdAt"`
}

func newRecord(s *domain.Subscription) record {
	return record{
		ID:          s.ID,
		Name:        s.Name,
		Price:       json.Number(s.Price.String()),
		Cycle:       s.Cycle,
		Category:    s.Category,
		PaymentDate: s.PaymentDate,
		Notes:       s.Notes,
		Logo:        s.Logo,
		OwnerID:     s.OwnerID,
		CreatedAt:   s.CreatedAt.UTC(),
	}
}

func (r *record) subscription() (domain.Subscription, error) {
	sub := domain.Subscription{
		ID:          r.ID,
		Name:        r.Name,
		Cycle:       r.Cycle,
		Category:    r.Category,
		PaymentDate: r.PaymentDate,
		Notes:       r.Notes,
		Logo:        r.Logo,
		OwnerID:     r.OwnerID,
		CreatedAt:   r.CreatedAt,
	}
	if r.Price != "" {
		price, err := decimal.NewFromString(r.Price.String())
		if err != nil {
			return domain.Subscription{}, fmt.Errorf("%w: %q", ErrInvalidPrice, r.Price)
		}
		sub.Price = price
	}
	return sub, nil
}

func encodeJSON(subs []domain.Subscription) ([]byte, error) {
	records := make([]record, 0, len(subs))
	for i := range subs {
		records = append(records, newRecord(&subs[i]))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}

// DecodeJSON parses a JSON export back into subscriptions. price may be a
// number or a numeric string.
func DecodeJSON(data []byte) ([]domain.Subscription, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode json export: %w", err)
	}

	subs := make([]domain.Subscription, 0, len(records))
	for i := range records {
		sub, err := records[i].subscription()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}
