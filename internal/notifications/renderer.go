package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"strings"
	"text/template"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "USD"

const testSubject = "subtrack test notification"

var channelTypes = []domain.ChannelType{
	domain.ChannelTypeEmail,
	domain.ChannelTypeTelegram,
	domain.ChannelTypePush,
}

var messageKinds = []MessageKind{MessageKindReminder, MessageKindTest}

// ReminderData is the template input for a payment reminder.
type ReminderData struct {
	Name      string
	Category  string
	Cycle     string
	Price     decimal.Decimal
	Notes     string
	DueDate   domain.Date
	DaysUntil int
}

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
	unit      currency.Unit
	printer   *message.Printer
}

// NewRenderer creates a new renderer and loads all templates. Amounts are shown
// in the given ISO 4217 currency.
func NewRenderer(currencyCode string) (*Renderer, error) {
	if currencyCode == "" {
		currencyCode = DefaultCurrency
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		unit:      unit,
		printer:   message.NewPrinter(language.English),
	}

	funcMap := template.FuncMap{
		"title":      titleCase,
		"lower":      strings.ToLower,
		"escapeHTML": html.EscapeString,
		"days":       daysPhrase,
		"formatDate": formatDate,
		"money":      r.money,
	}

	for _, channel := range channelTypes {
		for _, kind := range messageKinds {
			name := templateName(channel, kind)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	return r, nil
}

// RenderReminder renders a payment reminder for the channel.
func (r *Renderer) RenderReminder(channel domain.ChannelType, data ReminderData) (Message, error) {
	body, err := r.execute(channel, MessageKindReminder, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Subject: fmt.Sprintf("%s renews %s", data.Name, daysPhrase(data.DaysUntil)),
		Body:    body,
	}, nil
}

// RenderTest renders the test message for the channel.
func (r *Renderer) RenderTest(channel domain.ChannelType) (Message, error) {
	body, err := r.execute(channel, MessageKindTest, nil)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: testSubject, Body: body}, nil
}

func (r *Renderer) execute(channel domain.ChannelType, kind MessageKind, data any) (string, error) {
	name := templateName(channel, kind)
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func templateName(channel domain.ChannelType, kind MessageKind) string {
	return fmt.Sprintf("%s_%s", channel, kind)
}

// money formats an amount with digit grouping followed by the currency code.
func (r *Renderer) money(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return r.printer.Sprintf("%.2f %s", f, r.unit.String())
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func daysPhrase(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

func formatDate(d domain.Date) string {
	return d.Time.Format("Mon, Jan 2, 2006")
}
