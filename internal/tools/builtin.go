package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Builtin tool names.
const (
	ToolConvertCurrency = "convert_currency"
	ToolLookupHolidays  = "lookup_holidays"
	ToolCreateTicket    = "create_ticket"
)

// RegisterBuiltins registers the standard helpdesk tools.
func RegisterBuiltins(r *Registry, sink TicketSink) {
	r.Register(NewConvertCurrency())
	r.Register(NewLookupHolidays())
	r.Register(NewCreateTicket(sink))
}

// --- convert_currency ---

// ConvertCurrencyInput is the model-facing input schema.
type ConvertCurrencyInput struct {
	Amount float64 `json:"amount" jsonschema:"the amount to convert"`
	From   string  `json:"from" jsonschema:"ISO 4217 source currency code, e.g. USD"`
	To     string  `json:"to" jsonschema:"ISO 4217 target currency code, e.g. EUR"`
}

// ConvertCurrencyOutput is the conversion result. Amounts are decimal
// strings to avoid float drift in downstream formatting.
type ConvertCurrencyOutput struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

// usdRates maps a currency code to its USD value. Static reference data;
// a production deployment would back this with a rates feed.
var usdRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("1.08"),
	"GBP": decimal.RequireFromString("1.27"),
	"JPY": decimal.RequireFromString("0.0067"),
	"CHF": decimal.RequireFromString("1.13"),
	"TWD": decimal.RequireFromString("0.031"),
}

// NewConvertCurrency builds the currency conversion tool. Idempotent:
// same input, same answer.
func NewConvertCurrency() *Tool {
	return New(ToolConvertCurrency,
		"Convert a monetary amount between currencies using reference exchange rates.",
		Idempotent,
		func(_ context.Context, in ConvertCurrencyInput) (ConvertCurrencyOutput, error) {
			from, ok := usdRates[strings.ToUpper(in.From)]
			if !ok {
				return ConvertCurrencyOutput{}, fmt.Errorf("unsupported currency %q", in.From)
			}
			to, ok := usdRates[strings.ToUpper(in.To)]
			if !ok {
				return ConvertCurrencyOutput{}, fmt.Errorf("unsupported currency %q", in.To)
			}
			if in.Amount < 0 {
				return ConvertCurrencyOutput{}, fmt.Errorf("amount must be non-negative, got %v", in.Amount)
			}

			rate := from.Div(to)
			amount := decimal.NewFromFloat(in.Amount).Mul(rate)
			return ConvertCurrencyOutput{
				Amount:   amount.Round(2).String(),
				Currency: strings.ToUpper(in.To),
				Rate:     rate.Round(6).String(),
			}, nil
		})
}

// --- lookup_holidays ---

// LookupHolidaysInput is the model-facing input schema.
type LookupHolidaysInput struct {
	Country string `json:"country" jsonschema:"ISO 3166-1 alpha-2 country code, e.g. US"`
	Month   int    `json:"month,omitempty" jsonschema:"optional month 1-12 to filter by"`
}

// Holiday is one public holiday.
type Holiday struct {
	Date string `json:"date"` // MM-DD, recurring annually
	Name string `json:"name"`
}

// LookupHolidaysOutput lists the matching holidays.
type LookupHolidaysOutput struct {
	Country  string    `json:"country"`
	Holidays []Holiday `json:"holidays"`
}

// holidayTable holds fixed-date public holidays per country. Static
// reference data, same caveat as usdRates.
var holidayTable = map[string][]Holiday{
	"US": {
		{Date: "01-01", Name: "New Year's Day"},
		{Date: "07-04", Name: "Independence Day"},
		{Date: "11-11", Name: "Veterans Day"},
		{Date: "12-25", Name: "Christmas Day"},
	},
	"DE": {
		{Date: "01-01", Name: "Neujahr"},
		{Date: "05-01", Name: "Tag der Arbeit"},
		{Date: "10-03", Name: "Tag der Deutschen Einheit"},
		{Date: "12-25", Name: "Erster Weihnachtstag"},
	},
	"TW": {
		{Date: "01-01", Name: "Founding Day"},
		{Date: "02-28", Name: "Peace Memorial Day"},
		{Date: "10-10", Name: "National Day"},
	},
}

// NewLookupHolidays builds the holiday lookup tool. Idempotent.
func NewLookupHolidays() *Tool {
	return New(ToolLookupHolidays,
		"Look up fixed-date public holidays for a country, optionally filtered by month.",
		Idempotent,
		func(_ context.Context, in LookupHolidaysInput) (LookupHolidaysOutput, error) {
			country := strings.ToUpper(in.Country)
			all, ok := holidayTable[country]
			if !ok {
				return LookupHolidaysOutput{}, fmt.Errorf("no holiday data for country %q", in.Country)
			}
			if in.Month < 0 || in.Month > 12 {
				return LookupHolidaysOutput{}, fmt.Errorf("month %d out of range", in.Month)
			}

			out := LookupHolidaysOutput{Country: country}
			for _, h := range all {
				if in.Month != 0 && !strings.HasPrefix(h.Date, fmt.Sprintf("%02d-", in.Month)) {
					continue
				}
				out.Holidays = append(out.Holidays, h)
			}
			return out, nil
		})
}

// --- create_ticket ---

// CreateTicketInput is the model-facing input schema.
type CreateTicketInput struct {
	Summary     string `json:"summary" jsonschema:"one-line ticket summary"`
	Description string `json:"description,omitempty" jsonschema:"detailed description"`
	Priority    string `json:"priority,omitempty" jsonschema:"low, normal, or high"`
}

// CreateTicketOutput acknowledges the created ticket.
type CreateTicketOutput struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}

// Ticket is a stored helpdesk ticket.
type Ticket struct {
	ID        string
	Summary   string
	Details   string
	Priority  string
	CreatedAt time.Time
}

// TicketSink receives created tickets.
type TicketSink interface {
	CreateTicket(ctx context.Context, t Ticket) error
}

// NewCreateTicket builds the ticket creation tool. Side-effecting: the
// executor guarantees at most one invocation per orchestrator iteration.
func NewCreateTicket(sink TicketSink) *Tool {
	return New(ToolCreateTicket,
		"Create a helpdesk ticket for a request that needs human follow-up.",
		SideEffecting,
		func(ctx context.Context, in CreateTicketInput) (CreateTicketOutput, error) {
			if strings.TrimSpace(in.Summary) == "" {
				return CreateTicketOutput{}, fmt.Errorf("summary must not be empty")
			}
			priority := strings.ToLower(in.Priority)
			switch priority {
			case "":
				priority = "normal"
			case "low", "normal", "high":
			default:
				return CreateTicketOutput{}, fmt.Errorf("invalid priority %q", in.Priority)
			}

			ticket := Ticket{
				ID:        uuid.NewString(),
				Summary:   in.Summary,
				Details:   in.Description,
				Priority:  priority,
				CreatedAt: time.Now(),
			}
			if err := sink.CreateTicket(ctx, ticket); err != nil {
				return CreateTicketOutput{}, fmt.Errorf("storing ticket: %w", err)
			}
			return CreateTicketOutput{TicketID: ticket.ID, Status: "created"}, nil
		})
}

// MemoryTicketSink collects tickets in memory.
type MemoryTicketSink struct {
	mu      sync.Mutex
	tickets []Ticket
}

// NewMemoryTicketSink creates an empty sink.
func NewMemoryTicketSink() *MemoryTicketSink {
	return &MemoryTicketSink{}
}

func (s *MemoryTicketSink) CreateTicket(_ context.Context, t Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, t)
	return nil
}

// Tickets returns a copy of all stored tickets.
func (s *MemoryTicketSink) Tickets() []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Ticket, len(s.tickets))
	copy(out, s.tickets)
	return out
}
