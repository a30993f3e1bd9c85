package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertCurrency(t *testing.T) {
	tool := NewConvertCurrency()

	out, err := tool.Execute(context.Background(), map[string]any{
		"amount": 100.0, "from": "USD", "to": "EUR",
	})
	require.NoError(t, err)
	result := out.(ConvertCurrencyOutput)
	assert.Equal(t, "92.59", result.Amount)
	assert.Equal(t, "EUR", result.Currency)

	// Case-insensitive currency codes.
	out, err = tool.Execute(context.Background(), map[string]any{
		"amount": 1.0, "from": "usd", "to": "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", out.(ConvertCurrencyOutput).Amount)
}

func TestConvertCurrency_Errors(t *testing.T) {
	tool := NewConvertCurrency()

	_, err := tool.Execute(context.Background(), map[string]any{
		"amount": 1.0, "from": "USD", "to": "XXX",
	})
	assert.ErrorContains(t, err, "unsupported currency")

	_, err = tool.Execute(context.Background(), map[string]any{
		"amount": -5.0, "from": "USD", "to": "EUR",
	})
	assert.ErrorContains(t, err, "non-negative")
}

func TestLookupHolidays(t *testing.T) {
	tool := NewLookupHolidays()

	out, err := tool.Execute(context.Background(), map[string]any{"country": "us"})
	require.NoError(t, err)
	result := out.(LookupHolidaysOutput)
	assert.Equal(t, "US", result.Country)
	assert.Len(t, result.Holidays, 4)

	out, err = tool.Execute(context.Background(), map[string]any{"country": "US", "month": 7})
	require.NoError(t, err)
	result = out.(LookupHolidaysOutput)
	require.Len(t, result.Holidays, 1)
	assert.Equal(t, "Independence Day", result.Holidays[0].Name)

	_, err = tool.Execute(context.Background(), map[string]any{"country": "ZZ"})
	assert.ErrorContains(t, err, "no holiday data")
}

func TestCreateTicket(t *testing.T) {
	sink := NewMemoryTicketSink()
	tool := NewCreateTicket(sink)
	assert.Equal(t, SideEffecting, tool.Idempotency())

	out, err := tool.Execute(context.Background(), map[string]any{
		"summary":     "laptop will not boot",
		"description": "black screen since this morning",
		"priority":    "high",
	})
	require.NoError(t, err)
	result := out.(CreateTicketOutput)
	assert.NotEmpty(t, result.TicketID)
	assert.Equal(t, "created", result.Status)

	tickets := sink.Tickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, "laptop will not boot", tickets[0].Summary)
	assert.Equal(t, "high", tickets[0].Priority)
}

func TestCreateTicket_Validation(t *testing.T) {
	tool := NewCreateTicket(NewMemoryTicketSink())

	_, err := tool.Execute(context.Background(), map[string]any{"summary": "   "})
	assert.ErrorContains(t, err, "summary")

	_, err = tool.Execute(context.Background(), map[string]any{
		"summary": "x", "priority": "urgent",
	})
	assert.ErrorContains(t, err, "invalid priority")
}

func TestCreateTicket_DefaultPriority(t *testing.T) {
	sink := NewMemoryTicketSink()
	tool := NewCreateTicket(sink)

	_, err := tool.Execute(context.Background(), map[string]any{"summary": "request monitor"})
	require.NoError(t, err)
	assert.Equal(t, "normal", sink.Tickets()[0].Priority)
}
