package telegram

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-proxy/api/internal/relay"
	"ticket-proxy/api/internal/ticket"
)

func TestFormatTicket(t *testing.T) {
	rec := ticket.Record{
		"Client name": "Jane Roe",
		"Phone#":      "555-0100",
		"Price":       json.Number("120"),
		"Model":       "N/A",
		"IMEI#":       "356938035643809",
	}
	got := FormatTicket(rec, relay.Outcome{Strategy: relay.StrategyRetry, Attempts: 1})

	assert.Equal(t, "📝 Ticket\n\n"+
		"Client name: Jane Roe\n"+
		"Phone#: 555-0100\n"+
		"Price: 120\n"+
		"Model: —\n"+
		"IMEI#: 356938035643809\n"+
		"\nNot found: Model\n", got)
}

func TestFormatTicket_CallsNote(t *testing.T) {
	rec := ticket.Record{"imei": "356938035643809", "price": "99.99"}
	got := FormatTicket(rec, relay.Outcome{
		Strategy:  relay.StrategyFields,
		Attempts:  4,
		Retried:   true,
		Fallbacks: []string{"imei", "price"},
	})

	assert.Contains(t, got, "Not found: Client name, Phone#, Model\n")
	assert.Contains(t, got, "(4 model calls; recovered separately: imei, price)\n")
}

func TestBuildPayload(t *testing.T) {
	img := []byte("\xff\xd8\xff\xe0fake-jpeg")
	p := BuildPayload(relay.IntakePrompt, img, "")

	require.Len(t, p.Contents, 1)
	assert.Equal(t, "user", p.Contents[0].Role)
	assert.Equal(t, relay.IntakePrompt, p.PromptText())

	imgs := p.Images()
	require.Len(t, imgs, 1)
	assert.Equal(t, "image/jpeg", imgs[0].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(img), imgs[0].InlineData.Data)

	p = BuildPayload("read it", []byte("x"), "image/png")
	assert.Equal(t, "image/png", p.Images()[0].InlineData.MimeType)
}
