package ticket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_LookupAliases(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field Field
		key   string
	}{
		{"canonical", Record{"imei": "1"}, IMEI, "imei"},
		{"label with hash", Record{"IMEI#": "1"}, IMEI, "IMEI#"},
		{"label with space", Record{"Client name": "Ann"}, ClientName, "Client name"},
		{"camel case", Record{"clientName": "Ann"}, ClientName, "clientName"},
		{"phone hash", Record{"Phone#": "555"}, Phone, "Phone#"},
		{"phone number", Record{"phone_number": "555"}, Phone, "phone_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, _, ok := tt.rec.Lookup(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.key, k)
		})
	}

	_, _, ok := Record{"color": "red"}.Lookup(IMEI)
	assert.False(t, ok)
}

func TestRecord_Has(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"string", "356938035643809", true},
		{"empty string", "", false},
		{"blank string", "   ", false},
		{"placeholder", "N/A", false},
		{"placeholder phrase", "Not visible", false},
		{"null", nil, false},
		{"zero number", json.Number("0"), false},
		{"number", json.Number("356938035643809"), true},
		{"float", float64(12.5), true},
		{"false", false, false},
		{"object", map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Record{"imei": tt.v}.Has(IMEI))
		})
	}
	assert.False(t, Record{}.Has(IMEI))
}

func TestRecord_Missing(t *testing.T) {
	rec := Record{"Client name": "Ann", "Price": "", "imei": "123456789012345"}
	assert.Equal(t, []Field{Phone, Price, Model}, rec.Missing(Fields...))
}

func TestRecord_Merge(t *testing.T) {
	rec := Record{"IMEI#": ""}
	rec.Merge(IMEI, "356938035643809")
	assert.Equal(t, "356938035643809", rec["IMEI#"])
	assert.NotContains(t, rec, "imei")

	rec.Merge(Price, "120")
	assert.Equal(t, "120", rec["price"])
}

func TestRecord_Ticket(t *testing.T) {
	rec := Record{
		"Client name": " Ann Lee ",
		"Phone#":      "555-0100",
		"Price":       json.Number("129.50"),
		"Model":       "Galaxy S21",
		"IMEI#":       float64(356938035643809),
		"notes":       "cracked screen",
	}
	assert.Equal(t, Ticket{
		ClientName: "Ann Lee",
		Phone:      "555-0100",
		Price:      "129.50",
		Model:      "Galaxy S21",
		IMEI:       "356938035643809",
	}, rec.Ticket())
}

func TestParseFields(t *testing.T) {
	fs, err := ParseFields([]string{"imei", " Price ", "", "Phone#"})
	require.NoError(t, err)
	assert.Equal(t, []Field{IMEI, Price, Phone}, fs)

	_, err = ParseFields([]string{"colour"})
	assert.Error(t, err)
}
