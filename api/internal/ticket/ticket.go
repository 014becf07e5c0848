// Package ticket models the intake record recovered from a model reply.
package ticket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

type Field string

const (
	ClientName Field = "client_name"
	Phone      Field = "phone"
	Price      Field = "price"
	Model      Field = "model"
	IMEI       Field = "imei"
)

// Fields lists the known attributes in display order.
var Fields = []Field{ClientName, Phone, Price, Model, IMEI}

// aliases are normalized key spellings (see normalizeKey) accepted for each field.
var aliases = map[Field][]string{
	ClientName: {"clientname", "client", "name", "customername", "customer"},
	Phone:      {"phone", "phonenumber", "phoneno", "tel", "telephone", "mobile", "contact"},
	Price:      {"price", "amount", "cost", "total"},
	Model:      {"model", "devicemodel", "phonemodel", "device"},
	IMEI:       {"imei", "imeinumber", "imeino", "imei1"},
}

// placeholders are values models emit instead of leaving a field out.
var placeholders = map[string]struct{}{
	"n/a": {}, "na": {}, "none": {}, "null": {}, "unknown": {}, "-": {},
	"not found": {}, "not visible": {}, "not available": {}, "not provided": {},
}

func ParseField(s string) (Field, error) {
	n := normalizeKey(s)
	for _, f := range Fields {
		for _, a := range aliases[f] {
			if a == n {
				return f, nil
			}
		}
	}
	return "", fmt.Errorf("unknown field %q", s)
}

func ParseFields(in []string) ([]Field, error) {
	out := make([]Field, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		f, err := ParseField(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Label is the human-facing name used in prompts and messages.
func (f Field) Label() string {
	switch f {
	case ClientName:
		return "Client name"
	case Phone:
		return "Phone#"
	case Price:
		return "Price"
	case Model:
		return "Model"
	case IMEI:
		return "IMEI#"
	}
	return string(f)
}

// Record is the loosely-typed object parsed from the model reply. It is
// returned to clients as-is apart from merged fallback values.
type Record map[string]any

// Lookup finds the key holding f, tolerating case, spacing, '#', '_' and camelCase.
func (r Record) Lookup(f Field) (string, any, bool) {
	if v, ok := r[string(f)]; ok {
		return string(f), v, true
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n := normalizeKey(k)
		for _, a := range aliases[f] {
			if n == a {
				return k, r[k], true
			}
		}
	}
	return "", nil, false
}

// Has reports whether f is present with a truthy, non-placeholder value.
func (r Record) Has(f Field) bool {
	_, v, ok := r.Lookup(f)
	return ok && present(v)
}

// Missing returns the fields among fs that Has rejects.
func (r Record) Missing(fs ...Field) []Field {
	var out []Field
	for _, f := range fs {
		if !r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Merge stores v under the key r already uses for f, else under the canonical key.
func (r Record) Merge(f Field, v any) {
	if k, _, ok := r.Lookup(f); ok {
		r[k] = v
		return
	}
	r[string(f)] = v
}

// Value returns f formatted as text; empty when absent.
func (r Record) Value(f Field) string {
	_, v, ok := r.Lookup(f)
	if !ok || !present(v) {
		return ""
	}
	return format(v)
}

type Ticket struct {
	ClientName string `json:"client_name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Price      string `json:"price,omitempty"`
	Model      string `json:"model,omitempty"`
	IMEI       string `json:"imei,omitempty"`
}

func (r Record) Ticket() Ticket {
	return Ticket{
		ClientName: r.Value(ClientName),
		Phone:      r.Value(Phone),
		Price:      r.Value(Price),
		Model:      r.Value(Model),
		IMEI:       r.Value(IMEI),
	}
}

func normalizeKey(s string) string {
	var b strings.Builder
	for _, c := range s {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(unicode.ToLower(c))
		}
	}
	return b.String()
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		if s == "" {
			return false
		}
		_, ph := placeholders[s]
		return !ph
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		// objects and arrays are truthy
		return true
	}
}

func format(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
