package relay

import (
	"regexp"
	"strings"

	"ticket-proxy/api/internal/ticket"
	"ticket-proxy/api/internal/util"
)

const amount = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

var (
	// a run of digits, optionally grouped by single spaces or dashes
	reDigitRun = regexp.MustCompile(`\d(?:[ -]?\d)*`)

	// an amount must sit next to a price keyword or a currency marker
	rePriceLabel  = regexp.MustCompile(`(?i)\b(?:price|cost|total|amount)\b\s*(?:is|of|:|=)?\s*[$€£¥₽]?\s?` + amount)
	rePriceSign   = regexp.MustCompile(`[$€£¥₽]\s?` + amount)
	rePriceSuffix = regexp.MustCompile(`(?i)` + amount + `\s?(?:[$€£¥₽]|\b(?:usd|eur|gbp|rub|dollars?|euros?|rubles?)\b)`)
)

// scanField recovers a single attribute from a fallback reply: the JSON
// object first, then a field-specific pattern over the raw text. Prose that
// only mentions numbers is a miss.
func scanField(f ticket.Field, text string) (any, bool) {
	if obj, err := util.ExtractJSON(util.StripCodeFences(text)); err == nil {
		rec := ticket.Record(obj)
		if rec.Has(f) {
			_, v, _ := rec.Lookup(f)
			return v, true
		}
		// a well-formed but empty answer is final
		return nil, false
	}

	switch f {
	case ticket.IMEI:
		for _, m := range reDigitRun.FindAllString(text, -1) {
			digits := strings.NewReplacer(" ", "", "-", "").Replace(m)
			if len(digits) == 15 && luhnValid(digits) {
				return digits, true
			}
		}
	case ticket.Price:
		for _, re := range []*regexp.Regexp{rePriceLabel, rePriceSign, rePriceSuffix} {
			if m := re.FindStringSubmatch(text); m != nil {
				return strings.ReplaceAll(m[1], ",", ""), true
			}
		}
	}
	return nil, false
}

// luhnValid reports whether digits carries a valid Luhn check digit, as every IMEI does.
func luhnValid(digits string) bool {
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[len(digits)-1-i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return len(digits) > 0 && sum%10 == 0
}
