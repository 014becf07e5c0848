package relay

import (
	"fmt"

	"ticket-proxy/api/internal/ticket"
)

// IntakePrompt is the default extraction request used by front-ends that
// build the payload themselves.
const IntakePrompt = `Extract the 'Client name', 'Phone#', 'Price', 'Model', and 'IMEI#' from this repair/intake form image. ` +
	`Return ONLY a valid JSON object with the keys "client_name", "phone", "price", "model" and "imei". ` +
	`Use an empty string for any value that is not visible. Do not include any extra text or explanations.`

// RetryPrompt reinforces the caller's prompt after an incomplete or unparsable reply.
func RetryPrompt(original string) string {
	return fmt.Sprintf(`Your previous response was incomplete or not valid JSON. Please try again. Look at the image carefully. `+
		`Extract the 'Client name', 'Phone#', 'Price', 'Model', and especially the 'IMEI#'. The IMEI# is a long numeric string. `+
		`Provide ONLY the valid JSON object as requested. Do not include any extra text or explanations. The original request was: "%s"`, original)
}

// FieldPrompt asks for one attribute only.
func FieldPrompt(f ticket.Field) string {
	switch f {
	case ticket.IMEI:
		return `Look at the image carefully and find only the IMEI# (International Mobile Equipment Identity). ` +
			`It is a long numeric string, usually 15 digits, often labelled "IMEI" or "IMEI#". ` +
			`Respond with ONLY this JSON object: {"imei": "<digits>"}. If it is not visible respond with {"imei": ""}.`
	case ticket.Price:
		return `Look at the image carefully and find only the Price (the amount charged or quoted). ` +
			`Respond with ONLY this JSON object: {"price": "<amount as written, digits and decimal point only>"}. ` +
			`If it is not visible respond with {"price": ""}.`
	default:
		return fmt.Sprintf(`Look at the image carefully and find only the '%s'. `+
			`Respond with ONLY this JSON object: {"%s": "<value>"}. If it is not visible respond with {"%s": ""}.`,
			f.Label(), f, f)
	}
}
