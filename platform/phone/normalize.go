// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country code.
const DefaultRegion = "MX"

// NormalizeE164 formats a phone number to E.164 using DefaultRegion.
// If parsing fails, it returns the cleaned input.
func NormalizeE164(input string) string {
	return NormalizeE164In(input, DefaultRegion)
}

// NormalizeE164In formats a phone number to E.164, resolving national numbers in region.
// Channel prefixes such as "whatsapp:" are stripped first.
func NormalizeE164In(input, region string) string {
	trimmed := stripChannelPrefix(strings.TrimSpace(input))
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// DigitsOnly returns the E.164 form without the leading plus, as most gateways expect.
func DigitsOnly(input string) string {
	return strings.TrimPrefix(NormalizeE164(input), "+")
}

func stripChannelPrefix(value string) string {
	lower := strings.ToLower(value)
	for _, prefix := range []string{"whatsapp:", "tel:"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(value[len(prefix):])
		}
	}
	return value
}
