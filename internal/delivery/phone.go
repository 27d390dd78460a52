package delivery

import "strings"

// Dial prefixes for regions we send to. Numbers already in E.164 pass through.
var regionDialPrefix = map[string]string{
	"US": "+1",
	"CA": "+1",
	"GB": "+44",
	"IN": "+91",
	"AU": "+61",
}

// formatPhoneNumber normalises a stored phone number into E.164 for the
// provider. Separators are stripped; a number without a leading + gets the
// region's dial prefix.
func formatPhoneNumber(number, region string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, number)

	if cleaned == "" || strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if strings.HasPrefix(cleaned, "00") {
		return "+" + cleaned[2:]
	}

	prefix, ok := regionDialPrefix[strings.ToUpper(region)]
	if !ok {
		return "+" + cleaned
	}
	return prefix + cleaned
}
