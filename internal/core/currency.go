package core

import "strings"

// DefaultCurrency is assumed when an expense carries no currency code.
// The original ledger data predates multi-currency support and is rouble
// denominated.
const DefaultCurrency = "RUB"

// NormalizeCurrency canonicalizes a currency code: trimmed, upper-cased,
// empty falls back to the given default. Pass "" as fallback to use
// DefaultCurrency.
func NormalizeCurrency(code, fallback string) string {
	if fallback == "" {
		fallback = DefaultCurrency
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	return code
}
