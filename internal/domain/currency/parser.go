package currency

import (
	"regexp"
	"strings"

	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Front-desk staff record composite payments as free text, e.g.
// "30 USD + 5000 CDF", "$30", "25.5USD" or "5000 FC". The parser lexes
// such strings into (amount, currency) pairs. Parse failures yield an
// empty list, never an error: callers distinguish "nothing parsed"
// from hard failures like an unsupported rate.

var currencyAliases = map[string]valueobject.Currency{
	"$":   valueobject.USD,
	"USD": valueobject.USD,
	"US$": valueobject.USD,
	"€":   valueobject.EUR,
	"EUR": valueobject.EUR,
	"CDF": valueobject.CDF,
	"FC":  valueobject.CDF, // Franc Congolais, the common local notation
}

// Matches either "symbol amount" or "amount code", code optional when a
// symbol leads. Amounts allow thousands separators and one decimal part.
var (
	segmentLeading  = regexp.MustCompile(`^(\$|€|US\$)\s*([0-9][0-9,]*(?:\.[0-9]+)?)$`)
	segmentTrailing = regexp.MustCompile(`^([0-9][0-9,]*(?:\.[0-9]+)?)\s*(\$|€|US\$|[A-Za-z]{2,3})$`)

	// Segments are joined by "+", ";" or the words staff actually type,
	// "and" in English and "et" in French.
	segmentSeparator = regexp.MustCompile(`(?i)\s+(?:and|et)\s+|[+;]`)
)

func resolveCurrency(token string) (valueobject.Currency, bool) {
	code, ok := currencyAliases[strings.ToUpper(token)]
	return code, ok
}

func parseAmount(token string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(token, ",", "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return amount, true
}

func parseSegment(segment string) (CurrencyAmount, bool) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return CurrencyAmount{}, false
	}

	if m := segmentLeading.FindStringSubmatch(segment); m != nil {
		code, ok := resolveCurrency(m[1])
		if !ok {
			return CurrencyAmount{}, false
		}
		amount, ok := parseAmount(m[2])
		if !ok {
			return CurrencyAmount{}, false
		}
		return CurrencyAmount{Amount: amount, Currency: code}, true
	}

	if m := segmentTrailing.FindStringSubmatch(segment); m != nil {
		amount, ok := parseAmount(m[1])
		if !ok {
			return CurrencyAmount{}, false
		}
		code, ok := resolveCurrency(m[2])
		if !ok {
			return CurrencyAmount{}, false
		}
		return CurrencyAmount{Amount: amount, Currency: code}, true
	}

	// A bare number is assumed to be in the accounting currency
	if amount, ok := parseAmount(segment); ok {
		return CurrencyAmount{Amount: amount, Currency: valueobject.DefaultCurrency}, true
	}

	return CurrencyAmount{}, false
}

// ParsePaymentString lexes a free-form composite payment description into
// (amount, currency) pairs. Segments are separated by "+" or ";". Any
// unparseable segment invalidates the whole string and an empty list is
// returned, so a typo never silently drops part of a payment.
func ParsePaymentString(text string) []CurrencyAmount {
	text = strings.TrimSpace(text)
	if text == "" {
		return []CurrencyAmount{}
	}

	segments := segmentSeparator.Split(text, -1)

	parsed := make([]CurrencyAmount, 0, len(segments))
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		pair, ok := parseSegment(segment)
		if !ok {
			return []CurrencyAmount{}
		}
		parsed = append(parsed, pair)
	}

	return parsed
}
