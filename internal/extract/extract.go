package extract

import (
	"regexp"
	"strings"
)

// Field is the outcome of a single extraction attempt. A field that was not
// found in the text is a normal result, not an error.
type Field struct {
	Value string
	Found bool
}

// Result contains the fields extracted from recognized receipt text. Each
// field is extracted independently; missing one never blocks the others.
type Result struct {
	Merchant Field
	Amount   Field
	Date     Field
}

// matcher describes one field heuristic: a pattern, the capture group that
// holds the value, and an optional normalizer applied to the captured text.
// Keeping these as data makes it easy to add label synonyms or locales
// without touching the scan logic.
type matcher struct {
	pattern   *regexp.Regexp
	group     int
	normalize func(string) string
}

// Receipt labels vary by issuer and are Spanish-locale biased to match the
// target user base. Only the first occurrence of a label is used.
var (
	merchantMatcher = matcher{
		pattern:   regexp.MustCompile(`(?i)(?:Empresa|Proveedor|Compañía|Factura de|Emisor|Vendedor)\s*[:\-]?\s*(\S.*)`),
		group:     1,
		normalize: strings.TrimSpace,
	}

	// The colon and the currency symbol are each optional so that labels
	// like "Total: $45.00", "Monto $100" and "Importe: 100" all match.
	amountMatcher = matcher{
		pattern:   regexp.MustCompile(`(?i)(?:Total|Monto|Importe|Cantidad|Precio|Pago)\s*[:\-]?\s*[$€£]?\s*([\d,]+(?:\.\d{2})?)`),
		group:     1,
		normalize: stripThousandsSeparators,
	}

	// Dates are anchored by token shape alone: D-M-Y with 1-2 digit day and
	// month, or Y-M-D with a 4-digit year, separated by "-" or "/". The
	// token is taken literally; calendar validity is not checked.
	dateMatcher = matcher{
		pattern: regexp.MustCompile(`\b(?:\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{2}[-/]\d{2})\b`),
		group:   0,
	}
)

// Extract scans recognized receipt text for merchant, amount, and date. It is
// a pure function: no I/O, no side effects, never an error. Unmatched or
// empty input yields a Result with every field not found.
func Extract(text string) Result {
	return Result{
		Merchant: merchantMatcher.apply(text),
		Amount:   amountMatcher.apply(text),
		Date:     dateMatcher.apply(text),
	}
}

// apply runs the matcher against the text and returns the first match in
// document order, normalized.
func (m matcher) apply(text string) Field {
	groups := m.pattern.FindStringSubmatch(text)
	if groups == nil {
		return Field{}
	}
	value := groups[m.group]
	if m.normalize != nil {
		value = m.normalize(value)
	}
	return Field{Value: value, Found: true}
}

// stripThousandsSeparators removes separator commas so the captured token
// parses as a plain decimal, e.g. "1,234.56" becomes "1234.56".
func stripThousandsSeparators(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
