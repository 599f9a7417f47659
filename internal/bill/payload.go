package bill

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AmountParseError reports an amount string that is not a valid non-negative
// number after separator normalization. It blocks submission; an unparseable
// amount is never coerced to zero.
type AmountParseError struct {
	Input string
}

func (e *AmountParseError) Error() string {
	return fmt.Sprintf("amount %q is not a valid number", e.Input)
}

// BuildPayload builds the immutable submission record from a draft and the
// caller-supplied user identity. It is a pure transform: the same draft and
// userID always produce the same payload. Category and Type membership is
// trusted here; the UI collaborator guarantees values from the closed sets.
func BuildPayload(d *Draft, userID int) (Payload, error) {
	amount, err := parseMinorUnits(d.Amount)
	if err != nil {
		return Payload{}, err
	}

	return Payload{
		UserID:   userID,
		Company:  d.Company,
		Amount:   amount,
		BillDate: d.Date,
		Category: d.Category,
		Type:     d.Type,
	}, nil
}

// parseMinorUnits parses a user-edited amount string into integer minor units
// (cents). Thousands-separator commas are stripped first; at most two
// fractional digits are accepted. Parsing in decimal-string space avoids
// float rounding on currency values.
func parseMinorUnits(s string) (int64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if normalized == "" {
		return 0, &AmountParseError{Input: s}
	}

	intPart, fracPart, _ := strings.Cut(normalized, ".")
	if intPart == "" || !isDigits(intPart) {
		return 0, &AmountParseError{Input: s}
	}
	if fracPart != "" && (len(fracPart) > 2 || !isDigits(fracPart)) {
		return 0, &AmountParseError{Input: s}
	}

	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || units > math.MaxInt64/100 {
		return 0, &AmountParseError{Input: s}
	}

	cents := units * 100
	if fracPart != "" {
		// Pad "5" to "50" so tenths land in the right column
		if len(fracPart) == 1 {
			fracPart += "0"
		}
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, &AmountParseError{Input: s}
		}
		cents += frac
	}

	return cents, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
