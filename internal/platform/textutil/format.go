package textutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ruPrinter = message.NewPrinter(language.Russian)

// FormatCompact renders counts the way the profile header does: 1.2K, 3.4M.
func FormatCompact(value int64) string {
	switch {
	case value >= 1_000_000:
		return strconv.FormatFloat(float64(value)/1_000_000, 'f', 1, 64) + "M"
	case value >= 1_000:
		return strconv.FormatFloat(float64(value)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(value, 10)
	}
}

// FormatRubles renders an amount in roubles with Russian digit grouping.
func FormatRubles(amount float64) string {
	if amount == math.Trunc(amount) {
		return ruPrinter.Sprintf("%d ₽", int64(amount))
	}
	return ruPrinter.Sprintf("%.2f ₽", amount)
}

// NormalizeCurrency validates an ISO 4217 code and returns it upper-cased.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("textutil: invalid currency %q: %w", code, err)
	}
	return unit.String(), nil
}
