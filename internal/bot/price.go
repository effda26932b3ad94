package bot

import (
	"strings"

	"catalogbot/internal/models"

	"github.com/shopspring/decimal"
)

// ParsePrice reads a price typed by a person. Both "," and "." are accepted
// as decimal separator; the other one, or a repeated one, groups thousands.
// A lone separator followed by exactly three digits groups thousands too, so
// "25.999" and "25,999" are both 25999 and "25.999,50" is 25999.50.
func ParsePrice(text string) (decimal.Decimal, error) {
	invalid := models.ValidationError("precio inválido, ingresá un número como 25999")

	s := strings.ToUpper(strings.TrimSpace(text))
	s = strings.TrimSuffix(s, "ARS")
	s = strings.NewReplacer("$", "", " ", "", "\u00a0", "", "'", "").Replace(s)
	if s == "" {
		return decimal.Zero, invalid
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return decimal.Zero, invalid
		}
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// the separator appearing last is the decimal one
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = singleSeparator(s, ",", lastComma)
	case lastDot >= 0:
		s = singleSeparator(s, ".", lastDot)
	}

	if strings.Count(s, ".") > 1 || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return decimal.Zero, invalid
	}
	price, err := decimal.NewFromString(s)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, invalid
	}
	return price.Round(2), nil
}

// singleSeparator normalizes s when sep is the only kind of separator in it.
func singleSeparator(s, sep string, last int) string {
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	if len(s)-last-1 == 3 && strings.TrimLeft(s[:last], "0") != "" {
		return strings.Replace(s, sep, "", 1)
	}
	return strings.Replace(s, sep, ".", 1)
}
