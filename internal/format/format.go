package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"finitefield.org/storefront/internal/catalog"
)

var symbols = map[string]string{
	"JPY": "¥",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

// Money formats an amount with its currency symbol and grouping for lang.
// Example: Money(¥12345, "ja") => "¥12,345", Money($12.5, "en") => "$12.50"
func Money(m catalog.Money, lang string) string {
	code := strings.ToUpper(strings.TrimSpace(m.CurrencyCode))
	scale := int32(2)
	if unit, err := currency.ParseISO(code); err == nil {
		s, _ := currency.Standard.Rounding(unit)
		scale = int32(s)
	}

	amount := m.Amount.Round(scale)
	neg := amount.IsNegative()
	amount = amount.Abs()

	p := message.NewPrinter(tag(lang))
	whole := amount.Truncate(0)
	out := p.Sprintf("%d", whole.IntPart())
	if scale > 0 {
		frac := amount.Sub(whole).Shift(scale).IntPart()
		out += "." + leftPad(decimal.NewFromInt(frac).String(), int(scale))
	}

	sym, ok := symbols[code]
	switch {
	case ok:
		out = sym + out
	case code != "":
		out = code + " " + out
	}
	if neg {
		return "-" + out
	}
	return out
}

// Date formats time in a locale-friendly short form.
func Date(t time.Time, lang string) string {
	if t.IsZero() {
		return ""
	}
	switch strings.ToLower(lang) {
	case "ja":
		return t.Format("2006-01-02")
	default:
		return t.Format("Jan 2, 2006")
	}
}

func tag(lang string) language.Tag {
	t, err := language.Parse(lang)
	if err != nil {
		return language.English
	}
	return t
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}
