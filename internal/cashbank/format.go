package cashbank

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatAmount renders amount with the grouping and decimal marks of lang.
func FormatAmount(lang string, amount decimal.Decimal, digits int32) string {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	value, _ := amount.Round(digits).Float64()
	return message.NewPrinter(tag).Sprint(number.Decimal(value, number.Scale(int(digits))))
}
