package services

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nomadpass/checkout-api/internal/payments"
)

const (
	defaultEURToRUB  = 100.0
	defaultEURToUSDT = 1.05
)

// ExchangeRates are the static multiplicative rates applied to EUR totals.
// There are no live FX lookups at this layer; the one provider that can
// query live rates does so independently, making this output advisory.
type ExchangeRates struct {
	EURToRUB  float64
	EURToUSDT float64
}

// CurrencyConverter converts an EUR-denominated total into each supported
// settlement currency. RUB rounds to whole units; EUR and USDT keep two
// fractional digits for display.
type CurrencyConverter struct {
	rates ExchangeRates
}

// NewCurrencyConverter constructs a converter, substituting defaults for
// missing rates.
func NewCurrencyConverter(rates ExchangeRates) *CurrencyConverter {
	if rates.EURToRUB <= 0 {
		rates.EURToRUB = defaultEURToRUB
	}
	if rates.EURToUSDT <= 0 {
		rates.EURToUSDT = defaultEURToUSDT
	}
	return &CurrencyConverter{rates: rates}
}

// Convert never fails: every supported currency has a rate. An unknown
// target is a caller bug, not a runtime condition to recover from.
func (c *CurrencyConverter) Convert(amountEUR float64, target payments.Currency) payments.ConvertedAmount {
	switch target {
	case payments.CurrencyEUR:
		return payments.ConvertedAmount{Amount: amountEUR, Precision: 2}
	case payments.CurrencyRUB:
		return payments.ConvertedAmount{Amount: math.Round(amountEUR * c.rates.EURToRUB), Precision: 0}
	case payments.CurrencyUSDT:
		return payments.ConvertedAmount{Amount: amountEUR * c.rates.EURToUSDT, Precision: 2}
	default:
		panic(fmt.Sprintf("currency converter: unknown settlement currency %q", target))
	}
}

// FormatAmount renders a converted amount with its display precision.
func FormatAmount(amount payments.ConvertedAmount) string {
	return strconv.FormatFloat(amount.Amount, 'f', amount.Precision, 64)
}
