package verify

import "github.com/shopspring/decimal"

// parseAmounts tolerates the different textual forms drivers return numerics in.
func parseAmounts(amount, applied string) (decimal.Decimal, decimal.Decimal, error) {
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if applied == "" {
		return a, decimal.Zero, nil
	}
	b, err := decimal.NewFromString(applied)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return a, b, nil
}
