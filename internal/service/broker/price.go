package broker

import "github.com/shopspring/decimal"

// roundPrice rounds a stop price half away from zero to places decimals.
func roundPrice(p float64, places int32) decimal.Decimal {
	return decimal.NewFromFloat(p).Round(places)
}

// side maps a signed quantity to an order side.
func side(signedQty float64) string {
	if signedQty < 0 {
		return "sell"
	}
	return "buy"
}
