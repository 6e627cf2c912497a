package repository

import "github.com/shopspring/decimal"

// Денежные суммы хранятся в пайсах.

func toPaise(rupees float64) int64 {
	return decimal.NewFromFloat(rupees).Shift(2).Round(0).IntPart()
}

func fromPaise(paise int64) float64 {
	return decimal.New(paise, -2).InexactFloat64()
}
