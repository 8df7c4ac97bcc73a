package weighing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultToleranceKg is the allowed gap when checking net = gross - tare
var DefaultToleranceKg = decimal.NewFromInt(10)

// Weight is an immutable weight value in kilograms
type Weight struct {
	kg decimal.Decimal
}

// WeightFromKg builds a weight from kilograms
func WeightFromKg(kg decimal.Decimal) Weight {
	return Weight{kg: kg}
}

// WeightFromTon builds a weight from metric tons
func WeightFromTon(ton decimal.Decimal) Weight {
	return Weight{kg: ton.Mul(decimal.NewFromInt(1000))}
}

// Kg returns the value in kilograms
func (w Weight) Kg() decimal.Decimal { return w.kg }

// Ton returns the value in metric tons
func (w Weight) Ton() decimal.Decimal { return w.kg.Div(decimal.NewFromInt(1000)) }

// Add returns w + other
func (w Weight) Add(other Weight) Weight { return Weight{kg: w.kg.Add(other.kg)} }

// Sub returns w - other
func (w Weight) Sub(other Weight) Weight { return Weight{kg: w.kg.Sub(other.kg)} }

// Abs returns the absolute value
func (w Weight) Abs() Weight { return Weight{kg: w.kg.Abs()} }

// IsNegative reports whether the weight is below zero
func (w Weight) IsNegative() bool { return w.kg.IsNegative() }

// LessThan reports w < other
func (w Weight) LessThan(other Weight) bool { return w.kg.LessThan(other.kg) }

// ApproxEqual reports whether two weights differ by at most tolerance
func (w Weight) ApproxEqual(other Weight, tolerance decimal.Decimal) bool {
	return w.kg.Sub(other.kg).Abs().LessThanOrEqual(tolerance)
}

func (w Weight) String() string {
	return fmt.Sprintf("%s kg", w.kg.String())
}
