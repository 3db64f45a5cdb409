// Package fee provides settlement fee calculators.
//
// A Calculator is a pure function from realized profit to a platform fee.
// The engine calls it exactly once per settlement, with the profit already
// floored at zero, so implementations never see a negative input.
package fee

import "github.com/fundflow/factoring/types"

// Calculator computes the platform fee owed on a settlement profit.
type Calculator interface {
	Fee(profit types.Money) types.Money
}

// CalculatorFunc adapts a plain function to a Calculator.
type CalculatorFunc func(profit types.Money) types.Money

// Fee implements Calculator.
func (f CalculatorFunc) Fee(profit types.Money) types.Money {
	return f(profit)
}

// BasisPoints returns a Calculator charging bps basis points of profit,
// rounded down. 100 bps = 1%. Non-positive profit always yields zero.
func BasisPoints(bps int64) Calculator {
	return CalculatorFunc(func(profit types.Money) types.Money {
		if !profit.IsPositive() {
			return types.Zero(profit.Currency)
		}
		return types.New(profit.Amount*bps/10_000, profit.Currency)
	})
}

// Flat returns a Calculator charging a fixed fee whenever there is any
// positive profit, capped at the profit itself so a fee never exceeds
// what was earned.
func Flat(amount types.Money) Calculator {
	return CalculatorFunc(func(profit types.Money) types.Money {
		if !profit.IsPositive() {
			return types.Zero(profit.Currency)
		}
		return amount.Min(profit)
	})
}

// None returns a Calculator that never charges a fee.
func None() Calculator {
	return CalculatorFunc(func(profit types.Money) types.Money {
		return types.Zero(profit.Currency)
	})
}
