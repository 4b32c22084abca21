package core

import (
	"github.com/shopspring/decimal"
)

// SnapToStep rounds value to the nearest multiple of step (round half away
// from zero). A zero or negative step returns the value unchanged.
func SnapToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Round(0).Mul(step)
}

// NormalizeRequest snaps the request's quantity to the contract lot size and,
// when a price is present, the price to the contract tick size. The input is
// not mutated.
func NormalizeRequest(req OrderRequest) (OrderRequest, error) {
	if req.Contract.Symbol == "" {
		return req, ErrInvalidOrder
	}
	if req.Quantity.Cmp(decimal.Zero) <= 0 {
		return req, ErrInvalidOrder
	}
	req.Quantity = SnapToStep(req.Quantity, req.Contract.LotSize)
	if req.Quantity.Cmp(decimal.Zero) <= 0 {
		return req, ErrInvalidOrder
	}
	if req.Price != nil {
		if req.Price.Cmp(decimal.Zero) <= 0 {
			return req, ErrInvalidOrder
		}
		snapped := SnapToStep(*req.Price, req.Contract.TickSize)
		if snapped.Cmp(decimal.Zero) <= 0 {
			return req, ErrInvalidOrder
		}
		req.Price = &snapped
	}
	return req, nil
}
