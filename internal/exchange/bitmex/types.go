package bitmex

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bitmex-trader/internal/core"
)

type instrumentResponse struct {
	Symbol   string           `json:"symbol"`
	LotSize  *decimal.Decimal `json:"lotSize"`
	TickSize *decimal.Decimal `json:"tickSize"`
}

type marginResponse struct {
	Currency      string           `json:"currency"`
	WalletBalance *decimal.Decimal `json:"walletBalance"`
	MarginBalance *decimal.Decimal `json:"marginBalance"`
}

type tradeBinResponse struct {
	Timestamp string           `json:"timestamp"`
	Symbol    string           `json:"symbol"`
	Open      *decimal.Decimal `json:"open"`
	High      *decimal.Decimal `json:"high"`
	Low       *decimal.Decimal `json:"low"`
	Close     *decimal.Decimal `json:"close"`
	Volume    *decimal.Decimal `json:"volume"`
}

type orderResponse struct {
	OrderID   string           `json:"orderID"`
	Symbol    string           `json:"symbol"`
	Side      string           `json:"side"`
	OrdType   string           `json:"ordType"`
	OrdStatus string           `json:"ordStatus"`
	Price     *decimal.Decimal `json:"price"`
	OrderQty  *decimal.Decimal `json:"orderQty"`
	CumQty    *decimal.Decimal `json:"cumQty"`
	LeavesQty *decimal.Decimal `json:"leavesQty"`
}

type instrumentUpdate struct {
	Symbol   string           `json:"symbol"`
	BidPrice *decimal.Decimal `json:"bidPrice"`
	AskPrice *decimal.Decimal `json:"askPrice"`
}

func parseContract(src instrumentResponse) (core.Contract, error) {
	if src.Symbol == "" {
		return core.Contract{}, fmt.Errorf("%w: instrument missing symbol", core.ErrMalformedResponse)
	}
	if src.LotSize == nil || src.LotSize.Sign() <= 0 {
		return core.Contract{}, fmt.Errorf("%w: instrument %s missing lotSize", core.ErrMalformedResponse, src.Symbol)
	}
	if src.TickSize == nil || src.TickSize.Sign() <= 0 {
		return core.Contract{}, fmt.Errorf("%w: instrument %s missing tickSize", core.ErrMalformedResponse, src.Symbol)
	}
	return core.Contract{
		Symbol:   src.Symbol,
		LotSize:  *src.LotSize,
		TickSize: *src.TickSize,
		Exchange: Name,
	}, nil
}

func parseBalance(src marginResponse) (core.Balance, error) {
	if src.Currency == "" {
		return core.Balance{}, fmt.Errorf("%w: margin record missing currency", core.ErrMalformedResponse)
	}
	if src.WalletBalance == nil {
		return core.Balance{}, fmt.Errorf("%w: margin record %s missing walletBalance", core.ErrMalformedResponse, src.Currency)
	}
	bal := core.Balance{
		Currency: src.Currency,
		Wallet:   *src.WalletBalance,
		Exchange: Name,
	}
	if src.MarginBalance != nil {
		bal.Margin = *src.MarginBalance
	} else {
		bal.Margin = bal.Wallet
	}
	return bal, nil
}

func parseCandle(src tradeBinResponse) (core.Candle, error) {
	openTime, err := time.Parse(time.RFC3339, src.Timestamp)
	if err != nil {
		return core.Candle{}, fmt.Errorf("%w: trade bin timestamp %q: %v", core.ErrMalformedResponse, src.Timestamp, err)
	}
	if src.Open == nil || src.High == nil || src.Low == nil || src.Close == nil {
		return core.Candle{}, fmt.Errorf("%w: trade bin %s missing ohlc", core.ErrMalformedResponse, src.Symbol)
	}
	candle := core.Candle{
		OpenTime: openTime,
		Open:     *src.Open,
		High:     *src.High,
		Low:      *src.Low,
		Close:    *src.Close,
		Exchange: Name,
	}
	if src.Volume != nil {
		candle.Volume = *src.Volume
	}
	return candle, nil
}

func parseOrder(src orderResponse) (core.Order, error) {
	if src.OrderID == "" {
		return core.Order{}, fmt.Errorf("%w: order missing orderID", core.ErrMalformedResponse)
	}
	if src.Symbol == "" {
		return core.Order{}, fmt.Errorf("%w: order %s missing symbol", core.ErrMalformedResponse, src.OrderID)
	}
	if src.OrdStatus == "" {
		return core.Order{}, fmt.Errorf("%w: order %s missing ordStatus", core.ErrMalformedResponse, src.OrderID)
	}
	order := core.Order{
		ID:       src.OrderID,
		Symbol:   src.Symbol,
		Side:     core.Side(src.Side),
		Type:     core.OrderType(src.OrdType),
		Status:   core.OrderStatus(src.OrdStatus),
		Exchange: Name,
	}
	if src.Price != nil {
		order.Price = *src.Price
	}
	if src.OrderQty != nil {
		order.Qty = *src.OrderQty
	}
	if src.CumQty != nil {
		order.ExecutedQty = *src.CumQty
	}
	if src.LeavesQty != nil {
		order.LeavesQty = *src.LeavesQty
	}
	return order, nil
}
