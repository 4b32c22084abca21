package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

type TimeInForce string

type OrderStatus string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

const (
	Limit  OrderType = "Limit"
	Market OrderType = "Market"
)

const (
	GoodTillCancel    TimeInForce = "GoodTillCancel"
	ImmediateOrCancel TimeInForce = "ImmediateOrCancel"
	FillOrKill        TimeInForce = "FillOrKill"
)

const (
	OrderNew             OrderStatus = "New"
	OrderPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderFilled          OrderStatus = "Filled"
	OrderCanceled        OrderStatus = "Canceled"
	OrderRejected        OrderStatus = "Rejected"
)

// Contract describes a tradable instrument. Immutable once decoded.
type Contract struct {
	Symbol   string
	LotSize  decimal.Decimal
	TickSize decimal.Decimal
	Exchange string
}

// Balance is one currency's margin account state. Replaced wholesale on refresh.
type Balance struct {
	Currency string
	Wallet   decimal.Decimal
	Margin   decimal.Decimal
	Exchange string
}

// Candle is one OHLCV bar from a historical query.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	Exchange string
}

// Order is the exchange's view of an order after a place, cancel, or query.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Type        OrderType
	Price       decimal.Decimal
	Qty         decimal.Decimal
	ExecutedQty decimal.Decimal
	LeavesQty   decimal.Decimal
	Status      OrderStatus
	Exchange    string
}

// OrderRequest is the caller's intent before lot/tick snapping.
type OrderRequest struct {
	Contract    Contract
	Side        Side
	Type        OrderType
	Quantity    decimal.Decimal
	Price       *decimal.Decimal
	TimeInForce TimeInForce
}

// Quote holds the last observed top of book for a symbol. Either side may be
// unset until the feed has seen it at least once.
type Quote struct {
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	HasBid bool
	HasAsk bool
}

// ParseSide maps a caller-supplied side (any casing) to the exchange casing.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return "", fmt.Errorf("invalid side %q", v)
}

// ParseOrderType maps a caller-supplied order type to the exchange casing.
func ParseOrderType(v string) (OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "limit":
		return Limit, nil
	case "market":
		return Market, nil
	}
	return "", fmt.Errorf("invalid order type %q", v)
}

// ParseTimeInForce maps a caller-supplied time in force to the exchange
// casing. An empty value is valid and means the exchange default.
func ParseTimeInForce(v string) (TimeInForce, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return "", nil
	case "goodtillcancel", "gtc":
		return GoodTillCancel, nil
	case "immediateorcancel", "ioc":
		return ImmediateOrCancel, nil
	case "fillorkill", "fok":
		return FillOrKill, nil
	}
	return "", fmt.Errorf("invalid time in force %q", v)
}
