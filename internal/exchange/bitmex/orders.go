package bitmex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"bitmex-trader/internal/core"
)

// PlaceOrder snaps the request to the contract's lot and tick sizes and
// submits it. A transport failure is ambiguous: the order may still have
// reached the exchange, so callers must reconcile via OrderStatus rather than
// resubmit blindly.
func (c *Client) PlaceOrder(ctx context.Context, req core.OrderRequest) (core.Order, error) {
	side, err := core.ParseSide(string(req.Side))
	if err != nil {
		return core.Order{}, fmt.Errorf("%w: %v", core.ErrInvalidOrder, err)
	}
	ordType, err := core.ParseOrderType(string(req.Type))
	if err != nil {
		return core.Order{}, fmt.Errorf("%w: %v", core.ErrInvalidOrder, err)
	}
	tif, err := core.ParseTimeInForce(string(req.TimeInForce))
	if err != nil {
		return core.Order{}, fmt.Errorf("%w: %v", core.ErrInvalidOrder, err)
	}
	req, err = core.NormalizeRequest(req)
	if err != nil {
		return core.Order{}, err
	}

	params := url.Values{}
	params.Set("symbol", req.Contract.Symbol)
	params.Set("side", string(side))
	params.Set("orderQty", req.Quantity.String())
	params.Set("ordType", string(ordType))
	if req.Price != nil {
		params.Set("price", req.Price.String())
	}
	if tif != "" {
		params.Set("timeInForce", string(tif))
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v1/order", params)
	if err != nil {
		return core.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, fmt.Errorf("%w: order: %v", core.ErrMalformedResponse, err)
	}
	order, err := parseOrder(resp)
	if err != nil {
		return core.Order{}, err
	}
	c.log.WithField("order_id", order.ID).
		WithField("symbol", order.Symbol).
		WithField("status", order.Status).
		Info("order placed")
	return order, nil
}

// CancelOrder cancels by order id. The exchange replies with the list of
// affected orders; the first entry is taken as the representative result.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (core.Order, error) {
	params := url.Values{}
	params.Set("orderID", orderID)
	body, err := c.doRequest(ctx, http.MethodDelete, "/api/v1/order", params)
	if err != nil {
		return core.Order{}, err
	}
	var rows []orderResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return core.Order{}, fmt.Errorf("%w: cancel response: %v", core.ErrMalformedResponse, err)
	}
	if len(rows) == 0 {
		return core.Order{}, fmt.Errorf("%w: cancel response empty", core.ErrMalformedResponse)
	}
	if len(rows) > 1 {
		c.log.WithField("count", len(rows)).Debug("cancel affected multiple orders, reporting the first")
	}
	return parseOrder(rows[0])
}

// OrderStatus lists the contract's most recent orders and scans for the given
// id. The exchange bounds the page size, so the linear scan is acceptable.
func (c *Client) OrderStatus(ctx context.Context, contract core.Contract, orderID string) (core.Order, error) {
	params := url.Values{}
	params.Set("symbol", contract.Symbol)
	params.Set("reverse", "true")
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/order", params)
	if err != nil {
		return core.Order{}, err
	}
	var rows []orderResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return core.Order{}, fmt.Errorf("%w: order list: %v", core.ErrMalformedResponse, err)
	}
	for _, row := range rows {
		if row.OrderID == orderID {
			return parseOrder(row)
		}
	}
	return core.Order{}, fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
}
