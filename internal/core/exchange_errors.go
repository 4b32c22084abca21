package core

import "errors"

var (
	// ErrMalformedResponse indicates the exchange response did not match the
	// expected wire schema. Distinct from connectivity and API failures:
	// silently mis-decoding money-relevant fields is not acceptable.
	ErrMalformedResponse = errors.New("malformed exchange response")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrder indicates an order request that cannot be submitted.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrUnsupportedMethod indicates an HTTP method outside GET/POST/DELETE.
	ErrUnsupportedMethod = errors.New("unsupported http method")
	// ErrUnsupportedTimeframe indicates a candle timeframe the exchange has
	// no bucket for.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)
