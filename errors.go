package main

import "errors"

var (
	ErrEmptySymbol      = errors.New("holding has no symbol")
	ErrNegativeQuantity = errors.New("holding quantity cannot be negative")
	// ErrZeroQuantity is returned when merging into an existing holding
	// would leave it with no shares to average the cost over.
	ErrZeroQuantity   = errors.New("merged holding quantity is zero")
	ErrTrialExhausted = errors.New("free trial messages exhausted")
	ErrChatNotFound   = errors.New("chat not found")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnknownSymbol  = errors.New("symbol is not in the stock list")
	ErrNoModel        = errors.New("chat model is not configured")
)
