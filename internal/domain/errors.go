package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrNoLiquidity  = errors.New("no liquidity on opposing side")
	ErrNoSnapshot   = errors.New("no market data available")
	ErrParse        = errors.New("malformed venue frame")
	ErrClosed       = errors.New("already closed")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
