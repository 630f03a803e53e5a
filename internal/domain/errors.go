package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrMissingBaseState = errors.New("no base state for channel")
	ErrNoSnapshot       = errors.New("no orderbook snapshot for market")
	ErrUnknownSide      = errors.New("unknown orderbook side")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrLockHeld         = errors.New("lock already held")
)
