package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrNoFills       = errors.New("no fills to aggregate")
	ErrInvalidSide   = errors.New("invalid side")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrQueueClosed   = errors.New("queue closed")
	ErrLockHeld      = errors.New("lock already held")
)
