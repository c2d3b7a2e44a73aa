package domain

import "errors"

var (
	ErrAlreadyOpen            = errors.New("position is already open")
	ErrNotOpenYet             = errors.New("position is not open yet")
	ErrAlreadyClosed          = errors.New("position is already closed")
	ErrInvalidTransition      = errors.New("invalid position transition")
	ErrNoActivePosition       = errors.New("no active position")
	ErrNoCandle               = errors.New("no candle available")
	ErrInvalidEnumValue       = errors.New("invalid enum value")
	ErrEmptyCandleBatch       = errors.New("empty candle batch")
	ErrStrategyNotImplemented = errors.New("strategy not implemented")
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
)
