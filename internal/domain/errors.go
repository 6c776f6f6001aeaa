package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPosition = errors.New("invalid position parameters")
	ErrNoValidSamples  = errors.New("no valid oracle samples")
	ErrStaleAggregate  = errors.New("aggregate failed sanity validation")
	ErrSettlement      = errors.New("settlement call failed")
	ErrNotMonitoring   = errors.New("scanner is not monitoring")
)
