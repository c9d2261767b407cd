package domain

import "errors"

var (
	ErrInvalidFactor      = errors.New("conversion factor must be positive")
	ErrNotFound           = errors.New("not found")
	ErrNotLinked          = errors.New("no backorder linked to order cycle")
	ErrBackorderClosed    = errors.New("backorder is no longer open")
	ErrVersionConflict    = errors.New("backorder version conflict")
	ErrFinalizeInProgress = errors.New("backorder finalization already started or done")
	ErrRemoteUnavailable  = errors.New("remote catalog unavailable")
	ErrLinkMismatch       = errors.New("order cycle is linked to another remote order")
)
