package game

import (
	"errors"

	"blockwars.gg/internal/protocol"
)

// Every rule violation is reported with one of these; callers match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyClaimed    = errors.New("already claimed")
	ErrCollectionFull    = errors.New("collection full")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotStealable      = errors.New("not stealable")
	ErrSelfTarget        = errors.New("cannot target own block")
	ErrBadRequest        = errors.New("bad request")
)

// Code returns the wire error code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, ErrAlreadyClaimed):
		return protocol.ErrAlreadyClaimed
	case errors.Is(err, ErrCollectionFull):
		return protocol.ErrCollectionFull
	case errors.Is(err, ErrInsufficientFunds):
		return protocol.ErrInsufficientFunds
	case errors.Is(err, ErrNotStealable):
		return protocol.ErrNotStealable
	case errors.Is(err, ErrSelfTarget):
		return protocol.ErrSelfTarget
	case errors.Is(err, ErrBadRequest):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}
