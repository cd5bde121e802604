package protocol

import "net/http"

const (
	// Transport validation.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrRateLimited = "E_RATE_LIMITED"

	// Game rules.
	ErrNotFound          = "E_NOT_FOUND"
	ErrAlreadyClaimed    = "E_ALREADY_CLAIMED"
	ErrCollectionFull    = "E_COLLECTION_FULL"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrNotStealable      = "E_NOT_STEALABLE"
	ErrSelfTarget        = "E_SELF_TARGET"

	ErrInternal = "E_INTERNAL"
)

var codeStatus = map[string]int{
	ErrBadRequest:        http.StatusBadRequest,
	ErrRateLimited:       http.StatusTooManyRequests,
	ErrNotFound:          http.StatusNotFound,
	ErrAlreadyClaimed:    http.StatusConflict,
	ErrCollectionFull:    http.StatusConflict,
	ErrInsufficientFunds: http.StatusPaymentRequired,
	ErrNotStealable:      http.StatusForbidden,
	ErrSelfTarget:        http.StatusUnprocessableEntity,
	ErrInternal:          http.StatusInternalServerError,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := codeStatus[code]
	return ok
}

// HTTPStatus maps an error code to its response status. Unknown codes are 500.
func HTTPStatus(code string) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
