package api

import (
	"errors"
	"net/http"

	"github.com/ruteri/workstation-provisioning/interfaces"
)

// Registry service routes. {domain} is the configuration slug, {sequence}
// the decimal sequence number.
const (
	ReservationsPath = "/api/v1/domains/{domain}/reservations"
	MarkJoinedPath   = "/api/v1/domains/{domain}/reservations/{sequence}/joined"
)

// ReserveNameRequest is the body of POST ReservationsPath. The response is
// an interfaces.Reservation.
type ReserveNameRequest struct {
	AssignedUser string `json:"assigned_user"`
}

// MarkJoinedRequest is the body of POST MarkJoinedPath. The response is 204
// No Content.
type MarkJoinedRequest struct {
	Notes string `json:"notes"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// ErrorCode carries the error class across the wire so clients can restore
// the sentinel error.
type ErrorCode string

const (
	CodeUnknownDomain    ErrorCode = "unknown_domain"
	CodeInvalidHostname  ErrorCode = "invalid_hostname"
	CodeInvalidRequest   ErrorCode = "invalid_request"
	CodeConflict         ErrorCode = "conflict"
	CodeNotFound         ErrorCode = "not_found"
	CodePermissionDenied ErrorCode = "permission_denied"
	CodeUnavailable      ErrorCode = "unavailable"
	CodeInternal         ErrorCode = "internal"
)

var codeErrors = []struct {
	code   ErrorCode
	status int
	err    error
}{
	{CodeUnknownDomain, http.StatusNotFound, interfaces.ErrUnknownDomain},
	{CodeInvalidHostname, http.StatusUnprocessableEntity, interfaces.ErrInvalidHostname},
	{CodeInvalidHostname, http.StatusUnprocessableEntity, interfaces.ErrInvalidTemplate},
	{CodeConflict, http.StatusConflict, interfaces.ErrReservationConflict},
	{CodeNotFound, http.StatusNotFound, interfaces.ErrRowNotFound},
	{CodePermissionDenied, http.StatusBadGateway, interfaces.ErrPermissionDenied},
	{CodeUnavailable, http.StatusServiceUnavailable, interfaces.ErrRegistryUnavailable},
}

// ErrorToCode maps a registry error onto its wire code and HTTP status.
func ErrorToCode(err error) (ErrorCode, int) {
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code, ce.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// CodeToError restores the sentinel error for a wire code. Unknown codes map
// to nil.
func CodeToError(code ErrorCode) error {
	for _, ce := range codeErrors {
		if ce.code == code {
			return ce.err
		}
	}
	return nil
}
