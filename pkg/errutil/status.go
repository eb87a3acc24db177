package errutil

import (
	"errors"
	"net/http"
)

type CoreStatus string

const (
	StatusUnknown             CoreStatus = "UNKNOWN"
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusInsufficientBalance CoreStatus = "INSUFFICIENT_BALANCE"
	StatusUnauthorized        CoreStatus = "UNAUTHORIZED"
	StatusForbidden           CoreStatus = "FORBIDDEN"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusConflict            CoreStatus = "CONFLICT"
	StatusInternal            CoreStatus = "INTERNAL"
	StatusBadGateway          CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable  CoreStatus = "SERVICE_UNAVAILABLE"
	StatusTimeout             CoreStatus = "TIMEOUT"
	StatusGatewayTimeout      CoreStatus = "GATEWAY_TIMEOUT"
)

// Parent returns the broader status a specialised status belongs to.
// Statuses without a parent return themselves.
func (s CoreStatus) Parent() CoreStatus {
	switch s {
	case StatusInsufficientBalance:
		return StatusBadRequest
	default:
		return s
	}
}

func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusInsufficientBalance:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusBadGateway:
		return http.StatusBadGateway
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	case StatusTimeout, StatusGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf extracts the CoreStatus carried by err, or StatusUnknown.
func StatusOf(err error) CoreStatus {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return StatusUnknown
}

// Is reports whether err carries status, either directly or through its parent.
func Is(err error, status CoreStatus) bool {
	code := StatusOf(err)
	if code == StatusUnknown {
		return false
	}
	return code == status || code.Parent() == status
}
