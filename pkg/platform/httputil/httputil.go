package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "tenantguard/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": DomainCodeToHTTPCode(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
// Tenant denials are 403 so callers can tell "denied" from "nothing there".
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeQuotaExceeded:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeTenantNotAssigned, dErrors.CodeTenantInactive,
		dErrors.CodeTenantMismatch, dErrors.CodeNullTenant:
		return http.StatusForbidden
	case dErrors.CodeTimeout, dErrors.CodeResolutionTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeStorage:
		return http.StatusServiceUnavailable
	case dErrors.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the "error" field of JSON responses.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeUnauthorized, dErrors.CodeForbidden,
		dErrors.CodeTenantNotAssigned, dErrors.CodeTenantInactive, dErrors.CodeTenantMismatch,
		dErrors.CodeNullTenant, dErrors.CodeResolutionTimeout, dErrors.CodeQuotaExceeded,
		dErrors.CodeStorage, dErrors.CodeTimeout, dErrors.CodePayloadTooLarge:
		return string(code)
	default:
		return "internal_error"
	}
}
