package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/requestcontext"
)

// Shared so struct metadata is parsed once per request type.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Request hooks, run by PrepareRequest in this order.
type (
	Sanitizable  interface{ Sanitize() }
	Normalizable interface{ Normalize() }
	Validatable  interface{ Validate() error }
)

// DecodeAndPrepare reads a JSON body into T and runs PrepareRequest on it.
// On failure it has already written the error response and returns false.
//
//	req, ok := httputil.DecodeAndPrepare[AssignTenantRequest](w, r, h.logger)
//	if !ok {
//		return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	ctx := r.Context()
	req := new(T)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		WriteError(w, decodeError(err))
		return nil, false
	}

	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		var domainErr *dErrors.Error
		if !errors.As(err, &domainErr) {
			err = dErrors.New(dErrors.CodeValidation, err.Error())
		}
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dErrors.New(dErrors.CodePayloadTooLarge, "request body too large")
	}
	return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
}

// PrepareRequest runs Sanitize, Normalize, the `validate` struct tags, and
// finally Validate for rules tags cannot express. Non-struct values skip
// the tag check.
func PrepareRequest(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}

	err := structValidator.Struct(req)
	var invalid *validator.InvalidValidationError
	var fieldErrs validator.ValidationErrors
	switch {
	case err == nil, errors.As(err, &invalid):
	case errors.As(err, &fieldErrs) && len(fieldErrs) > 0:
		return dErrors.New(dErrors.CodeValidation, fieldErrs[0].Field()+" failed "+fieldErrs[0].Tag()+" validation")
	default:
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}

	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
