package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenantguard/internal/gateway"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/httputil"
	"tenantguard/pkg/requestcontext"
)

// Gateway is the data path exposed over HTTP.
type Gateway interface {
	Execute(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	CreateWithDependents(ctx context.Context, parent gateway.Request, deps gateway.Dependents) (*gateway.CompositeResult, error)
}

type Handler struct {
	gateway Gateway
	logger  *slog.Logger
}

func New(gw Gateway, logger *slog.Logger) *Handler {
	return &Handler{gateway: gw, logger: logger}
}

// Register mounts the data routes. Callers wrap r with auth.RequireBearer.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/execute", h.HandleExecute)
	r.Post("/v1/execute/with-dependents", h.HandleCreateWithDependents)
}

func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[ExecuteRequest](w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.gateway.Execute(ctx, req.ToRequest(requestcontext.SessionToken(ctx)))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toExecuteResponse(res))
}

func (h *Handler) HandleCreateWithDependents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[CreateWithDependentsRequest](w, r, h.logger)
	if !ok {
		return
	}

	parent, deps := req.ToRequest(requestcontext.SessionToken(ctx))
	out, err := h.gateway.CreateWithDependents(ctx, parent, deps)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, &CompositeResponse{Parent: out.Parent, Children: out.Children})
}

// writeError adds the denial reason and stage to 401/403/504 bodies.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	requestID := requestcontext.RequestID(ctx)
	denied, ok := gateway.AsDenied(err)
	if !ok {
		if dErrors.IsRetryable(err) {
			h.logger.ErrorContext(ctx, "gateway call failed", "error", err, "request_id", requestID)
		}
		httputil.WriteError(w, err)
		return
	}

	code := denied.Decision.Reason.Code()
	h.logger.InfoContext(ctx, "gateway call denied",
		"reason", denied.Decision.Reason,
		"stage", denied.Stage,
		"request_id", requestID,
	)
	httputil.WriteJSON(w, httputil.DomainCodeToHTTPStatus(code), &DeniedResponse{
		Error:            httputil.DomainCodeToHTTPCode(code),
		ErrorDescription: denied.Decision.Err().Error(),
		Reason:           string(denied.Decision.Reason),
		Stage:            denied.Stage.String(),
	})
}
