package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tenantguard/internal/auditor"
	"tenantguard/internal/auditor/review"
	"tenantguard/internal/sentinel"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/httputil"
	adminmw "tenantguard/pkg/platform/middleware/admin"
	"tenantguard/pkg/platform/validation"
	"tenantguard/pkg/requestcontext"
)

// Auditor is the consistency auditor as seen by operators.
type Auditor interface {
	Scan(ctx context.Context, scope auditor.Scope) ([]auditor.Anomaly, error)
	RepairByID(ctx context.Context, scope auditor.Scope, anomalyID string, strategy auditor.Strategy, opts auditor.RepairOptions) (*auditor.Outcome, error)
}

type Handler struct {
	auditor Auditor
	review  review.Queue
	logger  *slog.Logger
}

func New(a Auditor, queue review.Queue, logger *slog.Logger) *Handler {
	return &Handler{auditor: a, review: queue, logger: logger}
}

// Register mounts the audit routes. Callers wrap r with the admin token middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/audit/scans", h.HandleScan)
	r.Post("/admin/audit/repairs", h.HandleRepair)
	r.Get("/admin/audit/review", h.HandleListReview)
	r.Post("/admin/audit/review/{id}/resolve", h.HandleResolveReview)
}

func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ScanRequest](w, r, h.logger)
	if !ok {
		return
	}

	scope := req.Scope()
	anomalies, err := h.auditor.Scan(ctx, scope)
	if err != nil {
		h.logger.ErrorContext(ctx, "consistency scan failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	if anomalies == nil {
		anomalies = []auditor.Anomaly{}
	}
	httputil.WriteJSON(w, http.StatusOK, &ScanResponse{
		Summary:   auditor.Summarize(scope, anomalies),
		Anomalies: anomalies,
	})
}

// HandleRepair applies one strategy to one anomaly from a fresh scan.
func (h *Handler) HandleRepair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RepairRequest](w, r, h.logger)
	if !ok {
		return
	}

	opts := req.ToOptions()
	if opts.Actor == "" {
		opts.Actor = adminmw.GetAdminActorID(ctx)
	}
	out, err := h.auditor.RepairByID(ctx, req.Scope(), req.AnomalyID, req.strategy, opts)
	if err != nil {
		if dErrors.IsRetryable(err) {
			h.logger.ErrorContext(ctx, "repair failed", "error", err, "request_id", requestID)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleListReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := review.Status(r.URL.Query().Get("status"))
	if status != "" && status != review.StatusOpen && status != review.StatusResolved {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "status must be open or resolved"))
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a number"))
			return
		}
		if err := validation.CheckRange("limit", n, 1, validation.MaxQueryLimit); err != nil {
			httputil.WriteError(w, err)
			return
		}
		limit = n
	}

	items, err := h.review.List(ctx, status, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "list review items failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list review items"))
		return
	}
	if items == nil {
		items = []*review.Item{}
	}
	httputil.WriteJSON(w, http.StatusOK, &ReviewListResponse{Items: items})
}

func (h *Handler) HandleResolveReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid review item id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger)
	if !ok {
		return
	}

	item, err := h.review.Resolve(ctx, itemID, req.ResolvedBy, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "review item not found"))
		case errors.Is(err, sentinel.ErrInvalidState):
			httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "review item already resolved"))
		default:
			h.logger.ErrorContext(ctx, "resolve review item failed", "error", err, "request_id", requestID)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeStorage, "failed to resolve review item"))
		}
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}
