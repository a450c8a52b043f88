package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenantguard/internal/directory/models"
	"tenantguard/internal/directory/service"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/httputil"
	"tenantguard/pkg/requestcontext"
)

// Service defines the directory operations exposed to administrators.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	CreateTenant(ctx context.Context, cmd service.CreateTenantCommand) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	TenantUsage(ctx context.Context, tenantID id.TenantID) (*models.TenantUsage, error)
	DeactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	RegisterUser(ctx context.Context, cmd service.RegisterUserCommand) (*models.User, error)
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	AssignTenant(ctx context.Context, userID id.UserID, tenantID id.TenantID) error
	DeactivateUser(ctx context.Context, userID id.UserID) (*models.User, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin routes. Callers wrap r with the admin token middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/tenants", h.HandleCreateTenant)
	r.Get("/admin/tenants", h.HandleListTenants)
	r.Get("/admin/tenants/{id}", h.HandleGetTenant)
	r.Post("/admin/tenants/{id}/deactivate", h.HandleDeactivateTenant)
	r.Post("/admin/tenants/{id}/reactivate", h.HandleReactivateTenant)
	r.Post("/admin/users", h.HandleRegisterUser)
	r.Get("/admin/users", h.HandleFindUser)
	r.Get("/admin/users/{id}", h.HandleGetUser)
	r.Put("/admin/users/{id}/tenant", h.HandleAssignTenant)
	r.Post("/admin/users/{id}/deactivate", h.HandleDeactivateUser)
}

// HandleCreateTenant creates a tenant.
func (h *Handler) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateTenantRequest](w, r, h.logger)
	if !ok {
		return
	}

	tenant, err := h.service.CreateTenant(ctx, req.ToCommand())
	if err != nil {
		h.logger.ErrorContext(ctx, "create tenant failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (h *Handler) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenants, err := h.service.ListTenants(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list tenants failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	res := &TenantListResponse{Tenants: make([]*TenantResponse, 0, len(tenants))}
	for _, t := range tenants {
		res.Tenants = append(res.Tenants, toTenantResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleGetTenant returns tenant metadata with user and quota-table counts.
func (h *Handler) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}

	usage, err := h.service.TenantUsage(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "get tenant failed", "error", err, "request_id", requestcontext.RequestID(ctx), "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTenantUsageResponse(usage))
}

// HandleDeactivateTenant deactivates a tenant. Its users are denied on every
// gateway call until it is reactivated.
func (h *Handler) HandleDeactivateTenant(w http.ResponseWriter, r *http.Request) {
	h.handleTenantTransition(w, r, "deactivate tenant failed", h.service.DeactivateTenant)
}

func (h *Handler) HandleReactivateTenant(w http.ResponseWriter, r *http.Request) {
	h.handleTenantTransition(w, r, "reactivate tenant failed", h.service.ReactivateTenant)
}

func (h *Handler) handleTenantTransition(w http.ResponseWriter, r *http.Request, failMsg string, fn func(context.Context, id.TenantID) (*models.Tenant, error)) {
	ctx := r.Context()
	tenantID, ok := h.tenantIDParam(w, r)
	if !ok {
		return
	}

	tenant, err := fn(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, failMsg, "error", err, "request_id", requestcontext.RequestID(ctx), "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *Handler) HandleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterUserRequest](w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.service.RegisterUser(ctx, req.ToCommand())
	if err != nil {
		h.logger.ErrorContext(ctx, "register user failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

// HandleFindUser looks a user up by the email query parameter.
func (h *Handler) HandleFindUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email query parameter is required"))
		return
	}

	user, err := h.service.FindUserByEmail(ctx, email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleAssignTenant moves a user into a school.
func (h *Handler) HandleAssignTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[AssignTenantRequest](w, r, h.logger)
	if !ok {
		return
	}
	tenantID, err := id.ParseTenantID(req.TenantID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return
	}

	if err := h.service.AssignTenant(ctx, userID, tenantID); err != nil {
		h.logger.ErrorContext(ctx, "assign tenant failed", "error", err, "request_id", requestID, "user_id", userID, "tenant_id", tenantID)
		httputil.WriteError(w, err)
		return
	}

	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) HandleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.service.DeactivateUser(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "deactivate user failed", "error", err, "request_id", requestcontext.RequestID(ctx), "user_id", userID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) tenantIDParam(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return id.TenantID{}, false
	}
	return tenantID, true
}

func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return id.UserID{}, false
	}
	return userID, true
}
