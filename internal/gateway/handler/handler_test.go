package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tenantguard/internal/gateway"
	"tenantguard/internal/gateway/handler/mocks"
	"tenantguard/internal/ownership"
	"tenantguard/internal/storage"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	authmw "tenantguard/pkg/platform/middleware/auth"
)

// HandlerSuite covers the data routes over HTTP.
//
// Justification: clients must be able to tell a denial (403 with a reason)
// from an empty result and from a retryable failure.
type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	gateway *mocks.MockGateway
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.gateway = mocks.NewMockGateway(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	r.Use(authmw.RequireBearer(logger))
	New(s.gateway, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestMissingTokenRejected() {
	rec := s.do("/v1/execute", `{"table":"students","operation":"read"}`, "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestExecutePassesTokenAndFilter() {
	tenantID := id.TenantID(uuid.New())
	s.gateway.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, req gateway.Request) (*gateway.Result, error) {
			s.Equal("tok", req.SessionToken)
			s.Equal(ownership.OpRead, req.Operation)
			s.Require().Len(req.Filter, 1)
			s.Equal(storage.OpEq, req.Filter[0].Op)
			s.Equal(10, req.Limit)
			return &gateway.Result{
				Rows:     []storage.Row{{"id": "r1"}},
				TenantID: tenantID,
				Stages:   []gateway.Stage{gateway.StageStart, gateway.StageExecuted},
			}, nil
		})

	rec := s.do("/v1/execute", `{"table":"students","operation":"READ","filter":[{"column":"class_id","op":"eq","value":"c1"}],"limit":10}`, "tok")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body ExecuteResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Len(body.Rows, 1)
	s.Equal(tenantID.String(), body.TenantID)
	s.Equal([]string{"start", "executed"}, body.Stages)
}

func (s *HandlerSuite) TestDenialCarriesReasonAndStage() {
	s.gateway.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, &gateway.DeniedError{
		Decision: ownership.Decision{Reason: ownership.ReasonTenantMismatch},
		Stage:    gateway.StageTenantResolved,
	})

	rec := s.do("/v1/execute", `{"table":"students","operation":"read"}`, "tok")
	s.Equal(http.StatusForbidden, rec.Code)

	var body DeniedResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("tenant_mismatch", body.Error)
	s.Equal("tenant_mismatch", body.Reason)
	s.Equal("tenant_resolved", body.Stage)
}

func (s *HandlerSuite) TestStatusMapping() {
	cases := []struct {
		err    error
		status int
	}{
		{&gateway.DeniedError{Decision: ownership.Decision{Reason: ownership.ReasonUnauthenticated}, Stage: gateway.StageStart}, http.StatusUnauthorized},
		{&gateway.DeniedError{Decision: ownership.Decision{Reason: ownership.ReasonResolutionTimeout}, Stage: gateway.StageStart}, http.StatusGatewayTimeout},
		{dErrors.New(dErrors.CodeStorage, "db down"), http.StatusServiceUnavailable},
		{dErrors.New(dErrors.CodeQuotaExceeded, "full"), http.StatusConflict},
		{dErrors.New(dErrors.CodeValidation, "bad"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		s.gateway.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil, tc.err)
		rec := s.do("/v1/execute", `{"table":"students","operation":"read"}`, "tok")
		s.Equal(tc.status, rec.Code, tc.err.Error())
	}
}

func (s *HandlerSuite) TestInvalidBodyRejectedBeforeGateway() {
	rec := s.do("/v1/execute", `{"table":"students","operation":"truncate"}`, "tok")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do("/v1/execute", `{"table":"students","operation":"delete","delete_policy":"sometimes"}`, "tok")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCreateWithDependents() {
	s.gateway.EXPECT().CreateWithDependents(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, parent gateway.Request, deps gateway.Dependents) (*gateway.CompositeResult, error) {
			s.Equal("notifications", parent.Table)
			s.Equal(ownership.OpCreate, parent.Operation)
			s.Equal("notification_id", deps.LinkColumn)
			s.Len(deps.Payloads, 2)
			return &gateway.CompositeResult{Parent: storage.Row{"id": "n1"}, Children: []storage.Row{{"id": "r1"}, {"id": "r2"}}}, nil
		})

	rec := s.do("/v1/execute/with-dependents", `{
		"table":"notifications","payload":{"title":"Trip"},
		"dependents":{"table":"notification_recipients","link_column":"notification_id","payloads":[{"user_ref":"a"},{"user_ref":"b"}]}
	}`, "tok")
	s.Require().Equal(http.StatusCreated, rec.Code)

	var body CompositeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Len(body.Children, 2)
}
