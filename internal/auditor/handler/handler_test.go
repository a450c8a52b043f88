package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tenantguard/internal/auditor"
	"tenantguard/internal/auditor/review"
	"tenantguard/internal/directory/models"
	"tenantguard/internal/directory/service"
	tenantstore "tenantguard/internal/directory/store/tenant"
	userstore "tenantguard/internal/directory/store/user"
	"tenantguard/internal/schema"
	"tenantguard/internal/storage"
	"tenantguard/internal/storage/memory"
	adminmw "tenantguard/pkg/platform/middleware/admin"
)

const adminToken = "secret-token"

// HandlerSuite drives the audit admin routes over HTTP against a real
// auditor and in-memory data.
//
// Justification: operators run scans and repairs through these routes; a
// repair must name its strategy and a bad request must never reach storage.
type HandlerSuite struct {
	suite.Suite
	ctx    context.Context
	engine *memory.Engine
	queue  *review.InMemory
	router http.Handler
	school *models.Tenant
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tenants := tenantstore.NewInMemory()
	directory := service.New(tenants, userstore.NewInMemory(tenants), service.WithLogger(logger))
	s.engine = memory.New()
	s.queue = review.NewInMemory()
	a := auditor.New(s.engine, schema.Default(), nil, directory, s.queue, auditor.WithLogger(logger))

	var err error
	s.school, err = directory.CreateTenant(s.ctx, service.CreateTenantCommand{Name: "Shelbyville High"})
	s.Require().NoError(err)

	r := chi.NewRouter()
	r.Use(adminmw.RequireAdminToken(adminToken, logger))
	New(a, s.queue, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Admin-Token", adminToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v))
}

func (s *HandlerSuite) seedNullClass() string {
	row, err := s.engine.Insert(s.ctx, "classes", storage.Row{schema.ColumnTenantID: nil})
	s.Require().NoError(err)
	return row.ID()
}

func (s *HandlerSuite) scan(body string) ScanResponse {
	rec := s.do(http.MethodPost, "/admin/audit/scans", body)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var res ScanResponse
	s.decode(rec, &res)
	return res
}

func (s *HandlerSuite) TestAdminTokenRequired() {
	req := httptest.NewRequest(http.MethodPost, "/admin/audit/scans", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestScan() {
	s.Run("empty data returns an empty list", func() {
		res := s.scan(`{}`)
		s.Equal(0, res.Summary.Total)
		s.NotNil(res.Anomalies)
	})

	s.Run("all-tenant scan reports null tenant rows", func() {
		rowID := s.seedNullClass()
		res := s.scan(`{}`)
		s.Require().Len(res.Anomalies, 1)
		s.Equal(rowID, res.Anomalies[0].RowID)
		s.Equal("all", res.Summary.Scope)
	})

	s.Run("tenant scope is honoured", func() {
		res := s.scan(fmt.Sprintf(`{"tenant_id":%q}`, s.school.ID))
		s.Empty(res.Anomalies)
		s.Equal(s.school.ID.String(), res.Summary.Scope)
	})

	s.Run("malformed tenant id is rejected", func() {
		rec := s.do(http.MethodPost, "/admin/audit/scans", `{"tenant_id":"school-a"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestRepair() {
	rowID := s.seedNullClass()
	anomalyID := s.scan(`{}`).Anomalies[0].ID

	s.Run("unknown strategy is rejected", func() {
		rec := s.do(http.MethodPost, "/admin/audit/repairs",
			fmt.Sprintf(`{"anomaly_id":%q,"strategy":"guess","actor":"ops"}`, anomalyID))
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("assign without target is rejected", func() {
		rec := s.do(http.MethodPost, "/admin/audit/repairs",
			fmt.Sprintf(`{"anomaly_id":%q,"strategy":"assign_default_tenant","actor":"ops"}`, anomalyID))
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown anomaly is not found", func() {
		rec := s.do(http.MethodPost, "/admin/audit/repairs",
			`{"anomaly_id":"000000000000000000000000","strategy":"flag_for_manual_review","actor":"ops"}`)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("dry run changes nothing", func() {
		rec := s.do(http.MethodPost, "/admin/audit/repairs", fmt.Sprintf(
			`{"anomaly_id":%q,"strategy":"assign_default_tenant","target_tenant_id":%q,"dry_run":true,"actor":"ops"}`,
			anomalyID, s.school.ID))
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		var out auditor.Outcome
		s.decode(rec, &out)
		s.True(out.DryRun)
		s.False(out.Applied)
		s.Len(s.scan(`{}`).Anomalies, 1)
	})

	s.Run("assign applies the explicit tenant", func() {
		rec := s.do(http.MethodPost, "/admin/audit/repairs", fmt.Sprintf(
			`{"anomaly_id":%q,"strategy":"assign_default_tenant","target_tenant_id":%q,"actor":"ops"}`,
			anomalyID, s.school.ID))
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		var out auditor.Outcome
		s.decode(rec, &out)
		s.True(out.Applied)

		rows, err := s.engine.Query(s.ctx, storage.Query{Table: "classes", Filter: storage.Filter{storage.Eq(schema.ColumnID, rowID)}})
		s.Require().NoError(err)
		s.Equal(s.school.ID.String(), rows[0][schema.ColumnTenantID])
	})
}

func (s *HandlerSuite) TestReviewQueue() {
	s.seedNullClass()
	anomalyID := s.scan(`{}`).Anomalies[0].ID

	req := httptest.NewRequest(http.MethodPost, "/admin/audit/repairs", strings.NewReader(
		fmt.Sprintf(`{"anomaly_id":%q,"strategy":"flag_for_manual_review","note":"unknown school"}`, anomalyID)))
	req.Header.Set("X-Admin-Token", adminToken)
	req.Header.Set("X-Admin-Actor-ID", "ops@district.test")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var out auditor.Outcome
	s.decode(rec, &out)
	s.Require().NotEmpty(out.ReviewItemID)

	rec = s.do(http.MethodGet, "/admin/audit/review?status=open", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var list ReviewListResponse
	s.decode(rec, &list)
	s.Require().Len(list.Items, 1)
	s.Equal(anomalyID, list.Items[0].AnomalyID)
	s.Equal("unknown school", list.Items[0].Note)
	s.Equal("ops@district.test", list.Items[0].FlaggedBy)

	path := "/admin/audit/review/" + out.ReviewItemID + "/resolve"
	rec = s.do(http.MethodPost, path, `{"resolved_by":"ops"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, path, `{"resolved_by":"ops"}`)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/admin/audit/review/"+uuid.NewString()+"/resolve", `{"resolved_by":"ops"}`)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/admin/audit/review?status=maybe", "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/admin/audit/review?limit=0", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}
