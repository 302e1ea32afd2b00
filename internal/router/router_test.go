package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"docdash/internal/domain"
	"docdash/internal/handler"
	"docdash/internal/metrics"
	"docdash/internal/router"
	"docdash/internal/service"
	"docdash/mocks"
)

func newEngine(svc *mocks.MockDashboardService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return router.Setup(
		zap.NewNop(),
		[]string{"http://localhost:3000"},
		handler.NewSessionHandler(svc, 0),
		handler.NewHealthHandler(nil),
		metrics.NewPipelineMetrics().Handler(),
	)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := newEngine(new(mocks.MockDashboardService))

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, http.NoBody)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_ExportRoutes(t *testing.T) {
	svc := new(mocks.MockDashboardService)
	r := newEngine(svc)
	id := uuid.New()

	svc.On("Export", mock.Anything, id, domain.ExportFormatCSV).
		Return(&service.ExportFile{Filename: "a.csv", ContentType: service.ContentTypeCSV, Data: []byte("x")}, nil)
	svc.On("Export", mock.Anything, id, domain.ExportFormatXLSX).
		Return(&service.ExportFile{Filename: "a.xlsx", ContentType: service.ContentTypeXLSX, Data: []byte("y")}, nil)

	for _, ext := range []string{"csv", "xlsx"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String()+"/export."+ext, http.NoBody)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, ext)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "a."+ext)
	}
}

func TestRouter_SessionRoutes(t *testing.T) {
	svc := new(mocks.MockDashboardService)
	r := newEngine(svc)
	id := uuid.New()

	svc.On("CreateSession", mock.Anything).Return(&domain.SessionSummary{ID: id}, nil)
	svc.On("Poll", mock.Anything, id).Return(&domain.PollOutcome{}, nil)
	svc.On("RetryAll", mock.Anything, id).Return(&domain.PollOutcome{}, nil)
	svc.On("GetSession", mock.Anything, id).Return(&domain.SessionSummary{ID: id}, nil)
	svc.On("DeleteSession", mock.Anything, id).Return(nil)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/v1/sessions", http.StatusCreated},
		{http.MethodGet, "/api/v1/sessions/" + id.String(), http.StatusOK},
		{http.MethodPost, "/api/v1/sessions/" + id.String() + "/poll", http.StatusOK},
		{http.MethodPost, "/api/v1/sessions/" + id.String() + "/retry", http.StatusOK},
		{http.MethodDelete, "/api/v1/sessions/" + id.String(), http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(tc.method, tc.path, http.NoBody)
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
	svc.AssertExpectations(t)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newEngine(new(mocks.MockDashboardService))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/api/v1/sessions", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
