package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"docdash/internal/middleware"
)

func serveCORS(origins []string, method, origin string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(middleware.CORS(origins))
	r.Handle(method, "/api/v1/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/api/v1/sessions", http.NoBody)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_Origins(t *testing.T) {
	dashboard := "http://localhost:8501"
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"listed origin", []string{dashboard, "http://localhost:3000"}, http.MethodGet, dashboard, http.StatusOK, dashboard},
		{"second listed origin", []string{dashboard, "http://localhost:3000"}, http.MethodGet, "http://localhost:3000", http.StatusOK, "http://localhost:3000"},
		{"unlisted origin", []string{dashboard}, http.MethodGet, "https://evil.example", http.StatusOK, ""},
		{"no origin header", []string{dashboard}, http.MethodGet, "", http.StatusOK, ""},
		{"nothing allowed", nil, http.MethodGet, dashboard, http.StatusOK, ""},
		{"preflight listed", []string{dashboard}, http.MethodOptions, dashboard, http.StatusNoContent, dashboard},
		{"preflight unlisted", []string{dashboard}, http.MethodOptions, "https://evil.example", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveCORS(tt.origins, tt.method, tt.origin)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllow != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestCORS_PreflightAdvertisesDashboardMethods(t *testing.T) {
	w := serveCORS([]string{"http://localhost:8501"}, http.MethodOptions, "http://localhost:8501")

	methods := w.Header().Get("Access-Control-Allow-Methods")
	assert.Contains(t, methods, http.MethodPost)
	assert.Contains(t, methods, http.MethodDelete)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), middleware.RequestIDHeader)
}

func TestCORS_ExposesDownloadHeaders(t *testing.T) {
	w := serveCORS([]string{"http://localhost:8501"}, http.MethodGet, "http://localhost:8501")

	exposed := w.Header().Get("Access-Control-Expose-Headers")
	assert.Contains(t, exposed, "Content-Disposition")
	assert.Contains(t, exposed, middleware.RequestIDHeader)
}
