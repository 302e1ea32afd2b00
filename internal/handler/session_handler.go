package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"docdash/internal/domain"
	"docdash/internal/middleware"
	"docdash/internal/service"
)

// ContentTypeMsgPack is served for ?format=msgpack.
const ContentTypeMsgPack = "application/msgpack"

// SessionHandler handles the dashboard session endpoints.
type SessionHandler struct {
	dashboard   service.DashboardService
	maxFileSize int64
}

// NewSessionHandler creates a new SessionHandler. maxFileSize caps each
// uploaded file in bytes; zero disables the check.
func NewSessionHandler(dashboard service.DashboardService, maxFileSize int64) *SessionHandler {
	return &SessionHandler{dashboard: dashboard, maxFileSize: maxFileSize}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	summary, err := h.dashboard.CreateSession(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, summary)
}

// Get handles GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	summary, err := h.dashboard.GetSession(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, summary)
}

// Delete handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	if err := h.dashboard.DeleteSession(c.Request.Context(), id); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "session deleted"})
}

// Upload handles POST /api/v1/sessions/:id/uploads
// Multipart fields: label, files (repeatable). Query poll=false skips polling.
func (h *SessionHandler) Upload(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}

	pollAfter := true
	if raw := c.Query("poll"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_QUERY", "poll must be true or false")
			return
		}
		pollAfter = v
	}

	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_FORM", "multipart form with label and files is required")
		return
	}

	label := ""
	if values := form.Value["label"]; len(values) > 0 {
		label = values[0]
	}
	if err := domain.ValidateLabel(label); err != nil {
		HandleError(c, err)
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		HandleError(c, domain.ErrNoFiles)
		return
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := h.readFile(fh)
		if err != nil {
			if errors.Is(err, domain.ErrFileTooLarge) {
				HandleError(c, err)
				return
			}
			middleware.GetLogger(c).Warn("reading upload failed", zap.String("filename", fh.Filename), zap.Error(err))
			RespondError(c, http.StatusBadRequest, "INVALID_FILE", "could not read uploaded file")
			return
		}
		files = append(files, f)
	}

	result, err := h.dashboard.UploadBatch(c.Request.Context(), service.UploadBatchInput{
		SessionID: id,
		Label:     label,
		Files:     files,
		PollAfter: pollAfter,
	})
	if err != nil && result == nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, result)
}

// Poll handles POST /api/v1/sessions/:id/poll
func (h *SessionHandler) Poll(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	outcome, err := h.dashboard.Poll(c.Request.Context(), id)
	if err != nil && outcome == nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, outcome)
}

// Retry handles POST /api/v1/sessions/:id/retry
func (h *SessionHandler) Retry(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	outcome, err := h.dashboard.RetryAll(c.Request.Context(), id)
	if err != nil && outcome == nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, outcome)
}

// Results handles GET /api/v1/sessions/:id/results
// Query format=msgpack returns the bare view as MessagePack.
func (h *SessionHandler) Results(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	view, err := h.dashboard.Results(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "json":
		RespondOK(c, view)
	case "msgpack":
		data, err := msgpack.Marshal(view)
		if err != nil {
			HandleError(c, fmt.Errorf("encoding msgpack: %w", err))
			return
		}
		c.Data(http.StatusOK, ContentTypeMsgPack, data)
	default:
		RespondError(c, http.StatusBadRequest, "INVALID_QUERY", "format must be json or msgpack")
	}
}

// ExportCSV handles GET /api/v1/sessions/:id/export.csv
func (h *SessionHandler) ExportCSV(c *gin.Context) {
	h.export(c, domain.ExportFormatCSV)
}

// ExportXLSX handles GET /api/v1/sessions/:id/export.xlsx
func (h *SessionHandler) ExportXLSX(c *gin.Context) {
	h.export(c, domain.ExportFormatXLSX)
}

func (h *SessionHandler) export(c *gin.Context, format domain.ExportFormat) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	file, err := h.dashboard.Export(c.Request.Context(), id, format)
	if err != nil {
		HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// readFile reads one multipart file, enforcing the size limit.
func (h *SessionHandler) readFile(fh *multipart.FileHeader) (service.UploadFile, error) {
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		return service.UploadFile{}, fmt.Errorf("%s: %w", fh.Filename, domain.ErrFileTooLarge)
	}
	f, err := fh.Open()
	if err != nil {
		return service.UploadFile{}, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if h.maxFileSize > 0 {
		r = io.LimitReader(f, h.maxFileSize+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return service.UploadFile{}, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	if h.maxFileSize > 0 && int64(len(body)) > h.maxFileSize {
		return service.UploadFile{}, fmt.Errorf("%s: %w", fh.Filename, domain.ErrFileTooLarge)
	}
	return service.UploadFile{Filename: fh.Filename, Body: body}, nil
}

// parseSessionID reads the :id path parameter. On failure the error
// response is already written.
func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}
