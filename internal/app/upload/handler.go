package upload

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/domain/call"
)

// FormField is the multipart field carrying the file.
const FormField = "file"

// Handler serves ringtone uploads and the uploaded files.
type Handler struct {
	service *Service
}

// NewHandler creates a new upload handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	URL string `json:"url"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Router returns a gin engine serving the upload routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	h.Register(r)
	return r
}

// Register adds POST <public path> and GET <public path>/:name.
func (h *Handler) Register(r gin.IRouter) {
	base := "/" + strings.Trim(h.service.Config().PublicPath, "/")
	group := r.Group(base)
	group.POST("", h.Upload)
	group.GET("/:name", h.Serve)
}

// Upload handles a multipart ringtone upload.
func (h *Handler) Upload(c *gin.Context) {
	fh, err := c.FormFile(FormField)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing form field " + FormField})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	defer f.Close()

	url, err := h.service.Upload(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		c.JSON(statusOf(err), ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, UploadResponse{URL: url})
}

// Serve returns a previously uploaded file.
func (h *Handler) Serve(c *gin.Context) {
	p, ok := h.service.LocalPath(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	if _, err := os.Stat(p); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	c.File(p)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, call.ErrUnsupportedUpload):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, call.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, call.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zlog.Debug().Msgf("HTTP %s %s status=%d duration=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
