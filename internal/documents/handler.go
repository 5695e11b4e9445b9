package documents

import (
	"context"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docfill-backend/internal/shared/server/middleware"
	"docfill-backend/internal/shared/server/respond"
	"docfill-backend/internal/shared/storage/object"
	"docfill-backend/internal/shared/util"
)

const (
	maxUploadSize       = 10 << 20 // 10MB
	multipartSlack      = 1 << 20
	uploadFormField     = "document"
	uploadFallbackField = "file"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
	// Files serves locally stored objects to their owners; nil disables the route.
	Files object.ObjectStore
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, files object.ObjectStore) *Handler {
	return &Handler{Svc: svc, Files: files}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.POST("/documents/:id/process", h.process)
	rg.PUT("/documents/:id/fields", h.updateFields)
	rg.POST("/documents/:id/fill-from-transcript", h.fill)
	rg.POST("/documents/:id/complete", h.complete)
	rg.GET("/documents/:id/download", h.download)
	rg.DELETE("/documents/:id", h.delete)
	if h.Files != nil {
		rg.GET("/files/*key", h.file)
	}
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize+multipartSlack)

	fileHeader, err := formFile(c)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document file is required", nil)
		return
	}
	if fileHeader.Size > maxUploadSize {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document exceeds 10MB limit", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(h.ctx(c), middleware.UserIDFromContext(c), UploadInput{
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Title:    c.PostForm("title"),
		Language: c.PostForm("language"),
		Body:     file,
	})
	if err != nil {
		h.writeError(c, err, "upload document")
		return
	}

	c.Set(middleware.DocumentIDKey, doc.ID)
	respond.Success(c, http.StatusCreated, "Document uploaded successfully", gin.H{"document": toResponse(doc)})
}

func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(uploadFormField)
	if err == nil {
		return fh, nil
	}
	return c.FormFile(uploadFallbackField)
}

func (h *Handler) list(c *gin.Context) {
	docs, err := h.Svc.List(h.ctx(c), middleware.UserIDFromContext(c), c.Query("status"), c.Query("search"))
	if err != nil {
		h.writeError(c, err, "list documents")
		return
	}
	respond.Success(c, http.StatusOK, "", gin.H{"count": len(docs), "documents": toResponses(docs)})
}

func (h *Handler) get(c *gin.Context) {
	id := h.documentID(c)
	doc, err := h.Svc.Get(h.ctx(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "fetch document")
		return
	}
	respond.Success(c, http.StatusOK, "", gin.H{"document": toResponse(doc)})
}

func (h *Handler) process(c *gin.Context) {
	id := h.documentID(c)
	doc, err := h.Svc.StartDetection(h.ctx(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "start processing")
		return
	}
	c.Set(middleware.StatusTransitionKey, Transition(StatusUploaded, StatusProcessing))
	respond.Success(c, http.StatusOK, "Document processing started", gin.H{"document": toResponse(doc)})
}

func (h *Handler) updateFields(c *gin.Context) {
	id := h.documentID(c)
	var req updateFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Fields == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fields must be an array", nil)
		return
	}
	doc, err := h.Svc.UpdateFields(h.ctx(c), middleware.UserIDFromContext(c), id, req.Fields)
	if err != nil {
		h.writeError(c, err, "update fields")
		return
	}
	respond.Success(c, http.StatusOK, "Fields updated successfully", gin.H{"document": toResponse(doc)})
}

func (h *Handler) fill(c *gin.Context) {
	id := h.documentID(c)
	var req fillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "transcript is required", nil)
		return
	}
	doc, found, err := h.Svc.FillFromTranscript(h.ctx(c), middleware.UserIDFromContext(c), id, req.Transcript, req.Language)
	if err != nil {
		h.writeError(c, err, "fill from transcript")
		return
	}
	respond.Success(c, http.StatusOK, "Fields filled from transcript", gin.H{
		"document":  toResponse(doc),
		"extracted": found,
	})
}

func (h *Handler) complete(c *gin.Context) {
	id := h.documentID(c)
	doc, err := h.Svc.Complete(h.ctx(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "complete document")
		return
	}
	c.Set(middleware.StatusTransitionKey, Transition(StatusReady, StatusProcessing))
	respond.Success(c, http.StatusOK, "Document completion started", gin.H{"document": toResponse(doc)})
}

func (h *Handler) download(c *gin.Context) {
	id := h.documentID(c)
	location, err := h.Svc.DownloadURL(h.ctx(c), middleware.UserIDFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "download document")
		return
	}
	c.Redirect(http.StatusFound, location)
}

func (h *Handler) delete(c *gin.Context) {
	id := h.documentID(c)
	if err := h.Svc.Delete(h.ctx(c), middleware.UserIDFromContext(c), id); err != nil {
		h.writeError(c, err, "delete document")
		return
	}
	respond.Success(c, http.StatusOK, "Document deleted successfully", nil)
}

func (h *Handler) file(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || !util.OwnsKey(middleware.UserIDFromContext(c), key) {
		respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
		return
	}
	rc, err := h.Files.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read file", nil)
		return
	}
	defer rc.Close()

	name := key[strings.LastIndex(key, "/")+1:]
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if disposition == "" {
		disposition = "attachment"
	}
	c.DataFromReader(http.StatusOK, -1, "application/pdf", rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func (h *Handler) documentID(c *gin.Context) string {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)
	return id
}

func (h *Handler) ctx(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) writeError(c *gin.Context, err error, action string) {
	var missing *MissingFieldsError
	switch {
	case errors.As(err, &missing):
		respond.ErrorWith(c, http.StatusBadRequest, "validation_error", "Please fill all required fields", gin.H{
			"missingFields": missing.Labels,
		})
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
	case errors.Is(err, ErrUnsupportedMediaType):
		respond.Error(c, http.StatusBadRequest, "unsupported_media_type", "Only PDF files are allowed", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusBadRequest, "not_ready", "document is not completed yet", nil)
	case errors.Is(err, ErrInvalidState):
		respond.Error(c, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, ErrStoreTimeout):
		respond.Error(c, http.StatusGatewayTimeout, "store_timeout", "object store timed out", nil)
	case errors.Is(err, ErrUpstream):
		respond.Error(c, http.StatusBadGateway, "upstream_error", "failed to "+action, nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to "+action, nil)
	}
}
