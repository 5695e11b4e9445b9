package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"docfill-backend/internal/extract"
	"docfill-backend/internal/pdfdoc"
	"docfill-backend/internal/queue"
	"docfill-backend/internal/shared/metrics"
	"docfill-backend/internal/shared/storage/object"
	"docfill-backend/internal/shared/telemetry"
)

const (
	defaultUploadTimeout  = 30 * time.Second
	defaultDownloadURLTTL = 15 * time.Minute
)

// Canceler is implemented by job clients that can drop a pending job.
type Canceler interface {
	Cancel(documentID string) bool
}

// Service contains business logic for the document lifecycle.
type Service struct {
	Repo       Repo
	Store      object.ObjectStore
	Jobs       queue.Client
	Extractors *extract.Registry
	Inspector  PageInspector
	Renderer   Renderer

	UploadTimeout  time.Duration
	DownloadURLTTL time.Duration

	Now   func() time.Time
	NewID func() string
}

// UploadInput describes a file being registered.
type UploadInput struct {
	FileName string
	MimeType string
	Title    string
	Language string
	Body     io.Reader
}

// Upload stores the file and records a document in the uploaded state.
// No document is recorded if the store write fails.
func (s *Service) Upload(ctx context.Context, ownerID string, in UploadInput) (Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Document{}, fmt.Errorf("%w: owner id required", ErrInvalidInput)
	}
	if in.Body == nil || strings.TrimSpace(in.FileName) == "" {
		return Document{}, fmt.Errorf("%w: file is required", ErrInvalidInput)
	}
	if !isPDF(in.MimeType) {
		return Document{}, ErrUnsupportedMediaType
	}
	language, ok := NormalizeLanguage(in.Language)
	if !ok {
		return Document{}, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, in.Language)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.FileName
	}

	timeout := s.UploadTimeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	putCtx, cancel := context.WithTimeout(ctx, timeout)
	obj, err := s.Store.Put(putCtx, ownerID, in.FileName, pdfdoc.MimeType, in.Body)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Document{}, ErrStoreTimeout
		}
		return Document{}, fmt.Errorf("%w: store upload: %v", ErrUpstream, err)
	}

	now := s.now()
	doc := Document{
		ID:               s.newID(),
		OwnerID:          ownerID,
		Title:            title,
		OriginalFileName: in.FileName,
		BlobRef:          obj.Ref,
		BlobDeleteHandle: obj.DeleteHandle,
		SizeBytes:        obj.SizeBytes,
		Language:         language,
		Status:           StatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		s.deleteBlob(ctx, doc, obj.DeleteHandle)
		return Document{}, fmt.Errorf("create document: %w", err)
	}

	telemetry.Info("document.uploaded", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     ownerID,
		"document_id": doc.ID,
		"size_bytes":  doc.SizeBytes,
	})
	return doc, nil
}

// List returns the owner's documents, newest first. An unknown status is ignored.
func (s *Service) List(ctx context.Context, ownerID, status, search string) ([]Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id required", ErrInvalidInput)
	}
	filter := Filter{Search: strings.TrimSpace(search)}
	if st, ok := ParseStatus(status); ok {
		filter.Status = st
	}
	return s.Repo.List(ctx, ownerID, filter)
}

// Get returns the owner's document. Documents of other owners are reported as not found.
func (s *Service) Get(ctx context.Context, ownerID, documentID string) (Document, error) {
	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(documentID) == "" {
		return Document{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, ownerID, documentID)
}

// StartDetection moves an uploaded document to processing and schedules detection.
func (s *Service) StartDetection(ctx context.Context, ownerID, documentID string) (Document, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.Status != StatusUploaded {
		return Document{}, fmt.Errorf("%w: detection requires %s, document is %s", ErrInvalidState, StatusUploaded, doc.Status)
	}
	return s.startJob(ctx, doc, queue.KindDetect)
}

// UpdateFields merges values into existing fields by id. Unknown ids are ignored.
func (s *Service) UpdateFields(ctx context.Context, ownerID, documentID string, updates []FieldValue) (Document, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.Status == StatusProcessing {
		return Document{}, fmt.Errorf("%w: document is processing", ErrInvalidState)
	}
	mergeValues(doc.Fields, updates)
	return s.save(ctx, doc)
}

// FillFromTranscript extracts values from transcript and writes them into matching fields.
func (s *Service) FillFromTranscript(ctx context.Context, ownerID, documentID, transcript, language string) (Document, extract.Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return Document{}, nil, fmt.Errorf("%w: transcript is required", ErrInvalidInput)
	}
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return Document{}, nil, err
	}
	if doc.Status == StatusProcessing {
		return Document{}, nil, fmt.Errorf("%w: document is processing", ErrInvalidState)
	}
	if strings.TrimSpace(language) == "" {
		language = doc.Language
	}

	found := s.extractor(language).Extract(transcript)
	applyExtracted(doc.Fields, found)
	saved, err := s.save(ctx, doc)
	if err != nil {
		return Document{}, nil, err
	}
	return saved, found, nil
}

// Complete checks required fields and schedules production of the completed file.
func (s *Service) Complete(ctx context.Context, ownerID, documentID string) (Document, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return Document{}, err
	}
	if missing := doc.MissingRequired(); len(missing) > 0 {
		return Document{}, &MissingFieldsError{Labels: missing}
	}
	if doc.Status != StatusReady {
		return Document{}, fmt.Errorf("%w: completion requires %s, document is %s", ErrInvalidState, StatusReady, doc.Status)
	}
	return s.startJob(ctx, doc, queue.KindComplete)
}

// DownloadReference returns the completed file reference.
func (s *Service) DownloadReference(ctx context.Context, ownerID, documentID string) (string, error) {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return "", err
	}
	if doc.Status != StatusCompleted || doc.CompletedBlobRef == "" {
		return "", ErrNotReady
	}
	return doc.CompletedBlobRef, nil
}

// DownloadURL returns a location the client can fetch the completed file from.
func (s *Service) DownloadURL(ctx context.Context, ownerID, documentID string) (string, error) {
	ref, err := s.DownloadReference(ctx, ownerID, documentID)
	if err != nil {
		return "", err
	}
	ttl := s.DownloadURLTTL
	if ttl <= 0 {
		ttl = defaultDownloadURLTTL
	}
	url, err := s.Store.URL(ctx, ref, ttl)
	if err != nil {
		return "", fmt.Errorf("%w: download url: %v", ErrUpstream, err)
	}
	return url, nil
}

// Delete cancels pending work, removes blobs best-effort and deletes the record.
func (s *Service) Delete(ctx context.Context, ownerID, documentID string) error {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	if c, ok := s.Jobs.(Canceler); ok {
		c.Cancel(doc.ID)
	}

	s.deleteBlob(ctx, doc, doc.BlobDeleteHandle)
	if h := doc.CompletedDeleteHandle; h != "" && h != doc.BlobDeleteHandle {
		s.deleteBlob(ctx, doc, h)
	}

	if err := s.Repo.Delete(ctx, ownerID, documentID); err != nil {
		return err
	}
	telemetry.Info("document.deleted", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     ownerID,
		"document_id": documentID,
	})
	return nil
}

// startJob claims the document for processing and hands the job to the queue.
// The claim is a compare-and-set, so concurrent callers cannot both schedule work.
func (s *Service) startJob(ctx context.Context, doc Document, kind queue.Kind) (Document, error) {
	if s.Jobs == nil {
		return Document{}, fmt.Errorf("%w: job queue not configured", ErrUpstream)
	}
	from := doc.Status
	doc.Status = StatusProcessing
	doc.UpdatedAt = s.now()
	if err := s.Repo.Update(ctx, doc, from); err != nil {
		if errors.Is(err, ErrConflict) {
			return Document{}, fmt.Errorf("%w: document changed concurrently", ErrInvalidState)
		}
		return Document{}, fmt.Errorf("claim document: %w", err)
	}
	s.logTransition(ctx, doc, from, StatusProcessing, nil)

	msg := queue.NewMessage(kind, doc.ID, doc.OwnerID, requestIDFromContext(ctx), s.now())
	if err := s.Jobs.Send(ctx, msg); err != nil {
		s.revert(ctx, doc, from, err)
		return Document{}, fmt.Errorf("%w: enqueue %s: %v", ErrUpstream, kind, err)
	}
	metrics.IncJob(string(kind), metrics.OutcomeStarted)
	return doc, nil
}

func (s *Service) save(ctx context.Context, doc Document) (Document, error) {
	doc.UpdatedAt = s.now()
	if err := s.Repo.Update(ctx, doc, doc.Status); err != nil {
		if errors.Is(err, ErrConflict) {
			return Document{}, fmt.Errorf("%w: document changed concurrently", ErrInvalidState)
		}
		return Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

func (s *Service) extractor(language string) *extract.Extractor {
	if s.Extractors == nil {
		return extract.Default()
	}
	return s.Extractors.For(language)
}

func (s *Service) deleteBlob(ctx context.Context, doc Document, handle string) {
	if handle == "" || s.Store == nil {
		return
	}
	if err := s.Store.Delete(ctx, handle); err != nil && !errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("document.blob_delete_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"user_id":     doc.OwnerID,
			"document_id": doc.ID,
			"error":       err.Error(),
		})
	}
}

func (s *Service) logTransition(ctx context.Context, doc Document, from, to Status, cause error) {
	metrics.IncTransition(string(from), string(to))
	fields := map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           doc.OwnerID,
		"document_id":       doc.ID,
		"status":            string(to),
		"status_transition": Transition(from, to),
	}
	if cause != nil {
		fields["error"] = cause.Error()
		telemetry.Warn("document.status", fields)
		return
	}
	telemetry.Info("document.status", fields)
}

// Transition formats a status change for logs.
func Transition(from, to Status) string {
	return string(from) + "->" + string(to)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func isPDF(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return false
	}
	return strings.EqualFold(mediaType, pdfdoc.MimeType)
}
