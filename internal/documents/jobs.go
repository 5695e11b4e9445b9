package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docfill-backend/internal/queue"
	"docfill-backend/internal/shared/metrics"
	"docfill-backend/internal/shared/telemetry"
)

const revertTimeout = 5 * time.Second

type jobStep func(ctx context.Context, doc Document) (Document, error)

// ProcessJob runs a detect or complete job. Jobs for missing documents or
// documents no longer processing are skipped without error.
func (s *Service) ProcessJob(ctx context.Context, msg queue.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ctx = WithRequestID(ctx, msg.RequestID)

	switch msg.Kind {
	case queue.KindDetect:
		return s.runJob(ctx, msg, StatusReady, StatusUploaded, s.detect)
	case queue.KindComplete:
		return s.runJob(ctx, msg, StatusCompleted, StatusReady, s.complete)
	default:
		return queue.ErrUnknownKind
	}
}

func (s *Service) runJob(ctx context.Context, msg queue.Message, target, fallback Status, step jobStep) (err error) {
	kind := string(msg.Kind)
	doc, err := s.Repo.GetByID(ctx, msg.OwnerID, msg.DocumentID)
	if errors.Is(err, ErrNotFound) {
		metrics.IncJob(kind, metrics.OutcomeSkipped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status != StatusProcessing {
		metrics.IncJob(kind, metrics.OutcomeSkipped)
		telemetry.Info("document.job_skipped", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"document_id": doc.ID,
			"kind":        kind,
			"status":      string(doc.Status),
		})
		return nil
	}

	started := time.Now()
	var next Document
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		metrics.ObserveJobDuration(kind, time.Since(started))
		if err != nil {
			metrics.IncJob(kind, metrics.OutcomeFailed)
			s.discardRendered(ctx, doc, next)
			s.revert(ctx, doc, fallback, err)
			return
		}
		metrics.IncJob(kind, metrics.OutcomeSucceeded)
	}()

	next, err = step(ctx, doc.Clone())
	if err != nil {
		return err
	}
	next.Status = target
	next.UpdatedAt = s.now()
	if err = s.Repo.Update(ctx, next, StatusProcessing); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	s.logTransition(ctx, next, StatusProcessing, target, nil)
	return nil
}

// complete is the background step for a complete job.
func (s *Service) complete(ctx context.Context, doc Document) (Document, error) {
	renderer := s.Renderer
	if renderer == nil {
		renderer = PassthroughRenderer{}
	}
	obj, err := renderer.Render(ctx, doc)
	if err != nil {
		return doc, err
	}
	if obj.Ref == "" {
		return doc, errors.New("renderer returned empty reference")
	}
	doc.CompletedBlobRef = obj.Ref
	doc.CompletedDeleteHandle = obj.DeleteHandle
	return doc, nil
}

// revert returns a processing document to its last stable status.
// It runs detached from ctx so a timed-out job can still record the revert.
func (s *Service) revert(ctx context.Context, doc Document, to Status, cause error) {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()

	doc.Status = to
	doc.UpdatedAt = s.now()
	doc.CompletedBlobRef = ""
	doc.CompletedDeleteHandle = ""
	if to == StatusUploaded {
		doc.Fields = nil
		doc.PageCount = 0
	}
	if err := s.Repo.Update(revertCtx, doc, StatusProcessing); err != nil {
		if errors.Is(err, ErrNotFound) {
			return
		}
		telemetry.Error("document.revert_failed", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"user_id":     doc.OwnerID,
			"document_id": doc.ID,
			"status":      string(to),
			"error":       err.Error(),
			"cause":       cause.Error(),
		})
		return
	}
	s.logTransition(ctx, doc, StatusProcessing, to, cause)
}

// discardRendered removes a completed file produced by a job that then failed.
func (s *Service) discardRendered(ctx context.Context, doc, next Document) {
	h := next.CompletedDeleteHandle
	if h == "" || h == doc.BlobDeleteHandle || h == doc.CompletedDeleteHandle {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()
	s.deleteBlob(cleanupCtx, doc, h)
}
