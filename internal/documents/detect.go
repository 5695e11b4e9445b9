package documents

import (
	"context"
	"fmt"
	"io"
	"time"

	"docfill-backend/internal/pdfdoc"
	"docfill-backend/internal/shared/telemetry"
)

// PageInspector reads structural information from a stored PDF.
type PageInspector interface {
	Inspect(ctx context.Context, r io.Reader) (pdfdoc.Info, error)
}

type fieldTemplate struct {
	label    string
	typ      FieldType
	required bool
	pos      Position
}

// detectionLayout is the fixed field set produced by detection.
var detectionLayout = []fieldTemplate{
	{"Full Name", FieldText, true, Position{X: 100, Y: 500, Page: 0, Width: 200, Height: 30}},
	{"Address", FieldText, true, Position{X: 100, Y: 400, Page: 0, Width: 300, Height: 30}},
	{"Date of Birth", FieldDate, true, Position{X: 100, Y: 300, Page: 0, Width: 150, Height: 30}},
	{"Phone Number", FieldTel, false, Position{X: 100, Y: 200, Page: 0, Width: 150, Height: 30}},
	{"Email Address", FieldEmail, true, Position{X: 100, Y: 150, Page: 0, Width: 200, Height: 30}},
}

// DetectFields returns the detected field set with ids derived from now.
func DetectFields(now time.Time) []Field {
	stamp := now.UnixMilli()
	fields := make([]Field, len(detectionLayout))
	for i, tpl := range detectionLayout {
		fields[i] = Field{
			ID:       fmt.Sprintf("field_%d_%d", stamp, i+1),
			Label:    tpl.label,
			Type:     tpl.typ,
			Required: tpl.required,
			Position: tpl.pos,
		}
	}
	return fields
}

// detect is the background step for a detect job.
func (s *Service) detect(ctx context.Context, doc Document) (Document, error) {
	if s.Inspector != nil {
		rc, err := s.Store.Open(ctx, doc.BlobRef)
		if err != nil {
			return doc, fmt.Errorf("%w: open original: %v", ErrUpstream, err)
		}
		info, err := s.Inspector.Inspect(ctx, rc)
		_ = rc.Close()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return doc, ctxErr
			}
			// Fields do not depend on content; an unparsable PDF still gets them.
			telemetry.Warn("document.inspect_failed", map[string]any{
				"request_id":  requestIDFromContext(ctx),
				"user_id":     doc.OwnerID,
				"document_id": doc.ID,
				"error":       err.Error(),
			})
			info.PageCount = 0
		}
		doc.PageCount = info.PageCount
	}
	doc.Fields = DetectFields(s.now())
	return doc, nil
}
