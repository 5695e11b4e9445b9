package documents

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"docfill-backend/internal/pdfdoc"
	"docfill-backend/internal/shared/storage/object"
)

// Renderer names.
const (
	RendererPassthrough = "passthrough"
	RendererStamp       = "stamp"
)

// Renderer produces the completed file for a document.
type Renderer interface {
	Render(ctx context.Context, doc Document) (object.Object, error)
}

// NewRenderer returns the renderer registered under name, defaulting to passthrough.
func NewRenderer(name string, store object.ObjectStore) Renderer {
	if name == RendererStamp && store != nil {
		return StampRenderer{Store: store}
	}
	return PassthroughRenderer{}
}

// PassthroughRenderer reuses the original upload as the completed file.
type PassthroughRenderer struct{}

func (PassthroughRenderer) Render(_ context.Context, doc Document) (object.Object, error) {
	return object.Object{Ref: doc.BlobRef, SizeBytes: doc.SizeBytes, ContentType: pdfdoc.MimeType}, nil
}

// StampRenderer writes field values onto a copy of the original PDF.
type StampRenderer struct {
	Store object.ObjectStore
}

const stampInset = 4

func (r StampRenderer) Render(ctx context.Context, doc Document) (object.Object, error) {
	rc, err := r.Store.Open(ctx, doc.BlobRef)
	if err != nil {
		return object.Object{}, fmt.Errorf("%w: open original: %v", ErrUpstream, err)
	}
	defer rc.Close()

	stamps := make([]pdfdoc.Stamp, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		stamps = append(stamps, pdfdoc.Stamp{
			Text: f.Value,
			Page: f.Position.Page,
			X:    f.Position.X + stampInset,
			Y:    f.Position.Y + stampInset,
		})
	}

	out, err := pdfdoc.ApplyStamps(ctx, rc, stamps)
	if err != nil {
		return object.Object{}, fmt.Errorf("stamp pdf: %w", err)
	}
	obj, err := r.Store.Put(ctx, doc.OwnerID, completedFileName(doc.OriginalFileName), pdfdoc.MimeType, bytes.NewReader(out))
	if err != nil {
		return object.Object{}, fmt.Errorf("%w: store completed: %v", ErrUpstream, err)
	}
	return obj, nil
}

func completedFileName(original string) string {
	base := strings.TrimSuffix(original, path.Ext(original))
	if base == "" {
		base = "document"
	}
	return base + "-completed.pdf"
}
