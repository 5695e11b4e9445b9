package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	OriginalFileName  string    `json:"originalFileName"`
	Language          string    `json:"language"`
	Status            Status    `json:"status"`
	Fields            []Field   `json:"fields"`
	PageCount         int       `json:"pageCount,omitempty"`
	SizeBytes         int64     `json:"sizeBytes"`
	DownloadAvailable bool      `json:"downloadAvailable"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toResponse(doc Document) DocumentResponse {
	fields := doc.Fields
	if fields == nil {
		fields = []Field{}
	}
	return DocumentResponse{
		ID:                doc.ID,
		Title:             doc.Title,
		OriginalFileName:  doc.OriginalFileName,
		Language:          doc.Language,
		Status:            doc.Status,
		Fields:            fields,
		PageCount:         doc.PageCount,
		SizeBytes:         doc.SizeBytes,
		DownloadAvailable: doc.Status == StatusCompleted && doc.CompletedBlobRef != "",
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

func toResponses(docs []Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toResponse(doc))
	}
	return out
}

type updateFieldsRequest struct {
	Fields []FieldValue `json:"fields"`
}

type fillRequest struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language"`
}
