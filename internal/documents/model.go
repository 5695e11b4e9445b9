package documents

import (
	"strings"
	"time"
)

// Status is a document's position in the processing lifecycle.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusCompleted  Status = "completed"
)

// ParseStatus returns the status named by raw, if it is one.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusUploaded, StatusProcessing, StatusReady, StatusCompleted:
		return s, true
	default:
		return "", false
	}
}

// FieldType describes the kind of value a field holds.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldDate   FieldType = "date"
	FieldEmail  FieldType = "email"
	FieldTel    FieldType = "tel"
	FieldNumber FieldType = "number"
)

// DefaultLanguage is used when an upload does not name one.
const DefaultLanguage = "English"

// Languages lists the document languages accepted on upload.
var Languages = []string{
	"English", "Hindi", "Marathi", "Tamil", "Telugu", "Bengali", "Gujarati", "Kannada",
}

// NormalizeLanguage matches raw against Languages case-insensitively.
func NormalizeLanguage(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLanguage, true
	}
	for _, lang := range Languages {
		if strings.EqualFold(lang, raw) {
			return lang, true
		}
	}
	return "", false
}

// Position locates a field in document coordinates. Page is zero-based.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Field is one fillable slot. Only Value changes after detection.
type Field struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Value    string    `json:"value,omitempty"`
	Position Position  `json:"position"`
}

// Document is an uploaded PDF owned by a user.
type Document struct {
	ID                    string
	OwnerID               string
	Title                 string
	OriginalFileName      string
	BlobRef               string
	BlobDeleteHandle      string
	SizeBytes             int64
	Language              string
	Status                Status
	Fields                []Field
	PageCount             int
	CompletedBlobRef      string
	CompletedDeleteHandle string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Clone returns a copy that shares no field storage with d.
func (d Document) Clone() Document {
	out := d
	if d.Fields != nil {
		out.Fields = make([]Field, len(d.Fields))
		copy(out.Fields, d.Fields)
	}
	return out
}

// MissingRequired returns labels of required fields without a value, in field order.
func (d Document) MissingRequired() []string {
	var missing []string
	for _, f := range d.Fields {
		if f.Required && strings.TrimSpace(f.Value) == "" {
			missing = append(missing, f.Label)
		}
	}
	return missing
}

// FieldValue is a client-supplied value for an existing field.
type FieldValue struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Filter narrows a document listing.
type Filter struct {
	Status Status
	Search string
}

// Matches reports whether doc passes the filter.
func (f Filter) Matches(doc Document) bool {
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(doc.Title), strings.ToLower(f.Search)) {
		return false
	}
	return true
}
