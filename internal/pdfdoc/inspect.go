package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// MimeType is the only media type accepted for uploads.
const MimeType = "application/pdf"

// ErrUnreadable is returned when bytes do not parse as a PDF.
var ErrUnreadable = errors.New("unreadable pdf")

// Info summarizes a PDF.
type Info struct {
	PageCount int
}

// Inspector reads structural information from a PDF.
type Inspector struct {
	// MaxBytes caps how much is read into memory; zero means 32 MiB.
	MaxBytes int64
}

// Inspect parses r and reports its page count.
func (in Inspector) Inspect(ctx context.Context, r io.Reader) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	limit := in.MaxBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return Info{}, fmt.Errorf("read pdf: %w", err)
	}
	if int64(len(data)) > limit {
		return Info{}, fmt.Errorf("%w: larger than %d bytes", ErrUnreadable, limit)
	}
	return inspectBytes(data)
}

func inspectBytes(data []byte) (Info, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return Info{}, fmt.Errorf("%w: missing header", ErrUnreadable)
	}
	info, err := countPages(trimAfterEOF(data))
	if err == nil {
		return info, nil
	}
	if relaxed, rerr := countPagesRelaxed(data); rerr == nil {
		return relaxed, nil
	}
	return Info{}, err
}

// trimAfterEOF drops bytes some producers append after the last %%EOF marker.
func trimAfterEOF(data []byte) []byte {
	i := bytes.LastIndex(data, []byte("%%EOF"))
	if i < 0 {
		return data
	}
	return data[:i+len("%%EOF")]
}

func countPages(data []byte) (info Info, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			info = Info{}
			err = fmt.Errorf("%w: %v", ErrUnreadable, rec)
		}
	}()
	reader, perr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if perr != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadable, perr)
	}
	pages := reader.NumPage()
	if pages <= 0 {
		return Info{}, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return Info{PageCount: pages}, nil
}

// countPagesRelaxed reads the page tree with pdfcpu, which repairs broken
// cross-reference tables.
func countPagesRelaxed(data []byte) (info Info, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			info = Info{}
			err = fmt.Errorf("%w: %v", ErrUnreadable, rec)
		}
	}()
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), relaxedConfig())
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if pdfCtx.PageCount <= 0 {
		return Info{}, fmt.Errorf("%w: no pages", ErrUnreadable)
	}
	return Info{PageCount: pdfCtx.PageCount}, nil
}
