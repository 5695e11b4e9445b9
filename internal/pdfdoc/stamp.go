package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Stamp is a text value placed at a point on a zero-based page.
type Stamp struct {
	Text     string
	Page     int
	X        float64
	Y        float64
	FontSize int
}

// ApplyStamps writes each stamp onto the PDF read from r and returns the new document.
func ApplyStamps(ctx context.Context, r io.Reader, stamps []Stamp) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	conf := relaxedConfig()

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	pageCount := pdfCtx.PageCount

	for _, st := range stamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(st.Text)
		if text == "" || st.Page < 0 || st.Page >= pageCount {
			continue
		}
		wm, err := api.TextWatermark(text, description(st), true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("build stamp: %w", err)
		}
		var out bytes.Buffer
		pages := []string{strconv.Itoa(st.Page + 1)}
		if err := api.AddWatermarks(bytes.NewReader(data), &out, pages, wm, conf); err != nil {
			return nil, fmt.Errorf("apply stamp page=%d: %w", st.Page+1, err)
		}
		data = out.Bytes()
	}
	return data, nil
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// description renders a pdfcpu stamp description anchored at the bottom-left corner.
func description(st Stamp) string {
	size := st.FontSize
	if size <= 0 {
		size = 12
	}
	return fmt.Sprintf("fontname:Helvetica, points:%d, position:bl, offset:%s %s, scalefactor:1 abs, rotation:0, opacity:1",
		size,
		strconv.FormatFloat(st.X, 'f', -1, 64),
		strconv.FormatFloat(st.Y, 'f', -1, 64),
	)
}
