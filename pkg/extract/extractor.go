package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"notewise/pkg/domain"
)

var (
	// ErrUnsupportedFormat indicates a declared format this service does not accept.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtraction indicates a supported document that could not be parsed.
	ErrExtraction = errors.New("document extraction failed")
)

// Extract converts an uploaded document into plain text.
// Plain text passes through with invalid UTF-8 sanitised; PDFs get their text
// layer extracted page by page. A PDF with no text layer yields an empty
// string, which is a valid result.
func Extract(ctx context.Context, data []byte, format domain.SourceFormat) (string, error) {
	switch format {
	case domain.FormatText:
		return sanitize(string(data)), nil
	case domain.FormatPDF:
		return pdfText(ctx, data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func pdfText(ctx context.Context, data []byte) (text string, err error) {
	// The pdf library panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	totalPages := reader.NumPage()
	pages := make([]string, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrExtraction, i, err)
		}
		pages = append(pages, sanitize(pageText))
	}
	return strings.TrimSpace(strings.Join(pages, "\n\n")), nil
}

func sanitize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.ToValidUTF8(text, "")
}
