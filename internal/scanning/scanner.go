package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// PageBreak separates the text of consecutive pages.
const PageBreak = "\n\n--- Page Break ---\n\n"

var (
	// ErrNoText means recognition finished but found no text.
	ErrNoText = errors.New("no text found in document")

	// ErrUnsupportedFormat means the upload is neither a PDF nor a decodable image.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Recognizer defines the interface for OCR engines
type Recognizer interface {
	// Recognize returns the text printed in a PNG image
	Recognize(ctx context.Context, png []byte) (string, error)
	// Close releases resources held by the engine
	Close() error
}

// Reader extracts text from uploaded receipts, one page at a time
type Reader struct {
	recognizer Recognizer
}

// NewReader creates a Reader backed by the given Recognizer
func NewReader(recognizer Recognizer) *Reader {
	return &Reader{recognizer: recognizer}
}

// ReadText rasterizes the document and recognizes every page.
func (r *Reader) ReadText(ctx context.Context, data []byte, contentType string) (string, error) {
	pages, err := rasterize(data, contentType)
	if err != nil {
		return "", err
	}

	texts := make([]string, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := r.recognizer.Recognize(ctx, page)
		if err != nil {
			return "", fmt.Errorf("recognizing page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}

	slog.Info("Recognized document", "pages", len(pages), "content_type", contentType)
	return joinPages(texts)
}

// Close closes the underlying Recognizer
func (r *Reader) Close() error {
	return r.recognizer.Close()
}

func joinPages(texts []string) (string, error) {
	trimmed := make([]string, len(texts))
	empty := true
	for i, text := range texts {
		trimmed[i] = strings.TrimSpace(text)
		if trimmed[i] != "" {
			empty = false
		}
	}
	if empty {
		return "", ErrNoText
	}
	return strings.Join(trimmed, PageBreak), nil
}
