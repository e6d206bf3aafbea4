package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Recognizer interface with a local Tesseract install.
// A client is created per call so concurrent requests never share engine state.
type Tesseract struct {
	languages []string
}

// NewTesseract creates a Tesseract recognizer for the given languages (default eng).
// Entries are trimmed and blanks dropped.
func NewTesseract(languages ...string) *Tesseract {
	cleaned := make([]string, 0, len(languages))
	for _, lang := range languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			cleaned = append(cleaned, lang)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{"eng"}
	}
	return &Tesseract{languages: cleaned}
}

// Recognize runs OCR over a PNG image
func (t *Tesseract) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("setting tesseract languages: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running tesseract: %w", err)
	}
	return text, nil
}

// Close is a no-op; clients are released after each call
func (t *Tesseract) Close() error {
	return nil
}
