package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// maxPDFPages bounds how many pages of a PDF are recognized.
const maxPDFPages = 20

// rasterize turns an upload into one PNG per page
func rasterize(data []byte, contentType string) ([][]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")) {
		return pdfToImages(data)
	}

	page, err := imageToPNG(data, mimeType)
	if err != nil {
		return nil, err
	}
	return [][]byte{page}, nil
}

// pdfToImages renders every page of a PDF as PNG
func pdfToImages(pdfData []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %w", ErrUnsupportedFormat, err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count > maxPDFPages {
		count = maxPDFPages
	}

	pages := make([][]byte, 0, count)
	for n := 0; n < count; n++ {
		img, err := doc.Image(n)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", n+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding PNG: %w", err)
		}
		pages = append(pages, buf.Bytes())
	}
	if len(pages) == 0 {
		return nil, ErrNoText
	}
	return pages, nil
}

// imageToPNG converts any supported image format to PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	heicData := isHEICFormat(imageData) || isHEICMimeType(mimeType)
	if !heicData && bytes.HasPrefix(imageData, []byte("\x89PNG\r\n\x1a\n")) {
		return imageData, nil
	}

	var img image.Image
	var err error
	if heicData {
		// Go's image package has no HEIC support
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if errors.Is(err, image.ErrFormat) {
				return nil, fmt.Errorf("%w: supported formats are JPEG, PNG, GIF, HEIC, HEIF and PDF", ErrUnsupportedFormat)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks the ftyp box for a HEIC-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
