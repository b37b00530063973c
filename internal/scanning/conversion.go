package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"slices"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WEBP decoder
)

// geminiImageTypes are sent to Gemini as uploaded
var geminiImageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/heic", "image/heif"}

// ollamaImageTypes are the formats Ollama vision models decode themselves
var ollamaImageTypes = []string{"image/png", "image/jpeg"}

// pdfToImage renders the first page of a PDF menu as a PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: PDF has no pages", ErrUnsupportedImage)
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return encodePNG(img)
}

// imageToPNG decodes JPEG, GIF, PNG, WEBP or HEIC data and re-encodes it as PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)

	// Phones upload HEIC; the standard image package can't decode it
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %v", ErrUnsupportedImage, err)
		}
		return encodePNG(img)
	}

	img, _, err = image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: supported formats are JPEG, PNG, GIF, WEBP, HEIC, HEIF and PDF: %v", ErrUnsupportedImage, err)
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks the ftyp box brand of an ISO media file
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
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeMimeType lowercases the declared type and sniffs the data when
// the browser sent nothing useful.
func normalizeMimeType(imageData []byte, contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if isHEICFormat(imageData) {
			return "image/heic"
		}
		mimeType = http.DetectContentType(imageData)
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = mimeType[:i]
		}
	}
	return mimeType
}

// matchesType reports whether the data really is of the declared type
func matchesType(imageData []byte, mimeType string) bool {
	if isHEICMimeType(mimeType) {
		return isHEICFormat(imageData)
	}
	return http.DetectContentType(imageData) == mimeType
}

// prepareImageData passes uploads of a type in native through untouched and
// converts everything else (PDF, GIF, mislabelled data) to PNG. It returns
// the bytes to send and their MIME type.
func prepareImageData(imageData []byte, contentType string, native []string) ([]byte, string, error) {
	if len(imageData) == 0 {
		return nil, "", fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}

	mimeType := normalizeMimeType(imageData, contentType)
	switch {
	case slices.Contains(native, mimeType) && matchesType(imageData, mimeType):
		return imageData, mimeType, nil
	case mimeType == "application/pdf":
		data, err := pdfToImage(imageData)
		if err != nil {
			return nil, "", fmt.Errorf("converting PDF to image: %w", err)
		}
		return data, "image/png", nil
	default:
		data, err := imageToPNG(imageData, mimeType)
		if err != nil {
			return nil, "", fmt.Errorf("converting image to PNG: %w", err)
		}
		return data, "image/png", nil
	}
}
