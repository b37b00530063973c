package scanning

import (
	"context"
	"errors"
)

// ErrUnsupportedImage is returned when an upload cannot be turned into an
// image the model accepts. Retrying the call will not help.
var ErrUnsupportedImage = errors.New("unsupported image")

// Scanner defines the interface for menu scanning operations
type Scanner interface {
	// ScanMenu sends one menu image to the model together with MenuPrompt
	// and returns the model's raw text answer.
	ScanMenu(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}
