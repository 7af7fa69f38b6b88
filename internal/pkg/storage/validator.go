package storage

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrInvalidMimeType = errors.New("file type not allowed")
	ErrEmptyFile       = errors.New("file is empty")
)

// MaxImageSize caps a stored portrait
const MaxImageSize = 20 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ValidateImage checks size and sniffed MIME type, returning the MIME type
func ValidateImage(data []byte, maxSize int64) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if int64(len(data)) > maxSize {
		return "", ErrFileTooLarge
	}

	// Clean up MIME type (e.g., "image/jpeg; charset=utf-8" -> "image/jpeg")
	mimeType := http.DetectContentType(data)
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	if _, ok := allowedImageTypes[mimeType]; !ok {
		return "", ErrInvalidMimeType
	}
	return mimeType, nil
}

// ExtensionForMime returns the file extension for an image MIME type
func ExtensionForMime(mimeType string) string {
	return allowedImageTypes[mimeType]
}
