package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/kendall-kelly/design-studio-api/models"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

var (
	imageExtensions  = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}
	designExtensions = []string{".psd", ".ai", ".sketch", ".fig", ".xd", ".eps"}
	documentExts     = []string{".pdf", ".doc", ".docx", ".txt", ".rtf", ".zip"}
)

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateUpload checks the size and extension of an uploaded file.
// A maxSize of zero or less falls back to MaxFileSize.
func ValidateUpload(fileHeader *multipart.FileHeader, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}

	if fileHeader.Size > maxSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", maxSize/(1024*1024)),
		}
	}
	if fileHeader.Size == 0 {
		return &FileUploadError{
			Code:    "EMPTY_FILE",
			Message: "Uploaded file is empty",
		}
	}

	if !AllowedExtension(fileHeader.Filename) {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: fmt.Sprintf("File type %q is not allowed", filepath.Ext(fileHeader.Filename)),
		}
	}

	return nil
}

// AllowedExtension reports whether the file's extension is on the allow-list.
func AllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return contains(imageExtensions, ext) || contains(designExtensions, ext) || contains(documentExts, ext)
}

// InferFileType classifies a file by extension. Unknown extensions are documents.
func InferFileType(filename string) models.FileType {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case contains(imageExtensions, ext):
		return models.FileImage
	case contains(designExtensions, ext):
		return models.FileDesign
	default:
		return models.FileDocument
	}
}

// SanitizeFilename strips any directory part and characters that are unsafe
// in an object key.
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return "file"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func contains(list []string, ext string) bool {
	for _, item := range list {
		if item == ext {
			return true
		}
	}
	return false
}
