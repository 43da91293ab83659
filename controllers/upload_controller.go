package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/services"
	"github.com/kendall-kelly/design-studio-api/utils"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// FileStore records upload metadata.
type FileStore interface {
	CreateOrderFile(ctx context.Context, file *models.OrderFile) error
}

// UploadController accepts order file uploads.
type UploadController struct {
	profiles ProfileLookup
	files    FileStore
	orders   *services.OrderService
	storage  services.FileStorage
	maxSize  int64
}

// NewUploadController creates an UploadController. A nil storage makes
// every upload fail with 503.
func NewUploadController(profiles ProfileLookup, files FileStore, orders *services.OrderService, storage services.FileStorage, maxSize int64) *UploadController {
	if maxSize <= 0 {
		maxSize = utils.MaxFileSize
	}
	return &UploadController{profiles: profiles, files: files, orders: orders, storage: storage, maxSize: maxSize}
}

// UploadOrderFile handles POST /api/v1/orders/:id/files - multipart field "file"
func (uc *UploadController) UploadOrderFile(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	profile, ok := currentProfile(c, uc.profiles)
	if !ok {
		return
	}
	if _, err := uc.orders.Get(c.Request.Context(), profile, orderID); err != nil {
		renderError(c, err)
		return
	}

	if uc.storage == nil {
		errorResponse(c, http.StatusServiceUnavailable, "FILE_STORAGE_UNAVAILABLE", "File uploads are not configured")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "MISSING_FILE", "A file is required in the 'file' field")
		return
	}

	if err := utils.ValidateUpload(fileHeader, uc.maxSize); err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			errorResponse(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
			return
		}
		errorResponse(c, http.StatusBadRequest, "INVALID_FILE", err.Error())
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_FILE", "Failed to read uploaded file")
		return
	}
	defer src.Close()

	content, err := io.ReadAll(io.LimitReader(src, uc.maxSize+1))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_FILE", "Failed to read uploaded file")
		return
	}
	if int64(len(content)) > uc.maxSize {
		errorResponse(c, http.StatusBadRequest, "FILE_TOO_LARGE", "File size exceeds maximum allowed size")
		return
	}

	stored, err := uc.storage.Upload(c.Request.Context(), content, fileHeader.Filename, orderID, profile.ID)
	if err != nil {
		jww.ERROR.Printf("[S3] Upload of %q for order %d failed: %v", fileHeader.Filename, orderID, err)
		errorResponse(c, http.StatusBadGateway, "UPLOAD_FAILED", "Failed to store the uploaded file")
		return
	}

	file := models.OrderFile{
		OrderID:    orderID,
		UploaderID: profile.ID,
		Name:       fileHeader.Filename,
		URL:        stored.URL,
		StorageKey: stored.Key,
		FileType:   utils.InferFileType(fileHeader.Filename),
		Size:       int64(len(content)),
	}
	if err := uc.files.CreateOrderFile(c.Request.Context(), &file); err != nil {
		// The object is orphaned without its metadata row.
		if delErr := uc.storage.Delete(context.WithoutCancel(c.Request.Context()), stored.Key); delErr != nil {
			jww.ERROR.Printf("[S3] Failed to remove orphaned object %s: %v", stored.Key, delErr)
		}
		renderError(c, chat.FromStore(err, "create order file", chat.CodeOrderNotFound))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    file,
	})
}
