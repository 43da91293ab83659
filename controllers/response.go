package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/middleware"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/pkg/errors"
)

// ProfileLookup resolves the authenticated subject to a profile.
type ProfileLookup interface {
	GetProfileByAuth0ID(ctx context.Context, auth0ID string) (*models.Profile, error)
}

// errorResponse writes the standard error envelope.
func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind chat.Kind) int {
	switch kind {
	case chat.KindValidation:
		return http.StatusBadRequest
	case chat.KindUnauthorized:
		return http.StatusForbidden
	case chat.KindNotFound:
		return http.StatusNotFound
	case chat.KindTimeout:
		return http.StatusGatewayTimeout
	case chat.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes err in the envelope, using its kind for the status.
// Unknown errors never leak their message.
func renderError(c *gin.Context, err error) {
	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		errorResponse(c, http.StatusInternalServerError, chat.CodeInternal, "An unexpected error occurred")
		return
	}
	if chatErr.Kind == chat.KindUnknown {
		errorResponse(c, http.StatusInternalServerError, chat.CodeInternal, "An unexpected error occurred")
		return
	}
	errorResponse(c, statusForKind(chatErr.Kind), chatErr.Code, chatErr.Message)
}

// currentProfile loads the caller's profile. It writes the error response
// itself and returns false when the request cannot continue.
func currentProfile(c *gin.Context, profiles ProfileLookup) (*models.Profile, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return nil, false
	}

	profile, err := profiles.GetProfileByAuth0ID(c.Request.Context(), auth0ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.")
			return nil, false
		}
		renderError(c, chat.FromStore(err, "get profile", chat.CodeProfileNotFound))
		return nil, false
	}
	return profile, true
}

// orderIDParam parses the :id path parameter.
func orderIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		errorResponse(c, http.StatusBadRequest, "INVALID_ORDER_ID", "Order ID must be a positive integer")
		return 0, false
	}
	return uint(id), true
}
