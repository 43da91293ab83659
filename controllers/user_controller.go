package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/middleware"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/services"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// UserStore is the profile persistence used by UserController.
type UserStore interface {
	ProfileLookup
	CreateProfile(ctx context.Context, profile *models.Profile) error
	UpdateProfile(ctx context.Context, id uint, updates map[string]any) (*models.Profile, error)
}

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty"`
	Phone string `json:"phone" binding:"omitempty"`
}

// UserController serves the profile endpoints.
type UserController struct {
	store    UserStore
	userInfo services.UserInfoProvider
}

// NewUserController creates a UserController.
func NewUserController(s UserStore, userInfo services.UserInfoProvider) *UserController {
	return &UserController{store: s, userInfo: userInfo}
}

// CreateUser handles POST /api/v1/users - creates a profile from Auth0 userinfo
func (uc *UserController) CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token")
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found")
		return
	}

	userInfo, err := uc.userInfo.GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		jww.ERROR.Printf("[AUTH0] userinfo lookup for %s failed: %v", auth0ID, err)
		errorResponse(c, http.StatusInternalServerError, "AUTH0_ERROR", "Failed to fetch user information from Auth0")
		return
	}

	if userInfo.Email == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_EMAIL", "Email not provided by Auth0")
		return
	}
	if userInfo.Name == "" {
		errorResponse(c, http.StatusBadRequest, "MISSING_NAME", "Name not provided by Auth0")
		return
	}

	// Role comes from the token's custom claim; anything unknown is a client.
	role := models.Role(middleware.GetClaimedRole(c))
	if !role.Valid() {
		role = models.RoleClient
	}

	profile := models.Profile{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Phone:   userInfo.Phone,
		Role:    role,
	}
	if err := uc.store.CreateProfile(c.Request.Context(), &profile); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			errorResponse(c, http.StatusConflict, "USER_EXISTS", "A profile for this Auth0 user already exists")
			return
		}
		renderError(c, chat.FromStore(err, "create profile", chat.CodeProfileNotFound))
		return
	}

	jww.INFO.Printf("[AUTH] Created %s profile %d for %s", profile.Role, profile.ID, auth0ID)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    profile,
	})
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func (uc *UserController) GetMyProfile(c *gin.Context) {
	profile, ok := currentProfile(c, uc.store)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's name or phone
func (uc *UserController) UpdateMyProfile(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	profile, ok := currentProfile(c, uc.store)
	if !ok {
		return
	}

	updates := make(map[string]any)
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		updates["phone"] = phone
	}

	updated, err := uc.store.UpdateProfile(c.Request.Context(), profile.ID, updates)
	if err != nil {
		renderError(c, chat.FromStore(err, "update profile", chat.CodeProfileNotFound))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updated,
	})
}
