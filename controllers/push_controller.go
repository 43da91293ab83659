package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
)

// PushSubscriptionStore persists Web Push endpoints.
type PushSubscriptionStore interface {
	SavePushSubscription(ctx context.Context, sub *models.PushSubscription) error
	RevokePushSubscription(ctx context.Context, endpoint string) error
}

// PushSubscriptionRequest mirrors the browser's PushSubscription JSON
type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// UnsubscribeRequest names the endpoint to drop
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// PushController manages Web Push subscriptions.
type PushController struct {
	profiles       ProfileLookup
	subs           PushSubscriptionStore
	vapidPublicKey string
}

// NewPushController creates a PushController.
func NewPushController(profiles ProfileLookup, subs PushSubscriptionStore, vapidPublicKey string) *PushController {
	return &PushController{profiles: profiles, subs: subs, vapidPublicKey: vapidPublicKey}
}

// GetVAPIDKey handles GET /api/v1/push/vapid-key
func (pc *PushController) GetVAPIDKey(c *gin.Context) {
	if pc.vapidPublicKey == "" {
		errorResponse(c, http.StatusServiceUnavailable, "PUSH_DISABLED", "Push notifications are not configured")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"public_key": pc.vapidPublicKey,
		},
	})
}

// Subscribe handles POST /api/v1/push/subscriptions
func (pc *PushController) Subscribe(c *gin.Context) {
	var req PushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid push subscription",
				"details": err.Error(),
			},
		})
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") {
		errorResponse(c, http.StatusBadRequest, "INVALID_ENDPOINT", "Push endpoint must be an https URL")
		return
	}

	profile, ok := currentProfile(c, pc.profiles)
	if !ok {
		return
	}

	sub := models.PushSubscription{
		ProfileID: profile.ID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
	}
	if err := pc.subs.SavePushSubscription(c.Request.Context(), &sub); err != nil {
		renderError(c, chat.FromStore(err, "save push subscription", "SUBSCRIPTION_NOT_FOUND"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    sub,
	})
}

// Unsubscribe handles DELETE /api/v1/push/subscriptions
func (pc *PushController) Unsubscribe(c *gin.Context) {
	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "endpoint is required")
		return
	}
	if _, ok := currentProfile(c, pc.profiles); !ok {
		return
	}

	if err := pc.subs.RevokePushSubscription(c.Request.Context(), req.Endpoint); err != nil {
		renderError(c, chat.FromStore(err, "revoke push subscription", "SUBSCRIPTION_NOT_FOUND"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Subscription removed",
	})
}
