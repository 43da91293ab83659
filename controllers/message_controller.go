package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/services"
)

// SendMessageRequest represents the request body for posting a chat message
type SendMessageRequest struct {
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"message_type"`
	Attachments []chat.Attachment  `json:"attachments"`
}

// MessageController serves the request/response chat endpoints.
type MessageController struct {
	profiles ProfileLookup
	orders   *services.OrderService
	messages *chat.MessageService
}

// NewMessageController creates a MessageController.
func NewMessageController(profiles ProfileLookup, orders *services.OrderService, messages *chat.MessageService) *MessageController {
	return &MessageController{profiles: profiles, orders: orders, messages: messages}
}

// authorize loads the caller and checks they may see the order's thread.
func (mc *MessageController) authorize(c *gin.Context) (*models.Profile, uint, bool) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return nil, 0, false
	}
	profile, ok := currentProfile(c, mc.profiles)
	if !ok {
		return nil, 0, false
	}
	if _, err := mc.orders.Get(c.Request.Context(), profile, orderID); err != nil {
		renderError(c, err)
		return nil, 0, false
	}
	return profile, orderID, true
}

// GetMessages handles GET /api/v1/orders/:id/messages
func (mc *MessageController) GetMessages(c *gin.Context) {
	_, orderID, ok := mc.authorize(c)
	if !ok {
		return
	}

	messages, err := mc.messages.ListMessages(c.Request.Context(), orderID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    messages,
		"count":   len(messages),
	})
}

// SendMessage handles POST /api/v1/orders/:id/messages
func (mc *MessageController) SendMessage(c *gin.Context) {
	profile, orderID, ok := mc.authorize(c)
	if !ok {
		return
	}

	var req SendMessageRequest
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

	msg, err := mc.messages.Send(c.Request.Context(), chat.SendRequest{
		OrderID:     orderID,
		SenderID:    profile.ID,
		SenderName:  profile.Name,
		SenderRole:  models.SenderRole(profile.Role),
		Content:     req.Content,
		Type:        req.MessageType,
		Attachments: req.Attachments,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    msg,
	})
}

// MarkMessagesRead handles POST /api/v1/orders/:id/messages/read
func (mc *MessageController) MarkMessagesRead(c *gin.Context) {
	profile, orderID, ok := mc.authorize(c)
	if !ok {
		return
	}

	flipped, err := mc.messages.MarkRead(c.Request.Context(), orderID, profile.ID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"marked": flipped,
		},
	})
}
