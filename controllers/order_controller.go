package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/services"
)

// StageLister reads an order's recorded status transitions.
type StageLister interface {
	ListStages(ctx context.Context, orderID uint) ([]models.OrderStage, error)
}

// UpdateStatusRequest represents the request body for moving an order forward
type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

// OrderController serves the order endpoints.
type OrderController struct {
	profiles   ProfileLookup
	stages     StageLister
	orders     *services.OrderService
	assignment *services.AssignmentService
}

// NewOrderController creates an OrderController.
func NewOrderController(profiles ProfileLookup, stages StageLister, orders *services.OrderService, assignment *services.AssignmentService) *OrderController {
	return &OrderController{profiles: profiles, stages: stages, orders: orders, assignment: assignment}
}

// CreateOrder handles POST /api/v1/orders - creates a new order (clients only)
func (oc *OrderController) CreateOrder(c *gin.Context) {
	profile, ok := currentProfile(c, oc.profiles)
	if !ok {
		return
	}

	var req services.CreateOrderInput
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

	order, err := oc.orders.Create(c.Request.Context(), profile, req)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
	})
}

// ListOrders handles GET /api/v1/orders - lists the orders visible to the caller
func (oc *OrderController) ListOrders(c *gin.Context) {
	profile, ok := currentProfile(c, oc.profiles)
	if !ok {
		return
	}

	orders, err := oc.orders.List(c.Request.Context(), profile, models.OrderStatus(c.Query("status")))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"count":   len(orders),
	})
}

// GetOrder handles GET /api/v1/orders/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	profile, ok := currentProfile(c, oc.profiles)
	if !ok {
		return
	}

	order, err := oc.orders.Get(c.Request.Context(), profile, orderID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// ListOrderStages handles GET /api/v1/orders/:id/stages
func (oc *OrderController) ListOrderStages(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	profile, ok := currentProfile(c, oc.profiles)
	if !ok {
		return
	}

	if _, err := oc.orders.Get(c.Request.Context(), profile, orderID); err != nil {
		renderError(c, err)
		return
	}

	stages, err := oc.stages.ListStages(c.Request.Context(), orderID)
	if err != nil {
		renderError(c, chat.FromStore(err, "list stages", chat.CodeOrderNotFound))
		return
	}
	if stages == nil {
		stages = []models.OrderStage{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stages,
	})
}

// UpdateOrderStatus handles PATCH /api/v1/orders/:id/status (staff only)
func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
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

	profile, ok := currentProfile(c, oc.profiles)
	if !ok {
		return
	}

	order, err := oc.assignment.UpdateStatus(c.Request.Context(), orderID, profile, req.Status, req.Note)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// AssignDesigner handles POST /api/v1/orders/:id/assign (staff only)
func (oc *OrderController) AssignDesigner(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	profile, ok := currentProfile(c, oc.profiles)
	if !ok {
		return
	}

	order, err := oc.assignment.AssignDesigner(c.Request.Context(), orderID, profile)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}
