package services

import (
	"context"
	"strings"

	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
)

// OrderStore is the order persistence used by the order and assignment services.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.DesignOrder) error
	GetOrder(ctx context.Context, id uint) (*models.DesignOrder, error)
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.DesignOrder, error)
}

// CreateOrderInput is a client's design request.
type CreateOrderInput struct {
	DesignType  string          `json:"design_type" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Priority    models.Priority `json:"priority"`
}

// OrderService handles order creation and visibility.
type OrderService struct {
	store OrderStore
}

// NewOrderService creates an OrderService.
func NewOrderService(s OrderStore) *OrderService {
	return &OrderService{store: s}
}

// Create stores a pending order owned by client. The client's name and
// phone are copied onto the order.
func (s *OrderService) Create(ctx context.Context, client *models.Profile, input CreateOrderInput) (*models.DesignOrder, error) {
	if client.Role != models.RoleClient {
		return nil, chat.NewError(chat.KindUnauthorized, "CLIENTS_ONLY", "only clients can create orders")
	}

	designType := strings.TrimSpace(input.DesignType)
	description := strings.TrimSpace(input.Description)
	if designType == "" || description == "" {
		return nil, chat.NewError(chat.KindValidation, chat.CodeInvalidInput, "design_type and description are required")
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, chat.NewError(chat.KindValidation, "INVALID_PRIORITY", "priority must be low, medium or high")
	}

	order := &models.DesignOrder{
		ClientID:    client.ID,
		ClientName:  client.Name,
		ClientPhone: client.Phone,
		DesignType:  designType,
		Description: description,
		Status:      models.OrderStatusPending,
		Priority:    priority,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, chat.FromStore(err, "create order", chat.CodeOrderNotFound)
	}
	return order, nil
}

// Get returns an order the viewer may see.
func (s *OrderService) Get(ctx context.Context, viewer *models.Profile, orderID uint) (*models.DesignOrder, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, chat.FromStore(err, "get order", chat.CodeOrderNotFound)
	}
	if !CanView(viewer, order) {
		return nil, chat.NewError(chat.KindUnauthorized, chat.CodeNotOrderOwner, "you do not have access to this order")
	}
	return order, nil
}

// List returns the orders visible to viewer: clients see their own, designers
// the ones assigned to them, admins everything.
func (s *OrderService) List(ctx context.Context, viewer *models.Profile, status models.OrderStatus) ([]models.DesignOrder, error) {
	if status != "" && !status.Valid() {
		return nil, chat.NewError(chat.KindValidation, "INVALID_STATUS", "unknown order status")
	}

	filter := store.OrderFilter{Status: status}
	switch viewer.Role {
	case models.RoleClient:
		filter.ClientID = viewer.ID
	case models.RoleDesigner:
		filter.DesignerID = viewer.ID
	}

	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, chat.FromStore(err, "list orders", chat.CodeOrderNotFound)
	}
	if orders == nil {
		orders = []models.DesignOrder{}
	}
	return orders, nil
}

// CanView reports whether viewer may read the order and its chat thread:
// the owning client, any designer or any admin.
func CanView(viewer *models.Profile, order *models.DesignOrder) bool {
	if viewer == nil || order == nil {
		return false
	}
	return viewer.Role.IsStaff() || order.ClientID == viewer.ID
}
