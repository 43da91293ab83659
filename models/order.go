package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of a design order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in-progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// statusRank orders the statuses; transitions only move to the next rank.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusInProgress: 1,
	OrderStatusCompleted:  2,
	OrderStatusDelivered:  3,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Active reports whether an order in this status counts towards a designer's load.
func (s OrderStatus) Active() bool {
	return s == OrderStatusPending || s == OrderStatusInProgress
}

// CanTransitionTo reports whether next is the single forward step after s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Priority of a design order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// DesignOrder represents a client's design request
type DesignOrder struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ClientID    uint           `gorm:"not null;index" json:"client_id"` // foreign key to profiles table
	Client      Profile        `gorm:"foreignKey:ClientID" json:"-"`
	ClientName  string         `gorm:"not null" json:"client_name"` // snapshot at creation
	ClientPhone string         `json:"client_phone"`                // snapshot at creation
	DesignType  string         `gorm:"not null" json:"design_type"`
	Description string         `gorm:"type:text;not null" json:"description"`
	Status      OrderStatus    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Priority    Priority       `gorm:"type:varchar(8);not null;default:'medium'" json:"priority"`
	Price       *float64       `json:"price"`                    // nullable, set once quoted
	DesignerID  *uint          `gorm:"index" json:"designer_id"` // nullable, set on assignment
	Designer    *Profile       `gorm:"foreignKey:DesignerID" json:"designer,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the DesignOrder model
func (DesignOrder) TableName() string {
	return "design_orders"
}

// OrderStage records one status transition of an order.
type OrderStage struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"not null;index" json:"order_id"`
	FromStatus OrderStatus `gorm:"type:varchar(16)" json:"from_status"`
	ToStatus   OrderStatus `gorm:"type:varchar(16);not null" json:"to_status"`
	ActorID    uint        `gorm:"not null" json:"actor_id"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}

// TableName specifies the table name for the OrderStage model
func (OrderStage) TableName() string {
	return "order_stages"
}
