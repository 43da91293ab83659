package chat

import (
	"context"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
)

// Store is the persistence surface the chat core depends on. store.GormStore
// implements it.
type Store interface {
	GetProfile(ctx context.Context, id uint) (*models.Profile, error)
	GetOrder(ctx context.Context, id uint) (*models.DesignOrder, error)
	FindRoomByOrder(ctx context.Context, orderID uint) (*models.ChatRoom, error)
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	ClaimRoomStaff(ctx context.Context, roomID, staffID uint) (bool, error)
	ListMessages(ctx context.Context, orderID uint) ([]models.ChatMessage, error)
	InsertMessage(ctx context.Context, msg *models.ChatMessage, files []models.OrderFile) error
	MarkRead(ctx context.Context, orderID, readerID uint) (int64, error)
}

var _ Store = (*store.GormStore)(nil)
