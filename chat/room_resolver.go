package chat

import (
	"context"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// RoomResolver maps an order to its single chat room, creating the room on
// first access.
type RoomResolver struct {
	store Store
	cache *Cache
}

// NewRoomResolver creates a resolver. cache may be nil.
func NewRoomResolver(s Store, cache *Cache) *RoomResolver {
	return &RoomResolver{store: s, cache: cache}
}

// Resolve returns the room for orderID. When a staff member resolves a room
// with no assigned staff, the room is claimed for them; a failed claim is
// logged and the unclaimed room is returned.
func (r *RoomResolver) Resolve(ctx context.Context, orderID, actorID uint, actorRole models.Role) (*models.ChatRoom, error) {
	if orderID == 0 {
		return nil, validationError(CodeInvalidInput, "order id is required")
	}

	if room, ok := r.cache.room(orderID); ok {
		return r.claim(ctx, room, actorID, actorRole), nil
	}

	room, err := r.store.FindRoomByOrder(ctx, orderID)
	switch {
	case err == nil:
		r.cache.setRoom(room)
		return r.claim(ctx, room, actorID, actorRole), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fromStore(err, "find room", CodeRoomNotFound)
	}

	return r.create(ctx, orderID, actorID, actorRole)
}

func (r *RoomResolver) create(ctx context.Context, orderID, actorID uint, actorRole models.Role) (*models.ChatRoom, error) {
	order, err := r.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fromStore(err, "get order", CodeOrderNotFound)
	}

	room := &models.ChatRoom{
		OrderID:  orderID,
		ClientID: order.ClientID,
		IsActive: true,
	}
	if actorRole.IsStaff() && actorID != 0 {
		staffID := actorID
		room.AdminID = &staffID
	}

	err = r.store.CreateRoom(ctx, room)
	if err == nil {
		jww.INFO.Printf("[CHAT] Created room %d for order %d", room.ID, orderID)
		r.cache.setRoom(room)
		return room, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, fromStore(err, "create room", CodeRoomNotFound)
	}

	// Lost the create race: the other writer's row is the room.
	winner, err := r.store.FindRoomByOrder(ctx, orderID)
	if err != nil {
		return nil, fromStore(err, "find room", CodeRoomNotFound)
	}
	r.cache.setRoom(winner)
	return r.claim(ctx, winner, actorID, actorRole), nil
}

func (r *RoomResolver) claim(ctx context.Context, room *models.ChatRoom, actorID uint, actorRole models.Role) *models.ChatRoom {
	if !actorRole.IsStaff() || actorID == 0 || room.AdminID != nil {
		return room
	}

	claimed, err := r.store.ClaimRoomStaff(ctx, room.ID, actorID)
	if err != nil {
		jww.WARN.Printf("[CHAT] Failed to assign staff %d to room %d: %v", actorID, room.ID, err)
		return room
	}
	if !claimed {
		// Someone else claimed it first; the cached copy is stale.
		r.cache.Invalidate(roomKey(room.OrderID))
		return room
	}

	staffID := actorID
	room.AdminID = &staffID
	r.cache.setRoom(room)
	return room
}
