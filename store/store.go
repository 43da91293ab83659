package store

import (
	"context"
	"time"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

// DefaultTimeout bounds every store call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// GormStore is the table-oriented persistent store backing the chat core.
// Message inserts are announced on the Feed after they commit.
type GormStore struct {
	db      *gorm.DB
	feed    Feed
	timeout time.Duration
}

// New creates a GormStore. A nil feed disables change notifications.
func New(db *gorm.DB, feed Feed, timeout time.Duration) *GormStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GormStore{db: db, feed: feed, timeout: timeout}
}

// DB returns the underlying gorm handle.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Feed returns the change feed messages are published on.
func (s *GormStore) Feed() Feed {
	return s.feed
}

func (s *GormStore) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

// Ping verifies the database connection is alive.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(classify(err), "get database handle")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return errors.Wrap(classify(sqlDB.PingContext(ctx)), "ping database")
}

// --- Profiles ---

// GetProfile returns the profile with the given id.
func (s *GormStore) GetProfile(ctx context.Context, id uint) (*models.Profile, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var profile models.Profile
	if err := db.First(&profile, id).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "get profile %d", id)
	}
	return &profile, nil
}

// GetProfileByAuth0ID returns the profile bound to an Auth0 subject.
func (s *GormStore) GetProfileByAuth0ID(ctx context.Context, auth0ID string) (*models.Profile, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var profile models.Profile
	if err := db.Where("auth0_id = ?", auth0ID).First(&profile).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "get profile for subject %q", auth0ID)
	}
	return &profile, nil
}

// CreateProfile inserts a new profile.
func (s *GormStore) CreateProfile(ctx context.Context, profile *models.Profile) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return errors.Wrap(classify(db.Create(profile).Error), "create profile")
}

// UpdateProfile applies the non-empty fields of updates to the profile.
func (s *GormStore) UpdateProfile(ctx context.Context, id uint, updates map[string]any) (*models.Profile, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var profile models.Profile
	if err := db.First(&profile, id).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "get profile %d", id)
	}
	if len(updates) == 0 {
		return &profile, nil
	}
	if err := db.Model(&profile).Updates(updates).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "update profile %d", id)
	}
	return &profile, nil
}

// ListDesigners returns every designer profile ordered by id.
func (s *GormStore) ListDesigners(ctx context.Context) ([]models.Profile, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var designers []models.Profile
	if err := db.Where("role = ?", models.RoleDesigner).Order("id ASC").Find(&designers).Error; err != nil {
		return nil, errors.Wrap(classify(err), "list designers")
	}
	return designers, nil
}

// --- Orders ---

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	ClientID   uint
	DesignerID uint
	Status     models.OrderStatus
}

// CreateOrder inserts a new design order.
func (s *GormStore) CreateOrder(ctx context.Context, order *models.DesignOrder) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return errors.Wrap(classify(db.Create(order).Error), "create order")
}

// GetOrder returns the order with the given id.
func (s *GormStore) GetOrder(ctx context.Context, id uint) (*models.DesignOrder, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var order models.DesignOrder
	if err := db.First(&order, id).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "get order %d", id)
	}
	return &order, nil
}

// ListOrders returns orders matching the filter, newest first.
func (s *GormStore) ListOrders(ctx context.Context, filter OrderFilter) ([]models.DesignOrder, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	q := db.Model(&models.DesignOrder{})
	if filter.ClientID != 0 {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.DesignerID != 0 {
		q = q.Where("designer_id = ?", filter.DesignerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var orders []models.DesignOrder
	if err := q.Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, errors.Wrap(classify(err), "list orders")
	}
	return orders, nil
}

// DesignerLoad is the number of active orders assigned to one designer.
type DesignerLoad struct {
	DesignerID uint
	Active     int64
}

// DesignerLoads counts pending and in-progress orders per assigned designer.
func (s *GormStore) DesignerLoads(ctx context.Context) ([]DesignerLoad, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var loads []DesignerLoad
	err := db.Model(&models.DesignOrder{}).
		Select("designer_id, COUNT(*) AS active").
		Where("designer_id IS NOT NULL").
		Where("status IN ?", []models.OrderStatus{models.OrderStatusPending, models.OrderStatusInProgress}).
		Group("designer_id").
		Scan(&loads).Error
	if err != nil {
		return nil, errors.Wrap(classify(err), "count designer loads")
	}
	return loads, nil
}

// AssignDesigner points an unassigned order at a designer. It reports false
// when the order already had a designer.
func (s *GormStore) AssignDesigner(ctx context.Context, orderID, designerID uint) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	result := db.Model(&models.DesignOrder{}).
		Where("id = ? AND designer_id IS NULL", orderID).
		Update("designer_id", designerID)
	if result.Error != nil {
		return false, errors.Wrapf(classify(result.Error), "assign designer to order %d", orderID)
	}
	return result.RowsAffected == 1, nil
}

// TransitionOrder moves an order from one status to the next and records the
// stage. It reports false when the order was no longer in the from status.
func (s *GormStore) TransitionOrder(ctx context.Context, stage *models.OrderStage) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	moved := false
	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.DesignOrder{}).
			Where("id = ? AND status = ?", stage.OrderID, stage.FromStatus).
			Update("status", stage.ToStatus)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		moved = true
		return tx.Create(stage).Error
	})
	if err != nil {
		return false, errors.Wrapf(classify(err), "transition order %d", stage.OrderID)
	}
	return moved, nil
}

// RecordStage stores a stage note without changing the order's status.
func (s *GormStore) RecordStage(ctx context.Context, stage *models.OrderStage) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return errors.Wrapf(classify(db.Create(stage).Error), "record stage for order %d", stage.OrderID)
}

// ListStages returns an order's stage history, oldest first.
func (s *GormStore) ListStages(ctx context.Context, orderID uint) ([]models.OrderStage, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var stages []models.OrderStage
	if err := db.Where("order_id = ?", orderID).Order("id ASC").Find(&stages).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "list stages for order %d", orderID)
	}
	return stages, nil
}

// --- Chat rooms ---

// FindRoomByOrder returns the room bound to an order.
func (s *GormStore) FindRoomByOrder(ctx context.Context, orderID uint) (*models.ChatRoom, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var room models.ChatRoom
	if err := db.Where("order_id = ?", orderID).First(&room).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "find room for order %d", orderID)
	}
	return &room, nil
}

// CreateRoom inserts a room. A second room for the same order fails with
// ErrDuplicate.
func (s *GormStore) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return errors.Wrapf(classify(db.Create(room).Error), "create room for order %d", room.OrderID)
}

// ClaimRoomStaff sets the room's staff pointer if it is still unset. It
// reports whether this call set it.
func (s *GormStore) ClaimRoomStaff(ctx context.Context, roomID, staffID uint) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	result := db.Model(&models.ChatRoom{}).
		Where("id = ? AND admin_id IS NULL", roomID).
		Update("admin_id", staffID)
	if result.Error != nil {
		return false, errors.Wrapf(classify(result.Error), "claim room %d", roomID)
	}
	return result.RowsAffected == 1, nil
}

// --- Chat messages ---

// ListMessages returns an order's messages in created_at order, ties broken
// by id, with their files attached.
func (s *GormStore) ListMessages(ctx context.Context, orderID uint) ([]models.ChatMessage, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	messages := []models.ChatMessage{}
	err := db.Where("order_id = ?", orderID).
		Preload("Files", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrapf(classify(err), "list messages for order %d", orderID)
	}
	return messages, nil
}

// InsertMessage persists a message, links its files and bumps the room's
// unread counter in one transaction, then publishes the committed row.
//
// Files with a zero ID are created; files with an ID must be unlinked
// uploads of the same order and are attached to the message.
func (s *GormStore) InsertMessage(ctx context.Context, msg *models.ChatMessage, files []models.OrderFile) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	linked := make([]models.OrderFile, 0, len(files))
	err := db.Transaction(func(tx *gorm.DB) error {
		msg.Files = nil
		if err := tx.Omit("Files").Create(msg).Error; err != nil {
			return err
		}

		for _, file := range files {
			if err := linkFile(tx, msg, &file); err != nil {
				return err
			}
			linked = append(linked, file)
		}

		return tx.Model(&models.ChatRoom{}).
			Where("id = ?", msg.RoomID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
	})
	if err != nil {
		msg.ID = 0
		return errors.Wrapf(classify(err), "insert message for order %d", msg.OrderID)
	}
	if len(linked) > 0 {
		msg.Files = linked
	}

	if s.feed != nil {
		if err := s.feed.Publish(ctx, *msg); err != nil {
			jww.WARN.Printf("[FEED] Failed to publish message %d for order %d: %v", msg.ID, msg.OrderID, err)
		}
	}
	return nil
}

func linkFile(tx *gorm.DB, msg *models.ChatMessage, file *models.OrderFile) error {
	messageID := msg.ID
	if file.ID == 0 {
		file.OrderID = msg.OrderID
		file.MessageID = &messageID
		if err := tx.Create(file).Error; err != nil {
			return err
		}
	} else {
		result := tx.Model(&models.OrderFile{}).
			Where("id = ? AND order_id = ? AND message_id IS NULL", file.ID, msg.OrderID).
			Update("message_id", messageID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(ErrNotFound, "file %d is not an unlinked upload of order %d", file.ID, msg.OrderID)
		}
		if err := tx.First(file, file.ID).Error; err != nil {
			return err
		}
	}

	return tx.Create(&models.MessageFile{MessageID: messageID, OrderFileID: file.ID}).Error
}

// MarkRead flags every message of the order not sent by readerID as read and
// resets the room counter. It returns the number of messages flipped.
func (s *GormStore) MarkRead(ctx context.Context, orderID, readerID uint) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var flipped int64
	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ChatMessage{}).
			Where("order_id = ? AND sender_id <> ? AND is_read = ?", orderID, readerID, false).
			UpdateColumn("is_read", true)
		if result.Error != nil {
			return result.Error
		}
		flipped = result.RowsAffected

		return tx.Model(&models.ChatRoom{}).
			Where("order_id = ? AND unread_count <> 0", orderID).
			UpdateColumn("unread_count", 0).Error
	})
	if err != nil {
		return 0, errors.Wrapf(classify(err), "mark order %d read for %d", orderID, readerID)
	}
	return flipped, nil
}

// --- Files ---

// CreateOrderFile stores metadata of an upload that is not yet attached to a message.
func (s *GormStore) CreateOrderFile(ctx context.Context, file *models.OrderFile) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return errors.Wrapf(classify(db.Create(file).Error), "create file for order %d", file.OrderID)
}

// --- Push subscriptions ---

// SavePushSubscription stores or re-activates a Web Push endpoint.
func (s *GormStore) SavePushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	var existing models.PushSubscription
	err := db.Where("endpoint = ?", sub.Endpoint).First(&existing).Error
	switch {
	case err == nil:
		err = db.Model(&existing).Updates(map[string]any{
			"profile_id": sub.ProfileID,
			"p256dh":     sub.P256dh,
			"auth":       sub.Auth,
			"revoked_at": nil,
		}).Error
		*sub = existing
		sub.RevokedAt = nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = db.Create(sub).Error
	}
	return errors.Wrap(classify(err), "save push subscription")
}

// ActivePushSubscriptions returns the profile's non-revoked endpoints.
func (s *GormStore) ActivePushSubscriptions(ctx context.Context, profileID uint) ([]models.PushSubscription, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var subs []models.PushSubscription
	if err := db.Where("profile_id = ? AND revoked_at IS NULL", profileID).Find(&subs).Error; err != nil {
		return nil, errors.Wrapf(classify(err), "list push subscriptions for %d", profileID)
	}
	return subs, nil
}

// RevokePushSubscription marks an endpoint expired.
func (s *GormStore) RevokePushSubscription(ctx context.Context, endpoint string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Model(&models.PushSubscription{}).
		Where("endpoint = ?", endpoint).
		Update("revoked_at", time.Now()).Error
	return errors.Wrap(classify(err), "revoke push subscription")
}
