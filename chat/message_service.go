package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/kendall-kelly/design-studio-api/utils"
	"github.com/pkg/errors"
)

// MaxContentLength is the longest message body accepted, in runes.
const MaxContentLength = 5000

// SystemSenderName is the display name of system messages.
const SystemSenderName = "System"

// Attachment is an uploaded file to link to a message. A non-zero FileID
// refers to an existing unlinked upload of the same order.
type Attachment struct {
	FileID uint   `json:"file_id,omitempty"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
}

// SendRequest is one logical send.
type SendRequest struct {
	OrderID     uint
	SenderID    uint
	SenderName  string
	SenderRole  models.SenderRole
	Content     string
	Type        models.MessageType
	Attachments []Attachment
}

// MessageService validates, persists and retrieves chat messages.
type MessageService struct {
	store Store
	rooms *RoomResolver
	cache *Cache
}

// NewMessageService creates a MessageService. cache may be nil.
func NewMessageService(s Store, rooms *RoomResolver, cache *Cache) *MessageService {
	return &MessageService{store: s, rooms: rooms, cache: cache}
}

// Rooms returns the resolver the service writes through.
func (s *MessageService) Rooms() *RoomResolver {
	return s.rooms
}

// ListMessages returns the order's history in store order, from the cache
// when fresh. An order with no messages yields an empty slice.
func (s *MessageService) ListMessages(ctx context.Context, orderID uint) ([]models.ChatMessage, error) {
	if messages, ok := s.cache.messages(orderID); ok {
		return messages, nil
	}
	return s.ReloadMessages(ctx, orderID)
}

// ReloadMessages reads the history from the store, bypassing the cache.
func (s *MessageService) ReloadMessages(ctx context.Context, orderID uint) ([]models.ChatMessage, error) {
	if orderID == 0 {
		return nil, validationError(CodeInvalidInput, "order id is required")
	}

	messages, err := s.store.ListMessages(ctx, orderID)
	if err != nil {
		return nil, fromStore(err, "list messages", CodeOrderNotFound)
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	s.cache.setMessages(orderID, messages)
	return copyMessages(messages), nil
}

// Send persists one message and its attachments and returns the stored
// row. Nothing is written when validation or authorization fails.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (*models.ChatMessage, error) {
	msgType, content, err := validateSend(&req)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, req.SenderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindUnauthorized, CodeProfileNotFound, "sender has no profile")
		}
		return nil, fromStore(err, "get profile", CodeProfileNotFound)
	}
	if string(profile.Role) != string(req.SenderRole) {
		return nil, newError(KindUnauthorized, CodeRoleMismatch, "sender role does not match profile")
	}

	if profile.Role == models.RoleClient {
		order, err := s.store.GetOrder(ctx, req.OrderID)
		if err != nil {
			return nil, fromStore(err, "get order", CodeOrderNotFound)
		}
		if order.ClientID != profile.ID {
			return nil, newError(KindUnauthorized, CodeNotOrderOwner, "clients may only write on their own orders")
		}
	}

	room, err := s.rooms.Resolve(ctx, req.OrderID, profile.ID, profile.Role)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.SenderName)
	if name == "" {
		name = profile.Name
	}

	msg := &models.ChatMessage{
		RoomID:      room.ID,
		OrderID:     req.OrderID,
		SenderID:    profile.ID,
		SenderName:  name,
		SenderRole:  req.SenderRole,
		Content:     content,
		MessageType: msgType,
	}
	if err := s.store.InsertMessage(ctx, msg, attachmentFiles(req.Attachments, profile.ID)); err != nil {
		return nil, fromStore(err, "insert message", CodeOrderNotFound)
	}

	s.cache.InvalidateOrder(req.OrderID)
	return msg, nil
}

// SendSystem posts a system message on the order's thread.
func (s *MessageService) SendSystem(ctx context.Context, orderID uint, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if orderID == 0 || content == "" {
		return nil, validationError(CodeInvalidInput, "order id and content are required")
	}

	room, err := s.rooms.Resolve(ctx, orderID, 0, "")
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		RoomID:      room.ID,
		OrderID:     orderID,
		SenderName:  SystemSenderName,
		SenderRole:  models.SenderSystem,
		Content:     content,
		MessageType: models.MessageTypeSystem,
	}
	if err := s.store.InsertMessage(ctx, msg, nil); err != nil {
		return nil, fromStore(err, "insert system message", CodeOrderNotFound)
	}

	s.cache.InvalidateOrder(orderID)
	return msg, nil
}

// MarkRead flags every message of the order not sent by readerID as read
// and resets the room's unread counter.
func (s *MessageService) MarkRead(ctx context.Context, orderID, readerID uint) (int64, error) {
	if orderID == 0 || readerID == 0 {
		return 0, validationError(CodeInvalidInput, "order id and reader id are required")
	}

	flipped, err := s.store.MarkRead(ctx, orderID, readerID)
	if err != nil {
		return 0, fromStore(err, "mark read", CodeOrderNotFound)
	}
	s.cache.InvalidateOrder(orderID)
	return flipped, nil
}

func validateSend(req *SendRequest) (models.MessageType, string, error) {
	if req.OrderID == 0 || req.SenderID == 0 {
		return "", "", validationError(CodeInvalidInput, "order id and sender id are required")
	}
	switch req.SenderRole {
	case models.SenderClient, models.SenderDesigner, models.SenderAdmin:
	default:
		return "", "", validationError(CodeInvalidInput, "sender role must be client, designer or admin")
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
		if len(req.Attachments) > 0 {
			msgType = models.MessageTypeFile
		}
	}
	if msgType != models.MessageTypeText && msgType != models.MessageTypeFile {
		return "", "", validationError(CodeInvalidType, "message type must be text or file")
	}
	if msgType == models.MessageTypeFile && len(req.Attachments) == 0 {
		return "", "", validationError(CodeFileRequired, "file messages need at least one attachment")
	}

	content := strings.TrimSpace(req.Content)
	if content == "" && msgType != models.MessageTypeFile {
		return "", "", validationError(CodeEmptyMessage, "message cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", "", validationError(CodeMessageTooLong, "message is too long")
	}

	for _, a := range req.Attachments {
		if a.FileID == 0 && (strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "") {
			return "", "", validationError(CodeInvalidInput, "attachments need a name and url")
		}
	}
	return msgType, content, nil
}

func attachmentFiles(attachments []Attachment, uploaderID uint) []models.OrderFile {
	if len(attachments) == 0 {
		return nil
	}
	files := make([]models.OrderFile, 0, len(attachments))
	for _, a := range attachments {
		if a.FileID != 0 {
			files = append(files, models.OrderFile{ID: a.FileID})
			continue
		}
		files = append(files, models.OrderFile{
			UploaderID: uploaderID,
			Name:       a.Name,
			URL:        a.URL,
			FileType:   utils.InferFileType(a.Name),
			Size:       a.Size,
		})
	}
	return files
}
