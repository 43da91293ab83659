package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	jww "github.com/spf13/jwalterweatherman"
)

// PushStore is the subscription storage the notifier reads and prunes.
type PushStore interface {
	ActivePushSubscriptions(ctx context.Context, profileID uint) ([]models.PushSubscription, error)
	RevokePushSubscription(ctx context.Context, endpoint string) error
}

// sendFunc matches webpush.SendNotification.
type sendFunc func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// PushNotifier sends Web Push alerts for new chat messages.
type PushNotifier struct {
	store           PushStore
	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string
	send            sendFunc
}

var _ chat.Notifier = (*PushNotifier)(nil)

// NewPushNotifier creates a notifier. Returns nil if VAPID keys are empty;
// a nil *PushNotifier sends nothing.
func NewPushNotifier(s PushStore, vapidPublicKey, vapidPrivateKey string) *PushNotifier {
	if vapidPublicKey == "" || vapidPrivateKey == "" {
		return nil
	}
	return &PushNotifier{
		store:           s,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      "mailto:push@design-studio.local",
		send:            webpush.SendNotification,
	}
}

// VAPIDPublicKey returns the public VAPID key for the frontend.
func (n *PushNotifier) VAPIDPublicKey() string {
	if n == nil {
		return ""
	}
	return n.vapidPublicKey
}

type pushPayload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	URL     string `json:"url"`
	OrderID uint   `json:"order_id"`
}

// NotifyNewMessage alerts every active subscription of recipientID. Errors
// are logged, never returned.
func (n *PushNotifier) NotifyNewMessage(ctx context.Context, recipientID uint, msg models.ChatMessage) {
	if n == nil || recipientID == 0 {
		return
	}

	subs, err := n.store.ActivePushSubscriptions(ctx, recipientID)
	if err != nil {
		jww.WARN.Printf("[PUSH] Failed to load subscriptions for profile %d: %v", recipientID, err)
		return
	}
	if len(subs) == 0 {
		jww.DEBUG.Printf("[PUSH] No active subscriptions for profile %d", recipientID)
		return
	}

	data, err := json.Marshal(pushPayload{
		Title:   "New message from " + msg.SenderName,
		Body:    preview(msg),
		URL:     fmt.Sprintf("/orders/%d/chat", msg.OrderID),
		OrderID: msg.OrderID,
	})
	if err != nil {
		jww.ERROR.Printf("[PUSH] Failed to encode payload for message %d: %v", msg.ID, err)
		return
	}

	jww.INFO.Printf("[PUSH] Sending message %d to %d subscription(s) of profile %d", msg.ID, len(subs), recipientID)
	for _, sub := range subs {
		n.sendTo(ctx, sub, data)
	}
}

// NotifyProfile sends a free-form alert, used for order status changes.
func (n *PushNotifier) NotifyProfile(ctx context.Context, profileID uint, title, body string, orderID uint) {
	n.NotifyNewMessage(ctx, profileID, models.ChatMessage{
		OrderID:     orderID,
		SenderName:  title,
		Content:     body,
		MessageType: models.MessageTypeSystem,
	})
}

func (n *PushNotifier) sendTo(ctx context.Context, sub models.PushSubscription, data []byte) {
	resp, err := n.send(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  n.vapidPublicKey,
		VAPIDPrivateKey: n.vapidPrivateKey,
		Subscriber:      n.subscriber,
		TTL:             86400,
	})
	if err != nil {
		jww.WARN.Printf("[PUSH] Failed to send to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// 410 Gone or 404 means the subscription is expired
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		if err := n.store.RevokePushSubscription(ctx, sub.Endpoint); err != nil {
			jww.WARN.Printf("[PUSH] Failed to revoke expired subscription %s: %v", sub.Endpoint, err)
			return
		}
		jww.INFO.Printf("[PUSH] Revoked expired subscription %s (status %d)", sub.Endpoint, resp.StatusCode)
	}
}

func preview(msg models.ChatMessage) string {
	const limit = 120
	switch {
	case msg.MessageType == models.MessageTypeFile && msg.Content == "":
		return "Sent a file"
	case utf8.RuneCountInString(msg.Content) > limit:
		return string([]rune(msg.Content)[:limit]) + "..."
	default:
		return msg.Content
	}
}
