package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	// orderChannelPattern is the pub/sub channel for one order's messages.
	// Format: chat:order:<orderID>
	orderChannelPattern = "chat:order:%d"

	redisChannelSize = 256
)

// RedisFeed is a Feed over Redis pub/sub so that every API process sees
// messages inserted by any other.
type RedisFeed struct {
	client *redis.Client
}

// NewRedisFeed parses redisURL (e.g. "redis://localhost:6379/0"), connects
// and pings the server.
func NewRedisFeed(redisURL string) (*RedisFeed, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL cannot be empty")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL '%s': %w", redisURL, err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at '%s': %w", redisURL, err)
	}

	return NewRedisFeedFromClient(client), nil
}

// NewRedisFeedFromClient wraps an existing client.
func NewRedisFeedFromClient(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func orderChannel(orderID uint) string {
	return fmt.Sprintf(orderChannelPattern, orderID)
}

// Publish sends the message as JSON on its order channel.
func (f *RedisFeed) Publish(ctx context.Context, msg models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "encode message %d", msg.ID)
	}
	if err := f.client.Publish(ctx, orderChannel(msg.OrderID), data).Err(); err != nil {
		return errors.Wrapf(&classified{kind: ErrUnavailable, cause: err}, "publish message %d", msg.ID)
	}
	return nil
}

// Subscribe listens on the order channel. go-redis resubscribes on its own
// after a dropped connection; each subscribe confirmation after the first is
// reported through hooks.OnReconnect.
func (f *RedisFeed) Subscribe(ctx context.Context, orderID uint, handler MessageHandler, hooks Hooks) (Subscription, error) {
	channel := orderChannel(orderID)
	pubsub := f.client.Subscribe(ctx, channel)

	// Wait for the confirmation so no publish after Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrapf(&classified{kind: ErrUnavailable, cause: err}, "subscribe to %s", channel)
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	events := pubsub.ChannelWithSubscriptions(context.Background(), redisChannelSize)
	go sub.run(orderID, events, handler, hooks)
	return sub, nil
}

// Close closes the underlying client.
func (f *RedisFeed) Close() error {
	return f.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) run(orderID uint, events <-chan interface{}, handler MessageHandler, hooks Hooks) {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch e := event.(type) {
			case *redis.Subscription:
				if e.Kind == "subscribe" {
					jww.INFO.Printf("[FEED] Resubscribed to %s", e.Channel)
					if hooks.OnReconnect != nil {
						hooks.OnReconnect()
					}
				}
			case *redis.Message:
				var msg models.ChatMessage
				if err := json.Unmarshal([]byte(e.Payload), &msg); err != nil {
					jww.WARN.Printf("[FEED] Dropping undecodable payload on %s: %v", e.Channel, err)
					continue
				}
				if msg.OrderID != orderID {
					continue
				}
				handler(msg)
			}
		}
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
