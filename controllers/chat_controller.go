package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/services"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Largest client frame accepted.
	maxFrameSize = 64 * 1024
	// Outbound frames buffered per connection.
	sendBuffer = 64
)

// Server frame types.
const (
	frameHistory = "history"
	frameMessage = "message"
	frameError   = "error"
	frameDraft   = "draft"
	frameState   = "state"
	framePong    = "pong"
)

// Client frame types.
const (
	frameSend     = "send"
	frameMarkRead = "mark_read"
	framePing     = "ping"
)

// clientFrame is a command received from the browser.
type clientFrame struct {
	Type        string             `json:"type"`
	Content     string             `json:"content,omitempty"`
	MessageType models.MessageType `json:"message_type,omitempty"`
	Attachments []chat.Attachment  `json:"attachments,omitempty"`
}

// serverFrame is an event pushed to the browser.
type serverFrame struct {
	Type       string               `json:"type"`
	Messages   []models.ChatMessage `json:"messages,omitempty"`
	Message    *models.ChatMessage  `json:"message,omitempty"`
	Content    string               `json:"content,omitempty"`
	State      string               `json:"state,omitempty"`
	Error      *frameErrorBody      `json:"error,omitempty"`
	Persistent bool                 `json:"persistent,omitempty"`
}

type frameErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatController upgrades GET /orders/:id/chat to a websocket and runs one
// chat session per connection.
type ChatController struct {
	profiles ProfileLookup
	orders   *services.OrderService
	messages *chat.MessageService
	feed     store.Feed
	cache    *chat.Cache
	notifier chat.Notifier
	upgrader websocket.Upgrader
}

// NewChatController creates a ChatController. origins is a comma separated
// allow-list for the Origin header; "*" or empty accepts any origin.
func NewChatController(profiles ProfileLookup, orders *services.OrderService, messages *chat.MessageService, feed store.Feed, cache *chat.Cache, notifier chat.Notifier, origins string) *ChatController {
	return &ChatController{
		profiles: profiles,
		orders:   orders,
		messages: messages,
		feed:     feed,
		cache:    cache,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func originChecker(origins string) func(r *http.Request) bool {
	allowed := make(map[string]struct{})
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// Connect handles GET /api/v1/orders/:id/chat
func (cc *ChatController) Connect(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	profile, ok := currentProfile(c, cc.profiles)
	if !ok {
		return
	}
	if _, err := cc.orders.Get(c.Request.Context(), profile, orderID); err != nil {
		renderError(c, err)
		return
	}

	ws, err := cc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		jww.WARN.Printf("[CHAT] Websocket upgrade for order %d failed: %v", orderID, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	conn := newChatConn(ws)
	channel := chat.NewChannel(cc.feed, cc.cache)
	viewer := chat.Viewer{ID: profile.ID, Name: profile.Name, Role: profile.Role}
	session := chat.NewSession(viewer, orderID, cc.messages, channel, conn, chat.SessionOptions{Notifier: cc.notifier})
	conn.session = session

	go conn.writePump()
	go func() {
		if err := session.Open(ctx); err != nil && !chat.IsClosedError(err) {
			jww.WARN.Printf("[CHAT] Session %s could not open order %d: %v", session.ID(), orderID, err)
		}
	}()

	conn.readPump(ctx)

	session.Close()
	channel.Close()
	conn.shutdown()
}

// chatConn is one websocket peer. It renders the session as JSON frames.
type chatConn struct {
	ws      *websocket.Conn
	session *chat.Session
	send    chan []byte

	once sync.Once
	done chan struct{}
}

var _ chat.View = (*chatConn)(nil)

func newChatConn(ws *websocket.Conn) *chatConn {
	return &chatConn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (cc *chatConn) shutdown() {
	cc.once.Do(func() {
		close(cc.done)
		cc.ws.Close()
	})
}

// push queues a frame. A peer that cannot keep up is disconnected.
func (cc *chatConn) push(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		jww.ERROR.Printf("[CHAT] Failed to encode %s frame: %v", frame.Type, err)
		return
	}
	select {
	case <-cc.done:
	case cc.send <- data:
	default:
		jww.WARN.Printf("[CHAT] Outbound buffer full, dropping connection")
		cc.shutdown()
	}
}

func (cc *chatConn) Render(messages []models.ChatMessage) {
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	cc.push(serverFrame{Type: frameHistory, Messages: messages})
}

func (cc *chatConn) Append(msg models.ChatMessage) {
	cc.push(serverFrame{Type: frameMessage, Message: &msg})
}

func (cc *chatConn) RestoreDraft(content string) {
	cc.push(serverFrame{Type: frameDraft, Content: content})
}

func (cc *chatConn) ShowError(err error, persistent bool) {
	cc.push(serverFrame{Type: frameError, Error: errorBody(err), Persistent: persistent})
}

func (cc *chatConn) StateChanged(state chat.State) {
	cc.push(serverFrame{Type: frameState, State: state.String()})
}

func errorBody(err error) *frameErrorBody {
	var chatErr *chat.Error
	if errors.As(err, &chatErr) && chatErr.Kind != chat.KindUnknown {
		return &frameErrorBody{Code: chatErr.Code, Message: chatErr.Message}
	}
	return &frameErrorBody{Code: chat.CodeInternal, Message: "An unexpected error occurred"}
}

// readPump reads client frames until the peer goes away. It is the only
// reader of the connection.
func (cc *chatConn) readPump(ctx context.Context) {
	cc.ws.SetReadLimit(maxFrameSize)
	cc.ws.SetReadDeadline(time.Now().Add(pongWait))
	cc.ws.SetPongHandler(func(string) error {
		cc.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := cc.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				jww.WARN.Printf("[CHAT] Session %s read error: %v", cc.session.ID(), err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			cc.ShowError(chat.NewError(chat.KindValidation, chat.CodeInvalidInput, "frame is not valid JSON"), false)
			continue
		}

		switch frame.Type {
		case frameSend:
			go cc.handleSend(ctx, frame)
		case frameMarkRead:
			go func() {
				if err := cc.session.MarkRead(ctx); err != nil && !chat.IsClosedError(err) {
					cc.ShowError(err, false)
				}
			}()
		case framePing:
			cc.push(serverFrame{Type: framePong})
		default:
			cc.ShowError(chat.NewError(chat.KindValidation, chat.CodeInvalidInput, "unknown frame type"), false)
		}
	}
}

// handleSend runs one send. Failures after the send was accepted are
// already rendered by the session.
func (cc *chatConn) handleSend(ctx context.Context, frame clientFrame) {
	_, err := cc.session.Send(ctx, frame.Content, frame.MessageType, frame.Attachments)
	if err == nil || chat.IsClosedError(err) {
		return
	}
	var chatErr *chat.Error
	if errors.As(err, &chatErr) && (chatErr.Code == chat.CodeSendInFlight || chatErr.Code == chat.CodeSessionNotReady) {
		cc.ShowError(err, false)
	}
}

// writePump is the only writer of the connection.
func (cc *chatConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cc.shutdown()
	}()

	for {
		select {
		case <-cc.done:
			return
		case data := <-cc.send:
			cc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cc.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			cc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cc.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
