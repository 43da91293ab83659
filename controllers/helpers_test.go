package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/design-studio-api/chat"
	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/services"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/kendall-kelly/design-studio-api/tests/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeUserInfo returns a fixed Auth0 profile or error.
type fakeUserInfo struct {
	info *services.Auth0UserInfo
	err  error
}

func (f *fakeUserInfo) GetUserInfo(_ context.Context, _ string) (*services.Auth0UserInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

// testApp wires every controller over an in-memory database and feed.
type testApp struct {
	db       *gorm.DB
	store    *store.GormStore
	feed     *store.MemoryFeed
	cache    *chat.Cache
	messages *chat.MessageService
	orders   *services.OrderService
	storage  *services.MockFileStorage
	userInfo *fakeUserInfo

	client   models.Profile
	other    models.Profile
	designer models.Profile
	admin    models.Profile
	order    models.DesignOrder

	users      *UserController
	orderCtl   *OrderController
	messageCtl *MessageController
	uploadCtl  *UploadController
	chatCtl    *ChatController
	pushCtl    *PushController
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	feed := store.NewMemoryFeed()
	t.Cleanup(func() { feed.Close() })

	gormStore := store.New(db, feed, 5*time.Second)
	cache := chat.NewCache(time.Minute)
	messages := chat.NewMessageService(gormStore, chat.NewRoomResolver(gormStore, cache), cache)
	orders := services.NewOrderService(gormStore)
	assignment := services.NewAssignmentService(gormStore, messages, nil, services.DefaultDesignerCapacity)
	storage := services.NewMockFileStorage()
	userInfo := &fakeUserInfo{info: &services.Auth0UserInfo{
		Sub:   "auth0|new-user",
		Name:  "New User",
		Email: "new.user@example.com",
		Phone: "+1-555-0199",
	}}

	app := &testApp{
		db:       db,
		store:    gormStore,
		feed:     feed,
		cache:    cache,
		messages: messages,
		orders:   orders,
		storage:  storage,
		userInfo: userInfo,
	}
	app.client = testutil.CreateProfile(t, db, "Carla Client", models.RoleClient)
	app.other = testutil.CreateProfile(t, db, "Oscar Other", models.RoleClient)
	app.designer = testutil.CreateProfile(t, db, "Dana Designer", models.RoleDesigner)
	app.admin = testutil.CreateProfile(t, db, "Ada Admin", models.RoleAdmin)
	app.order = testutil.CreateOrder(t, db, app.client)

	app.users = NewUserController(gormStore, userInfo)
	app.orderCtl = NewOrderController(gormStore, gormStore, orders, assignment)
	app.messageCtl = NewMessageController(gormStore, orders, messages)
	app.uploadCtl = NewUploadController(gormStore, gormStore, orders, storage, 1024)
	app.chatCtl = NewChatController(gormStore, orders, messages, feed, cache, nil, "*")
	app.pushCtl = NewPushController(gormStore, gormStore, "test-vapid-public-key")
	return app
}

// router registers the routes the way main does, authenticating through
// the test identity headers.
func (a *testApp) router() *gin.Engine {
	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.GET("/push/vapid-key", a.pushCtl.GetVAPIDKey)

	protected := v1.Group("")
	protected.Use(testutil.HeaderAuthMiddleware())
	protected.POST("/users", a.users.CreateUser)
	protected.GET("/users/me", a.users.GetMyProfile)
	protected.PUT("/users/me", a.users.UpdateMyProfile)
	protected.POST("/orders", a.orderCtl.CreateOrder)
	protected.GET("/orders", a.orderCtl.ListOrders)
	protected.GET("/orders/:id", a.orderCtl.GetOrder)
	protected.GET("/orders/:id/stages", a.orderCtl.ListOrderStages)
	protected.PATCH("/orders/:id/status", a.orderCtl.UpdateOrderStatus)
	protected.POST("/orders/:id/assign", a.orderCtl.AssignDesigner)
	protected.GET("/orders/:id/messages", a.messageCtl.GetMessages)
	protected.POST("/orders/:id/messages", a.messageCtl.SendMessage)
	protected.POST("/orders/:id/messages/read", a.messageCtl.MarkMessagesRead)
	protected.POST("/orders/:id/files", a.uploadCtl.UploadOrderFile)
	protected.GET("/orders/:id/chat", a.chatCtl.Connect)
	protected.POST("/push/subscriptions", a.pushCtl.Subscribe)
	protected.DELETE("/push/subscriptions", a.pushCtl.Unsubscribe)
	return router
}

// do performs a JSON request as subject. body may be nil, a string or any
// value that encodes to JSON.
func (a *testApp) do(t *testing.T, method, path, subject string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set(testutil.SubjectHeader, subject)
	}
	w := httptest.NewRecorder()
	a.router().ServeHTTP(w, req)
	return w
}

// envelope is the decoded response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   *int            `json:"count"`
	Message string          `json:"message"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "Response should be valid JSON: %s", w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	env := decodeEnvelope(t, w)
	require.True(t, env.Success, "expected success, got %s", w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func orderPath(orderID uint, suffix string) string {
	return fmt.Sprintf("/api/v1/orders/%d%s", orderID, suffix)
}

// assertErrorCode checks the status and envelope error code.
func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, "body: %s", w.Body.String())
	env := decodeEnvelope(t, w)
	require.False(t, env.Success)
	require.Equal(t, code, env.Error.Code)
}
