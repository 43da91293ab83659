package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/kendall-kelly/design-studio-api/tests/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	store    *store.GormStore
	feed     *store.MemoryFeed
	cache    *Cache
	rooms    *RoomResolver
	messages *MessageService
	client   models.Profile
	designer models.Profile
	admin    models.Profile
	order    models.DesignOrder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	feed := store.NewMemoryFeed()
	t.Cleanup(func() { feed.Close() })

	env := &testEnv{
		db:    db,
		store: store.New(db, feed, time.Second),
		feed:  feed,
		cache: NewCache(time.Minute),
	}
	env.client = testutil.CreateProfile(t, db, "Client User", models.RoleClient)
	env.designer = testutil.CreateProfile(t, db, "Designer User", models.RoleDesigner)
	env.admin = testutil.CreateProfile(t, db, "Admin User", models.RoleAdmin)
	env.order = testutil.CreateOrder(t, db, env.client)
	env.useStore(env.store)
	return env
}

// useStore rebuilds the services on top of s, typically a faultyStore.
func (e *testEnv) useStore(s Store) {
	e.rooms = NewRoomResolver(s, e.cache)
	e.messages = NewMessageService(s, e.rooms, e.cache)
}

func (e *testEnv) viewer(p models.Profile) Viewer {
	return Viewer{ID: p.ID, Name: p.Name, Role: p.Role}
}

func (e *testEnv) send(t *testing.T, sender models.Profile, content string) *models.ChatMessage {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), SendRequest{
		OrderID:    e.order.ID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		SenderRole: models.SenderRole(sender.Role),
		Content:    content,
	})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) newSession(p models.Profile, view View, opts SessionOptions) (*Session, *Channel) {
	channel := NewChannel(e.feed, e.cache)
	return NewSession(e.viewer(p), e.order.ID, e.messages, channel, view, opts), channel
}

// faultyStore wraps a real store and injects failures.
type faultyStore struct {
	Store

	listErrs  []error
	listCalls atomic.Int32

	findErr  error
	claimErr error

	afterMarkRead func()

	insertEntered chan struct{}
	insertGate    chan struct{}
}

func (f *faultyStore) ListMessages(ctx context.Context, orderID uint) ([]models.ChatMessage, error) {
	n := int(f.listCalls.Add(1))
	if n <= len(f.listErrs) && f.listErrs[n-1] != nil {
		return nil, f.listErrs[n-1]
	}
	return f.Store.ListMessages(ctx, orderID)
}

func (f *faultyStore) FindRoomByOrder(ctx context.Context, orderID uint) (*models.ChatRoom, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Store.FindRoomByOrder(ctx, orderID)
}

func (f *faultyStore) ClaimRoomStaff(ctx context.Context, roomID, staffID uint) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	return f.Store.ClaimRoomStaff(ctx, roomID, staffID)
}

func (f *faultyStore) MarkRead(ctx context.Context, orderID, readerID uint) (int64, error) {
	n, err := f.Store.MarkRead(ctx, orderID, readerID)
	if f.afterMarkRead != nil {
		f.afterMarkRead()
	}
	return n, err
}

func (f *faultyStore) InsertMessage(ctx context.Context, msg *models.ChatMessage, files []models.OrderFile) error {
	if f.insertGate != nil {
		f.insertEntered <- struct{}{}
		<-f.insertGate
	}
	return f.Store.InsertMessage(ctx, msg, files)
}

// recordingView captures every view callback.
type recordingView struct {
	mu         sync.Mutex
	renders    [][]models.ChatMessage
	appended   []models.ChatMessage
	drafts     []string
	errs       []error
	persistent []bool
	states     []State
}

func (v *recordingView) Render(messages []models.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, messages)
}

func (v *recordingView) Append(msg models.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.appended = append(v.appended, msg)
}

func (v *recordingView) RestoreDraft(content string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drafts = append(v.drafts, content)
}

func (v *recordingView) ShowError(err error, persistent bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, err)
	v.persistent = append(v.persistent, persistent)
}

func (v *recordingView) StateChanged(state State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = append(v.states, state)
}

func (v *recordingView) stateLog() []State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]State(nil), v.states...)
}

func (v *recordingView) lastRender() []models.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.renders) == 0 {
		return nil
	}
	return v.renders[len(v.renders)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.ChatMessage
}

func (n *recordingNotifier) NotifyNewMessage(_ context.Context, _ uint, msg models.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, msg)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func messageIDs(messages []models.ChatMessage) []uint {
	ids := make([]uint, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}
