package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/kendall-kelly/design-studio-api/tests/testutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCreatesRoomLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var count int64
	env.db.Model(&models.ChatRoom{}).Count(&count)
	require.Zero(t, count, "rooms must not exist before first access")

	room, err := env.rooms.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, env.order.ID, room.OrderID)
	assert.Equal(t, env.client.ID, room.ClientID)
	assert.Nil(t, room.AdminID)
	assert.True(t, room.IsActive)
	assert.Zero(t, room.UnreadCount)

	again, err := env.rooms.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
}

func TestResolveByStaffSetsStaffPointer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.rooms.Resolve(ctx, env.order.ID, env.designer.ID, models.RoleDesigner)
	require.NoError(t, err)
	require.NotNil(t, room.AdminID)
	assert.Equal(t, env.designer.ID, *room.AdminID)
	assert.Equal(t, env.client.ID, room.ClientID, "room client must be the order's client")
}

func TestResolveClaimsExistingRoomOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.rooms.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
	require.NoError(t, err)

	room, err := env.rooms.Resolve(ctx, env.order.ID, env.designer.ID, models.RoleDesigner)
	require.NoError(t, err)
	require.NotNil(t, room.AdminID)
	assert.Equal(t, env.designer.ID, *room.AdminID)

	room, err = env.rooms.Resolve(ctx, env.order.ID, env.admin.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, env.designer.ID, *room.AdminID, "the first staff member keeps the room")

	stored, err := env.store.FindRoomByOrder(ctx, env.order.ID)
	require.NoError(t, err)
	assert.Equal(t, env.designer.ID, *stored.AdminID)
}

func TestResolveClaimFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.rooms.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
	require.NoError(t, err)

	env.cache.Purge()
	env.useStore(&faultyStore{Store: env.store, claimErr: store.ErrUnavailable})

	room, err := env.rooms.Resolve(ctx, env.order.ID, env.designer.ID, models.RoleDesigner)
	require.NoError(t, err)
	assert.Nil(t, room.AdminID)
}

func TestResolveConcurrentCreatesOneRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 8
	rooms := make([]uint, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// separate resolvers so no cache is shared between them
			resolver := NewRoomResolver(env.store, nil)
			room, err := resolver.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
			errs[i] = err
			if room != nil {
				rooms[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, rooms[0], rooms[i])
	}

	var count int64
	env.db.Model(&models.ChatRoom{}).Where("order_id = ?", env.order.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestResolveErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.rooms.Resolve(ctx, 0, env.client.ID, models.RoleClient)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = env.rooms.Resolve(ctx, 9999, env.client.ID, models.RoleClient)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	env.useStore(&faultyStore{Store: env.store, findErr: errors.Wrap(store.ErrUnavailable, "dial tcp")})
	_, err = env.rooms.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)
	assert.True(t, Retryable(err))
}

func TestResolveUsesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	room, err := env.rooms.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
	require.NoError(t, err)

	env.useStore(&faultyStore{Store: env.store, findErr: store.ErrUnavailable})
	cached, err := env.rooms.Resolve(ctx, env.order.ID, env.client.ID, models.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, room.ID, cached.ID)

	other := testutil.CreateOrder(t, env.db, env.client)
	_, err = env.rooms.Resolve(ctx, other.ID, env.client.ID, models.RoleClient)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}
