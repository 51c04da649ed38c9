package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-realtime/internal/chaterrors"
	"social-realtime/internal/mocks"
	"social-realtime/internal/models"
)

type routerFixture struct {
	hub    *Hub
	store  *memoryStore
	router *Router
}

func newRouterFixture(userIDs ...string) routerFixture {
	hub := NewHub(nil)
	store := newMemoryStore(userIDs...)
	return routerFixture{hub: hub, store: store, router: NewRouter(hub, store, store, nil)}
}

func connected(hub *Hub, id, userID string) *recordingConn {
	conn := newRecordingConn(id, userID)
	hub.Connect(conn)
	conn.reset()
	return conn
}

func TestRouteDeliversOncePerConnection(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	alice := connected(f.hub, "c1", "alice")
	bob := connected(f.hub, "c2", "bob")
	f.hub.Join(alice, RoomID("alice", "bob"))
	f.hub.Join(bob, RoomID("bob", "alice"))

	view, err := f.router.Route(context.Background(), "alice", alice, models.SendMessageRequest{ReceiverID: "bob", Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "hello", view.Content)
	require.NotNil(t, view.Sender)
	assert.Equal(t, "alice_name", view.Sender.Username)
	require.Len(t, alice.eventsOfType(models.EventNewMessage), 1)
	require.Len(t, bob.eventsOfType(models.EventNewMessage), 1)
	assert.Equal(t, models.NewMessageEvent(view), bob.last())
	assert.Equal(t, 1, f.store.count())
}

func TestRouteReachesReceiverOutsideRoom(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	alice := connected(f.hub, "c1", "alice")
	bob := connected(f.hub, "c2", "bob")

	_, err := f.router.Route(context.Background(), "alice", alice, models.SendMessageRequest{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)

	assert.Len(t, alice.eventsOfType(models.EventNewMessage), 1)
	assert.Len(t, bob.eventsOfType(models.EventNewMessage), 1)
}

func TestRouteOfflineReceiverIsStillPersisted(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	alice := connected(f.hub, "c1", "alice")

	_, err := f.router.Route(context.Background(), "alice", alice, models.SendMessageRequest{ReceiverID: "bob", Content: "are you there"})
	require.NoError(t, err)

	assert.Len(t, alice.eventsOfType(models.EventNewMessage), 1)
	assert.Equal(t, 1, f.store.count())
}

func TestRouteSkipsDeadReceiver(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	alice := connected(f.hub, "c1", "alice")
	bob := connected(f.hub, "c2", "bob")
	bob.kill()

	_, err := f.router.Route(context.Background(), "alice", alice, models.SendMessageRequest{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, alice.eventsOfType(models.EventNewMessage), 1)
}

func TestRouteReachesSendersOtherDevice(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	phone := connected(f.hub, "c1", "alice")
	laptop := connected(f.hub, "c2", "alice")

	_, err := f.router.Route(context.Background(), "alice", phone, models.SendMessageRequest{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)

	assert.Len(t, phone.eventsOfType(models.EventNewMessage), 1)
	assert.Len(t, laptop.eventsOfType(models.EventNewMessage), 1)
}

func TestRouteSelfMessageDeliveredOnce(t *testing.T) {
	f := newRouterFixture("alice")
	alice := connected(f.hub, "c1", "alice")
	f.hub.Join(alice, RoomID("alice", "alice"))

	_, err := f.router.Route(context.Background(), "alice", alice, models.SendMessageRequest{ReceiverID: "alice", Content: "note to self"})
	require.NoError(t, err)
	assert.Len(t, alice.eventsOfType(models.EventNewMessage), 1)
}

func TestRouteUsesServerTimestamp(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	clientTime := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	view, err := f.router.Route(context.Background(), "alice", nil, models.SendMessageRequest{ReceiverID: "bob", Content: "hi", Timestamp: &clientTime})
	require.NoError(t, err)

	assert.Equal(t, "2024-06-01T12:00:00.001Z", view.CreatedAt)
	assert.Equal(t, "1999-01-01T00:00:00.000Z", view.ClientTimestamp)
}

func TestRouteValidation(t *testing.T) {
	tests := []struct {
		name string
		req  models.SendMessageRequest
	}{
		{name: "missing receiver", req: models.SendMessageRequest{Content: "hi"}},
		{name: "empty content", req: models.SendMessageRequest{ReceiverID: "bob"}},
		{name: "blank content", req: models.SendMessageRequest{ReceiverID: "bob", Content: "  \n\t"}},
		{name: "unknown receiver", req: models.SendMessageRequest{ReceiverID: "ghost", Content: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture("alice", "bob")
			alice := connected(f.hub, "c1", "alice")
			bob := connected(f.hub, "c2", "bob")

			_, err := f.router.Route(context.Background(), "alice", alice, tt.req)

			require.ErrorIs(t, err, chaterrors.ErrValidationFailed)
			assert.Equal(t, 0, f.store.count())
			assert.Empty(t, alice.eventsOfType(models.EventNewMessage))
			assert.Empty(t, bob.eventsOfType(models.EventNewMessage))
		})
	}
}

func TestRoutePersistenceFailureDeliversNothing(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	f.store.createErr = assert.AnError
	alice := connected(f.hub, "c1", "alice")
	bob := connected(f.hub, "c2", "bob")

	_, err := f.router.Route(context.Background(), "alice", alice, models.SendMessageRequest{ReceiverID: "bob", Content: "hi"})

	require.ErrorIs(t, err, chaterrors.ErrPersistenceFailed)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, alice.eventsOfType(models.EventNewMessage))
	assert.Empty(t, bob.eventsOfType(models.EventNewMessage))
}

func TestRouteDirectoryFailure(t *testing.T) {
	hub := NewHub(nil)
	messages := new(mocks.MessageRepositoryMock)
	users := new(mocks.UserRepositoryMock)
	router := NewRouter(hub, messages, users, nil)

	users.On("BulkUsers", mock.Anything, []string{"alice", "bob"}).Return(nil, assert.AnError).Once()

	_, err := router.Route(context.Background(), "alice", nil, models.SendMessageRequest{ReceiverID: "bob", Content: "hi"})

	require.ErrorIs(t, err, chaterrors.ErrDirectoryFailed)
	users.AssertExpectations(t)
	messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRouteRateLimited(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	limiter := new(mocks.LimiterMock)
	f.router = NewRouter(f.hub, f.store, f.store, limiter)

	limiter.On("Allow", mock.Anything, "alice").Return(true, nil).Once()
	limiter.On("Allow", mock.Anything, "alice").Return(false, nil).Once()

	_, err := f.router.Route(context.Background(), "alice", nil, models.SendMessageRequest{ReceiverID: "bob", Content: "one"})
	require.NoError(t, err)
	_, err = f.router.Route(context.Background(), "alice", nil, models.SendMessageRequest{ReceiverID: "bob", Content: "two"})
	require.ErrorIs(t, err, chaterrors.ErrRateLimited)

	assert.Equal(t, 1, f.store.count())
	limiter.AssertExpectations(t)
}

func TestRouteLimiterErrorFailsOpen(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	limiter := new(mocks.LimiterMock)
	f.router = NewRouter(f.hub, f.store, f.store, limiter)
	limiter.On("Allow", mock.Anything, "alice").Return(true, assert.AnError).Once()

	_, err := f.router.Route(context.Background(), "alice", nil, models.SendMessageRequest{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.count())
}

func TestRouteThenHistory(t *testing.T) {
	f := newRouterFixture("alice", "bob", "carol")
	history := NewHistoryFetcher(f.store, f.store)

	sent, err := f.router.Route(context.Background(), "alice", nil, models.SendMessageRequest{ReceiverID: "bob", Content: "first"})
	require.NoError(t, err)

	views, err := history.Load(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, sent.ID, views[0].ID)

	views, err = history.Load(context.Background(), "alice", "carol")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRoutePreservesSubmissionOrder(t *testing.T) {
	f := newRouterFixture("alice", "bob")
	history := NewHistoryFetcher(f.store, f.store)

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.router.Route(context.Background(), "alice", nil, models.SendMessageRequest{ReceiverID: "bob", Content: content})
		require.NoError(t, err)
	}
	_, err := f.router.Route(context.Background(), "bob", nil, models.SendMessageRequest{ReceiverID: "alice", Content: "four"})
	require.NoError(t, err)

	views, err := history.Load(context.Background(), "bob", "alice")
	require.NoError(t, err)
	contents := make([]string, 0, len(views))
	for _, v := range views {
		contents = append(contents, v.Content)
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, contents)
}
