package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefriends/backend/internal/events"
	"github.com/versefriends/backend/internal/friends"
	"github.com/versefriends/backend/internal/logging"
	"github.com/versefriends/backend/internal/models"
	"github.com/versefriends/backend/internal/repositories"
)

const testUserHeader = "X-Test-User"

// testAuthenticate trusts the user id in testUserHeader.
func testAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(testUserHeader); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err == nil {
				r = r.WithContext(logging.WithUserID(r.Context(), userID))
			}
		}
		next.ServeHTTP(w, r)
	})
}

type denyLimiter struct{ keys []string }

func (l *denyLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return false
}

type failingDirectory struct{}

func (failingDirectory) SelectUserBasicInfo(context.Context, int64) (models.UserBasicInfo, error) {
	return models.UserBasicInfo{}, errors.New("directory offline")
}

type harness struct {
	router    *mux.Router
	store     *repositories.InMemoryRelationshipStore
	users     *repositories.InMemoryUserRepository
	published *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	users := repositories.NewInMemoryUserRepository(
		models.UserBasicInfo{ID: 1, Nickname: "basho", Status: models.UserStatusActive, Role: models.UserRoleUser},
		models.UserBasicInfo{ID: 2, Nickname: "dickinson", Status: models.UserStatusActive, Role: models.UserRoleUser},
		models.UserBasicInfo{ID: 3, Nickname: "rilke", Status: models.UserStatusActive, Role: models.UserRoleUser},
		models.UserBasicInfo{ID: 4, Nickname: "banned", Status: models.UserStatusBanned, Role: models.UserRoleUser},
	)
	store := repositories.NewInMemoryRelationshipStore().WithUserCheck(users.Exists)
	published := events.NewRecorder(nil)

	router := mux.NewRouter()
	RegisterRoutes(router, Dependencies{
		Friends:      friends.NewService(store, users, published, nil),
		Users:        users,
		Authenticate: testAuthenticate,
	})

	return &harness{router: router, store: store, users: users, published: published}
}

func (h *harness) do(t *testing.T, method, path string, callerID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if callerID != 0 {
		req.Header.Set(testUserHeader, strconv.FormatInt(callerID, 10))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, kind friends.Kind) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, string(kind), decode[errorResponse](t, rec).Code)
}

func TestSendAndAcceptFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/friends/2", 1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[sendResponse](t, rec)
	assert.Equal(t, models.StatusPendingSent, sent.Status)
	require.NotNil(t, sent.Request)
	assert.EqualValues(t, 1, sent.Request.RequesterID)
	assert.EqualValues(t, 2, sent.Request.AddresseeID)

	status := decode[models.FriendshipStatus](t, h.do(t, http.MethodGet, "/friends/1", 2))
	assert.Equal(t, models.StatusPendingReceived, status.Status)
	assert.True(t, status.CanAcceptRequest)

	rec = h.do(t, http.MethodPatch, "/friends/accept/1", 2)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	friendship := decode[models.Friendship](t, rec)
	assert.ElementsMatch(t, []int64{1, 2}, []int64{friendship.UserAID, friendship.UserBID})

	status = decode[models.FriendshipStatus](t, h.do(t, http.MethodGet, "/friends/2", 1))
	assert.Equal(t, models.StatusFriends, status.Status)
	assert.True(t, status.CanRemoveFriend)

	recorded := h.published.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, friends.EventNewFriend, recorded[0].Name)
	assert.Equal(t, friends.NewFriendPayload{NewFriendID: 2, NewFriendNickname: "dickinson", UserID: 1}, recorded[0].Payload)
}

func TestReciprocalSendCreatesFriendship(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/friends/2", 1).Code)

	rec := h.do(t, http.MethodPost, "/friends/1", 2)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[sendResponse](t, rec)
	assert.Equal(t, models.StatusFriends, body.Status)
	require.NotNil(t, body.Friendship)

	requests, friendships, blocks := h.store.Counts()
	assert.Zero(t, requests)
	assert.Equal(t, 1, friendships)
	assert.Zero(t, blocks)
}

func TestFriendHandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, h *harness)
		method string
		path   string
		caller int64
		status int
		kind   friends.Kind
	}{
		{name: "self request", method: http.MethodPost, path: "/friends/1", caller: 1, status: http.StatusConflict, kind: friends.KindSelfReference},
		{name: "inactive target", method: http.MethodPost, path: "/friends/4", caller: 1, status: http.StatusNotFound, kind: friends.KindUserNotFound},
		{name: "unknown target", method: http.MethodPost, path: "/friends/42", caller: 1, status: http.StatusNotFound, kind: friends.KindUserNotFound},
		{
			name:   "duplicate request",
			setup:  func(t *testing.T, h *harness) { require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/friends/2", 1).Code) },
			method: http.MethodPost, path: "/friends/2", caller: 1,
			status: http.StatusConflict, kind: friends.KindRequestAlreadySent,
		},
		{name: "accept without request", method: http.MethodPatch, path: "/friends/accept/2", caller: 1, status: http.StatusNotFound, kind: friends.KindRequestNotFound},
		{name: "reject without request", method: http.MethodPatch, path: "/friends/reject/2", caller: 1, status: http.StatusNotFound, kind: friends.KindRequestNotFound},
		{name: "cancel without request", method: http.MethodDelete, path: "/friends/cancel/2", caller: 1, status: http.StatusNotFound, kind: friends.KindRequestNotFound},
		{name: "delete stranger", method: http.MethodDelete, path: "/friends/delete/2", caller: 1, status: http.StatusNotFound, kind: friends.KindFriendshipNotFound},
		{name: "unblock without block", method: http.MethodPatch, path: "/friends/unblock/2", caller: 1, status: http.StatusNotFound, kind: friends.KindBlockedRelationshipNotFound},
		{
			name:   "request to blocker",
			setup:  func(t *testing.T, h *harness) { require.Equal(t, http.StatusOK, h.do(t, http.MethodPatch, "/friends/block/1", 2).Code) },
			method: http.MethodPost, path: "/friends/2", caller: 1,
			status: http.StatusForbidden, kind: friends.KindUserBlocked,
		},
		{
			name:   "block twice",
			setup:  func(t *testing.T, h *harness) { require.Equal(t, http.StatusOK, h.do(t, http.MethodPatch, "/friends/block/2", 1).Code) },
			method: http.MethodPatch, path: "/friends/block/2", caller: 1,
			status: http.StatusForbidden, kind: friends.KindUserBlocked,
		},
		{
			name: "request to friend",
			setup: func(t *testing.T, h *harness) {
				h.store.Seed(nil, []models.Friendship{{UserAID: 1, UserBID: 2}}, nil)
			},
			method: http.MethodPost, path: "/friends/2", caller: 1,
			status: http.StatusConflict, kind: friends.KindFriendshipAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(t, h)
			}
			requireErrorCode(t, h.do(t, tt.method, tt.path, tt.caller), tt.status, tt.kind)
		})
	}
}

func TestFriendHandlerCallerChecks(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/friends/2", 0).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/friends/2", 77).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, "/friends/2", 4).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/friends", 0).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/friends/abc", 1).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/friends/0", 1).Code)
}

func TestBannedUsersCanStillBeRemoved(t *testing.T) {
	h := newHarness(t)
	h.store.Seed(
		[]models.FriendshipRequest{{RequesterID: 4, AddresseeID: 1}},
		[]models.Friendship{{UserAID: 1, UserBID: 4}},
		nil,
	)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPatch, "/friends/reject/4", 1).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/friends/delete/4", 1).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPatch, "/friends/block/4", 1).Code)
}

func TestBlockCascadeAndStatus(t *testing.T) {
	h := newHarness(t)
	h.store.Seed(nil, []models.Friendship{{UserAID: 1, UserBID: 2}}, nil)

	rec := h.do(t, http.MethodPatch, "/friends/block/2", 1)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.BlockResult](t, rec)
	assert.EqualValues(t, 1, result.Block.BlockerID)
	assert.EqualValues(t, 2, result.Block.BlockedID)
	require.NotNil(t, result.RemovedFriendship)

	for _, viewer := range []int64{1, 2} {
		other := int64(3) - viewer
		status := decode[models.FriendshipStatus](t, h.do(t, http.MethodGet, "/friends/"+strconv.FormatInt(other, 10), viewer))
		assert.Equal(t, models.FriendshipStatus{Status: models.StatusNone}, status)
	}

	blocked := decode[blockListResponse](t, h.do(t, http.MethodGet, "/friends/blocked", 1))
	require.Len(t, blocked.Blocked, 1)

	rec = h.do(t, http.MethodPatch, "/friends/unblock/2", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[unblockResponse](t, rec).Unblocked.BlockedID)

	status := decode[models.FriendshipStatus](t, h.do(t, http.MethodGet, "/friends/2", 1))
	assert.True(t, status.CanSendRequest)
}

func TestRejectAndCancel(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/friends/2", 1).Code)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/friends/3", 1).Code)

	rec := h.do(t, http.MethodPatch, "/friends/reject/1", 2)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[rejectResponse](t, rec).Rejected.RequesterID)

	rec = h.do(t, http.MethodDelete, "/friends/cancel/3", 1)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, decode[cancelResponse](t, rec).Cancelled.AddresseeID)

	requests, friendships, _ := h.store.Counts()
	assert.Zero(t, requests)
	assert.Zero(t, friendships)
	assert.Empty(t, h.published.Events())
}

func TestListEndpoints(t *testing.T) {
	h := newHarness(t)

	empty := h.do(t, http.MethodGet, "/friends", 1)
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `{"friends":[]}`, empty.Body.String())

	h.store.Seed(
		[]models.FriendshipRequest{{RequesterID: 2, AddresseeID: 1}, {RequesterID: 1, AddresseeID: 3}},
		[]models.Friendship{{UserAID: 1, UserBID: 4}},
		nil,
	)

	friendList := decode[friendListResponse](t, h.do(t, http.MethodGet, "/friends", 1))
	require.Len(t, friendList.Friends, 1)

	incoming := decode[requestListResponse](t, h.do(t, http.MethodGet, "/friends/requests/incoming", 1))
	require.Len(t, incoming.Requests, 1)
	assert.EqualValues(t, 2, incoming.Requests[0].RequesterID)

	outgoing := decode[requestListResponse](t, h.do(t, http.MethodGet, "/friends/requests/outgoing", 1))
	require.Len(t, outgoing.Requests, 1)
	assert.EqualValues(t, 3, outgoing.Requests[0].AddresseeID)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/friends?limit=-1", 1).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/friends?offset=x", 1).Code)

	paged := decode[friendListResponse](t, h.do(t, http.MethodGet, "/friends?limit=1&offset=1", 1))
	assert.Empty(t, paged.Friends)
}

func TestMutationsAreRateLimited(t *testing.T) {
	users := repositories.NewInMemoryUserRepository(
		models.UserBasicInfo{ID: 1, Status: models.UserStatusActive},
		models.UserBasicInfo{ID: 2, Status: models.UserStatusActive},
	)
	limiter := &denyLimiter{}
	handler := FriendHandler{
		Friends: friends.NewService(repositories.NewInMemoryRelationshipStore(), users, nil, nil),
		Users:   users,
		Limiter: limiter,
	}

	req := httptest.NewRequest(http.MethodPost, "/friends/2", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "2"})
	req = req.WithContext(logging.WithUserID(req.Context(), 1))
	rec := httptest.NewRecorder()

	handler.Send(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"friends:send:user:1"}, limiter.keys)

	// Reads are not limited.
	req = httptest.NewRequest(http.MethodGet, "/friends/2", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "2"})
	req = req.WithContext(logging.WithUserID(req.Context(), 1))
	rec = httptest.NewRecorder()

	handler.Status(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDirectoryFailureIsInternal(t *testing.T) {
	handler := FriendHandler{
		Friends: friends.NewService(repositories.NewInMemoryRelationshipStore(), nil, nil, nil),
		Users:   failingDirectory{},
	}

	req := httptest.NewRequest(http.MethodPost, "/friends/2", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "2"})
	req = req.WithContext(logging.WithUserID(req.Context(), 1))
	rec := httptest.NewRecorder()

	handler.Send(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[errorResponse](t, rec).Error)
}

func TestStatusForKindCoversEveryKind(t *testing.T) {
	kinds := map[friends.Kind]int{
		friends.KindSelfReference:               http.StatusConflict,
		friends.KindFriendshipAlreadyExists:     http.StatusConflict,
		friends.KindRequestAlreadySent:          http.StatusConflict,
		friends.KindFriendshipBlocked:           http.StatusConflict,
		friends.KindUserBlocked:                 http.StatusForbidden,
		friends.KindRequestNotFound:             http.StatusNotFound,
		friends.KindFriendshipNotFound:          http.StatusNotFound,
		friends.KindBlockedRelationshipNotFound: http.StatusNotFound,
		friends.KindUserNotFound:                http.StatusNotFound,
	}
	for kind, want := range kinds {
		assert.Equal(t, want, statusForKind(kind), kind)
	}
	assert.Equal(t, http.StatusInternalServerError, statusForKind("SOMETHING_ELSE"))
}
