package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/versefriends/backend/internal/models"
)

type requestKey struct {
	requester int64
	addressee int64
}

type pairKey struct {
	low  int64
	high int64
}

func newPairKey(a, b int64) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{low: a, high: b}
}

type blockKey struct {
	blocker int64
	blocked int64
}

// InMemoryRelationshipStore implements RelationshipRepository for tests and local development.
// A single mutex stands in for the database transaction boundary.
type InMemoryRelationshipStore struct {
	mu          sync.RWMutex
	requests    map[requestKey]models.FriendshipRequest
	friendships map[pairKey]models.Friendship
	blocks      map[blockKey]models.BlockedRelationship
	users       func(int64) bool
	now         func() time.Time
}

// NewInMemoryRelationshipStore returns an empty store. Every user id is considered to exist.
func NewInMemoryRelationshipStore() *InMemoryRelationshipStore {
	return &InMemoryRelationshipStore{
		requests:    make(map[requestKey]models.FriendshipRequest),
		friendships: make(map[pairKey]models.Friendship),
		blocks:      make(map[blockKey]models.BlockedRelationship),
		users:       func(int64) bool { return true },
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithUserCheck restricts writes to ids accepted by exists, mirroring the foreign keys of the
// relational schema.
func (s *InMemoryRelationshipStore) WithUserCheck(exists func(int64) bool) *InMemoryRelationshipStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = exists
	return s
}

// WithNowFunc allows tests to override the time source.
func (s *InMemoryRelationshipStore) WithNowFunc(now func() time.Time) *InMemoryRelationshipStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Facts resolves every row between viewerID and targetID.
func (s *InMemoryRelationshipStore) Facts(_ context.Context, viewerID, targetID int64) (models.RelationshipFacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var facts models.RelationshipFacts
	if req, ok := s.requests[requestKey{viewerID, targetID}]; ok {
		facts.Outgoing = &req
	}
	if req, ok := s.requests[requestKey{targetID, viewerID}]; ok {
		facts.Incoming = &req
	}
	if f, ok := s.friendships[newPairKey(viewerID, targetID)]; ok {
		facts.Friendship = &f
	}
	if b, ok := s.blocks[blockKey{viewerID, targetID}]; ok {
		facts.BlockedByMe = &b
	}
	if b, ok := s.blocks[blockKey{targetID, viewerID}]; ok {
		facts.BlockedByOther = &b
	}
	return facts, nil
}

// CreateRequest inserts a pending request, refusing occupied pairs with ErrConflict.
func (s *InMemoryRelationshipStore) CreateRequest(_ context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.users(requesterID) || !s.users(addresseeID) {
		return models.FriendshipRequest{}, ErrNotFound
	}
	if requesterID == addresseeID || s.blockedLocked(requesterID, addresseeID) {
		return models.FriendshipRequest{}, ErrConflict
	}
	if _, ok := s.friendships[newPairKey(requesterID, addresseeID)]; ok {
		return models.FriendshipRequest{}, ErrConflict
	}
	if _, ok := s.requests[requestKey{requesterID, addresseeID}]; ok {
		return models.FriendshipRequest{}, ErrConflict
	}
	if _, ok := s.requests[requestKey{addresseeID, requesterID}]; ok {
		return models.FriendshipRequest{}, ErrConflict
	}

	req := models.FriendshipRequest{RequesterID: requesterID, AddresseeID: addresseeID, CreatedAt: s.now()}
	s.requests[requestKey{requesterID, addresseeID}] = req
	return req, nil
}

// DeleteRequest removes the pending request requesterID -> addresseeID.
func (s *InMemoryRelationshipStore) DeleteRequest(_ context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := requestKey{requesterID, addresseeID}
	req, ok := s.requests[key]
	if !ok {
		return models.FriendshipRequest{}, ErrNotFound
	}
	delete(s.requests, key)
	return req, nil
}

// AcceptRequest consumes the request and records the friendship.
func (s *InMemoryRelationshipStore) AcceptRequest(_ context.Context, requesterID, addresseeID int64) (models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := requestKey{requesterID, addresseeID}
	if _, ok := s.requests[key]; !ok {
		return models.Friendship{}, ErrNotFound
	}
	pair := newPairKey(requesterID, addresseeID)
	if _, ok := s.friendships[pair]; ok {
		return models.Friendship{}, ErrConflict
	}

	delete(s.requests, key)
	delete(s.requests, requestKey{addresseeID, requesterID})
	friendship := models.Friendship{UserAID: requesterID, UserBID: addresseeID, CreatedAt: s.now()}
	s.friendships[pair] = friendship
	return friendship, nil
}

// DeleteFriendship removes the friendship regardless of argument order.
func (s *InMemoryRelationshipStore) DeleteFriendship(_ context.Context, userID, otherID int64) (models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := newPairKey(userID, otherID)
	friendship, ok := s.friendships[pair]
	if !ok {
		return models.Friendship{}, ErrNotFound
	}
	delete(s.friendships, pair)
	return friendship, nil
}

// CreateBlock removes the pair's friendship and requests and records the block.
func (s *InMemoryRelationshipStore) CreateBlock(_ context.Context, blockerID, blockedID int64) (models.BlockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.users(blockerID) || !s.users(blockedID) {
		return models.BlockResult{}, ErrNotFound
	}
	if blockerID == blockedID || s.blockedLocked(blockerID, blockedID) {
		return models.BlockResult{}, ErrConflict
	}

	var result models.BlockResult
	pair := newPairKey(blockerID, blockedID)
	if friendship, ok := s.friendships[pair]; ok {
		result.RemovedFriendship = &friendship
		delete(s.friendships, pair)
	}
	for _, key := range []requestKey{{blockerID, blockedID}, {blockedID, blockerID}} {
		if req, ok := s.requests[key]; ok {
			result.RemovedRequests = append(result.RemovedRequests, req)
			delete(s.requests, key)
		}
	}

	result.Block = models.BlockedRelationship{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: s.now()}
	s.blocks[blockKey{blockerID, blockedID}] = result.Block
	return result, nil
}

// DeleteBlock removes blockerID's block on blockedID.
func (s *InMemoryRelationshipStore) DeleteBlock(_ context.Context, blockerID, blockedID int64) (models.BlockedRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := blockKey{blockerID, blockedID}
	block, ok := s.blocks[key]
	if !ok {
		return models.BlockedRelationship{}, ErrNotFound
	}
	delete(s.blocks, key)
	return block, nil
}

// ListFriendships returns friendships involving userID, newest first.
func (s *InMemoryRelationshipStore) ListFriendships(_ context.Context, userID int64, page models.Page) ([]models.Friendship, error) {
	s.mu.RLock()
	var out []models.Friendship
	for _, f := range s.friendships {
		if f.UserAID == userID || f.UserBID == userID {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Other(userID) < out[j].Other(userID)
	})
	return paginate(out, page), nil
}

// ListIncomingRequests returns pending requests addressed to userID, newest first.
func (s *InMemoryRelationshipStore) ListIncomingRequests(_ context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error) {
	return s.listRequests(page, func(req models.FriendshipRequest) bool { return req.AddresseeID == userID }), nil
}

// ListOutgoingRequests returns pending requests sent by userID, newest first.
func (s *InMemoryRelationshipStore) ListOutgoingRequests(_ context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error) {
	return s.listRequests(page, func(req models.FriendshipRequest) bool { return req.RequesterID == userID }), nil
}

func (s *InMemoryRelationshipStore) listRequests(page models.Page, match func(models.FriendshipRequest) bool) []models.FriendshipRequest {
	s.mu.RLock()
	var out []models.FriendshipRequest
	for _, req := range s.requests {
		if match(req) {
			out = append(out, req)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if out[i].RequesterID != out[j].RequesterID {
			return out[i].RequesterID < out[j].RequesterID
		}
		return out[i].AddresseeID < out[j].AddresseeID
	})
	return paginate(out, page)
}

// ListBlocks returns the blocks created by blockerID, newest first.
func (s *InMemoryRelationshipStore) ListBlocks(_ context.Context, blockerID int64, page models.Page) ([]models.BlockedRelationship, error) {
	s.mu.RLock()
	var out []models.BlockedRelationship
	for _, b := range s.blocks {
		if b.BlockerID == blockerID {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].BlockedID < out[j].BlockedID
	})
	return paginate(out, page), nil
}

// Seed inserts rows directly, bypassing every invariant check. Tests use it to build states
// the engine itself would never produce.
func (s *InMemoryRelationshipStore) Seed(requests []models.FriendshipRequest, friendships []models.Friendship, blocks []models.BlockedRelationship) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range requests {
		s.requests[requestKey{req.RequesterID, req.AddresseeID}] = req
	}
	for _, f := range friendships {
		s.friendships[newPairKey(f.UserAID, f.UserBID)] = f
	}
	for _, b := range blocks {
		s.blocks[blockKey{b.BlockerID, b.BlockedID}] = b
	}
}

// Counts reports the number of stored rows per table. Useful for tests.
func (s *InMemoryRelationshipStore) Counts() (requests, friendships, blocks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests), len(s.friendships), len(s.blocks)
}

func (s *InMemoryRelationshipStore) blockedLocked(a, b int64) bool {
	if _, ok := s.blocks[blockKey{a, b}]; ok {
		return true
	}
	_, ok := s.blocks[blockKey{b, a}]
	return ok
}

func paginate[T any](items []T, page models.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

// InMemoryUserRepository implements UserRepository for tests and local development.
type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[int64]models.UserBasicInfo
}

// NewInMemoryUserRepository returns a repository holding the provided users.
func NewInMemoryUserRepository(users ...models.UserBasicInfo) *InMemoryUserRepository {
	repo := &InMemoryUserRepository{users: make(map[int64]models.UserBasicInfo, len(users))}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

// Put inserts or replaces a user.
func (r *InMemoryUserRepository) Put(user models.UserBasicInfo) {
	r.mu.Lock()
	r.users[user.ID] = user
	r.mu.Unlock()
}

// Exists reports whether the user id is known.
func (r *InMemoryUserRepository) Exists(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// SelectUserBasicInfo returns the stored user or ErrNotFound.
func (r *InMemoryUserRepository) SelectUserBasicInfo(_ context.Context, userID int64) (models.UserBasicInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userID]
	if !ok {
		return models.UserBasicInfo{}, ErrNotFound
	}
	return user, nil
}

var _ RelationshipRepository = (*InMemoryRelationshipStore)(nil)
var _ UserRepository = (*InMemoryUserRepository)(nil)
