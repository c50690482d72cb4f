package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/versefriends/backend/internal/logging"
	"github.com/versefriends/backend/internal/models"
)

// SendResult is the outcome of SendFriendRequest: either a new pending request or, when the
// addressee had already asked the requester, the friendship that resolved both requests.
type SendResult struct {
	Request    *models.FriendshipRequest
	Friendship *models.Friendship
}

// Service runs the relationship use cases: read a snapshot, apply the policy, mutate, report.
type Service struct {
	store     Store
	users     Directory
	publisher Publisher
	recorder  Recorder
}

// NewService constructs a Service. users, publisher and recorder are optional.
func NewService(store Store, users Directory, publisher Publisher, recorder Recorder) *Service {
	if store == nil {
		panic("friends: store must not be nil")
	}
	return &Service{
		store:     store,
		users:     users,
		publisher: publisher,
		recorder:  recorder,
	}
}

// Snapshot resolves the relationship between viewerID and targetID.
func (s *Service) Snapshot(ctx context.Context, viewerID, targetID int64) (Snapshot, error) {
	facts, err := s.store.Facts(ctx, viewerID, targetID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read relationship snapshot: %w", err)
	}
	return NewSnapshot(viewerID, targetID, facts), nil
}

// SendFriendRequest asks addresseeID to become requesterID's friend. A pending request in the
// opposite direction is accepted instead of creating a second request.
func (s *Service) SendFriendRequest(ctx context.Context, requesterID, addresseeID int64) (result SendResult, err error) {
	if requesterID == addresseeID {
		return SendResult{}, ErrSelfReference
	}

	ctx, span := logging.StartSpan(ctx, "friends.SendFriendRequest")
	defer func() {
		s.observe("send_request", err)
		span.End(err)
	}()

	snap, err := s.Snapshot(ctx, requesterID, addresseeID)
	if err != nil {
		return SendResult{}, err
	}

	action, err := decideSend(snap)
	if err != nil {
		return SendResult{}, err
	}

	result, err = s.trySend(ctx, action, requesterID, addresseeID)
	if !errors.Is(err, errSendRaced) {
		return result, err
	}

	// The pair changed between the read and the write; look once more.
	logging.FromContext(ctx).Debug("friend request raced a concurrent write, re-reading snapshot",
		zap.Int64("requester_id", requesterID),
		zap.Int64("addressee_id", addresseeID),
		zap.String("attempted", action.String()),
	)
	snap, err = s.Snapshot(ctx, requesterID, addresseeID)
	if err != nil {
		return SendResult{}, err
	}
	if action == sendCreateRequest {
		action, err = decideSendAfterConflict(snap)
	} else {
		action, err = decideSend(snap)
	}
	if err != nil {
		return SendResult{}, err
	}

	result, err = s.trySend(ctx, action, requesterID, addresseeID)
	if errors.Is(err, errSendRaced) {
		return SendResult{}, ErrRequestAlreadySent
	}
	return result, err
}

// errSendRaced marks a send whose write lost to a concurrent change of the pair.
var errSendRaced = errors.New("friend request raced a concurrent write")

// trySend performs one send action. A conflicting insert, or a reciprocal request that was
// withdrawn or blocked before it could be accepted, is reported as errSendRaced.
func (s *Service) trySend(ctx context.Context, action sendAction, requesterID, addresseeID int64) (SendResult, error) {
	if action == sendAcceptIncoming {
		friendship, err := s.accept(ctx, addresseeID, requesterID)
		switch {
		case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrFriendshipBlocked):
			return SendResult{}, errSendRaced
		case err != nil:
			return SendResult{}, err
		}
		return SendResult{Friendship: &friendship}, nil
	}

	request, err := s.store.CreateRequest(ctx, requesterID, addresseeID)
	switch ClassifyMutation(err) {
	case MutationOK:
		return SendResult{Request: &request}, nil
	case MutationNotFound:
		return SendResult{}, ErrUserNotFound
	case MutationConflict:
		return SendResult{}, errSendRaced
	default:
		return SendResult{}, fmt.Errorf("create friend request: %w", err)
	}
}

// AcceptFriendRequest turns the pending request requesterID -> addresseeID into a friendship.
// addresseeID is the accepting party.
func (s *Service) AcceptFriendRequest(ctx context.Context, requesterID, addresseeID int64) (friendship models.Friendship, err error) {
	if requesterID == addresseeID {
		return models.Friendship{}, ErrSelfReference
	}

	ctx, span := logging.StartSpan(ctx, "friends.AcceptFriendRequest")
	defer func() {
		s.observe("accept_request", err)
		span.End(err)
	}()

	snap, err := s.Snapshot(ctx, requesterID, addresseeID)
	if err != nil {
		return models.Friendship{}, err
	}
	if err := decideAccept(snap); err != nil {
		return models.Friendship{}, err
	}

	return s.accept(ctx, requesterID, addresseeID)
}

// accept commits the friendship and then notifies the original requester. A conflicting commit
// is explained from a fresh snapshot: a concurrent block or cancel reports as such.
func (s *Service) accept(ctx context.Context, requesterID, addresseeID int64) (models.Friendship, error) {
	friendship, err := s.store.AcceptRequest(ctx, requesterID, addresseeID)
	switch ClassifyMutation(err) {
	case MutationOK:
	case MutationNotFound:
		return models.Friendship{}, ErrRequestNotFound
	case MutationConflict:
		snap, readErr := s.Snapshot(ctx, requesterID, addresseeID)
		if readErr != nil {
			return models.Friendship{}, readErr
		}
		if decideErr := decideAccept(snap); decideErr != nil {
			return models.Friendship{}, decideErr
		}
		return models.Friendship{}, ErrFriendshipAlreadyExists
	default:
		return models.Friendship{}, fmt.Errorf("accept friend request: %w", err)
	}

	s.publishNewFriend(ctx, requesterID, addresseeID)
	return friendship, nil
}

// RejectFriendRequest discards the pending request requesterID -> addresseeID on behalf of the addressee.
func (s *Service) RejectFriendRequest(ctx context.Context, requesterID, addresseeID int64) (request models.FriendshipRequest, err error) {
	if requesterID == addresseeID {
		return models.FriendshipRequest{}, ErrSelfReference
	}

	ctx, span := logging.StartSpan(ctx, "friends.RejectFriendRequest")
	defer func() {
		s.observe("reject_request", err)
		span.End(err)
	}()

	return s.removePending(ctx, requesterID, addresseeID)
}

// CancelFriendRequest withdraws requesterID's own pending request to addresseeID.
func (s *Service) CancelFriendRequest(ctx context.Context, requesterID, addresseeID int64) (request models.FriendshipRequest, err error) {
	if requesterID == addresseeID {
		return models.FriendshipRequest{}, ErrSelfReference
	}

	ctx, span := logging.StartSpan(ctx, "friends.CancelFriendRequest")
	defer func() {
		s.observe("cancel_request", err)
		span.End(err)
	}()

	return s.removePending(ctx, requesterID, addresseeID)
}

func (s *Service) removePending(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error) {
	snap, err := s.Snapshot(ctx, requesterID, addresseeID)
	if err != nil {
		return models.FriendshipRequest{}, err
	}
	if err := decidePendingRemoval(snap); err != nil {
		return models.FriendshipRequest{}, err
	}

	request, err := s.store.DeleteRequest(ctx, requesterID, addresseeID)
	switch ClassifyMutation(err) {
	case MutationOK:
		return request, nil
	case MutationNotFound:
		return models.FriendshipRequest{}, ErrRequestNotFound
	default:
		return models.FriendshipRequest{}, fmt.Errorf("delete friend request: %w", err)
	}
}

// BlockUser blocks addresseeID on behalf of requesterID, removing any friendship and pending
// requests between them in the same transaction.
func (s *Service) BlockUser(ctx context.Context, requesterID, addresseeID int64) (result models.BlockResult, err error) {
	if requesterID == addresseeID {
		return models.BlockResult{}, ErrSelfReference
	}

	ctx, span := logging.StartSpan(ctx, "friends.BlockUser")
	defer func() {
		s.observe("block_user", err)
		span.End(err)
	}()

	snap, err := s.Snapshot(ctx, requesterID, addresseeID)
	if err != nil {
		return models.BlockResult{}, err
	}
	if err := decideBlock(snap); err != nil {
		return models.BlockResult{}, err
	}

	result, err = s.store.CreateBlock(ctx, requesterID, addresseeID)
	switch ClassifyMutation(err) {
	case MutationOK:
	case MutationConflict:
		return models.BlockResult{}, ErrUserBlocked
	case MutationNotFound:
		return models.BlockResult{}, ErrUserNotFound
	default:
		return models.BlockResult{}, fmt.Errorf("create block: %w", err)
	}

	logging.FromContext(ctx).Info("user blocked",
		zap.Int64("blocker_id", requesterID),
		zap.Int64("blocked_id", addresseeID),
		zap.Bool("removed_friendship", result.RemovedFriendship != nil),
		zap.Int("removed_requests", len(result.RemovedRequests)),
	)
	return result, nil
}

// UnblockUser removes requesterID's block on addresseeID. The pair returns to no relationship.
func (s *Service) UnblockUser(ctx context.Context, requesterID, addresseeID int64) (block models.BlockedRelationship, err error) {
	if requesterID == addresseeID {
		return models.BlockedRelationship{}, ErrSelfReference
	}

	ctx, span := logging.StartSpan(ctx, "friends.UnblockUser")
	defer func() {
		s.observe("unblock_user", err)
		span.End(err)
	}()

	snap, err := s.Snapshot(ctx, requesterID, addresseeID)
	if err != nil {
		return models.BlockedRelationship{}, err
	}
	if err := decideUnblock(snap); err != nil {
		return models.BlockedRelationship{}, err
	}

	block, err = s.store.DeleteBlock(ctx, requesterID, addresseeID)
	switch ClassifyMutation(err) {
	case MutationOK:
		return block, nil
	case MutationNotFound:
		return models.BlockedRelationship{}, ErrBlockedRelationshipNotFound
	default:
		return models.BlockedRelationship{}, fmt.Errorf("delete block: %w", err)
	}
}

// DeleteFriend ends the friendship between requesterID and addresseeID.
func (s *Service) DeleteFriend(ctx context.Context, requesterID, addresseeID int64) (friendship models.Friendship, err error) {
	if requesterID == addresseeID {
		return models.Friendship{}, ErrSelfReference
	}

	ctx, span := logging.StartSpan(ctx, "friends.DeleteFriend")
	defer func() {
		s.observe("delete_friend", err)
		span.End(err)
	}()

	snap, err := s.Snapshot(ctx, requesterID, addresseeID)
	if err != nil {
		return models.Friendship{}, err
	}
	if err := decideUnfriend(snap); err != nil {
		return models.Friendship{}, err
	}

	friendship, err = s.store.DeleteFriendship(ctx, requesterID, addresseeID)
	switch ClassifyMutation(err) {
	case MutationOK:
		return friendship, nil
	case MutationNotFound:
		return models.Friendship{}, ErrFriendshipNotFound
	default:
		return models.Friendship{}, fmt.Errorf("delete friendship: %w", err)
	}
}

// GetFriendshipStatus reports the relationship between viewerID and targetID from the viewer's side.
func (s *Service) GetFriendshipStatus(ctx context.Context, viewerID, targetID int64) (models.FriendshipStatus, error) {
	if viewerID == targetID {
		return models.FriendshipStatus{}, ErrSelfReference
	}

	snap, err := s.Snapshot(ctx, viewerID, targetID)
	if err != nil {
		return models.FriendshipStatus{}, err
	}
	return ProjectStatus(snap), nil
}

// ListFriends returns the friendships of userID, newest first.
func (s *Service) ListFriends(ctx context.Context, userID int64, page models.Page) ([]models.Friendship, error) {
	friendships, err := s.store.ListFriendships(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}
	return friendships, nil
}

// ListIncomingRequests returns pending requests addressed to userID.
func (s *Service) ListIncomingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error) {
	requests, err := s.store.ListIncomingRequests(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	return requests, nil
}

// ListOutgoingRequests returns pending requests sent by userID.
func (s *Service) ListOutgoingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error) {
	requests, err := s.store.ListOutgoingRequests(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list outgoing requests: %w", err)
	}
	return requests, nil
}

// ListBlocked returns the blocks created by userID.
func (s *Service) ListBlocked(ctx context.Context, userID int64, page models.Page) ([]models.BlockedRelationship, error) {
	blocks, err := s.store.ListBlocks(ctx, userID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return blocks, nil
}

// publishNewFriend tells requesterID that addresseeID is now their friend. Failures are logged
// and never undo the committed friendship.
func (s *Service) publishNewFriend(ctx context.Context, requesterID, addresseeID int64) {
	if s.publisher == nil {
		return
	}
	logger := logging.FromContext(ctx)

	payload := NewFriendPayload{NewFriendID: addresseeID, UserID: requesterID}
	if s.users != nil {
		info, err := s.users.SelectUserBasicInfo(ctx, addresseeID)
		if err != nil {
			logger.Warn("resolve new friend nickname", zap.Int64("user_id", addresseeID), zap.Error(err))
		} else {
			payload.NewFriendNickname = info.Nickname
		}
	}

	if err := s.publisher.Publish(ctx, EventNewFriend, payload); err != nil {
		logger.Warn("publish new friend event",
			zap.Int64("user_id", requesterID),
			zap.Int64("new_friend_id", addresseeID),
			zap.Error(err),
		)
	}
}

func (s *Service) observe(operation string, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveOperation(operation, outcomeOf(err))
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return strings.ToLower(string(domainErr.Kind))
	}
	return "error"
}
