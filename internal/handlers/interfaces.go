package handlers

import (
	"context"

	"github.com/versefriends/backend/internal/friends"
	"github.com/versefriends/backend/internal/models"
)

// FriendService captures the relationship use cases required by the friend handlers.
type FriendService interface {
	SendFriendRequest(ctx context.Context, requesterID, addresseeID int64) (friends.SendResult, error)
	AcceptFriendRequest(ctx context.Context, requesterID, addresseeID int64) (models.Friendship, error)
	RejectFriendRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error)
	CancelFriendRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error)
	BlockUser(ctx context.Context, requesterID, addresseeID int64) (models.BlockResult, error)
	UnblockUser(ctx context.Context, requesterID, addresseeID int64) (models.BlockedRelationship, error)
	DeleteFriend(ctx context.Context, requesterID, addresseeID int64) (models.Friendship, error)
	GetFriendshipStatus(ctx context.Context, viewerID, targetID int64) (models.FriendshipStatus, error)

	ListFriends(ctx context.Context, userID int64, page models.Page) ([]models.Friendship, error)
	ListIncomingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error)
	ListOutgoingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error)
	ListBlocked(ctx context.Context, userID int64, page models.Page) ([]models.BlockedRelationship, error)
}

// UserDirectory resolves user facts owned by the users domain.
type UserDirectory interface {
	SelectUserBasicInfo(ctx context.Context, userID int64) (models.UserBasicInfo, error)
}

var _ FriendService = (*friends.Service)(nil)
