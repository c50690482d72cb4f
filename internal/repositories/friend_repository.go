package repositories

import (
	"context"

	"github.com/versefriends/backend/internal/models"
)

// RelationshipRepository defines data access for friendship requests, friendships and blocks.
// Every mutating method is atomic.
type RelationshipRepository interface {
	Facts(ctx context.Context, viewerID, targetID int64) (models.RelationshipFacts, error)

	CreateRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error)
	DeleteRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error)
	AcceptRequest(ctx context.Context, requesterID, addresseeID int64) (models.Friendship, error)
	DeleteFriendship(ctx context.Context, userID, otherID int64) (models.Friendship, error)
	CreateBlock(ctx context.Context, blockerID, blockedID int64) (models.BlockResult, error)
	DeleteBlock(ctx context.Context, blockerID, blockedID int64) (models.BlockedRelationship, error)

	ListFriendships(ctx context.Context, userID int64, page models.Page) ([]models.Friendship, error)
	ListIncomingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error)
	ListOutgoingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error)
	ListBlocks(ctx context.Context, blockerID int64, page models.Page) ([]models.BlockedRelationship, error)
}
