package friends

import (
	"context"

	"github.com/versefriends/backend/internal/models"
)

// SnapshotReader resolves every relationship row between two users with a single read.
// Missing rows are reported as nil fields, never as errors.
type SnapshotReader interface {
	Facts(ctx context.Context, viewerID, targetID int64) (models.RelationshipFacts, error)
}

// Mutator applies relationship state transitions. Each call is atomic: it either fully applies
// or leaves the store untouched. Expected business outcomes are reported as
// repositories.ErrConflict or repositories.ErrNotFound; anything else is an infrastructure failure.
type Mutator interface {
	CreateRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error)
	DeleteRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error)
	AcceptRequest(ctx context.Context, requesterID, addresseeID int64) (models.Friendship, error)
	DeleteFriendship(ctx context.Context, userID, otherID int64) (models.Friendship, error)
	CreateBlock(ctx context.Context, blockerID, blockedID int64) (models.BlockResult, error)
	DeleteBlock(ctx context.Context, blockerID, blockedID int64) (models.BlockedRelationship, error)
}

// Lister serves the read-only listing queries.
type Lister interface {
	ListFriendships(ctx context.Context, userID int64, page models.Page) ([]models.Friendship, error)
	ListIncomingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error)
	ListOutgoingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error)
	ListBlocks(ctx context.Context, blockerID int64, page models.Page) ([]models.BlockedRelationship, error)
}

// Store is the full persistence contract of the engine.
type Store interface {
	SnapshotReader
	Mutator
	Lister
}

// Directory resolves basic user information owned by the users domain.
type Directory interface {
	SelectUserBasicInfo(ctx context.Context, userID int64) (models.UserBasicInfo, error)
}

// Publisher delivers integration events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, eventName string, payload any) error
}

// Recorder observes the outcome of each engine operation.
type Recorder interface {
	ObserveOperation(operation, outcome string)
}
