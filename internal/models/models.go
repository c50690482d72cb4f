package models

import "time"

// User status and role values owned by the users domain.
const (
	UserStatusActive = "active"
	UserStatusBanned = "banned"

	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

// UserBasicInfo is the slice of a user record the relationship engine needs.
type UserBasicInfo struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Status   string `json:"status"`
	Role     string `json:"role"`
}

// Active reports whether the user may take part in relationships.
func (u UserBasicInfo) Active() bool {
	return u.Status == UserStatusActive
}

// FriendshipRequest is a pending, directed invitation between two users.
type FriendshipRequest struct {
	RequesterID int64     `json:"requesterId"`
	AddresseeID int64     `json:"addresseeId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Friendship is an undirected relationship. UserAID is the original requester.
type Friendship struct {
	UserAID   int64     `json:"userAId"`
	UserBID   int64     `json:"userBId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Other returns the friend of userID.
func (f Friendship) Other(userID int64) int64 {
	if f.UserAID == userID {
		return f.UserBID
	}
	return f.UserAID
}

// BlockedRelationship records that BlockerID blocked BlockedID.
type BlockedRelationship struct {
	BlockerID int64     `json:"blockerId"`
	BlockedID int64     `json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Relationship status values exposed to clients.
const (
	StatusNone            = "none"
	StatusPendingSent     = "pending_sent"
	StatusPendingReceived = "pending_received"
	StatusFriends         = "friends"
)

// FriendshipStatus is the user-facing projection of the relationship between a viewer and a target.
type FriendshipStatus struct {
	Exists           bool   `json:"exists"`
	Status           string `json:"status"`
	RequesterID      *int64 `json:"requesterId"`
	CanSendRequest   bool   `json:"canSendRequest"`
	CanAcceptRequest bool   `json:"canAcceptRequest"`
	CanRemoveFriend  bool   `json:"canRemoveFriend"`
}

// RelationshipFacts are the rows that exist between a viewer and a target at one point in time.
// Every field is nil when the corresponding row is absent.
type RelationshipFacts struct {
	Outgoing       *FriendshipRequest
	Incoming       *FriendshipRequest
	Friendship     *Friendship
	BlockedByMe    *BlockedRelationship
	BlockedByOther *BlockedRelationship
}

// BlockResult describes a created block and the rows its cascade removed.
type BlockResult struct {
	Block             BlockedRelationship `json:"block"`
	RemovedFriendship *Friendship         `json:"removedFriendship,omitempty"`
	RemovedRequests   []FriendshipRequest `json:"removedRequests,omitempty"`
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page to supported bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
