package friends

import "github.com/versefriends/backend/internal/models"

// Relation is the single tagged state a pair of users is in, seen from the viewer.
type Relation int

const (
	RelationNone Relation = iota
	RelationPendingOutgoing
	RelationPendingIncoming
	RelationFriends
	RelationBlockedByMe
	RelationBlockedByOther
	RelationMutuallyBlocked
)

var relationNames = map[Relation]string{
	RelationNone:            "none",
	RelationPendingOutgoing: "pending_outgoing",
	RelationPendingIncoming: "pending_incoming",
	RelationFriends:         "friends",
	RelationBlockedByMe:     "blocked_by_me",
	RelationBlockedByOther:  "blocked_by_other",
	RelationMutuallyBlocked: "mutually_blocked",
}

func (r Relation) String() string {
	if name, ok := relationNames[r]; ok {
		return name
	}
	return "unknown"
}

// Blocked reports whether any block exists between the pair.
func (r Relation) Blocked() bool {
	return r == RelationBlockedByMe || r == RelationBlockedByOther || r == RelationMutuallyBlocked
}

// Snapshot is the resolved relationship between ViewerID and TargetID.
type Snapshot struct {
	ViewerID int64
	TargetID int64
	Facts    models.RelationshipFacts
	Relation Relation
}

// NewSnapshot derives the tagged relation from raw facts. Blocks win over a friendship, which
// wins over pending requests; overlapping facts only appear when the store was seeded directly.
func NewSnapshot(viewerID, targetID int64, facts models.RelationshipFacts) Snapshot {
	return Snapshot{
		ViewerID: viewerID,
		TargetID: targetID,
		Facts:    facts,
		Relation: relationOf(facts),
	}
}

func relationOf(facts models.RelationshipFacts) Relation {
	switch {
	case facts.BlockedByMe != nil && facts.BlockedByOther != nil:
		return RelationMutuallyBlocked
	case facts.BlockedByMe != nil:
		return RelationBlockedByMe
	case facts.BlockedByOther != nil:
		return RelationBlockedByOther
	case facts.Friendship != nil:
		return RelationFriends
	case facts.Outgoing != nil:
		return RelationPendingOutgoing
	case facts.Incoming != nil:
		return RelationPendingIncoming
	default:
		return RelationNone
	}
}
