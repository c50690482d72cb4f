package friends

import "github.com/versefriends/backend/internal/models"

// ProjectStatus derives the viewer-facing status and capability flags from a snapshot.
// Blocked pairs report no relationship and no available action.
func ProjectStatus(s Snapshot) models.FriendshipStatus {
	switch s.Relation {
	case RelationNone:
		return models.FriendshipStatus{Status: models.StatusNone, CanSendRequest: true}
	case RelationPendingOutgoing:
		requester := s.ViewerID
		return models.FriendshipStatus{
			Exists:          true,
			Status:          models.StatusPendingSent,
			RequesterID:     &requester,
			CanRemoveFriend: true,
		}
	case RelationPendingIncoming:
		requester := s.TargetID
		return models.FriendshipStatus{
			Exists:           true,
			Status:           models.StatusPendingReceived,
			RequesterID:      &requester,
			CanAcceptRequest: true,
		}
	case RelationFriends:
		requester := s.Facts.Friendship.UserAID
		return models.FriendshipStatus{
			Exists:          true,
			Status:          models.StatusFriends,
			RequesterID:     &requester,
			CanRemoveFriend: true,
		}
	default:
		return models.FriendshipStatus{Status: models.StatusNone}
	}
}
