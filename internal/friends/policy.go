package friends

// sendAction is what a SendFriendRequest call resolves to.
type sendAction int

const (
	sendCreateRequest sendAction = iota
	sendAcceptIncoming
)

func (a sendAction) String() string {
	if a == sendAcceptIncoming {
		return "accept_incoming"
	}
	return "create_request"
}

func decideSend(s Snapshot) (sendAction, error) {
	switch s.Relation {
	case RelationBlockedByMe, RelationBlockedByOther, RelationMutuallyBlocked:
		return 0, ErrUserBlocked
	case RelationFriends:
		return 0, ErrFriendshipAlreadyExists
	case RelationPendingOutgoing:
		return 0, ErrRequestAlreadySent
	case RelationPendingIncoming:
		return sendAcceptIncoming, nil
	default:
		return sendCreateRequest, nil
	}
}

// decideSendAfterConflict re-evaluates a send whose insert lost a race. A state that still
// looks free means a concurrent duplicate of the same request won.
func decideSendAfterConflict(s Snapshot) (sendAction, error) {
	action, err := decideSend(s)
	if err != nil {
		return 0, err
	}
	if action == sendCreateRequest {
		return 0, ErrRequestAlreadySent
	}
	return action, nil
}

// decideAccept checks that the viewer's request to the target may be turned into a friendship.
// The snapshot is read from the original requester's side.
func decideAccept(s Snapshot) error {
	switch {
	case s.Facts.Friendship != nil:
		return ErrFriendshipAlreadyExists
	case s.Relation.Blocked():
		return ErrFriendshipBlocked
	case s.Facts.Outgoing == nil:
		return ErrRequestNotFound
	}
	return nil
}

// decidePendingRemoval covers reject and cancel: both consume the viewer's outgoing request.
func decidePendingRemoval(s Snapshot) error {
	if s.Facts.Outgoing == nil {
		return ErrRequestNotFound
	}
	return nil
}

func decideBlock(s Snapshot) error {
	if s.Relation.Blocked() {
		return ErrUserBlocked
	}
	return nil
}

func decideUnblock(s Snapshot) error {
	if s.Facts.BlockedByMe == nil {
		return ErrBlockedRelationshipNotFound
	}
	return nil
}

func decideUnfriend(s Snapshot) error {
	if s.Facts.Friendship == nil {
		return ErrFriendshipNotFound
	}
	return nil
}
