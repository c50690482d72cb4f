package friends

import (
	"errors"

	"github.com/versefriends/backend/internal/repositories"
)

// Kind is the stable, machine-readable identifier of a domain error.
type Kind string

const (
	KindSelfReference               Kind = "SELF_REFERENCE"
	KindFriendshipAlreadyExists     Kind = "FRIENDSHIP_ALREADY_EXISTS"
	KindRequestAlreadySent          Kind = "REQUEST_ALREADY_SENT"
	KindUserBlocked                 Kind = "USER_BLOCKED"
	KindFriendshipBlocked           Kind = "FRIENDSHIP_BLOCKED"
	KindRequestNotFound             Kind = "REQUEST_NOT_FOUND"
	KindFriendshipNotFound          Kind = "FRIENDSHIP_NOT_FOUND"
	KindBlockedRelationshipNotFound Kind = "BLOCKED_RELATIONSHIP_NOT_FOUND"
	KindUserNotFound                Kind = "USER_NOT_FOUND"
)

// Error is a business-rule violation reported by the relationship engine.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same Kind, so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrSelfReference               = &Error{Kind: KindSelfReference, Message: "users cannot target themselves"}
	ErrFriendshipAlreadyExists     = &Error{Kind: KindFriendshipAlreadyExists, Message: "users are already friends"}
	ErrRequestAlreadySent          = &Error{Kind: KindRequestAlreadySent, Message: "friend request already sent"}
	ErrUserBlocked                 = &Error{Kind: KindUserBlocked, Message: "a block exists between these users"}
	ErrFriendshipBlocked           = &Error{Kind: KindFriendshipBlocked, Message: "cannot accept a request while a block exists"}
	ErrRequestNotFound             = &Error{Kind: KindRequestNotFound, Message: "friend request not found"}
	ErrFriendshipNotFound          = &Error{Kind: KindFriendshipNotFound, Message: "friendship not found"}
	ErrBlockedRelationshipNotFound = &Error{Kind: KindBlockedRelationshipNotFound, Message: "blocked relationship not found"}
	ErrUserNotFound                = &Error{Kind: KindUserNotFound, Message: "user not found"}
)

// KindOf extracts the domain error kind, reporting false for infrastructure failures.
func KindOf(err error) (Kind, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind, true
	}
	return "", false
}

// MutationKind classifies the outcome of a Mutator call.
type MutationKind string

const (
	MutationOK       MutationKind = "OK"
	MutationConflict MutationKind = "CONFLICT"
	MutationNotFound MutationKind = "NOT_FOUND"
	MutationUnknown  MutationKind = "UNKNOWN"
)

// ClassifyMutation maps a Mutator error onto its outcome kind.
func ClassifyMutation(err error) MutationKind {
	switch {
	case err == nil:
		return MutationOK
	case errors.Is(err, repositories.ErrConflict):
		return MutationConflict
	case errors.Is(err, repositories.ErrNotFound):
		return MutationNotFound
	default:
		return MutationUnknown
	}
}
