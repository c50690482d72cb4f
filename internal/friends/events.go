package friends

// EventNewFriend is published to the original requester once a friendship is formed.
const EventNewFriend = "NEW_FRIEND"

// NewFriendPayload is the body of an EventNewFriend event.
type NewFriendPayload struct {
	NewFriendID       int64  `json:"newFriendId"`
	NewFriendNickname string `json:"newFriendNickname"`
	UserID            int64  `json:"userId"`
}
