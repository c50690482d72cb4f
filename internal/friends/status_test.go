package friends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versefriends/backend/internal/models"
)

func TestProjectStatus(t *testing.T) {
	none := ProjectStatus(NewSnapshot(1, 2, factsFor(RelationNone)))
	assert.Equal(t, models.FriendshipStatus{Status: models.StatusNone, CanSendRequest: true}, none)

	sent := ProjectStatus(NewSnapshot(1, 2, factsFor(RelationPendingOutgoing)))
	assert.Equal(t, models.StatusPendingSent, sent.Status)
	assert.True(t, sent.Exists)
	require.NotNil(t, sent.RequesterID)
	assert.EqualValues(t, 1, *sent.RequesterID)
	assert.True(t, sent.CanRemoveFriend)
	assert.False(t, sent.CanAcceptRequest)
	assert.False(t, sent.CanSendRequest)

	received := ProjectStatus(NewSnapshot(1, 2, factsFor(RelationPendingIncoming)))
	assert.Equal(t, models.StatusPendingReceived, received.Status)
	require.NotNil(t, received.RequesterID)
	assert.EqualValues(t, 2, *received.RequesterID)
	assert.True(t, received.CanAcceptRequest)
	assert.False(t, received.CanRemoveFriend)

	friends := ProjectStatus(NewSnapshot(1, 2, factsFor(RelationFriends)))
	assert.Equal(t, models.StatusFriends, friends.Status)
	require.NotNil(t, friends.RequesterID)
	assert.EqualValues(t, 2, *friends.RequesterID)
	assert.True(t, friends.CanRemoveFriend)
}

func TestProjectStatusHidesBlocks(t *testing.T) {
	for _, relation := range []Relation{RelationBlockedByMe, RelationBlockedByOther, RelationMutuallyBlocked} {
		status := ProjectStatus(NewSnapshot(1, 2, factsFor(relation)))
		assert.Equal(t, models.FriendshipStatus{Status: models.StatusNone}, status, relation.String())
	}
}
