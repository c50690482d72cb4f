package friends

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/versefriends/backend/internal/repositories"
)

func TestErrorMatchesByKind(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", &Error{Kind: KindUserBlocked, Message: "custom"})
	assert.ErrorIs(t, wrapped, ErrUserBlocked)
	assert.NotErrorIs(t, wrapped, ErrFriendshipBlocked)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindUserBlocked, kind)

	_, ok = KindOf(errors.New("connection reset"))
	assert.False(t, ok)
}

func TestClassifyMutation(t *testing.T) {
	assert.Equal(t, MutationOK, ClassifyMutation(nil))
	assert.Equal(t, MutationConflict, ClassifyMutation(fmt.Errorf("insert: %w", repositories.ErrConflict)))
	assert.Equal(t, MutationNotFound, ClassifyMutation(fmt.Errorf("delete: %w", repositories.ErrNotFound)))
	assert.Equal(t, MutationUnknown, ClassifyMutation(errors.New("timeout")))
}
