package repositories

import (
	"context"

	"github.com/versefriends/backend/internal/models"
)

// UserRepository exposes the read-only user facts owned by the users domain.
type UserRepository interface {
	SelectUserBasicInfo(ctx context.Context, userID int64) (models.UserBasicInfo, error)
}
