package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/versefriends/backend/internal/friends"
	"github.com/versefriends/backend/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", zap.Int("status", status), zap.Error(err))
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", zap.Int("status", status), zap.Any("response", payload))
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", zap.Int("status", status), zap.Any("response", payload))
	}
}

// statusForKind is the single place domain error kinds become HTTP status codes.
func statusForKind(kind friends.Kind) int {
	switch kind {
	case friends.KindSelfReference,
		friends.KindFriendshipAlreadyExists,
		friends.KindRequestAlreadySent,
		friends.KindFriendshipBlocked:
		return http.StatusConflict
	case friends.KindUserBlocked:
		return http.StatusForbidden
	case friends.KindRequestNotFound,
		friends.KindFriendshipNotFound,
		friends.KindBlockedRelationshipNotFound,
		friends.KindUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes domain errors with their kind and hides infrastructure failures.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	var domainErr *friends.Error
	if errors.As(err, &domainErr) {
		respondJSON(ctx, w, statusForKind(domainErr.Kind), errorResponse{Error: domainErr.Message, Code: string(domainErr.Kind)})
		return
	}

	logging.FromContext(ctx).Error("relationship operation failed", zap.Error(err))
	respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
