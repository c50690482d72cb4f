package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/versefriends/backend/internal/friends"
	"github.com/versefriends/backend/internal/logging"
	"github.com/versefriends/backend/internal/models"
	"github.com/versefriends/backend/internal/repositories"
)

// FriendHandler exposes the relationship engine over HTTP. The caller is the authenticated
// user; the {id} path variable names the other party.
type FriendHandler struct {
	Friends FriendService
	Users   UserDirectory
	Limiter RateLimiter
}

type sendResponse struct {
	Status     string                    `json:"status"`
	Request    *models.FriendshipRequest `json:"request,omitempty"`
	Friendship *models.Friendship        `json:"friendship,omitempty"`
}

type rejectResponse struct {
	Rejected models.FriendshipRequest `json:"rejected"`
}

type cancelResponse struct {
	Cancelled models.FriendshipRequest `json:"cancelled"`
}

type unblockResponse struct {
	Unblocked models.BlockedRelationship `json:"unblocked"`
}

type removeResponse struct {
	Removed models.Friendship `json:"removed"`
}

type friendListResponse struct {
	Friends []models.Friendship `json:"friends"`
}

type requestListResponse struct {
	Requests []models.FriendshipRequest `json:"requests"`
}

type blockListResponse struct {
	Blocked []models.BlockedRelationship `json:"blocked"`
}

// gate describes how strictly the other party is checked before a mutation.
type gate int

const (
	// gateExisting only requires the other user to exist, so relationships with banned users
	// can still be dismantled.
	gateExisting gate = iota
	// gateActive also requires the other user to be active.
	gateActive
)

// Send handles POST /friends/{id}.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, targetID, ok := h.prepare(w, r, "send", gateActive)
	if !ok {
		return
	}

	result, err := h.Friends.SendFriendRequest(ctx, callerID, targetID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if result.Friendship != nil {
		respondJSON(ctx, w, http.StatusCreated, sendResponse{Status: models.StatusFriends, Friendship: result.Friendship})
		return
	}
	respondJSON(ctx, w, http.StatusCreated, sendResponse{Status: models.StatusPendingSent, Request: result.Request})
}

// Accept handles PATCH /friends/accept/{id}; {id} is the user who sent the request.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, requesterID, ok := h.prepare(w, r, "accept", gateActive)
	if !ok {
		return
	}

	friendship, err := h.Friends.AcceptFriendRequest(ctx, requesterID, callerID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, friendship)
}

// Reject handles PATCH /friends/reject/{id}; {id} is the user who sent the request.
func (h FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, requesterID, ok := h.prepare(w, r, "reject", gateExisting)
	if !ok {
		return
	}

	request, err := h.Friends.RejectFriendRequest(ctx, requesterID, callerID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, rejectResponse{Rejected: request})
}

// Cancel handles DELETE /friends/cancel/{id}; the caller withdraws their own request.
func (h FriendHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, addresseeID, ok := h.prepare(w, r, "cancel", gateExisting)
	if !ok {
		return
	}

	request, err := h.Friends.CancelFriendRequest(ctx, callerID, addresseeID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, cancelResponse{Cancelled: request})
}

// Block handles PATCH /friends/block/{id}.
func (h FriendHandler) Block(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, targetID, ok := h.prepare(w, r, "block", gateExisting)
	if !ok {
		return
	}

	result, err := h.Friends.BlockUser(ctx, callerID, targetID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Unblock handles PATCH /friends/unblock/{id}.
func (h FriendHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, targetID, ok := h.prepare(w, r, "unblock", gateExisting)
	if !ok {
		return
	}

	block, err := h.Friends.UnblockUser(ctx, callerID, targetID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, unblockResponse{Unblocked: block})
}

// Delete handles DELETE /friends/delete/{id}.
func (h FriendHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, targetID, ok := h.prepare(w, r, "delete", gateExisting)
	if !ok {
		return
	}

	friendship, err := h.Friends.DeleteFriend(ctx, callerID, targetID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, removeResponse{Removed: friendship})
}

// Status handles GET /friends/{id}.
func (h FriendHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, targetID, ok := h.prepare(w, r, "", gateExisting)
	if !ok {
		return
	}

	status, err := h.Friends.GetFriendshipStatus(ctx, callerID, targetID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, status)
}

// List handles GET /friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, page, ok := h.prepareList(w, r)
	if !ok {
		return
	}

	friendships, err := h.Friends.ListFriends(ctx, callerID, page)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, friendListResponse{Friends: nonNil(friendships)})
}

// Incoming handles GET /friends/requests/incoming.
func (h FriendHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, page, ok := h.prepareList(w, r)
	if !ok {
		return
	}

	requests, err := h.Friends.ListIncomingRequests(ctx, callerID, page)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, requestListResponse{Requests: nonNil(requests)})
}

// Outgoing handles GET /friends/requests/outgoing.
func (h FriendHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, page, ok := h.prepareList(w, r)
	if !ok {
		return
	}

	requests, err := h.Friends.ListOutgoingRequests(ctx, callerID, page)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, requestListResponse{Requests: nonNil(requests)})
}

// Blocked handles GET /friends/blocked.
func (h FriendHandler) Blocked(w http.ResponseWriter, r *http.Request) {
	ctx, callerID, page, ok := h.prepareList(w, r)
	if !ok {
		return
	}

	blocks, err := h.Friends.ListBlocked(ctx, callerID, page)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, blockListResponse{Blocked: nonNil(blocks)})
}

// prepare authenticates the caller, parses the target, applies rate limiting for mutating
// scopes and gates both users. Self-targeting requests skip the user lookups so the engine
// rejects them before any store access.
func (h FriendHandler) prepare(w http.ResponseWriter, r *http.Request, scope string, g gate) (context.Context, int64, int64, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Friends == nil {
		logger.Error("friend service unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "friend service unavailable"})
		return ctx, 0, 0, false
	}

	callerID, ok := logging.UserIDFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return ctx, 0, 0, false
	}

	targetID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || targetID <= 0 {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid user id"})
		return ctx, 0, 0, false
	}

	if scope != "" && !allowRequest(h.Limiter, r, "friends:"+scope) {
		w.Header().Set("Retry-After", "1")
		respondJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
		return ctx, 0, 0, false
	}

	if callerID == targetID || h.Users == nil {
		return ctx, callerID, targetID, true
	}

	if !h.checkCaller(ctx, w, callerID) || !h.checkTarget(ctx, w, targetID, g) {
		return ctx, 0, 0, false
	}
	return ctx, callerID, targetID, true
}

func (h FriendHandler) checkCaller(ctx context.Context, w http.ResponseWriter, callerID int64) bool {
	caller, err := h.Users.SelectUserBasicInfo(ctx, callerID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return false
	case err != nil:
		respondError(ctx, w, err)
		return false
	case !caller.Active():
		respondJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "account is not active"})
		return false
	}
	return true
}

func (h FriendHandler) checkTarget(ctx context.Context, w http.ResponseWriter, targetID int64, g gate) bool {
	target, err := h.Users.SelectUserBasicInfo(ctx, targetID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		respondError(ctx, w, friends.ErrUserNotFound)
		return false
	case err != nil:
		respondError(ctx, w, err)
		return false
	case g == gateActive && !target.Active():
		logging.FromContext(ctx).Debug("target user is not active", zap.Int64("target_id", targetID), zap.String("status", target.Status))
		respondError(ctx, w, friends.ErrUserNotFound)
		return false
	}
	return true
}

func (h FriendHandler) prepareList(w http.ResponseWriter, r *http.Request) (context.Context, int64, models.Page, bool) {
	ctx := r.Context()

	if h.Friends == nil {
		logging.FromContext(ctx).Error("friend service unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "friend service unavailable"})
		return ctx, 0, models.Page{}, false
	}

	callerID, ok := logging.UserIDFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return ctx, 0, models.Page{}, false
	}

	page, err := parsePage(r)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return ctx, 0, models.Page{}, false
	}
	return ctx, callerID, page, true
}

func parsePage(r *http.Request) (models.Page, error) {
	var page models.Page
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return models.Page{}, errors.New("limit must be a non-negative integer")
		}
		page.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return models.Page{}, errors.New("offset must be a non-negative integer")
		}
		page.Offset = offset
	}
	return page.Normalize(), nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
