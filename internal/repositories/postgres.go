package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/versefriends/backend/internal/db"
	"github.com/versefriends/backend/internal/models"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// serializable is used for every multi-statement mutation.
var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// inSerializableTx runs fn with crdbpgx.ExecuteTx. CockroachDB retries serialization failures
// inside ExecuteTx; PostgreSQL reports them at statement or commit time with no retry. Either
// way a failure that escapes means a concurrent writer changed the pair, so it is reported as
// ErrConflict and the caller decides from a fresh read.
func inSerializableTx(ctx context.Context, pool db.Pool, fn func(pgx.Tx) error) error {
	return mapTxError(crdbpgx.ExecuteTx(ctx, pool, serializable, fn))
}

func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		switch coded.SQLState() {
		case pgSerializationFailure, pgDeadlockDetected:
			return ErrConflict
		}
	}
	return err
}

// mapWriteError converts constraint violations into the package sentinels.
func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgCheckViolation:
			return ErrConflict
		case pgForeignKeyViolation:
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PostgresUserRepository reads user facts from PostgreSQL.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// SelectUserBasicInfo fetches the status facts of a single user.
func (r *PostgresUserRepository) SelectUserBasicInfo(ctx context.Context, userID int64) (models.UserBasicInfo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.UserBasicInfo{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, nickname, status, role
        FROM users
        WHERE id = $1
    `, userID)

	var user models.UserBasicInfo
	if err := row.Scan(&user.ID, &user.Nickname, &user.Status, &user.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UserBasicInfo{}, ErrNotFound
		}
		return models.UserBasicInfo{}, fmt.Errorf("select user basic info: %w", err)
	}

	return user, nil
}

// PostgresRelationshipRepository provides PostgreSQL-backed persistence for friendship
// requests, friendships and blocks.
type PostgresRelationshipRepository struct {
	pool db.Pool
}

// NewPostgresRelationshipRepository constructs a relationship repository backed by PostgreSQL.
func NewPostgresRelationshipRepository(pool db.Pool) *PostgresRelationshipRepository {
	return &PostgresRelationshipRepository{pool: pool}
}

// Facts resolves every row between viewerID and targetID with a single query.
func (r *PostgresRelationshipRepository) Facts(ctx context.Context, viewerID, targetID int64) (models.RelationshipFacts, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.RelationshipFacts{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT 'request' AS kind, requester_id, addressee_id, created_at
        FROM friendship_requests
        WHERE (requester_id = $1::INT8 AND addressee_id = $2::INT8)
           OR (requester_id = $2::INT8 AND addressee_id = $1::INT8)
        UNION ALL
        SELECT 'friendship' AS kind, user_a_id, user_b_id, created_at
        FROM friendships
        WHERE LEAST(user_a_id, user_b_id) = LEAST($1::INT8, $2::INT8)
          AND GREATEST(user_a_id, user_b_id) = GREATEST($1::INT8, $2::INT8)
        UNION ALL
        SELECT 'block' AS kind, blocker_id, blocked_id, created_at
        FROM blocked_relationships
        WHERE (blocker_id = $1::INT8 AND blocked_id = $2::INT8)
           OR (blocker_id = $2::INT8 AND blocked_id = $1::INT8)
    `, viewerID, targetID)
	if err != nil {
		return models.RelationshipFacts{}, fmt.Errorf("query relationship facts: %w", err)
	}
	defer rows.Close()

	var facts models.RelationshipFacts
	for rows.Next() {
		var (
			kind      string
			first     int64
			second    int64
			createdAt time.Time
		)
		if err := rows.Scan(&kind, &first, &second, &createdAt); err != nil {
			return models.RelationshipFacts{}, fmt.Errorf("scan relationship fact: %w", err)
		}
		createdAt = createdAt.UTC()

		switch kind {
		case "request":
			request := &models.FriendshipRequest{RequesterID: first, AddresseeID: second, CreatedAt: createdAt}
			if first == viewerID {
				facts.Outgoing = request
			} else {
				facts.Incoming = request
			}
		case "friendship":
			facts.Friendship = &models.Friendship{UserAID: first, UserBID: second, CreatedAt: createdAt}
		case "block":
			block := &models.BlockedRelationship{BlockerID: first, BlockedID: second, CreatedAt: createdAt}
			if first == viewerID {
				facts.BlockedByMe = block
			} else {
				facts.BlockedByOther = block
			}
		}
	}

	if err := rows.Err(); err != nil {
		return models.RelationshipFacts{}, fmt.Errorf("iterate relationship facts: %w", err)
	}

	return facts, nil
}

// CreateRequest inserts a pending request. It reports ErrConflict when the pair is blocked,
// already friends, or a request exists in either direction.
func (r *PostgresRelationshipRepository) CreateRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error) {
	request := models.FriendshipRequest{RequesterID: requesterID, AddresseeID: addresseeID}

	err := inSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var occupied bool
		if err := tx.QueryRow(ctx, `
            SELECT EXISTS (
                SELECT 1 FROM blocked_relationships
                WHERE (blocker_id = $1::INT8 AND blocked_id = $2::INT8)
                   OR (blocker_id = $2::INT8 AND blocked_id = $1::INT8)
            ) OR EXISTS (
                SELECT 1 FROM friendships
                WHERE LEAST(user_a_id, user_b_id) = LEAST($1::INT8, $2::INT8)
                  AND GREATEST(user_a_id, user_b_id) = GREATEST($1::INT8, $2::INT8)
            ) OR EXISTS (
                SELECT 1 FROM friendship_requests
                WHERE requester_id = $2::INT8 AND addressee_id = $1::INT8
            )
        `, requesterID, addresseeID).Scan(&occupied); err != nil {
			return fmt.Errorf("check pair state: %w", err)
		}
		if occupied {
			return ErrConflict
		}

		err := tx.QueryRow(ctx, `
            INSERT INTO friendship_requests (requester_id, addressee_id)
            VALUES ($1, $2)
            RETURNING created_at
        `, requesterID, addresseeID).Scan(&request.CreatedAt)
		if err != nil {
			return mapWriteError(err, "insert friendship request")
		}
		return nil
	})
	if err != nil {
		return models.FriendshipRequest{}, err
	}

	request.CreatedAt = request.CreatedAt.UTC()
	return request, nil
}

// DeleteRequest removes the pending request requesterID -> addresseeID.
func (r *PostgresRelationshipRepository) DeleteRequest(ctx context.Context, requesterID, addresseeID int64) (models.FriendshipRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendshipRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	request := models.FriendshipRequest{RequesterID: requesterID, AddresseeID: addresseeID}
	err = conn.QueryRow(ctx, `
        DELETE FROM friendship_requests
        WHERE requester_id = $1 AND addressee_id = $2
        RETURNING created_at
    `, requesterID, addresseeID).Scan(&request.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendshipRequest{}, ErrNotFound
		}
		return models.FriendshipRequest{}, fmt.Errorf("delete friendship request: %w", err)
	}

	request.CreatedAt = request.CreatedAt.UTC()
	return request, nil
}

// AcceptRequest consumes the request requesterID -> addresseeID and records the friendship.
// A stray request in the opposite direction is removed in the same transaction.
func (r *PostgresRelationshipRepository) AcceptRequest(ctx context.Context, requesterID, addresseeID int64) (models.Friendship, error) {
	friendship := models.Friendship{UserAID: requesterID, UserBID: addresseeID}

	err := inSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            DELETE FROM friendship_requests
            WHERE requester_id = $1 AND addressee_id = $2
        `, requesterID, addresseeID)
		if err != nil {
			return fmt.Errorf("delete accepted request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `
            DELETE FROM friendship_requests
            WHERE requester_id = $2 AND addressee_id = $1
        `, requesterID, addresseeID); err != nil {
			return fmt.Errorf("delete reciprocal request: %w", err)
		}

		err = tx.QueryRow(ctx, `
            INSERT INTO friendships (user_a_id, user_b_id)
            VALUES ($1, $2)
            RETURNING created_at
        `, requesterID, addresseeID).Scan(&friendship.CreatedAt)
		if err != nil {
			return mapWriteError(err, "insert friendship")
		}
		return nil
	})
	if err != nil {
		return models.Friendship{}, err
	}

	friendship.CreatedAt = friendship.CreatedAt.UTC()
	return friendship, nil
}

// DeleteFriendship removes the friendship between the two users regardless of stored order.
func (r *PostgresRelationshipRepository) DeleteFriendship(ctx context.Context, userID, otherID int64) (models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var friendship models.Friendship
	err = conn.QueryRow(ctx, `
        DELETE FROM friendships
        WHERE LEAST(user_a_id, user_b_id) = LEAST($1::INT8, $2::INT8)
          AND GREATEST(user_a_id, user_b_id) = GREATEST($1::INT8, $2::INT8)
        RETURNING user_a_id, user_b_id, created_at
    `, userID, otherID).Scan(&friendship.UserAID, &friendship.UserBID, &friendship.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Friendship{}, ErrNotFound
		}
		return models.Friendship{}, fmt.Errorf("delete friendship: %w", err)
	}

	friendship.CreatedAt = friendship.CreatedAt.UTC()
	return friendship, nil
}

// CreateBlock records blockerID -> blockedID after deleting the pair's friendship and pending
// requests, all in one transaction. Any existing block between the pair is a conflict.
func (r *PostgresRelationshipRepository) CreateBlock(ctx context.Context, blockerID, blockedID int64) (models.BlockResult, error) {
	var result models.BlockResult

	err := inSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		// The closure may run more than once.
		result = models.BlockResult{Block: models.BlockedRelationship{BlockerID: blockerID, BlockedID: blockedID}}

		var blocked bool
		if err := tx.QueryRow(ctx, `
            SELECT EXISTS (
                SELECT 1 FROM blocked_relationships
                WHERE (blocker_id = $1::INT8 AND blocked_id = $2::INT8)
                   OR (blocker_id = $2::INT8 AND blocked_id = $1::INT8)
            )
        `, blockerID, blockedID).Scan(&blocked); err != nil {
			return fmt.Errorf("check existing block: %w", err)
		}
		if blocked {
			return ErrConflict
		}

		var friendship models.Friendship
		err := tx.QueryRow(ctx, `
            DELETE FROM friendships
            WHERE LEAST(user_a_id, user_b_id) = LEAST($1::INT8, $2::INT8)
              AND GREATEST(user_a_id, user_b_id) = GREATEST($1::INT8, $2::INT8)
            RETURNING user_a_id, user_b_id, created_at
        `, blockerID, blockedID).Scan(&friendship.UserAID, &friendship.UserBID, &friendship.CreatedAt)
		switch {
		case err == nil:
			friendship.CreatedAt = friendship.CreatedAt.UTC()
			result.RemovedFriendship = &friendship
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("delete friendship for block: %w", err)
		}

		rows, err := tx.Query(ctx, `
            DELETE FROM friendship_requests
            WHERE (requester_id = $1::INT8 AND addressee_id = $2::INT8)
               OR (requester_id = $2::INT8 AND addressee_id = $1::INT8)
            RETURNING requester_id, addressee_id, created_at
        `, blockerID, blockedID)
		if err != nil {
			return fmt.Errorf("delete requests for block: %w", err)
		}
		removed, err := pgx.CollectRows(rows, scanRequest)
		if err != nil {
			return fmt.Errorf("collect removed requests: %w", err)
		}
		result.RemovedRequests = removed

		err = tx.QueryRow(ctx, `
            INSERT INTO blocked_relationships (blocker_id, blocked_id)
            VALUES ($1, $2)
            RETURNING created_at
        `, blockerID, blockedID).Scan(&result.Block.CreatedAt)
		if err != nil {
			return mapWriteError(err, "insert block")
		}
		return nil
	})
	if err != nil {
		return models.BlockResult{}, err
	}

	result.Block.CreatedAt = result.Block.CreatedAt.UTC()
	return result, nil
}

// DeleteBlock removes blockerID's block on blockedID. The opposite direction is untouched.
func (r *PostgresRelationshipRepository) DeleteBlock(ctx context.Context, blockerID, blockedID int64) (models.BlockedRelationship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.BlockedRelationship{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	block := models.BlockedRelationship{BlockerID: blockerID, BlockedID: blockedID}
	err = conn.QueryRow(ctx, `
        DELETE FROM blocked_relationships
        WHERE blocker_id = $1 AND blocked_id = $2
        RETURNING created_at
    `, blockerID, blockedID).Scan(&block.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.BlockedRelationship{}, ErrNotFound
		}
		return models.BlockedRelationship{}, fmt.Errorf("delete block: %w", err)
	}

	block.CreatedAt = block.CreatedAt.UTC()
	return block, nil
}

// ListFriendships returns friendships involving userID, newest first.
func (r *PostgresRelationshipRepository) ListFriendships(ctx context.Context, userID int64, page models.Page) ([]models.Friendship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT user_a_id, user_b_id, created_at
        FROM friendships
        WHERE user_a_id = $1 OR user_b_id = $1
        ORDER BY created_at DESC, user_a_id, user_b_id
        LIMIT $2 OFFSET $3
    `, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query friendships: %w", err)
	}

	friendships, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Friendship, error) {
		var f models.Friendship
		if err := row.Scan(&f.UserAID, &f.UserBID, &f.CreatedAt); err != nil {
			return models.Friendship{}, err
		}
		f.CreatedAt = f.CreatedAt.UTC()
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan friendships: %w", err)
	}
	return friendships, nil
}

// ListIncomingRequests returns pending requests addressed to userID, newest first.
func (r *PostgresRelationshipRepository) ListIncomingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error) {
	return r.listRequests(ctx, `
        SELECT requester_id, addressee_id, created_at
        FROM friendship_requests
        WHERE addressee_id = $1
        ORDER BY created_at DESC, requester_id
        LIMIT $2 OFFSET $3
    `, userID, page)
}

// ListOutgoingRequests returns pending requests sent by userID, newest first.
func (r *PostgresRelationshipRepository) ListOutgoingRequests(ctx context.Context, userID int64, page models.Page) ([]models.FriendshipRequest, error) {
	return r.listRequests(ctx, `
        SELECT requester_id, addressee_id, created_at
        FROM friendship_requests
        WHERE requester_id = $1
        ORDER BY created_at DESC, addressee_id
        LIMIT $2 OFFSET $3
    `, userID, page)
}

func (r *PostgresRelationshipRepository) listRequests(ctx context.Context, query string, userID int64, page models.Page) ([]models.FriendshipRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query friendship requests: %w", err)
	}

	requests, err := pgx.CollectRows(rows, scanRequest)
	if err != nil {
		return nil, fmt.Errorf("scan friendship requests: %w", err)
	}
	return requests, nil
}

// ListBlocks returns the blocks created by blockerID, newest first.
func (r *PostgresRelationshipRepository) ListBlocks(ctx context.Context, blockerID int64, page models.Page) ([]models.BlockedRelationship, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT blocker_id, blocked_id, created_at
        FROM blocked_relationships
        WHERE blocker_id = $1
        ORDER BY created_at DESC, blocked_id
        LIMIT $2 OFFSET $3
    `, blockerID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}

	blocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.BlockedRelationship, error) {
		var b models.BlockedRelationship
		if err := row.Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt); err != nil {
			return models.BlockedRelationship{}, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan blocks: %w", err)
	}
	return blocks, nil
}

func scanRequest(row pgx.CollectableRow) (models.FriendshipRequest, error) {
	var req models.FriendshipRequest
	if err := row.Scan(&req.RequesterID, &req.AddresseeID, &req.CreatedAt); err != nil {
		return models.FriendshipRequest{}, err
	}
	req.CreatedAt = req.CreatedAt.UTC()
	return req, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ RelationshipRepository = (*PostgresRelationshipRepository)(nil)
