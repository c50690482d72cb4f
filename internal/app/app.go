package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/versefriends/backend/internal/auth"
	"github.com/versefriends/backend/internal/config"
	"github.com/versefriends/backend/internal/db"
	"github.com/versefriends/backend/internal/handlers"
	"github.com/versefriends/backend/internal/httpserver"
	"github.com/versefriends/backend/internal/logging"
	"github.com/versefriends/backend/internal/middleware"
)

// Run bootstraps the VerseFriends backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, seed, or token")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return runMigrations(ctx, cfg, args[1:])
	case "seed":
		return runSeed(ctx, cfg, args[1:])
	case "token":
		return issueToken(cfg, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	deps, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	router := mux.NewRouter()
	handlers.RegisterRoutes(router, deps)

	handler := middleware.RequestLogger(logger)(router)

	srv := httpserver.New(cfg.AppPort, handler, logger)

	logger.Info("starting http server",
		zap.Int("port", cfg.AppPort),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Bool("events_enabled", cfg.Redis.Addr != ""),
	)

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}

func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("command requires the %s driver, configured driver is %q", config.DriverPostgres, cfg.Database.Driver)
	}
	return db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
}

func runMigrations(ctx context.Context, cfg config.Config, args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.Migrate(ctx, pool, command)
}

const (
	seedMaxRetries  = 3
	seedBaseBackoff = 100 * time.Millisecond
	seedMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func runSeed(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. dev)")
	}

	seedDir := cfg.SeedDir
	if !filepath.IsAbs(seedDir) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		seedDir = filepath.Join(wd, seedDir)
	}

	seedName := args[0]
	if !strings.HasSuffix(seedName, ".sql") {
		seedName = fmt.Sprintf("%s_seed.sql", seedName)
	}

	contents, err := os.ReadFile(filepath.Join(seedDir, seedName))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedName, err)
	}

	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := applySeedWithRetry(ctx, pool, seedName, string(contents)); err != nil {
		return err
	}

	fmt.Printf("applied seed %s\n", seedName)
	return nil
}

func applySeedWithRetry(ctx context.Context, pool db.Pool, name string, contents string) error {
	var attempt int
	for attempt = 0; attempt < seedMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * seedBaseBackoff
			if backoff > seedMaxBackoff {
				backoff = seedMaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := applySeed(ctx, pool, contents)
		if err == nil {
			return nil
		}
		if shouldRetry(err) && attempt < seedMaxRetries-1 {
			fmt.Printf("transient error applying seed %s (attempt %d/%d): %v\n", name, attempt+1, seedMaxRetries, err)
			continue
		}
		return fmt.Errorf("apply seed %s: %w", name, err)
	}

	return fmt.Errorf("apply seed %s: exceeded max retries (%d)", name, attempt)
}

func applySeed(ctx context.Context, pool db.Pool, contents string) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, contents); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}

// issueToken prints a bearer token for local testing.
func issueToken(cfg config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("expected user id")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	tokens, err := newTokenManager(cfg)
	if err != nil {
		return err
	}

	token, expiresAt, err := tokens.Issue(userID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
	return nil
}

func newTokenManager(cfg config.Config) (*auth.Manager, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("VERSEFRIENDS_JWT_SECRET must be set")
	}
	return auth.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL), nil
}
