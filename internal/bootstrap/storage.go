package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/weeklydigest/sessionauth/config"
	"github.com/weeklydigest/sessionauth/internal/adapters/postgres"
	redisadapter "github.com/weeklydigest/sessionauth/internal/adapters/redis"
	"github.com/weeklydigest/sessionauth/internal/adapters/sqlite"
	"github.com/weeklydigest/sessionauth/internal/migrate"
	"github.com/weeklydigest/sessionauth/internal/ports"
)

// Storage holds the opened backends and the stores built on them.
type Storage struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Dialect  migrate.Dialect
	Sessions ports.SessionStore
	Users    ports.UserRepository
}

// StorageOptions groups dependencies for OpenStorage.
type StorageOptions struct {
	Config config.StorageConfig
	Logger *slog.Logger
	// Migrate applies the embedded migrations to PostgreSQL; SQLite is always migrated on open.
	Migrate bool
}

// OpenStorage connects the SQL database, optionally Redis, and builds the session and user stores.
func OpenStorage(ctx context.Context, opts StorageOptions) (*Storage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbCfg := DatabaseConfig{
		DBConfig:     opts.Config.Postgres,
		SQLiteConfig: opts.Config.SQLite,
		RedisConfig:  opts.Config.Redis,
		Logger:       logger,
	}

	enc := CreateTokenEncryptor(opts.Config.TokenEncryptionKey, logger)
	st := &Storage{}
	switch opts.Config.Driver {
	case config.DBDriverSQLite:
		db, err := ConnectSQLite(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		st.DB, st.Dialect = db, migrate.SQLite
		st.Users = sqlite.NewUserRepo(db, sqlite.UserRepoOptions{Encryptor: enc})
		st.Sessions = sqlite.NewSessionStore(db, sqlite.SessionStoreOptions{Logger: logger})
	default:
		db, err := ConnectDB(dbCfg)
		if err != nil {
			return nil, err
		}
		st.DB, st.Dialect = db, migrate.Postgres
		if opts.Migrate {
			if err := RunMigrations(ctx, db, migrate.Postgres, logger); err != nil {
				return nil, errors.Join(err, st.Close())
			}
		}
		st.Users = postgres.NewUserRepo(db, postgres.UserRepoOptions{Encryptor: enc})
		st.Sessions = postgres.NewSessionStore(db, postgres.SessionStoreOptions{Logger: logger})
	}

	if opts.Config.SessionBackend == config.SessionBackendRedis {
		client, err := ConnectRedis(dbCfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect session redis: %w", err), st.Close())
		}
		st.Redis = client
		st.Sessions = redisadapter.NewSessionStore(client, redisadapter.SessionStoreOptions{
			Prefix: opts.Config.Redis.KeyPrefix,
			Logger: logger,
		})
	}

	logger.InfoContext(ctx, "storage ready",
		"driver", opts.Config.Driver,
		"session_backend", opts.Config.SessionBackend,
	)
	return st, nil
}

// Close releases every opened backend.
func (s *Storage) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
