package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DBDriver selects the SQL database backing users and SQL sessions.
type DBDriver string

const (
	// DBDriverPostgres uses PostgreSQL through pgx.
	DBDriverPostgres DBDriver = "postgres"
	// DBDriverSQLite uses an embedded SQLite file.
	DBDriverSQLite DBDriver = "sqlite"
)

// UnmarshalText implements encoding.TextUnmarshaler for DBDriver.
func (d *DBDriver) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "postgres", "sqlite":
		*d = DBDriver(v)
		return nil
	default:
		return fmt.Errorf("invalid DBDriver: %q (valid options: postgres, sqlite)", v)
	}
}

// SessionBackend selects where session records live.
type SessionBackend string

const (
	// SessionBackendSQL keeps sessions in the configured SQL database.
	SessionBackendSQL SessionBackend = "sql"
	// SessionBackendRedis keeps sessions in Redis with native key expiry.
	SessionBackendRedis SessionBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionBackend.
func (b *SessionBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "sql", "redis":
		*b = SessionBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionBackend: %q (valid options: sql, redis)", v)
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"sessionauth"`
	Password string `env:"PASSWORD"                envDefault:"sessionauth"`
	Name     string `env:"NAME"                    envDefault:"sessionauth"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN returns the pgx connection URL for the configured database.
// url.URL escapes special characters in the credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SQLiteConfig contains SQLite configuration.
type SQLiteConfig struct {
	Path string `env:"PATH" envDefault:"sessionauth.db"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// KeyPrefix namespaces session keys.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"session:"`
}

// StorageConfig groups the SQL and session storage selections.
type StorageConfig struct {
	Driver         DBDriver       `env:"DB_DRIVER"       envDefault:"postgres"`
	SessionBackend SessionBackend `env:"SESSION_BACKEND" envDefault:"sql"`

	// TokenEncryptionKey seals provider access tokens in the users table. A 64-character
	// hex value is used as the AES-256 key directly; any other value is hashed into one.
	TokenEncryptionKey string `env:"AUTH_TOKEN_ENCRYPTION_KEY"`

	Postgres DBConfig     `envPrefix:"DB_"`
	SQLite   SQLiteConfig `envPrefix:"SQLITE_"`
	Redis    RedisConfig  `envPrefix:"REDIS_"`
}
