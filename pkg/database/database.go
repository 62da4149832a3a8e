package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Client holds the database handle and the ent driver built on it
type Client struct {
	DB     *sql.DB
	Driver *entsql.Driver
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for Postgres connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string // Path to client certificate
	KeyPath      string // Path to client key
	RootCertPath string // Path to root CA certificate
}

// Config selects the driver and connection settings
type Config struct {
	Driver string // postgres or sqlite3
	URL    string
	Pool   PoolConfig
	SSL    *SSLConfig
}

// DefaultPoolConfig returns sensible defaults for connection pooling
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// BuildConnectionString adds SSL parameters to a Postgres URL
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}
	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// NormalizeDriver maps configuration spellings onto an ent dialect
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "postgres", "postgresql", "pg":
		return dialect.Postgres, nil
	case "sqlite", "sqlite3":
		return dialect.SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// Open connects, configures the pool and applies migrations
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Client, error) {
	drvName, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	connStr := cfg.URL
	if drvName == dialect.Postgres {
		connStr, err = BuildConnectionString(cfg.URL, cfg.SSL)
		if err != nil {
			return nil, fmt.Errorf("failed building connection string: %w", err)
		}
		if cfg.SSL != nil && cfg.SSL.Mode != "" && cfg.SSL.Mode != "disable" {
			log.Info("Database SSL enabled", "mode", cfg.SSL.Mode, "client_cert", cfg.SSL.CertPath, "root_cert", cfg.SSL.RootCertPath)
		}
	}

	db, err := sql.Open(drvName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", drvName, err)
	}

	pool := cfg.Pool
	if pool.MaxOpenConns == 0 {
		pool = DefaultPoolConfig()
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	log.Info("Database connection pool configured",
		"driver", drvName,
		"max_open", pool.MaxOpenConns,
		"max_idle", pool.MaxIdleConns,
		"max_lifetime", pool.ConnMaxLifetime.String(),
		"max_idle_time", pool.ConnMaxIdleTime.String())

	client := &Client{DB: db, Driver: entsql.OpenDB(drvName, db)}
	if err := client.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Database connected and migrations applied")
	return client, nil
}

// OpenSQLite opens a sqlite database, usually an in-memory one for tests
func OpenSQLite(ctx context.Context, dsn string) (*Client, error) {
	return Open(ctx, Config{
		Driver: dialect.SQLite,
		URL:    dsn,
		Pool:   PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
	}, logger.Nop())
}

// MemoryDSN returns a shared-cache in-memory sqlite DSN with foreign keys on
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)
}

// Dialect returns the ent dialect name
func (c *Client) Dialect() string {
	return c.Driver.Dialect()
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.Driver.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (c *Client) Stats() sql.DBStats {
	return c.DB.Stats()
}
