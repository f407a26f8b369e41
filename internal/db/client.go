// Package db is the SurrealDB persistence layer for movies, people, credits,
// import cursors and the durable job queue.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// The websocket upgrade only works over HTTP/1.1; keep wss off h2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds the SurrealDB connection and reconnect settings. Zero
// durations and retry counts fall back to DefaultConfig values.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"

	ConnectTimeout   time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	ReconnectRetries int
}

// DefaultConfig returns the reconnect settings used for unset fields.
func DefaultConfig() Config {
	return Config{
		AuthLevel:        "root",
		ConnectTimeout:   5 * time.Second,
		ReconnectInitial: time.Second,
		ReconnectMax:     30 * time.Second,
		ReconnectRetries: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AuthLevel == "" {
		c.AuthLevel = d.AuthLevel
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = d.ReconnectInitial
	}
	if c.ReconnectMax < c.ReconnectInitial {
		c.ReconnectMax = max(d.ReconnectMax, c.ReconnectInitial)
	}
	if c.ReconnectRetries <= 0 {
		c.ReconnectRetries = d.ReconnectRetries
	}
	return c
}

// rpcBase strips the /rpc suffix; gorillaws appends it itself.
func rpcBase(url string) string {
	return strings.TrimSuffix(strings.TrimRight(url, "/"), "/rpc")
}

// Client is the pipeline store on an auto-reconnecting SurrealDB socket.
type Client struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	cfg    Config
	logger logger.Logger
}

// NewClient dials SurrealDB, signs in and selects the namespace and
// database. Dropped sockets are redialled with exponential backoff.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())
	codec := surrealcbor.New()
	base := rpcBase(cfg.URL)

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     base,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		cfg.ConnectTimeout,
		codec,
		sdkLogger,
	)
	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = cfg.ReconnectInitial
	retryer.MaxDelay = cfg.ReconnectMax
	retryer.Multiplier = 2.0
	retryer.MaxRetries = cfg.ReconnectRetries
	conn.Retryer = retryer

	log.Info("connecting to store", "url", cfg.URL, "namespace", cfg.Namespace,
		"database", cfg.Database, "reconnect_retries", cfg.ReconnectRetries)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}
	if err := signIn(ctx, db, cfg); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}

	log.Info("store connected", "auth_level", cfg.AuthLevel)
	return &Client{conn: conn, db: db, cfg: cfg, logger: sdkLogger}, nil
}

// signIn authenticates as a database user or, by default, as root.
func signIn(ctx context.Context, db *surrealdb.DB, cfg Config) error {
	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		return fmt.Errorf("signin as %s user %q: %w", cfg.AuthLevel, cfg.Username, err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing store connection")
	return c.conn.Close(ctx)
}

// InitSchema applies SchemaSQL. Every statement is IF NOT EXISTS, so it
// runs on each start.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.logger.Info("schema ready")
	return nil
}

// wipeTables lists dependents first so no reader sees a credit without
// its movie.
var wipeTables = []string{"collaboration", "credit", "person", "movie", "skipped_import", "import_job", "import_state"}

// WipeData deletes every imported row and job but keeps the schema.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping import data", "tables", len(wipeTables))
	for _, table := range wipeTables {
		if _, err := surrealdb.Query[any](ctx, c.db, "DELETE "+table, nil); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

// first returns the first row of the first statement result, or nil.
func first[T any](results *[]surrealdb.QueryResult[[]T]) *T {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil
	}
	return &(*results)[0].Result[0]
}

// rows returns the rows of the first statement result, never nil.
func rows[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 || (*results)[0].Result == nil {
		return []T{}
	}
	return (*results)[0].Result
}
