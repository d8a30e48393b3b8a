package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	supabase "github.com/supabase-community/supabase-go"

	"meridian/pkg/config"
)

// Conn holds the direct Postgres handle and, when configured, the Supabase SDK client.
type Conn struct {
	DB  *sqlx.DB
	SDK *supabase.Client
}

// Connect opens the Postgres connection described by cfg. The connection string is taken as-is
// or built from the Supabase project URL and database password. The Supabase SDK is initialised
// when URL and key are both set.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Conn, error) {
	conn := &Conn{}

	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sdk, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
		if err != nil {
			return nil, fmt.Errorf("initialize supabase SDK: %w", err)
		}
		conn.SDK = sdk
	}

	connStr := cfg.ConnectionString
	if connStr == "" {
		var err error
		connStr, err = buildConnectionString(cfg.SupabaseURL, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("build connection string: %w", err)
		}
	}

	// The Supabase pooler does not support prepared statements.
	connStr = addConnectionParam(connStr, "statement_cache_capacity", "0")
	connStr = addConnectionParam(connStr, "default_query_exec_mode", "simple_protocol")

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	conn.DB = sqlx.NewDb(db, "pgx")
	return conn, nil
}

// Close closes the database connection.
func (c *Conn) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// buildConnectionString constructs a Supabase Postgres connection string from URL and password.
func buildConnectionString(supabaseURL, password string) (string, error) {
	if supabaseURL == "" || password == "" {
		return "", errors.New("either a connection string or Supabase URL and database password must be provided")
	}

	parsed, err := url.Parse(supabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}

	// https://[project-ref].supabase.co
	parts := strings.Split(parsed.Host, ".")
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid supabase URL format: expected [project-ref].supabase.co")
	}

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(password), parts[0]), nil
}

// addConnectionParam adds a query parameter to the connection string if not already present.
func addConnectionParam(connStr, key, value string) string {
	if strings.Contains(connStr, key+"=") {
		return connStr
	}
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	return connStr + separator + key + "=" + value
}
