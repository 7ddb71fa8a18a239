package utils

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// The catalog overlay store holds per-route enabled flags maintained by the
// external catalog editor. It is optional; when no Postgres host is
// configured the built-in route list (plus the JSON overlay file) is final.

var overlayDB struct {
	sync.Mutex
	dsn string
	db  *sql.DB
}

func postgresDSN(cfg PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if cfg.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	hostPort := cfg.Host
	if !strings.Contains(hostPort, ":") {
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := u.Query()
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getOverlayDB(cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	overlayDB.Lock()
	defer overlayDB.Unlock()

	if overlayDB.db != nil && overlayDB.dsn == dsn {
		return overlayDB.db, nil
	}
	if overlayDB.db != nil {
		_ = overlayDB.db.Close()
		overlayDB.db = nil
		overlayDB.dsn = ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Small control-plane table; a handful of connections is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	overlayDB.db = db
	overlayDB.dsn = dsn
	return overlayDB.db, nil
}

func ensureOverlaySchema(cfg PostgresConfig) error {
	db, err := getOverlayDB(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := `CREATE TABLE IF NOT EXISTS catalog_routes (
		id TEXT PRIMARY KEY,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	_, err = db.ExecContext(ctx, ddl)
	return err
}

// LoadCatalogOverlayFromPostgres reads the {id, enabled} rows maintained by
// the catalog editor and returns them as an overlay map.
func LoadCatalogOverlayFromPostgres(cfg PostgresConfig) (map[string]bool, error) {
	if err := ensureOverlaySchema(cfg); err != nil {
		return nil, err
	}

	db, err := getOverlayDB(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT id, enabled FROM catalog_routes;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overlay := make(map[string]bool)
	for rows.Next() {
		var id string
		var enabled bool
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, err
		}
		overlay[id] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overlay, nil
}

// RefreshCatalogOverlayPeriodically reloads the overlay at the given interval
// and hands each successful load to apply. It stops when stop is closed.
func RefreshCatalogOverlayPeriodically(cfg PostgresConfig, interval time.Duration, stop <-chan struct{}, apply func(map[string]bool)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			overlay, err := LoadCatalogOverlayFromPostgres(cfg)
			if err != nil {
				Error("Failed to reload catalog overlay", "error", err)
				continue
			}
			apply(overlay)
		case <-stop:
			return
		}
	}
}
