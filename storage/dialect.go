package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"auction-pipeline/utils"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Driver string
	// Numbered placeholders ($1, $2) instead of ?.
	numbered bool
	autoID   string
	intType  string
	realType string
}

var (
	Postgres = Dialect{Driver: "postgres", numbered: true, autoID: "BIGSERIAL PRIMARY KEY", intType: "BIGINT", realType: "DOUBLE PRECISION"}
	SQLite   = Dialect{Driver: "sqlite3", autoID: "INTEGER PRIMARY KEY AUTOINCREMENT", intType: "INTEGER", realType: "REAL"}
)

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "pgx":
		d := Postgres
		d.Driver = "pgx"
		return d, nil
	case "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("storage: unsupported driver %q", driver)
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Values renders "(p,p,p),(p,p,p)" for rows*cols parameters.
func (d Dialect) Values(rows, cols int) string {
	groups := make([]string, 0, rows)
	n := 1
	for r := 0; r < rows; r++ {
		ph := make([]string, cols)
		for c := 0; c < cols; c++ {
			ph[c] = d.Placeholder(n)
			n++
		}
		groups = append(groups, "("+strings.Join(ph, ",")+")")
	}
	return strings.Join(groups, ",")
}

// Open connects, pings with retries and applies per-dialect connection limits.
// SQLite gets a single connection so the coordinator is the only writer.
func Open(d Dialect, dsn string, retry *utils.RetryConfig) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	if d.Driver == SQLite.Driver {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1}
	}
	if err := retry.Do("db-ping", db.Ping); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a primary-key or unique constraint
// failure from any of the supported drivers.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
