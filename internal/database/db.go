package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const defaultTxTimeout = 5 * time.Second

// Clock returns the current time; injected for tests.
type Clock func() time.Time

func defaultClock() time.Time {
	// Postgres keeps microseconds; truncate so values round-trip unchanged.
	return time.Now().UTC().Truncate(time.Microsecond)
}

// DB wraps the sql.DB connection
type DB struct {
	Conn      *sql.DB
	driver    string
	logger    *zap.Logger
	clock     Clock
	txTimeout time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the timestamp source used for created_at/updated_at.
func WithClock(clock Clock) Option {
	return func(db *DB) {
		if clock != nil {
			db.clock = clock
		}
	}
}

// WithTxTimeout bounds transactions whose context carries no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.txTimeout = d
		}
	}
}

// DetectDriver infers the driver from a connection URL. Anything that is not
// a postgres URL is treated as a sqlite path.
func DetectDriver(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// New creates a new database connection and runs migrations
func New(driver, dsn string, logger *zap.Logger, opts ...Option) (*DB, error) {
	if driver == "" {
		driver = DetectDriver(dsn)
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		// every pooled connection would otherwise see its own empty database
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		Conn:      conn,
		driver:    driver,
		logger:    logger,
		clock:     defaultClock,
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(db)
		}
	}

	if err := db.runMigrations(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database initialized", zap.String("driver", driver))
	return db, nil
}

// sqliteParams are the connection parameters the resolver relies on: writers
// take the lock at BEGIN so concurrent identify calls queue instead of failing
// mid-transaction. Each entry lists the aliases go-sqlite3 accepts for it.
var sqliteParams = []struct {
	aliases []string
	value   string
}{
	{aliases: []string{"_busy_timeout", "_timeout"}, value: "5000"},
	{aliases: []string{"_txlock"}, value: "immediate"},
	{aliases: []string{"_foreign_keys", "_fk"}, value: "on"},
}

// sqliteDSN appends every sqliteParams entry the caller did not set. Caller
// supplied parameters are kept as written.
func sqliteDSN(dsn string) string {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}

	var missing []string
	for _, p := range sqliteParams {
		set := false
		for _, alias := range p.aliases {
			if query.Has(alias) {
				set = true
				break
			}
		}
		if !set {
			missing = append(missing, p.aliases[0]+"="+p.value)
		}
	}
	if len(missing) == 0 {
		return dsn
	}

	switch {
	case rawQuery == "":
		return path + "?" + strings.Join(missing, "&")
	case strings.HasSuffix(rawQuery, "&"):
		return dsn + strings.Join(missing, "&")
	}
	return dsn + "&" + strings.Join(missing, "&")
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// Contacts returns a store that runs each statement on the pool, outside any
// transaction.
func (db *DB) Contacts() *ContactStore {
	return newContactStore(db.Conn, db.clock)
}

// RunInTx runs fn against a store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (db *DB) RunInTx(ctx context.Context, fn func(*ContactStore) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && db.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.txTimeout)
		defer cancel()
	}

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(newContactStore(tx, db.clock)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// runMigrations executes the schema for the active dialect
func (db *DB) runMigrations() error {
	schema := sqliteSchema
	if db.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.Conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    phone_number TEXT,
    email TEXT,
    linked_id INTEGER,
    link_precedence TEXT NOT NULL CHECK(link_precedence IN ('primary', 'secondary')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME,
    FOREIGN KEY (linked_id) REFERENCES contacts(id)
);

CREATE INDEX IF NOT EXISTS idx_phone ON contacts(phone_number);
CREATE INDEX IF NOT EXISTS idx_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_linked_id ON contacts(linked_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS contacts (
    id BIGSERIAL PRIMARY KEY,
    phone_number TEXT,
    email TEXT,
    linked_id BIGINT REFERENCES contacts(id),
    link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_phone ON contacts(phone_number);
CREATE INDEX IF NOT EXISTS idx_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_linked_id ON contacts(linked_id);
`

// Close closes the database connection
func (db *DB) Close() error {
	return db.Conn.Close()
}
