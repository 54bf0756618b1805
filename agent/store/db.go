package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver       string        `envconfig:"DRIVER" default:"sqlite"`
	DSN          string        `envconfig:"DSN" default:"file:chative-tasks.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"`
	MaxOpenConns int           `split_words:"true" default:"10"`
	ConnMaxIdle  time.Duration `split_words:"true" default:"5m"`
	LogQueries   bool          `split_words:"true" default:"false"`
}

func (c Config) Validate() error {
	switch strings.TrimSpace(c.Driver) {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported db driver %q", c.Driver)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("db dsn is required")
	}
	return nil
}

// Open connects to the configured database. SQLite is limited to a single
// connection so writers never contend on the file lock.
func Open(cfg Config) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdle)
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.LogQueries {
		db.AddQueryHook(queryLogger{})
	}
	return db, nil
}

// Migrate creates the tables and indexes the store relies on.
func Migrate(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*Conversation)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create conversations: %w", err)
	}
	if _, err := db.NewCreateTable().
		Model((*Message)(nil)).
		IfNotExists().
		ForeignKey(`("conversation_id") REFERENCES "conversations" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create messages: %w", err)
	}
	if _, err := db.NewCreateTable().
		Model((*Task)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create tasks: %w", err)
	}

	indexes := []struct {
		model  any
		name   string
		unique bool
		cols   []string
	}{
		{(*Conversation)(nil), "conversations_owner_idx", false, []string{"owner_id"}},
		{(*Message)(nil), "messages_conversation_seq_idx", true, []string{"conversation_id", "seq"}},
		{(*Task)(nil), "tasks_owner_idx", false, []string{"owner_id"}},
	}
	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.cols...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

type queryLogger struct{}

func (queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	ev := zerolog.Ctx(ctx).Debug()
	if event.Err != nil && event.Err != sql.ErrNoRows {
		ev = zerolog.Ctx(ctx).Warn().Err(event.Err)
	}
	ev.Str("operation", event.Operation()).
		Dur("elapsed", time.Since(event.StartTime)).
		Str("query", event.Query).
		Msg("db query")
}
