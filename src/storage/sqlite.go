package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	_ "modernc.org/sqlite"
)

type sqliteDialect struct{}

func (sqliteDialect) placeholder(int) string { return "?" }
func (sqliteDialect) table() string { return "ticks" }
func (sqliteDialect) bigint() string { return "INTEGER" }

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	*tickStore
	Config *models.MConfig
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		tickStore: &tickStore{name: "sqlite", dialect: sqliteDialect{}, Logger: log},
		Config:    cfg,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	// every connection to :memory: is its own database
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.db = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	if err := d.createSchema(); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}

	d.Logger.Info("SQLite tick store ready at %s", dsn)
	return nil
}
