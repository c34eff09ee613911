package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"

	_ "github.com/lib/pq"
)

type postgresDialect struct {
	schema string
}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (d postgresDialect) table() string { return fmt.Sprintf(`"%s"."ticks"`, d.schema) }
func (postgresDialect) bigint() string { return "BIGINT" }

// -----------------------------------------------------------------------------

type PostgresDB struct {
	*tickStore
	Config *models.MConfig
	Schema string
}

// -----------------------------------------------------------------------------

// NewPostgresDB keeps the tables in a schema named after the service.
func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("postgres schema needs a service name")
	}

	return &PostgresDB{
		tickStore: &tickStore{name: "postgres", dialect: postgresDialect{schema: name}, Logger: log},
		Config:    cfg,
		Schema:    name,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.db = db

	// Create Schema
	if _, err := d.db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createSchema(); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}
