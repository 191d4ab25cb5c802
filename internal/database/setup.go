package database

import (
	"concord-backend/internal/config"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	Sqlite Dialect = iota
	Mysql
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case Mysql:
		return "mysql"
	case Postgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func readPragmaValues(sugar *zap.SugaredLogger, db *sql.DB) error {
	var journalModeValue string
	err := db.QueryRow("PRAGMA journal_mode").Scan(&journalModeValue)
	if err != nil {
		return err
	}

	var synchronousValue int
	err = db.QueryRow("PRAGMA synchronous").Scan(&synchronousValue)
	if err != nil {
		return err
	}

	var synchronousValueStr string
	switch synchronousValue {
	case 0:
		synchronousValueStr = "off"
	case 1:
		synchronousValueStr = "normal"
	case 2:
		synchronousValueStr = "full"
	case 3:
		synchronousValueStr = "extra"
	default:
		return fmt.Errorf("synchronous value is unsupported")
	}

	sugar.Infof("sqlite PRAGMA journal_mode: %s, synchronous: %s", journalModeValue, synchronousValueStr)
	return nil
}

func Setup(sugar *zap.SugaredLogger, cfg *config.ConfigFile) (*sql.DB, Dialect, error) {
	if cfg.SelfContained {
		sugar.Info("Connecting to database sqlite...")
		db, err := OpenSqlite(cfg.SqlitePath)
		if err != nil {
			return nil, Sqlite, err
		}
		err = readPragmaValues(sugar, db)
		return db, Sqlite, err
	}

	var db *sql.DB
	var dialect Dialect
	var err error

	switch cfg.DbDriver {
	case "postgres":
		sugar.Info("Connecting to database postgres...")
		dialect = Postgres
		db, err = sql.Open("postgres", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
	default:
		sugar.Info("Connecting to database mysql/mariadb...")
		dialect = Mysql
		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
	}
	if err != nil {
		return nil, dialect, err
	}

	db.SetMaxOpenConns(10)

	err = db.Ping()
	if err != nil {
		return nil, dialect, err
	}

	err = setupTables(db, dialect)
	if err != nil {
		return nil, dialect, err
	}

	return db, dialect, nil
}

// OpenSqlite opens (or creates) a sqlite database with the documents table.
// Pass ":memory:" for a throwaway database.
func OpenSqlite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1, and an
	// in-memory database only lives as long as its single connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	err = setPragmaValues(db)
	if err != nil {
		return nil, err
	}

	err = setupTables(db, Sqlite)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Every collection lives in one table. body holds the json document,
// index_key a secondary key (email for users, channel id for messages).
func setupTables(db *sql.DB, dialect Dialect) error {
	var err error

	switch dialect {
	case Mysql:
		_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS documents (
				collection VARCHAR(32) NOT NULL,
				id BIGINT NOT NULL,
				index_key VARCHAR(128) NOT NULL DEFAULT '',
				body MEDIUMTEXT NOT NULL,
				PRIMARY KEY (collection, id),
				INDEX documents_index_key (collection, index_key, id)
			);
		`)
		return err
	default:
		_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS documents (
				collection VARCHAR(32) NOT NULL,
				id BIGINT NOT NULL,
				index_key VARCHAR(128) NOT NULL DEFAULT '',
				body TEXT NOT NULL,
				PRIMARY KEY (collection, id)
			);
		`)
		if err != nil {
			return err
		}

		_, err = db.Exec(`CREATE INDEX IF NOT EXISTS documents_index_key ON documents (collection, index_key, id);`)
		return err
	}
}
