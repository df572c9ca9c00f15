// Package db opens the sqlite job database and applies its embedded schema.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// pragma is a connection setting applied right after open.
type pragma struct {
	stmt string
	what string
}

func pragmas() []pragma {
	return []pragma{
		// WAL lets `sentinel jobs ls` read while a running pipeline writes
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
		{fmt.Sprintf("PRAGMA busy_timeout = %d", SQLiteBusyTimeoutMS), "set busy timeout"},
	}
}

// Open opens the database at path and applies the connection pragmas.
// A nil log is silent.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log, "db")

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	for _, p := range pragmas() {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to %s on %s", p.what, path)
		}
	}

	log.Debugw("Database opened", logger.FieldPath, path, "busy_timeout_ms", SQLiteBusyTimeoutMS)
	return conn, nil
}

// OpenWithMigrations opens the database at path and brings its schema up to date.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	conn, err := Open(path, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(context.Background(), conn, log); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "failed to migrate %s", path)
	}
	return conn, nil
}
