package db

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// bootstrapVersion creates schema_migrations itself.
const bootstrapVersion = "000"

// Migration is one embedded schema step, named NNN_description.sql.
type Migration struct {
	Version string
	File    string
}

// Migrations lists the embedded schema steps in apply order.
func Migrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read embedded migrations")
	}

	var out []Migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no NNN_ version prefix", name)
		}
		out = append(out, Migration{Version: version, File: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// AppliedVersions returns the versions recorded in schema_migrations, oldest
// first. A database that was never migrated yields an empty list.
func AppliedVersions(ctx context.Context, conn *sql.DB) ([]string, error) {
	ok, err := hasMigrationTable(ctx, conn)
	if err != nil || !ok {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query schema_migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to scan migration version")
		}
		versions = append(versions, v)
	}
	return versions, errors.Wrap(rows.Err(), "failed to iterate schema_migrations")
}

// Migrate applies every embedded migration not yet recorded, each in its own
// transaction.
func Migrate(ctx context.Context, conn *sql.DB, log *zap.SugaredLogger) error {
	log = logger.OrNop(log, "db")

	all, err := Migrations()
	if err != nil {
		return err
	}
	applied, err := AppliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	count := 0
	for _, m := range all {
		if done[m.Version] {
			continue
		}
		if len(done) == 0 && m.Version != bootstrapVersion && count == 0 {
			return errors.Newf("schema_migrations missing and first pending migration is %s, not %s", m.File, bootstrapVersion)
		}
		if err := apply(ctx, conn, m); err != nil {
			return err
		}
		log.Infow("Applied migration", "migration", m.File, "version", m.Version)
		count++
	}

	if count > 0 {
		log.Infow("Schema up to date", "applied", count, "total", len(all))
	}
	return nil
}

func apply(ctx context.Context, conn *sql.DB, m Migration) error {
	body, err := migrationFS.ReadFile(path.Join(migrationDir, m.File))
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", m.File)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to begin %s", m.File)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return errors.Wrapf(err, "failed to execute %s", m.File)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return errors.Wrapf(err, "failed to record %s", m.File)
	}
	return errors.Wrapf(tx.Commit(), "failed to commit %s", m.File)
}

func hasMigrationTable(ctx context.Context, conn *sql.DB) (bool, error) {
	var n int
	err := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to inspect sqlite_master")
	}
	return n > 0, nil
}
