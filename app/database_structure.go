package app

import (
	"context"
	"database/sql"
	"errors"
)

func (db *Database) Version(ctx context.Context) (int, error) {
	var current_version int
	if err := db.GetContext(ctx, &current_version, "SELECT version FROM database_version WHERE id = 1"); err != nil {
		return 0, err
	}

	return current_version, nil
}

// CheckAndUpdateDatabase applies database_structure[current+1:] in order and
// records the new version after each statement. Index 0 is never executed.
func (db *Database) CheckAndUpdateDatabase(ctx context.Context, database_structure []string) error {
	_, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS database_version (id INTEGER NOT NULL PRIMARY KEY, version INTEGER NOT NULL)")
	if err != nil {
		return err
	}

	current_version, err := db.Version(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO database_version(id, version) VALUES(1, 0)"); err != nil {
			return err
		}
		current_version = 0
	}

	db.Logger.Debugf("Current database version: %d", current_version)

	for i := current_version + 1; i < len(database_structure); i++ {
		db.Logger.Debugf("Executing: %s", database_structure[i])
		if _, err := db.ExecContext(ctx, database_structure[i]); err != nil {
			return err
		}

		current_version++
		if _, err := db.ExecContext(ctx, "UPDATE database_version SET version = ? WHERE id = 1", current_version); err != nil {
			return err
		}
	}

	db.Logger.Debugf("Current database version: %d", current_version)

	return nil
}
