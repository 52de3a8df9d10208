package app

import (
	"context"
	"database/sql"
	"fmt"
)

type DatabaseRepository struct {
	Table    string
	Database *Database
}

func NewDatabaseRepository(db *Database, table string) *DatabaseRepository {
	return &DatabaseRepository{
		Table:    table,
		Database: db,
	}
}

func (repo *DatabaseRepository) List(ctx context.Context, dst interface{}, c Criteria) error {
	return repo.Database.Match(ctx, dst, repo.Table, c)
}

// Get returns sql.ErrNoRows when nothing matches.
func (repo *DatabaseRepository) Get(ctx context.Context, dst interface{}, c Criteria) error {
	return repo.Database.MatchOne(ctx, dst, repo.Table, c)
}

func (repo *DatabaseRepository) Create(ctx context.Context, dst interface{}) error {
	return repo.Database.Insert(ctx, dst, repo.Table)
}

func (repo *DatabaseRepository) Delete(ctx context.Context, id uint64) error {
	rows_affected, err := repo.Database.Delete(ctx, id, repo.Table)
	if err != nil {
		return err
	}

	if rows_affected == 0 {
		return sql.ErrNoRows
	}

	if rows_affected > 1 {
		return fmt.Errorf("more than 1 row deleted in %s", repo.Table)
	}

	return nil
}
