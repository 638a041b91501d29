package repository

import (
	"database/sql"
	"errors"

	"github.com/therapii/api-server-go/internal/database"
)

// queryer is the subset of database.DBTX the repositories use.
type queryer = database.DBTX

// HandleNotFound maps sql.ErrNoRows to (nil, nil) for Find* lookups and
// conditional updates that match no row.
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// rowsAffected unwraps an Exec result into its affected row count.
func rowsAffected(result sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
