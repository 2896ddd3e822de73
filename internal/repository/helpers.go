package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rep4rep/steam-commenter/internal/database"
)

// getOptional runs a single-row query into T. A missing row yields (nil, nil)
// so Find* methods can tell "absent" apart from a failed query.
func getOptional[T any](ctx context.Context, db database.DBTX, query string, args ...any) (*T, error) {
	var row T
	err := db.GetContext(ctx, &row, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
