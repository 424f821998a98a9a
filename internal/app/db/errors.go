package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsForeignKeyViolation checks if the error is a PostgreSQL foreign key violation (code 23503).
// Message writes referencing a channel, conversation, or parent that vanished
// between the permission check and the insert surface this way.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
