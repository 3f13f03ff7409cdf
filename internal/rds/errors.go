package rds

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsDuplicateKey reports whether err is a unique-constraint violation on
// any of the linked drivers.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	// modernc.org/sqlite reports constraint failures only through the
	// message text.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
