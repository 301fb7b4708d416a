package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	msg := err.Error()
	switch {
	// PostgreSQL (23505)
	case strings.Contains(msg, "duplicate key value violates unique constraint"):
		return true
	// SQLite (2067)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return true
	}

	return false
}

// IsSerializationErr reports whether err is a transaction conflict that is
// safe to retry from the top: serialization failure, deadlock, or a busy
// SQLite database.
func IsSerializationErr(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "could not serialize access"):
		return true
	case strings.Contains(msg, "deadlock detected"):
		return true
	case strings.Contains(msg, "database is locked"):
		return true
	}

	return false
}
