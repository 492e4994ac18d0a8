package apperr

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
)

// FromDB maps store errors onto the taxonomy. Unknown errors are returned
// unchanged so workers keep treating them as transient.
func FromDB(err error, entity string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(entity)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &Error{Kind: KindConflict, Message: entity + " already exists", Err: err}
	}

	code, detail := pgCode(err)
	switch code {
	case pgUniqueViolation:
		return &Error{Kind: KindConflict, Message: entity + " already exists", Details: detail, Err: err}
	case pgForeignKeyViolation:
		return &Error{Kind: KindValidation, Message: entity + " references a missing record", Details: detail, Err: err}
	case pgCheckViolation, pgNotNullViolation:
		return &Error{Kind: KindValidation, Message: entity + " violates a constraint", Details: detail, Err: err}
	}

	// sqlite (tests, local tooling)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &Error{Kind: KindConflict, Message: entity + " already exists", Err: err}
	}
	return err
}

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Detail
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Detail
	}
	return "", ""
}
