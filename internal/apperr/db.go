package apperr

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapDBError converts pgx/postgres failures into AppErrors. Errors that are
// already AppErrors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	var ae *AppError
	if errors.As(err, &ae) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: CodeNotFound, Message: "resource not found", Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &AppError{Code: CodePersistence, Message: "storage request interrupted", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return &AppError{Code: CodeConflict, Message: "record already exists", Field: pgErr.ColumnName, Cause: err}
		case pgerrcode.NotNullViolation, pgerrcode.CheckViolation, pgerrcode.StringDataRightTruncationDataException:
			return &AppError{Code: CodeValidation, Message: "record rejected by storage constraints", Field: pgErr.ColumnName, Cause: err}
		}
		if pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsInsufficientResources(pgErr.Code) {
			return &AppError{Code: CodePersistence, Message: "storage unavailable", Cause: err}
		}
		return &AppError{Code: CodePersistence, Message: "storage error", Cause: err}
	}

	return &AppError{Code: CodePersistence, Message: "storage unavailable", Cause: err}
}
