package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/sheet-ledger/engine"
)

// classify turns driver constraint failures into engine.ConstraintError.
// SQLite names the column for UNIQUE failures but not for foreign keys,
// so the caller passes the logical constraint it was guarding.
func classify(err error, constraint string) error {
	if err == nil {
		return nil
	}

	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return err
	}

	ce := &engine.ConstraintError{Constraint: constraint, Err: err}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		ce.Kind = engine.ConstraintUnique
		if column := failedColumn(se.Error()); column != "" {
			ce.Constraint = column
		}
	case sqlite3.ErrConstraintForeignKey:
		ce.Kind = engine.ConstraintForeignKey
	case sqlite3.ErrConstraintNotNull:
		ce.Kind = engine.ConstraintNotNull
		if column := failedColumn(se.Error()); column != "" {
			ce.Constraint = column
		}
	default:
		ce.Kind = engine.ConstraintCheck
	}
	return ce
}

// failedColumn extracts "sales.invoice_number" from
// "UNIQUE constraint failed: sales.invoice_number".
func failedColumn(msg string) string {
	_, after, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return ""
	}
	// composite keys list several columns; the first one names the table
	column, _, _ := strings.Cut(after, ",")
	return strings.TrimSpace(column)
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &engine.NotFoundError{Entity: entity, ID: id}
	}
	return err
}
