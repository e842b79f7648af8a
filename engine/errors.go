/*
errors.go - Error taxonomy for the trading engine

PURPOSE:
  All error types in one place. Orchestrators return these; the API layer
  turns them into status codes and user-facing messages.

ERROR CATEGORIES:
  1. ValidationError      - bad input, detected before any mutation
  2. InsufficientStockError - allocation cannot be satisfied
  3. ConstraintError      - uniqueness / referential integrity from storage
  4. TransactionError     - anything else inside a unit of work
  5. NotFoundError        - referenced row does not exist

USAGE:
    if errors.Is(err, engine.ErrInsufficientStock) {
        var ise *engine.InsufficientStockError
        errors.As(err, &ise) // requested vs available
    }

SEE ALSO:
  - validation.go: produces ValidationError
  - store/sqlite/errors.go: produces ConstraintError from driver errors
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrNotFound            = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError is malformed or missing input. Always safe to retry
// once the input is corrected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError reports a shortfall for one sheet type.
type InsufficientStockError struct {
	SheetTypeID int64
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sheet type %d: requested %s, available %s",
		e.SheetTypeID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintCheck      ConstraintKind = "check"
)

// ConstraintError is a uniqueness or referential integrity failure.
// Constraint names the table/column (or logical rule) that was violated.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Detail     string
	Err        error
}

func (e *ConstraintError) Error() string {
	msg := fmt.Sprintf("%s constraint violated on %s", e.Kind, e.Constraint)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraintViolation }
func (e *ConstraintError) Unwrap() error        { return e.Err }

// TransactionError wraps an unexpected failure inside a unit of work.
// The original error is kept for logs; callers see a sanitized message.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Is(target error) bool { return target == ErrTransactionFailed }
func (e *TransactionError) Unwrap() error        { return e.Err }

type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDomainError reports whether err already belongs to the taxonomy.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConstraintViolation) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrNotFound)
}

// Classify leaves domain errors untouched and wraps anything else as a
// TransactionError for op.
func Classify(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return &TransactionError{Op: op, Err: err}
}

// IsClientError returns true if the error is due to the caller's input
// or the current state of the books, not a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConstraintViolation)
}

var constraintMessages = map[string]string{
	"sales.invoice_number":        "an invoice with this number already exists",
	"sheet_types.code":            "a sheet type with this code already exists",
	"sheet_types.referenced":      "sheet type is referenced by batches or sales and cannot be deleted",
	"customers.name":              "a customer with this name already exists",
	"suppliers.name":              "a supplier with this name already exists",
	"service_types.name":          "a service type with this name already exists",
	"batches.quantity_remaining":  "batch quantity would leave its valid range",
	"ledger.later_entries":        "the customer has later transactions; record an adjustment instead of deleting",
	"sale_items.sheet_type_id":    "referenced sheet type does not exist",
	"batches.sheet_type_id":       "referenced sheet type does not exist",
	"batches.supplier_id":         "referenced supplier does not exist",
	"sales.customer_id":           "referenced customer does not exist",
	"sheet_types.parent_sheet_id": "referenced parent sheet type does not exist",
}

// UserMessage translates an error into a message safe to show a user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return fmt.Sprintf("Insufficient stock: requested %s, available %s",
			ise.Requested.String(), ise.Available.String())
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		if msg, ok := constraintMessages[ce.Constraint]; ok {
			return msg
		}
		return "the operation conflicts with existing records"
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	return "the operation failed and no changes were saved"
}
