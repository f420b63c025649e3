package packdb

import (
	"errors"
	"fmt"

	"github.com/packdb/packdb/internal/alloc"
)

var (
	// ErrInvalidFormat is returned when a file's header or an on-disk array
	// header fails validation (bad magic, unsupported width code, offset
	// past end-of-file).
	ErrInvalidFormat = errors.New("packdb: invalid format")

	// ErrOutOfMemory is returned when the allocator cannot satisfy a request,
	// including failure to extend the backing file.
	ErrOutOfMemory = errors.New("packdb: out of memory")

	// ErrReadOnlyViolation is returned when a mutation is attempted against
	// a read-only snapshot, a read-only Group, or a ref below the read-only
	// baseline recorded at the start of the enclosing write transaction.
	ErrReadOnlyViolation = errors.New("packdb: read-only violation")

	// ErrLockTimeout is returned when a writer could not acquire the
	// single-writer slot within the configured wait bound.
	ErrLockTimeout = errors.New("packdb: lock wait timeout")

	// ErrLogicError is returned for internal invariant violations that
	// indicate a bug rather than bad input (corrupt tree shape, ref
	// pointing outside any known array).
	ErrLogicError = errors.New("packdb: logic error")

	// ErrQueryMismatch is returned when a column-to-column comparison is
	// evaluated against columns of incompatible shape (different row counts
	// or different nullability).
	ErrQueryMismatch = errors.New("packdb: query mismatch")

	// ErrTransactionClosed is returned when an operation is attempted on a
	// WriteTxn or ReadTxn after Commit/Rollback/Close has already run.
	ErrTransactionClosed = errors.New("packdb: transaction already closed")

	// ErrTableNotFound is returned by Table when no table with the given
	// name exists in the transaction's snapshot.
	ErrTableNotFound = errors.New("packdb: table not found")

	// ErrTableExists is returned by CreateTable when a table with the given
	// name already exists.
	ErrTableExists = errors.New("packdb: table already exists")

	// ErrColumnNotFound is returned by Table.Column when no column with the
	// given name exists on that table.
	ErrColumnNotFound = errors.New("packdb: column not found")

	// ErrColumnExists is returned by AddColumn/AddNullableColumn when a
	// column with the given name already exists on that table.
	ErrColumnExists = errors.New("packdb: column already exists")
)

// FormatError carries the byte offset and reason for an ErrInvalidFormat.
//
// errors.Unwrap returns the original underlying error if there is one, and
// ErrInvalidFormat otherwise, so errors.Is(err, ErrInvalidFormat) holds for a
// FormatError built without a cause.
type FormatError struct {
	Offset uint64
	Reason string
	cause  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("packdb: invalid format at offset %d: %s", e.Offset, e.Reason)
}

func (e *FormatError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrInvalidFormat
}

// LockTimeoutError reports how long a writer waited before giving up.
type LockTimeoutError struct {
	WaitedMillis int64
	cause        error
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("packdb: lock wait timed out after %dms", e.WaitedMillis)
}

func (e *LockTimeoutError) Unwrap() error { return e.cause }

// ColumnShape summarizes the width class of a column for error reporting.
type ColumnShape struct {
	WidthBits int
	HasRefs   bool
	Nullable  bool
}

// QueryMismatchError reports the two incompatible column shapes involved in
// a failed comparison.
type QueryMismatchError struct {
	Left, Right ColumnShape
	cause       error
}

func (e *QueryMismatchError) Error() string {
	return fmt.Sprintf("packdb: query mismatch: left width=%d refs=%v null=%v vs right width=%d refs=%v null=%v",
		e.Left.WidthBits, e.Left.HasRefs, e.Left.Nullable,
		e.Right.WidthBits, e.Right.HasRefs, e.Right.Nullable)
}

func (e *QueryMismatchError) Unwrap() error { return e.cause }

// translateError funnels internal allocator errors into the public sentinels
// above (alloc.ErrOutOfMemory to ErrOutOfMemory, alloc.ErrReadOnly to
// ErrReadOnlyViolation, alloc.ErrInvalidRef to ErrLogicError), preserving the
// original error for errors.Is/As via Unwrap. Typed packdb errors and any
// other error pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var fe *FormatError
	if errors.As(err, &fe) {
		return err
	}
	var qe *QueryMismatchError
	if errors.As(err, &qe) {
		return err
	}
	var le *LockTimeoutError
	if errors.As(err, &le) {
		return err
	}

	switch {
	case errors.Is(err, alloc.ErrOutOfMemory):
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	case errors.Is(err, alloc.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnlyViolation, err)
	case errors.Is(err, alloc.ErrInvalidRef):
		return fmt.Errorf("%w: %w", ErrLogicError, err)
	}
	return err
}
