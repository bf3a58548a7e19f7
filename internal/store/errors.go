package store

import "errors"

// Sentinel errors returned by repository methods to signal well-known failure
// conditions. Callers should use [errors.Is] to match against these values.
var (
	// ErrMutationNotFound is returned when no mutation matches the lookup.
	ErrMutationNotFound = errors.New("mutation was not found")

	// ErrDuplicateApplication is returned when a second mutation with the
	// same device and checksum is marked applied.
	ErrDuplicateApplication = errors.New("mutation with the same checksum is already applied")

	// ErrConflictNotFound is returned when no conflict matches the id.
	ErrConflictNotFound = errors.New("conflict was not found")

	// ErrConflictAlreadyResolved is returned when a resolution targets a
	// conflict that is no longer pending.
	ErrConflictAlreadyResolved = errors.New("conflict is already resolved")

	// ErrPendingConflictExists is returned when a second open conflict is
	// recorded for the same mutation.
	ErrPendingConflictExists = errors.New("mutation already has a pending conflict")

	// ErrSessionNotFound is returned when no session matches the id.
	ErrSessionNotFound = errors.New("sync session was not found")

	// ErrSessionCompleted is returned when a completed session is modified.
	ErrSessionCompleted = errors.New("sync session is already completed")

	// ErrEntityNotFound is returned when the target entity record is absent.
	ErrEntityNotFound = errors.New("entity record was not found")

	// ErrEntityAlreadyExists is returned when a create targets an id that is
	// already taken.
	ErrEntityAlreadyExists = errors.New("entity record already exists")

	// ErrNaturalKeyTaken is returned when a live record already holds the
	// natural key.
	ErrNaturalKeyTaken = errors.New("natural key is already taken")

	// ErrVersionConflict is returned when an optimistic revision check fails:
	// the record changed between the read and the write.
	ErrVersionConflict = errors.New("entity record revision conflict occurred")

	// ErrStoreUnavailable is returned when the store cannot be reached.
	ErrStoreUnavailable = errors.New("store is unavailable")
)

// Low-level database operation errors. These are returned (or wrapped) by
// repository methods when a SQL-level operation fails before any domain logic
// can be applied.
var (
	// ErrBuildingSQLQuery is returned when constructing a SQL query fails.
	ErrBuildingSQLQuery = errors.New("error building sql query")

	// ErrExecutingQuery is returned when executing a SELECT fails.
	ErrExecutingQuery = errors.New("error executing sql query")

	// ErrBeginningTransaction is returned when the driver cannot start a
	// transaction.
	ErrBeginningTransaction = errors.New("failed to begin transaction")

	// ErrCommitingTransaction is returned when committing an open transaction
	// fails. The transaction is considered rolled back at this point.
	ErrCommitingTransaction = errors.New("failed to commit transaction")

	// ErrExecutingStatement is returned when an INSERT, UPDATE or DELETE
	// fails.
	ErrExecutingStatement = errors.New("failed to execute statement")

	// ErrScanningRow is returned when scanning a result row fails.
	ErrScanningRow = errors.New("failed to scan row")

	// ErrEncodingColumn is returned when a JSON column cannot be encoded or
	// decoded.
	ErrEncodingColumn = errors.New("failed to encode json column")
)
