package snapshot

import (
	"errors"
	"fmt"
)

/***** Error taxonomy *****/

var (
	// ErrConfiguration is the parent of all errors caused by a misconfigured origin entity or engine.
	ErrConfiguration = errors.New("snapshot configuration error")

	// ErrRelation is the parent of all errors caused by an unknown or non-traversable relation.
	ErrRelation = errors.New("snapshot relation error")

	// ErrSnapshotIntegrity is the parent of all errors caused by a snapshot that does not fit its user.
	ErrSnapshotIntegrity = errors.New("snapshot integrity error")

	// ErrStepRange is the parent of all errors caused by an unsatisfiable step request.
	ErrStepRange = errors.New("snapshot step range error")
)

/***** Configuration errors *****/

var (
	ErrMissingVersionColumn  = fmt.Errorf("%w: entity type has no version column", ErrConfiguration)
	ErrNilStore              = fmt.Errorf("%w: nil store supplied", ErrConfiguration)
	ErrEmptyLockName         = fmt.Errorf("%w: empty lock name supplied", ErrConfiguration)
	ErrInvalidLockTimeout    = fmt.Errorf("%w: lock timeout must be positive", ErrConfiguration)
	ErrEmptyTableName        = fmt.Errorf("%w: empty table name supplied", ErrConfiguration)
	ErrNilDatabaseConnection = fmt.Errorf("%w: nil database connection supplied", ErrConfiguration)
	ErrUnknownOriginType     = fmt.Errorf("%w: origin type is not registered", ErrConfiguration)
	ErrMissingEntityLoader   = fmt.Errorf("%w: entity type has no loader", ErrConfiguration)
	ErrInvalidEntityType     = fmt.Errorf("%w: invalid entity type", ErrConfiguration)
)

/***** Relation errors *****/

var (
	ErrRelationNotFound        = fmt.Errorf("%w: relation not found", ErrRelation)
	ErrUnsupportedRelationKind = fmt.Errorf("%w: unsupported relation kind", ErrRelation)
)

/***** Integrity errors *****/

var (
	ErrSnapshotOriginMismatch = fmt.Errorf("%w: snapshot does not belong to entity", ErrSnapshotIntegrity)
	ErrInvalidRecordStructure = fmt.Errorf("%w: invalid record structure", ErrSnapshotIntegrity)
)

/***** Step range errors *****/

var (
	ErrZeroSteps         = fmt.Errorf("%w: steps must not be zero", ErrStepRange)
	ErrNoSnapshotForStep = fmt.Errorf("%w: no snapshot found for step", ErrStepRange)
)

/***** Record and persistence errors *****/

var (
	ErrEmptyRelationPath       = errors.New("relation path must not be empty")
	ErrEmptyAttributeName      = errors.New("attribute name must not be empty")
	ErrAttributeNotFound       = errors.New("attribute not found in snapshot")
	ErrUnknownTypeTag          = errors.New("unknown type tag")
	ErrCastFailed              = errors.New("casting attribute value failed")
	ErrEncodingStorageFailed   = errors.New("encoding snapshot storage failed")
	ErrSnapshotNotFound        = errors.New("snapshot not found")
	ErrEntityNotFound          = errors.New("entity not found")
	ErrQueryingSnapshotsFailed = errors.New("querying snapshots failed")
	ErrSavingSnapshotFailed    = errors.New("saving snapshot failed")
	ErrUpdatingEntityFailed    = errors.New("updating entity failed")
	ErrLoadingEntityFailed     = errors.New("loading entity failed")
	ErrBuildingQueryFailed     = errors.New("building query failed")
	ErrScanningDBRowFailed     = errors.New("scanning db row failed")
	ErrTransactionFailed       = errors.New("transaction failed")
	ErrLockFailed              = errors.New("acquiring lock failed")
)
